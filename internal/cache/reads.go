package cache

import (
	"context"
	"log/slog"
	"slices"

	"github.com/hitoshi/furuhon/internal/metrics"
	"github.com/hitoshi/furuhon/internal/model"
	"github.com/hitoshi/furuhon/internal/repository"
)

// GetInitial は一覧の最新ページを返し、キャッシュを置き換える。
// 保存済み・自分の出品はリモートを優先し、失敗時はレコードストアで代替する。
// フィードはレコードストアを正とし、リモートの最新分で補う。
// どのソースも使えない場合は前回のキャッシュを返す。
//
// 同じ一覧への同時の呼び出しは1回の読み込みを共有する。共有する読み込みは
// 呼び出し元のキャンセルでは中断されず、待っている呼び出し元だけが前回のキャッシュを受け取って戻る。
func (r *Repository) GetInitial(ctx context.Context, view model.ViewKind) Page {
	ch := r.initial.DoChan(string(view), func() (any, error) {
		return r.getInitial(context.WithoutCancel(ctx), view), nil
	})
	select {
	case res := <-ch:
		page := res.Val.(Page)
		page.Items = cloneAll(page.Items)
		return page
	case <-ctx.Done():
		r.logger.Warn("一覧の読み込みを待たずに中断しました",
			slog.String("view", string(view)),
			slog.String("error", ctx.Err().Error()),
		)
		return Page{Items: truncate(r.stale(listKey(view)), r.pageSize), Degraded: true}
	}
}

func (r *Repository) getInitial(ctx context.Context, view model.ViewKind) Page {
	seq := r.beginRead()
	defer r.endRead(seq)

	filter, userID, ok := r.viewFilter(view)
	if !ok {
		r.storeEntry(listKey(view), nil, "", false, seq)
		r.metrics.RecordCacheRead(string(view), metrics.SourceNone)
		return Page{}
	}

	var (
		items    []model.Insertion
		source   string
		degraded bool
	)

	switch view {
	case model.ViewFeed:
		local, storeErr := r.store.FindAll(ctx, repository.Filter{Limit: r.pageSize})
		if storeErr != nil {
			r.sourceFailed(view, "レコードストアからの読み込みに失敗しました", storeErr)
		}
		fresh, remoteErr := r.remote.FetchRecent(ctx, r.pageSize)
		if remoteErr != nil {
			r.sourceFailed(view, "リモートからの読み込みに失敗しました", remoteErr)
		} else {
			r.persist(ctx, fresh)
		}

		switch {
		case storeErr != nil && remoteErr != nil:
			items, source = r.stale(listKey(view)), metrics.SourceStale
		case remoteErr != nil:
			items, source = local, metrics.SourceStore
		default:
			items, source = merge(local, fresh), metrics.SourceRemote
		}
		degraded = storeErr != nil || remoteErr != nil

	case model.ViewSaved, model.ViewPublished:
		fresh, remoteErr := r.fetchUserView(ctx, view, userID)
		if remoteErr == nil {
			r.persist(ctx, fresh)
			items, source = filterItems(fresh, filter.Match), metrics.SourceRemote
			break
		}
		r.sourceFailed(view, "リモートからの読み込みに失敗しました", remoteErr)
		degraded = true

		filter.Limit = r.pageSize
		local, storeErr := r.store.FindAll(ctx, filter)
		if storeErr != nil {
			r.sourceFailed(view, "レコードストアからの読み込みに失敗しました", storeErr)
			items, source = r.stale(listKey(view)), metrics.SourceStale
			break
		}
		items, source = local, metrics.SourceStore

	case model.ViewSearch:
		return Page{}
	}

	slices.SortFunc(items, model.CompareNewestFirst)
	items = truncate(items, r.pageSize)
	r.metrics.RecordCacheRead(string(view), source)
	return Page{Items: r.storeEntry(listKey(view), items, "", degraded, seq), Degraded: degraded}
}

// fetchUserView はログインユーザーに紐づく一覧をリモートから取得する。
func (r *Repository) fetchUserView(ctx context.Context, view model.ViewKind, userID string) ([]model.Insertion, error) {
	if view == model.ViewPublished {
		return r.remote.FetchPublished(ctx, userID, r.pageSize)
	}
	items, err := r.remote.FetchSaved(ctx, userID, r.pageSize)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].SavedByCurrentUser = true
	}
	return items, nil
}

// GetOlderThan は cursor より古い出品を新しい順に1ページ分返す。
// 新しい順で cursor より厳密に後ろに並ぶ出品が対象。同時刻は ID が cursor より大きいものだけを含む。
func (r *Repository) GetOlderThan(ctx context.Context, view model.ViewKind, cursor model.Insertion) Page {
	older := func(i model.Insertion) bool {
		return model.CompareNewestFirst(i, cursor) > 0
	}
	return r.getRelative(ctx, view, cursor, older, model.CompareNewestFirst,
		func(f repository.Filter) ([]model.Insertion, error) {
			return r.store.FindAllBefore(ctx, cursor.CreatedAt, f)
		},
		func() ([]model.Insertion, error) {
			return r.remote.FetchBefore(ctx, cursor.CreatedAt)
		},
	)
}

// GetNewerThan は cursor より新しい出品を古い順に1ページ分返す。
// 新しい順で cursor より厳密に前に並ぶ出品が対象。並びは新しい順のちょうど逆になる。
func (r *Repository) GetNewerThan(ctx context.Context, view model.ViewKind, cursor model.Insertion) Page {
	newer := func(i model.Insertion) bool {
		return model.CompareNewestFirst(i, cursor) < 0
	}
	return r.getRelative(ctx, view, cursor, newer, model.CompareOldestFirst,
		func(f repository.Filter) ([]model.Insertion, error) {
			return r.store.FindAllAfter(ctx, cursor.CreatedAt, f)
		},
		func() ([]model.Insertion, error) {
			return r.remote.FetchAfter(ctx, cursor.CreatedAt)
		},
	)
}

// getRelative はキャッシュ、レコードストア、リモートの順にカーソル相対のページを組み立てる。
// リモートはローカルのソースで1ページに満たない場合にだけ問い合わせる。
func (r *Repository) getRelative(
	ctx context.Context,
	view model.ViewKind,
	cursor model.Insertion,
	inWindow func(model.Insertion) bool,
	order func(a, b model.Insertion) int,
	fromStore func(repository.Filter) ([]model.Insertion, error),
	fromRemote func() ([]model.Insertion, error),
) Page {
	filter, _, ok := r.viewFilter(view)
	if !ok {
		r.metrics.RecordCacheRead(string(view), metrics.SourceNone)
		return Page{}
	}
	seq := r.beginRead()
	defer r.endRead(seq)
	keep := func(i model.Insertion) bool { return inWindow(i) && filter.Match(i) }

	source := metrics.SourceCache
	degraded := false
	items := filterItems(r.cached(listKey(view)), keep)

	storeFilter := filter
	storeFilter.CursorID = cursor.ID
	storeFilter.Limit = r.pageSize
	local, err := fromStore(storeFilter)
	if err != nil {
		r.sourceFailed(view, "レコードストアからの読み込みに失敗しました", err)
		degraded = true
	} else {
		items = merge(items, filterItems(local, keep))
		if len(local) > 0 {
			source = metrics.SourceStore
		}
	}

	if len(items) < r.pageSize {
		fresh, err := fromRemote()
		if err != nil {
			r.sourceFailed(view, "リモートからの読み込みに失敗しました", err)
			degraded = true
		} else {
			r.persist(ctx, fresh)
			items = merge(items, filterItems(fresh, keep))
			source = metrics.SourceRemote
		}
	}

	slices.SortFunc(items, order)
	items = truncate(items, r.pageSize)
	r.metrics.RecordCacheRead(string(view), source)
	return Page{Items: r.extendEntry(view, items, degraded, seq), Degraded: degraded}
}

// GetByQuery は検索語に一致する出品を新しい順に返す。空白のみの検索語には空の結果を返す。
// フィードでは自分の出品を除き、保存済みでは保存中の出品だけ、自分の出品では自分の出品だけに絞る。
// 検索結果はキャッシュから返さない。保存状態の切り替えを反映するために直近の結果だけを保持する。
func (r *Repository) GetByQuery(ctx context.Context, view model.ViewKind, query string) Page {
	q := repository.NormalizeQuery(query)
	if q == "" {
		return Page{}
	}
	filter, userID, ok := r.viewFilter(view)
	if !ok {
		return Page{}
	}
	if view == model.ViewFeed {
		filter.ExcludeSellerID = userID
	}
	filter.Text = q

	seq := r.beginRead()
	defer r.endRead(seq)
	var (
		items    []model.Insertion
		degraded bool
		source   = metrics.SourceRemote
	)

	fresh, err := r.remote.FetchByQuery(ctx, q)
	if err == nil {
		r.persist(ctx, fresh)
		items = filterItems(fresh, filter.Match)
	} else {
		r.sourceFailed(view, "リモートでの検索に失敗しました", err)
		degraded = true
		source = metrics.SourceStore

		local, err := r.store.FindAll(ctx, filter)
		if err != nil {
			r.sourceFailed(view, "レコードストアでの検索に失敗しました", err)
			source = metrics.SourceNone
		}
		items = filterItems(local, filter.Match)
	}

	slices.SortFunc(items, model.CompareNewestFirst)
	r.metrics.RecordCacheRead(string(model.ViewSearch), source)
	return Page{Items: r.storeEntry(searchKey(view), items, q, degraded, seq), Degraded: degraded}
}

// stale は前回のキャッシュをそのまま返す。
func (r *Repository) stale(key entryKey) []model.Insertion {
	return r.cached(key)
}

// persist はリモートから取得した出品をレコードストアに保存する。
// 失敗した出品はログに残して残りの保存を続ける。
func (r *Repository) persist(ctx context.Context, items []model.Insertion) {
	failed := 0
	for _, ins := range items {
		if err := r.store.Upsert(ctx, ins); err != nil {
			failed++
			r.logger.Warn("出品のローカル保存に失敗しました",
				slog.String("insertion_id", ins.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if failed > 0 {
		r.logger.Warn("一部の出品をローカルに保存できませんでした",
			slog.Int("failed", failed),
			slog.Int("total", len(items)),
		)
	}
}

func (r *Repository) sourceFailed(view model.ViewKind, msg string, err error) {
	r.metrics.RecordFallback(string(view))
	r.logger.Warn(msg,
		slog.String("view", string(view)),
		slog.String("code", model.ErrCodeSourceUnavailable),
		slog.String("error", err.Error()),
	)
}
