// Package cache は一覧種別ごとのメモリキャッシュを持ち、
// ローカルのレコードストアとリモートAPIを突き合わせて「一覧の最新の状態」を提供する。
//
// 読み込み系の操作はエラーを返さない。データソースの失敗は代替ソースへの切り替えで吸収し、
// 結果の Degraded フラグでのみ呼び出し元に伝える。
package cache

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/furuhon/internal/metrics"
	"github.com/hitoshi/furuhon/internal/model"
	"github.com/hitoshi/furuhon/internal/repository"
)

// DefaultPageSize は1ページあたりの既定件数。
const DefaultPageSize = 20

// Config はキャッシュの設定。
type Config struct {
	PageSize int
}

// Page は読み込み結果。Degraded は優先ソースが使えず代替データを返したことを示す。
type Page struct {
	Items    []model.Insertion
	Degraded bool
}

// entryKey はキャッシュエントリのキー。検索結果は検索対象の一覧ごとに1件保持する。
type entryKey struct {
	kind  model.ViewKind
	scope model.ViewKind
}

func listKey(view model.ViewKind) entryKey   { return entryKey{kind: view, scope: view} }
func searchKey(view model.ViewKind) entryKey { return entryKey{kind: model.ViewSearch, scope: view} }

// entry は一覧の順序付きの出品と最終更新時刻。items は常に新しい順に並ぶ。
type entry struct {
	items       []model.Insertion
	query       string
	refreshedAt time.Time
}

// override は保存状態の切り替え結果。切り替えより前に開始した読み込みの結果に上書きする。
type override struct {
	saved bool
	seq   uint64
}

// Repository は一覧種別ごとのキャッシュを所有するリポジトリ。
type Repository struct {
	store    repository.InsertionStore
	remote   repository.RemoteService
	session  repository.SessionProvider
	pageSize int
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
	now      func() time.Time

	mu        sync.RWMutex
	entries   map[entryKey]*entry
	degraded  map[model.ViewKind]bool
	overrides map[string]override
	reading   map[uint64]int // 実行中の読み込みの開始時点の seq ごとの件数
	seq       uint64
	clearedAt uint64 // Clear 時点の seq。これより前に開始した読み込みはキャッシュに書き込まない

	locks   keyedMutex
	initial singleflight.Group
}

// NewRepository はRepositoryを生成する。
func NewRepository(
	store repository.InsertionStore,
	remote repository.RemoteService,
	session repository.SessionProvider,
	cfg Config,
	logger *slog.Logger,
	mc metrics.MetricsCollector,
) *Repository {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Repository{
		store:     store,
		remote:    remote,
		session:   session,
		pageSize:  pageSize,
		logger:    logger,
		metrics:   mc,
		now:       time.Now,
		entries:   make(map[entryKey]*entry),
		degraded:  make(map[model.ViewKind]bool),
		overrides: make(map[string]override),
		reading:   make(map[uint64]int),
	}
}

// PageSize は1ページあたりの件数を返す。
func (r *Repository) PageSize() int {
	return r.pageSize
}

// Degraded は直近の読み込みが代替データだったかを返す。
func (r *Repository) Degraded(view model.ViewKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.degraded[view]
}

// RefreshedAt は一覧のキャッシュが最後に更新された時刻を返す。
func (r *Repository) RefreshedAt(view model.ViewKind) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[listKey(view)]
	if !ok {
		return time.Time{}, false
	}
	return e.refreshedAt, true
}

// Clear はすべてのキャッシュを破棄する。キャッシュはユーザーごとのデータなのでログアウト時に呼ぶ。
func (r *Repository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[entryKey]*entry)
	r.degraded = make(map[model.ViewKind]bool)
	r.overrides = make(map[string]override)
	r.seq++
	r.clearedAt = r.seq
	r.logger.Info("キャッシュを破棄しました")
}

// viewFilter は一覧の絞り込み条件を返す。ログインが必要な一覧で未ログインの場合は ok=false。
func (r *Repository) viewFilter(view model.ViewKind) (repository.Filter, string, bool) {
	userID, loggedIn := r.currentUser()
	if view.RequiresSession() && !loggedIn {
		return repository.Filter{}, "", false
	}
	switch view {
	case model.ViewFeed:
		return repository.Filter{}, userID, true
	case model.ViewSaved:
		return repository.Filter{SavedOnly: true}, userID, true
	case model.ViewPublished:
		return repository.Filter{SellerID: userID}, userID, true
	}
	return repository.Filter{}, userID, false
}

func (r *Repository) currentUser() (string, bool) {
	if r.session == nil || !r.session.IsLoggedIn() {
		return "", false
	}
	userID, ok := r.session.CurrentUserID()
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}

// beginRead は読み込みの開始を記録し、開始時点の切り替え番号を返す。
// 読み込みが終わったら endRead に同じ番号を渡すこと。
func (r *Repository) beginRead() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reading[r.seq]++
	return r.seq
}

func (r *Repository) endRead(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reading[seq]--; r.reading[seq] <= 0 {
		delete(r.reading, seq)
	}
	r.pruneOverrides()
}

// pruneOverrides は実行中のどの読み込みにも適用されない上書きを捨てる。r.mu を保持して呼ぶこと。
func (r *Repository) pruneOverrides() {
	oldest := r.seq
	for seq := range r.reading {
		oldest = min(oldest, seq)
	}
	for id, o := range r.overrides {
		if o.seq <= oldest {
			delete(r.overrides, id)
		}
	}
}

// applyOverrides は seq より後に確定した保存状態を items に反映する。r.mu を保持して呼ぶこと。
func (r *Repository) applyOverrides(items []model.Insertion, seq uint64) {
	if len(r.overrides) == 0 {
		return
	}
	for i := range items {
		if o, ok := r.overrides[items[i].ID]; ok && o.seq > seq {
			items[i].SavedByCurrentUser = o.saved
		}
	}
}

// storeEntry は一覧のキャッシュを丸ごと置き換え、呼び出し元に返すコピーを作る。
func (r *Repository) storeEntry(key entryKey, items []model.Insertion, query string, degraded bool, seq uint64) []model.Insertion {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seq < r.clearedAt {
		return cloneAll(items)
	}
	r.applyOverrides(items, seq)
	r.entries[key] = &entry{items: items, query: query, refreshedAt: r.now()}
	if key.kind != model.ViewSearch {
		r.degraded[key.kind] = degraded
	}
	return cloneAll(items)
}

// extendEntry は既存のキャッシュに items を統合する。
func (r *Repository) extendEntry(view model.ViewKind, items []model.Insertion, degraded bool, seq uint64) []model.Insertion {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seq < r.clearedAt {
		return cloneAll(items)
	}
	r.applyOverrides(items, seq)
	key := listKey(view)
	if e, ok := r.entries[key]; ok {
		e.items = merge(e.items, items)
		e.refreshedAt = r.now()
	} else {
		r.entries[key] = &entry{items: merge(nil, items), refreshedAt: r.now()}
	}
	r.degraded[view] = degraded
	return cloneAll(items)
}

// cached は一覧のキャッシュのコピーを返す。
func (r *Repository) cached(key entryKey) []model.Insertion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	if !ok {
		return nil
	}
	return cloneAll(e.items)
}

// merge は一覧を統合する。同じIDは後の一覧の値を採用し、新しい順に並べる。
func merge(lists ...[]model.Insertion) []model.Insertion {
	byID := make(map[string]model.Insertion)
	for _, list := range lists {
		for _, ins := range list {
			byID[ins.ID] = ins
		}
	}
	out := make([]model.Insertion, 0, len(byID))
	for _, ins := range byID {
		out = append(out, ins)
	}
	slices.SortFunc(out, model.CompareNewestFirst)
	return out
}

func cloneAll(items []model.Insertion) []model.Insertion {
	if items == nil {
		return nil
	}
	out := make([]model.Insertion, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

func truncate(items []model.Insertion, n int) []model.Insertion {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func filterItems(items []model.Insertion, keep func(model.Insertion) bool) []model.Insertion {
	out := make([]model.Insertion, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}
