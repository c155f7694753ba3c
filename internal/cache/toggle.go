package cache

import (
	"context"
	"log/slog"

	"github.com/hitoshi/furuhon/internal/metrics"
	"github.com/hitoshi/furuhon/internal/model"
)

// ToggleSaveStatus は出品の保存状態を反転し、確定した保存状態を返す。
//
// 未ログインの場合は model.ErrNoSession を返し、何も変更しない。
// リモートへの書き込みが失敗した場合や希望の状態が確認できなかった場合は、
// 変更前の状態を返しキャッシュには触れない。成功した場合はすべての一覧のキャッシュにある
// 同じ出品を一度に更新する。同じ出品への切り替えは出品IDごとに直列化される。
func (r *Repository) ToggleSaveStatus(ctx context.Context, id string) (bool, error) {
	if _, ok := r.currentUser(); !ok {
		return false, model.ErrNoSession
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	current, ok := r.lookup(ctx, id)
	if !ok {
		return false, model.NewItemNotFoundError(id)
	}
	previous := current.SavedByCurrentUser
	desired := !previous

	confirmed, err := r.remote.SetSaveStatus(ctx, id, desired)
	if err != nil {
		r.metrics.RecordToggle(metrics.ToggleRemoteFailed)
		r.logger.Warn("保存状態の切り替えに失敗したため変更を取り消しました",
			slog.String("insertion_id", id),
			slog.Bool("desired", desired),
			slog.String("error", err.Error()),
		)
		return previous, nil
	}
	if !confirmed {
		r.metrics.RecordToggle(metrics.ToggleUnconfirmed)
		r.logger.Warn("リモートが保存状態の変更を確認しませんでした",
			slog.String("insertion_id", id),
			slog.Bool("desired", desired),
			slog.String("code", model.ErrCodeInconsistentToggle),
		)
		return previous, nil
	}

	// ストアを先に更新し、その後に開始した読み込みが古い状態をキャッシュに戻さないようにする
	current.SavedByCurrentUser = desired
	if err := r.store.Upsert(ctx, current); err != nil {
		r.logger.Warn("保存状態のローカル保存に失敗しました",
			slog.String("insertion_id", id),
			slog.String("error", err.Error()),
		)
	}
	r.applySaved(id, desired)

	if desired {
		r.metrics.RecordToggle(metrics.ToggleSaved)
	} else {
		r.metrics.RecordToggle(metrics.ToggleUnsaved)
	}
	r.logger.Info("保存状態を切り替えました",
		slog.String("insertion_id", id),
		slog.Bool("saved", desired),
	)
	return desired, nil
}

// applySaved はすべてのキャッシュにある出品の保存状態を1回の書き込みロックで更新する。
func (r *Repository) applySaved(id string, saved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.overrides[id] = override{saved: saved, seq: r.seq}
	r.pruneOverrides()
	for _, e := range r.entries {
		for i := range e.items {
			if e.items[i].ID == id {
				e.items[i].SavedByCurrentUser = saved
			}
		}
	}
}

// lookup はキャッシュ、レコードストア、リモートの順に出品の現在の状態を探す。
func (r *Repository) lookup(ctx context.Context, id string) (model.Insertion, bool) {
	if ins, ok := r.findCached(id); ok {
		return ins, true
	}

	ins, err := r.store.FindByID(ctx, id)
	if err != nil {
		r.logger.Warn("レコードストアからの出品の取得に失敗しました",
			slog.String("insertion_id", id),
			slog.String("error", err.Error()),
		)
	} else if ins != nil {
		return *ins, true
	}

	ins, err = r.remote.FetchByID(ctx, id)
	if err != nil {
		r.logger.Warn("リモートからの出品の取得に失敗しました",
			slog.String("insertion_id", id),
			slog.String("error", err.Error()),
		)
		return model.Insertion{}, false
	}
	if ins == nil {
		return model.Insertion{}, false
	}
	return *ins, true
}

func (r *Repository) findCached(id string) (model.Insertion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		for _, ins := range e.items {
			if ins.ID == id {
				return ins.Clone(), true
			}
		}
	}
	return model.Insertion{}, false
}
