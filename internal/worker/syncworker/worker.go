// Package syncworker はリモートの出品をレコードストアに取り込むバックグラウンド同期を提供する。
// メモリ上のキャッシュには触れない。次の読み込みでレコードストアから再構築される。
package syncworker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/furuhon/internal/metrics"
	"github.com/hitoshi/furuhon/internal/model"
	"github.com/hitoshi/furuhon/internal/repository"
)

// DefaultPageSize はレコードストアが空の場合に取得する件数の既定値。
const DefaultPageSize = 50

// Fetcher は同期に使うリモートAPIの操作。repository.RemoteService の部分集合。
type Fetcher interface {
	FetchRecent(ctx context.Context, pageSize int) ([]model.Insertion, error)
	FetchAfter(ctx context.Context, t time.Time) ([]model.Insertion, error)
	FetchSaved(ctx context.Context, userID string, pageSize int) ([]model.Insertion, error)
	FetchPublished(ctx context.Context, sellerID string, pageSize int) ([]model.Insertion, error)
}

// Worker はリモートの出品を定期的にレコードストアへ取り込む。
// 失敗が続く間は指数バックオフで次の実行を遅らせる。
type Worker struct {
	store    repository.SyncStore
	remote   Fetcher
	session  repository.SessionProvider
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
	pageSize int
	now      func() time.Time

	mu                sync.Mutex
	consecutiveErrors int
	nextRunAt         time.Time
}

// NewWorker はWorkerを生成する。session が nil の場合はフィードだけを同期する。
func NewWorker(
	store repository.SyncStore,
	remote Fetcher,
	session repository.SessionProvider,
	logger *slog.Logger,
	mc metrics.MetricsCollector,
	pageSize int,
) *Worker {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Worker{
		store:    store,
		remote:   remote,
		session:  session,
		logger:   logger,
		metrics:  mc,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// Start は interval ごとに同期を実行する。コンテキストがキャンセルされるまで実行を継続する。
func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("同期ワーカーを開始しました",
		slog.Duration("interval", interval),
		slog.Int("page_size", w.pageSize),
	)

	// 起動直後に1回実行
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("同期ワーカーを停止しました")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick はバックオフ中でなければ同期を1回実行する。
func (w *Worker) tick(ctx context.Context) {
	w.mu.Lock()
	waiting := w.now().Before(w.nextRunAt)
	w.mu.Unlock()
	if waiting {
		return
	}

	if _, err := w.RunOnce(ctx); err != nil {
		w.logger.Error("同期に失敗しました", slog.String("error", err.Error()))
	}
}

// RunOnce は同期を1回実行し、取り込んだ出品の件数を返す。
// フィードはレコードストアの最新より新しい出品を、空の場合は最新の1ページ分を取り込む。
// ログイン中は保存済みと自分の出品も並行して取り込む。
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	start := w.now()

	jobs := []func(context.Context) ([]model.Insertion, error){w.fetchFeed}
	if w.session != nil {
		if userID, ok := w.session.CurrentUserID(); ok {
			jobs = append(jobs,
				func(ctx context.Context) ([]model.Insertion, error) { return w.fetchSaved(ctx, userID) },
				func(ctx context.Context) ([]model.Insertion, error) {
					return w.remote.FetchPublished(ctx, userID, w.pageSize)
				},
			)
		}
	}

	results := make([][]model.Insertion, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		g.Go(func() error {
			items, err := job(gctx)
			if err != nil {
				return err
			}
			results[i] = items
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		var all []model.Insertion
		for _, items := range results {
			all = append(all, items...)
		}
		if len(all) > 0 {
			if upsertErr := w.store.UpsertAll(ctx, all); upsertErr != nil {
				err = fmt.Errorf("同期した出品の保存に失敗: %w", upsertErr)
			}
		}
		if err == nil {
			w.succeeded(len(all), start)
			return len(all), nil
		}
	}

	w.failed(err)
	return 0, err
}

func (w *Worker) fetchFeed(ctx context.Context) ([]model.Insertion, error) {
	latest, ok, err := w.store.LatestCreatedAt(ctx)
	if err != nil {
		return nil, fmt.Errorf("最新の出品日時の取得に失敗: %w", err)
	}
	if !ok {
		items, err := w.remote.FetchRecent(ctx, w.pageSize)
		if err != nil {
			return nil, fmt.Errorf("最新の出品の取得に失敗: %w", err)
		}
		return items, nil
	}
	items, err := w.remote.FetchAfter(ctx, latest)
	if err != nil {
		return nil, fmt.Errorf("新しい出品の取得に失敗: %w", err)
	}
	return items, nil
}

func (w *Worker) fetchSaved(ctx context.Context, userID string) ([]model.Insertion, error) {
	items, err := w.remote.FetchSaved(ctx, userID, w.pageSize)
	if err != nil {
		return nil, fmt.Errorf("保存済みの出品の取得に失敗: %w", err)
	}
	for i := range items {
		items[i].SavedByCurrentUser = true
	}
	return items, nil
}

func (w *Worker) succeeded(count int, start time.Time) {
	w.mu.Lock()
	w.consecutiveErrors = 0
	w.nextRunAt = time.Time{}
	w.mu.Unlock()

	w.metrics.RecordSyncedItems(count)
	w.logger.Info("同期が完了しました",
		slog.Int("synced_count", count),
		slog.Float64("duration_ms", float64(w.now().Sub(start).Milliseconds())),
	)
}

// failed は連続エラー回数を増やし、次の実行をバックオフさせる。
func (w *Worker) failed(err error) {
	w.mu.Lock()
	w.consecutiveErrors++
	delay := CalculateBackoff(w.consecutiveErrors - 1)
	w.nextRunAt = w.now().Add(delay)
	errs := w.consecutiveErrors
	w.mu.Unlock()

	w.logger.Warn("同期をバックオフします",
		slog.Int("consecutive_errors", errs),
		slog.Duration("retry_after", delay),
		slog.String("code", model.ErrCodeSourceUnavailable),
		slog.String("error", err.Error()),
	)
}

// NextRunAt はバックオフ中の次の実行時刻を返す。バックオフ中でなければゼロ値を返す。
func (w *Worker) NextRunAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextRunAt
}
