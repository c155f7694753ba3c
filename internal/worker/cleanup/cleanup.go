// Package cleanup はレコードストアの古い出品を削除するジョブを提供する。
// 保持期間（デフォルト90日）を超過した出品を日次バッチで削除する。
// 保存済みの出品とログインユーザー自身の出品は期間に関係なく残す。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays は出品の保持日数の既定値。
const DefaultRetentionDays = 90

// Executor は *sql.DB と *sql.Tx が満たす書き込み用のインターフェース。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// 保存済みとログインユーザー自身の出品は対象外。
const deleteExpiredQuery = `DELETE FROM insertions
WHERE created_at < now() - $1::interval
  AND NOT saved_by_current_user
  AND seller_id IS DISTINCT FROM (SELECT user_id FROM local_session WHERE singleton)`

// CleanupJob は保持期間を過ぎた出品を削除する。何度実行しても結果は同じ。
type CleanupJob struct {
	exec          Executor
	log           *slog.Logger
	RetentionDays int
}

// NewCleanupJob は CleanupJob を返す。retentionDays が0以下なら DefaultRetentionDays。
func NewCleanupJob(exec Executor, log *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &CleanupJob{exec: exec, log: log, RetentionDays: retentionDays}
}

// Start は ctx が終わるまで interval おきに Run を呼ぶ。
// Run の失敗はログに残るだけで、次の周期にまた試みる。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = j.Run(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Run は1回分の削除を行い、件数と所要時間をログに出す。
func (j *CleanupJob) Run(ctx context.Context) error {
	began := time.Now()
	deleted, err := j.deleteExpired(ctx)
	if err != nil {
		j.log.Error("出品クリーンアップジョブの実行に失敗しました",
			slog.Any("error", err),
			slog.Int("retention_days", j.RetentionDays),
		)
		return err
	}

	j.log.Info("出品クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Int64("duration_ms", time.Since(began).Milliseconds()),
	)
	return nil
}

func (j *CleanupJob) deleteExpired(ctx context.Context) (int64, error) {
	res, err := j.exec.ExecContext(ctx, deleteExpiredQuery, fmt.Sprintf("%d days", j.RetentionDays))
	if err != nil {
		return 0, fmt.Errorf("出品クリーンアップの実行に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return n, nil
}
