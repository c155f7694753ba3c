package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresSessionRepo はlocal_sessionテーブルを使用したログイン状態のリポジトリ。
// テーブルは常に高々1行を保持する。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Save はログインユーザーを保存する。既存のログイン状態は置き換える。
func (r *PostgresSessionRepo) Save(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO local_session (singleton, user_id, logged_in_at)
		 VALUES (true, $1, now())
		 ON CONFLICT (singleton) DO UPDATE SET user_id = EXCLUDED.user_id, logged_in_at = now()`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("ログイン状態の保存に失敗しました: %w", err)
	}
	return nil
}

// Clear はログイン状態を削除する。
func (r *PostgresSessionRepo) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM local_session`); err != nil {
		return fmt.Errorf("ログイン状態の削除に失敗しました: %w", err)
	}
	return nil
}

// CurrentUserID は保存されたユーザーIDを返す。未ログインの場合は空文字を返す。
func (r *PostgresSessionRepo) CurrentUserID(ctx context.Context) (string, error) {
	return currentUserID(ctx, r.db)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func currentUserID(ctx context.Context, db queryRower) (string, error) {
	var userID string
	err := db.QueryRowContext(ctx, `SELECT user_id FROM local_session WHERE singleton`).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ログインユーザーの取得に失敗しました: %w", err)
	}
	return userID, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
