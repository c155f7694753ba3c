// Package repository はキャッシュが参照するデータソースのインターフェースと、
// ローカルのレコードストアのPostgreSQL実装を提供する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/furuhon/internal/model"
)

// InsertionStore はローカルのレコードストアのインターフェース。
// I/Oエラーは呼び出し元で「このソースからはデータなし」として扱われる。
type InsertionStore interface {
	// FindByID は指定IDの出品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Insertion, error)

	// FindAll はフィルタに一致する出品を createdAt 降順（同時刻はID昇順）で返す。
	FindAll(ctx context.Context, filter Filter) ([]model.Insertion, error)

	// FindAllAfter は createdAt が t 以降の出品を昇順（同時刻はID降順）で返す。
	// filter.CursorID 指定時は新しい順でカーソルより厳密に前の出品だけを返す。
	FindAllAfter(ctx context.Context, t time.Time, filter Filter) ([]model.Insertion, error)

	// FindAllBefore は createdAt が t 以前の出品を降順（同時刻はID昇順）で返す。
	// filter.CursorID 指定時は新しい順でカーソルより厳密に後の出品だけを返す。
	FindAllBefore(ctx context.Context, t time.Time, filter Filter) ([]model.Insertion, error)

	// Upsert は出品を挿入または上書きする。
	Upsert(ctx context.Context, insertion model.Insertion) error

	// CurrentUserID はローカルに保存されたログインユーザーのIDを返す。未ログインの場合は空文字を返す。
	CurrentUserID(ctx context.Context) (string, error)
}

// SyncStore は同期ワーカーが使用するレコードストアの操作。
type SyncStore interface {
	// LatestCreatedAt は保存済みの最新の createdAt を返す。空の場合は ok=false を返す。
	LatestCreatedAt(ctx context.Context) (t time.Time, ok bool, err error)

	// UpsertAll は複数の出品を1トランザクションで挿入または上書きする。
	UpsertAll(ctx context.Context, insertions []model.Insertion) error
}

// SessionRepository はローカルに保存するログイン状態の永続化インターフェース。
type SessionRepository interface {
	// Save はログインユーザーを保存する。既存のログイン状態は置き換える。
	Save(ctx context.Context, userID string) error
	// Clear はログイン状態を削除する。
	Clear(ctx context.Context) error
	// CurrentUserID は保存されたユーザーIDを返す。未ログインの場合は空文字を返す。
	CurrentUserID(ctx context.Context) (string, error)
}

// RemoteService はリモートの出品APIのインターフェース。
// タイムアウトとキャンセルは ctx と実装側のトランスポートに委ねる。
type RemoteService interface {
	FetchRecent(ctx context.Context, pageSize int) ([]model.Insertion, error)
	FetchByQuery(ctx context.Context, text string) ([]model.Insertion, error)
	FetchAfter(ctx context.Context, t time.Time) ([]model.Insertion, error)
	FetchBefore(ctx context.Context, t time.Time) ([]model.Insertion, error)
	// FetchByID は指定IDの出品を取得する。見つからない場合はnilを返す。
	FetchByID(ctx context.Context, id string) (*model.Insertion, error)
	// FetchSaved はユーザーが保存した出品を新しい順に取得する。
	FetchSaved(ctx context.Context, userID string, pageSize int) ([]model.Insertion, error)
	// FetchPublished は出品者自身の出品を新しい順に取得する。
	FetchPublished(ctx context.Context, sellerID string, pageSize int) ([]model.Insertion, error)
	// SetSaveStatus は保存状態の変更を依頼し、書き込み後の状態が desired になったかを返す。
	SetSaveStatus(ctx context.Context, id string, desired bool) (bool, error)
}

// SessionProvider は現在のログインユーザーを提供する。
type SessionProvider interface {
	CurrentUserID() (string, bool)
	IsLoggedIn() bool
}
