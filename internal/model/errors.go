package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, listing, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is はコードが一致する APIError を同じエラーとみなす。
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// 定義済みエラーコード
const (
	ErrCodeNoSession          = "NO_SESSION"
	ErrCodeItemNotFound       = "ITEM_NOT_FOUND"
	ErrCodeBusy               = "BUSY"
	ErrCodeInvalidView        = "INVALID_VIEW"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeSourceUnavailable  = "SOURCE_UNAVAILABLE"
	ErrCodeInconsistentToggle = "INCONSISTENT_TOGGLE"
)

// ErrNoSession はログインが必要な操作を未ログインで呼び出した場合のエラー。
var ErrNoSession = &APIError{
	Code:     ErrCodeNoSession,
	Message:  "ログインしていません。",
	Category: "auth",
	Action:   "ログインしてから再度お試しください。",
}

// ErrBusy は一覧の読み込み中に別の読み込みを要求した場合のエラー。
var ErrBusy = &APIError{
	Code:     ErrCodeBusy,
	Message:  "一覧を読み込み中です。",
	Category: "listing",
	Action:   "読み込みが終わってから再度お試しください。",
}

// NewItemNotFoundError は出品未検出エラーを生成する。
func NewItemNotFoundError(insertionID string) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  fmt.Sprintf("指定された出品が見つかりません: %s", insertionID),
		Category: "listing",
		Action:   "出品IDを確認してください。",
	}
}

// NewInvalidViewError は無効な一覧種別エラーを生成する。
func NewInvalidViewError(view string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidView,
		Message:  fmt.Sprintf("無効な一覧種別です: %s", view),
		Category: "validation",
		Action:   "一覧種別には feed、saved、published のいずれかを指定してください。",
	}
}

// NewInvalidRequestError はリクエスト形式が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}
