package model

// ViewKind はキャッシュされる一覧の種別を表す。
type ViewKind string

const (
	// ViewFeed は全出品のフィード。
	ViewFeed ViewKind = "feed"
	// ViewSaved は現在のユーザーが保存した出品。
	ViewSaved ViewKind = "saved"
	// ViewPublished は現在のユーザー自身の出品。
	ViewPublished ViewKind = "published"
	// ViewSearch は検索結果。
	ViewSearch ViewKind = "search"
)

// ListViews は一覧として読み込める種別。検索は含まない。
var ListViews = []ViewKind{ViewFeed, ViewSaved, ViewPublished}

// ParseViewKind は文字列を一覧種別に変換する。検索は一覧種別として受け付けない。
func ParseViewKind(s string) (ViewKind, error) {
	switch v := ViewKind(s); v {
	case ViewFeed, ViewSaved, ViewPublished:
		return v, nil
	}
	return "", NewInvalidViewError(s)
}

// RequiresSession はログインが必要な一覧かどうかを返す。
func (v ViewKind) RequiresSession() bool {
	return v == ViewSaved || v == ViewPublished
}
