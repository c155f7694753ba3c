package model

import "fmt"

// Kind はリスト要素の種別を表す。
type Kind int

const (
	KindInsertion Kind = iota + 1
	KindConversation
	KindLoading
)

// String は種別名を返す。
func (k Kind) String() string {
	switch k {
	case KindInsertion:
		return "insertion"
	case KindConversation:
		return "conversation"
	case KindLoading:
		return "loading"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ViewItem はリストに表示される要素の識別と比較の契約。
// 実装は Insertion、Conversation、Loading に限られる。
type ViewItem interface {
	ItemID() string
	Kind() Kind
	// ChangedFields は other と値が異なるフィールドを other 側の値で返す。
	ChangedFields(other ViewItem) Payload

	apply(Payload) ViewItem
	isViewItem()
}

// Field は部分更新ペイロードのフィールド名。
type Field string

const (
	FieldTitle       Field = "title"
	FieldAuthors     Field = "authors"
	FieldYear        Field = "year"
	FieldPublisher   Field = "publisher"
	FieldISBN        Field = "isbn"
	FieldSeller      Field = "seller_id"
	FieldPrice       Field = "price"
	FieldCurrency    Field = "currency"
	FieldCondition   Field = "condition"
	FieldPictures    Field = "picture_sources"
	FieldSaved       Field = "saved"
	FieldCreatedAt   Field = "created_at"
	FieldPartner     Field = "partner_id"
	FieldPartnerName Field = "partner_name"
	FieldPreview     Field = "preview"
	FieldUpdatedAt   Field = "updated_at"
)

// Payload は変更されたフィールドだけを保持する部分更新。
type Payload map[Field]any

// SameSlot は a と b が同じ要素（同じIDかつ同じ種別）かを返す。
func SameSlot(a, b ViewItem) bool {
	return a.ItemID() == b.ItemID() && a.Kind() == b.Kind()
}

// Equal は a と b が同じ要素で、全フィールドが等しいかを返す。
func Equal(a, b ViewItem) bool {
	return SameSlot(a, b) && len(a.ChangedFields(b)) == 0
}

// ApplyPayload は item に部分更新を適用した新しい値を返す。
func ApplyPayload(item ViewItem, p Payload) ViewItem {
	if len(p) == 0 {
		return item
	}
	return item.apply(p)
}

// Direction は読み込み中プレースホルダの位置を表す。
type Direction string

const (
	DirectionOlder Direction = "older"
	DirectionNewer Direction = "newer"
)

// Loading はページ読み込み中を示すプレースホルダ。
type Loading struct {
	Direction Direction
}

// ItemID はViewItemを実装する。
func (l Loading) ItemID() string { return "loading:" + string(l.Direction) }

// Kind はViewItemを実装する。
func (Loading) Kind() Kind { return KindLoading }

// ChangedFields はViewItemを実装する。プレースホルダには比較するフィールドがない。
func (Loading) ChangedFields(ViewItem) Payload { return Payload{} }

func (l Loading) apply(Payload) ViewItem { return l }

func (Loading) isViewItem() {}

// AsViewItems は出品一覧をViewItemの一覧に変換する。
func AsViewItems(items []Insertion) []ViewItem {
	out := make([]ViewItem, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out
}
