// Package model はドメインモデルを定義する。
package model

import (
	"slices"
	"time"
)

// Condition は古書の状態を表す。
type Condition string

const (
	ConditionNew        Condition = "new"
	ConditionLikeNew    Condition = "like_new"
	ConditionGood       Condition = "good"
	ConditionAcceptable Condition = "acceptable"
	ConditionPoor       Condition = "poor"
)

// Valid は定義済みの状態かどうかを返す。
func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionAcceptable, ConditionPoor:
		return true
	}
	return false
}

// BookInfo は出品された書籍の書誌情報を表す。
type BookInfo struct {
	Title     string
	Authors   []string
	Year      int
	Publisher string
	ISBN      string
}

// Insertion は古書の出品を表す。
// CreatedAt が並び順とページングのキーになる。ID は一度割り当てられたら変わらない。
type Insertion struct {
	ID                 string
	SellerID           string
	Book               BookInfo
	Price              int64 // 最小通貨単位
	Currency           string
	Condition          Condition
	PictureSources     []string // 先頭がサムネイル
	SavedByCurrentUser bool
	CreatedAt          time.Time
}

// Thumbnail はサムネイル画像のURLを返す。画像がない場合は空文字を返す。
func (i Insertion) Thumbnail() string {
	if len(i.PictureSources) == 0 {
		return ""
	}
	return i.PictureSources[0]
}

// Clone はスライスを共有しないコピーを返す。
func (i Insertion) Clone() Insertion {
	c := i
	c.Book.Authors = slices.Clone(i.Book.Authors)
	c.PictureSources = slices.Clone(i.PictureSources)
	return c
}

// ItemID はViewItemを実装する。
func (i Insertion) ItemID() string { return i.ID }

// Kind はViewItemを実装する。
func (i Insertion) Kind() Kind { return KindInsertion }

// ChangedFields は other と異なるフィールドだけを other の値で返す。
// other が出品でない場合は nil を返す。
func (i Insertion) ChangedFields(other ViewItem) Payload {
	o, ok := other.(Insertion)
	if !ok {
		return nil
	}
	p := Payload{}
	if i.Book.Title != o.Book.Title {
		p[FieldTitle] = o.Book.Title
	}
	if !slices.Equal(i.Book.Authors, o.Book.Authors) {
		p[FieldAuthors] = slices.Clone(o.Book.Authors)
	}
	if i.Book.Year != o.Book.Year {
		p[FieldYear] = o.Book.Year
	}
	if i.Book.Publisher != o.Book.Publisher {
		p[FieldPublisher] = o.Book.Publisher
	}
	if i.Book.ISBN != o.Book.ISBN {
		p[FieldISBN] = o.Book.ISBN
	}
	if i.SellerID != o.SellerID {
		p[FieldSeller] = o.SellerID
	}
	if i.Price != o.Price {
		p[FieldPrice] = o.Price
	}
	if i.Currency != o.Currency {
		p[FieldCurrency] = o.Currency
	}
	if i.Condition != o.Condition {
		p[FieldCondition] = o.Condition
	}
	if !slices.Equal(i.PictureSources, o.PictureSources) {
		p[FieldPictures] = slices.Clone(o.PictureSources)
	}
	if i.SavedByCurrentUser != o.SavedByCurrentUser {
		p[FieldSaved] = o.SavedByCurrentUser
	}
	if !i.CreatedAt.Equal(o.CreatedAt) {
		p[FieldCreatedAt] = o.CreatedAt
	}
	return p
}

func (i Insertion) apply(p Payload) ViewItem {
	out := i.Clone()
	for f, v := range p {
		switch f {
		case FieldTitle:
			out.Book.Title = v.(string)
		case FieldAuthors:
			out.Book.Authors = slices.Clone(v.([]string))
		case FieldYear:
			out.Book.Year = v.(int)
		case FieldPublisher:
			out.Book.Publisher = v.(string)
		case FieldISBN:
			out.Book.ISBN = v.(string)
		case FieldSeller:
			out.SellerID = v.(string)
		case FieldPrice:
			out.Price = v.(int64)
		case FieldCurrency:
			out.Currency = v.(string)
		case FieldCondition:
			out.Condition = v.(Condition)
		case FieldPictures:
			out.PictureSources = slices.Clone(v.([]string))
		case FieldSaved:
			out.SavedByCurrentUser = v.(bool)
		case FieldCreatedAt:
			out.CreatedAt = v.(time.Time)
		}
	}
	return out
}

func (Insertion) isViewItem() {}

// CompareNewestFirst は slices.SortFunc 用の比較関数。
func CompareNewestFirst(a, b Insertion) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return compareID(a.ID, b.ID)
}

// CompareOldestFirst は CompareNewestFirst のちょうど逆順で比較する。
// createdAt の昇順、同時刻は ID の降順になるため、逆順に並べ直すと新しい順と一致する。
func CompareOldestFirst(a, b Insertion) int {
	return CompareNewestFirst(b, a)
}

func compareID(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
