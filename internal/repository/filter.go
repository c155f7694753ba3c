package repository

import (
	"slices"
	"strings"

	"github.com/hitoshi/furuhon/internal/model"
)

// Filter はレコードストアの検索条件。ゼロ値は全件を表す。
type Filter struct {
	SavedOnly       bool
	SellerID        string // 指定した出品者の出品のみ
	ExcludeSellerID string // 指定した出品者の出品を除外
	Text            string // 正規化済み（小文字・前後空白除去）の検索語
	Limit           int    // 0 は無制限

	// CursorID は FindAllAfter / FindAllBefore のキーセット用。
	// 指定時は境界時刻と同時刻の出品のうち、新しい順でカーソルより先（After）
	// または後（Before）に並ぶものだけを返し、カーソル自身は含めない。
	CursorID string
}

// Match は出品がフィルタ条件を満たすかを返す。Limit と CursorID は考慮しない。
func (f Filter) Match(i model.Insertion) bool {
	if f.SavedOnly && !i.SavedByCurrentUser {
		return false
	}
	if f.SellerID != "" && i.SellerID != f.SellerID {
		return false
	}
	if f.ExcludeSellerID != "" && i.SellerID == f.ExcludeSellerID {
		return false
	}
	if f.Text != "" && !MatchesText(i, f.Text) {
		return false
	}
	return true
}

// NormalizeQuery は検索語の前後の空白を除き小文字にする。
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// MatchesText は書名・著者・出版社・ISBNのいずれかに正規化済みの検索語が含まれるかを返す。
func MatchesText(i model.Insertion, normalized string) bool {
	contains := func(s string) bool {
		return strings.Contains(strings.ToLower(s), normalized)
	}
	return contains(i.Book.Title) ||
		slices.ContainsFunc(i.Book.Authors, contains) ||
		contains(i.Book.Publisher) ||
		contains(i.Book.ISBN)
}
