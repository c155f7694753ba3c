package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/furuhon/internal/model"
)

func book(title, publisher, isbn string, authors ...string) model.Insertion {
	return model.Insertion{
		ID:       "id-" + title,
		SellerID: "seller-1",
		Book:     model.BookInfo{Title: title, Authors: authors, Publisher: publisher, ISBN: isbn},
	}
}

// TestNormalizeQuery は検索語の正規化をテストする。
func TestNormalizeQuery(t *testing.T) {
	tests := map[string]string{
		"  Go Programming ": "go programming",
		"\t\n":              "",
		"ISBN":              "isbn",
	}
	for in, want := range tests {
		if got := NormalizeQuery(in); got != want {
			t.Errorf("NormalizeQuery(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestMatchesText は書名・著者・出版社・ISBNの部分一致をテストする。
func TestMatchesText(t *testing.T) {
	ins := book("The Go Programming Language", "Addison-Wesley", "9780134190440", "Alan Donovan", "Brian Kernighan")

	tests := []struct {
		q    string
		want bool
	}{
		{"go programming", true},
		{"kernighan", true},
		{"addison", true},
		{"0134190", true},
		{"rust", false},
	}
	for _, tt := range tests {
		if got := MatchesText(ins, tt.q); got != tt.want {
			t.Errorf("MatchesText(%q) = %v, want %v", tt.q, got, tt.want)
		}
	}
}

// TestFilter_Match はフィルタ条件の組み合わせをテストする。
func TestFilter_Match(t *testing.T) {
	mine := model.Insertion{ID: "a", SellerID: "me", SavedByCurrentUser: false}
	savedOther := model.Insertion{ID: "b", SellerID: "other", SavedByCurrentUser: true}

	tests := []struct {
		name   string
		filter Filter
		item   model.Insertion
		want   bool
	}{
		{"ゼロ値は全件一致", Filter{}, mine, true},
		{"保存済みのみ_未保存", Filter{SavedOnly: true}, mine, false},
		{"保存済みのみ_保存済み", Filter{SavedOnly: true}, savedOther, true},
		{"出品者指定_一致", Filter{SellerID: "me"}, mine, true},
		{"出品者指定_不一致", Filter{SellerID: "me"}, savedOther, false},
		{"出品者除外", Filter{ExcludeSellerID: "me"}, mine, false},
		{"出品者除外_他人", Filter{ExcludeSellerID: "me"}, savedOther, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(tt.item); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestFilterQuery_Build はフィルタからSQLとプレースホルダ引数が組み立てられることをテストする。
func TestFilterQuery_Build(t *testing.T) {
	q := newFilterQuery(Filter{SavedOnly: true, ExcludeSellerID: "me", Text: "50%_off"})
	q.where("created_at <= " + q.arg(time.Unix(0, 0)))
	sql := q.build(orderNewestFirst, 20)

	for _, want := range []string{
		"saved_by_current_user = true",
		"seller_id <> $1",
		"lower(title) LIKE $2",
		"unnest(authors)",
		"created_at <= $3",
		`ORDER BY created_at DESC, id COLLATE "C" ASC`,
		"LIMIT $4",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("SQL に %q が含まれていない: %s", want, sql)
		}
	}
	if len(q.args) != 4 {
		t.Fatalf("len(args) = %d, want 4", len(q.args))
	}
	if q.args[1] != `%50\%\_off%` {
		t.Errorf("LIKEパターン = %v, want %q", q.args[1], `%50\%\_off%`)
	}
}

// TestFilterQuery_NoConditions は条件なしの場合にWHERE句を含まないことをテストする。
func TestFilterQuery_NoConditions(t *testing.T) {
	sql := newFilterQuery(Filter{}).build(orderOldestFirst, 0)
	if strings.Contains(sql, "WHERE") || strings.Contains(sql, "LIMIT") {
		t.Errorf("SQL = %s", sql)
	}
}

// TestKeysetQuery は境界時刻の扱いとカーソルIDによる同時刻の絞り込みをテストする。
func TestKeysetQuery(t *testing.T) {
	ts := time.Unix(100, 0)

	tests := []struct {
		name  string
		build func(time.Time, Filter) (string, []any)
		f     Filter
		want  []string
		nargs int
	}{
		{
			name:  "Before カーソルなし",
			build: beforeQuery,
			f:     Filter{},
			want:  []string{"created_at <= $1", `ORDER BY created_at DESC, id COLLATE "C" ASC`},
			nargs: 1,
		},
		{
			name:  "Before カーソルあり",
			build: beforeQuery,
			f:     Filter{CursorID: "b", Limit: 2},
			want: []string{
				`(created_at < $1 OR (created_at = $1 AND id COLLATE "C" > $2))`,
				`ORDER BY created_at DESC, id COLLATE "C" ASC`,
				"LIMIT $3",
			},
			nargs: 3,
		},
		{
			name:  "After カーソルなし",
			build: afterQuery,
			f:     Filter{},
			want:  []string{"created_at >= $1", `ORDER BY created_at ASC, id COLLATE "C" DESC`},
			nargs: 1,
		},
		{
			name:  "After カーソルあり",
			build: afterQuery,
			f:     Filter{CursorID: "b", ExcludeSellerID: "me"},
			want: []string{
				"seller_id <> $1",
				`(created_at > $2 OR (created_at = $2 AND id COLLATE "C" < $3))`,
				`ORDER BY created_at ASC, id COLLATE "C" DESC`,
			},
			nargs: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := tt.build(ts, tt.f)
			for _, want := range tt.want {
				if !strings.Contains(sql, want) {
					t.Errorf("SQL に %q が含まれていない: %s", want, sql)
				}
			}
			if len(args) != tt.nargs {
				t.Errorf("len(args) = %d, want %d", len(args), tt.nargs)
			}
		})
	}
}
