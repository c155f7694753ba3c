// Package diff は表示中の一覧と新しい一覧の差分を計算する。
// 要素は ID と種別で同一性を判定し、内容の違いは変更フィールドのみの部分更新として表す。
package diff

import (
	"slices"

	"github.com/hitoshi/furuhon/internal/model"
)

// Insert は新しい一覧での位置に挿入される要素。
type Insert struct {
	Index int
	Item  model.ViewItem
}

// Change は新しい一覧での位置にある要素への部分更新。
type Change struct {
	Index   int
	Payload model.Payload
}

// Mutation は旧一覧を新一覧に変換する操作の集合。
// 適用順は Removed（旧インデックスの降順）、Inserted（新インデックスの昇順）、Changed の順。
type Mutation struct {
	Inserted []Insert
	Removed  []int
	Changed  []Change
}

// IsEmpty は操作が一つもないかを返す。空の Mutation は正常な「変更なし」を表す。
func (m Mutation) IsEmpty() bool {
	return len(m.Inserted) == 0 && len(m.Removed) == 0 && len(m.Changed) == 0
}

// Compute は old を new に変換する最小の操作集合を計算する。
// 並び替えは削除と挿入の組として表現し、移動操作は生成しない。
func Compute(old, new []model.ViewItem) Mutation {
	var m Mutation

	// 先頭と末尾の共通部分は LCS の対象から外す
	prefix := 0
	for prefix < len(old) && prefix < len(new) && model.SameSlot(old[prefix], new[prefix]) {
		prefix++
	}
	suffix := 0
	for suffix < len(old)-prefix && suffix < len(new)-prefix &&
		model.SameSlot(old[len(old)-1-suffix], new[len(new)-1-suffix]) {
		suffix++
	}

	pairs := make([][2]int, 0, prefix+suffix)
	for i := 0; i < prefix; i++ {
		pairs = append(pairs, [2]int{i, i})
	}
	for _, p := range lcs(old[prefix:len(old)-suffix], new[prefix:len(new)-suffix]) {
		pairs = append(pairs, [2]int{p[0] + prefix, p[1] + prefix})
	}
	for k := suffix; k > 0; k-- {
		pairs = append(pairs, [2]int{len(old) - k, len(new) - k})
	}

	matchedOld := make([]bool, len(old))
	matchedNew := make([]bool, len(new))
	for _, p := range pairs {
		matchedOld[p[0]] = true
		matchedNew[p[1]] = true
		if payload := old[p[0]].ChangedFields(new[p[1]]); len(payload) > 0 {
			m.Changed = append(m.Changed, Change{Index: p[1], Payload: payload})
		}
	}

	for i := len(old) - 1; i >= 0; i-- {
		if !matchedOld[i] {
			m.Removed = append(m.Removed, i)
		}
	}
	for j, item := range new {
		if !matchedNew[j] {
			m.Inserted = append(m.Inserted, Insert{Index: j, Item: item})
		}
	}

	return m
}

// lcs は a と b の最長共通部分列を構成するインデックスの組を昇順で返す。
func lcs(a, b []model.ViewItem) [][2]int {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	// table[i][j] は a[i:] と b[j:] の LCS 長
	table := make([][]int, len(a)+1)
	for i := range table {
		table[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if model.SameSlot(a[i], b[j]) {
				table[i][j] = table[i+1][j+1] + 1
			} else {
				table[i][j] = max(table[i+1][j], table[i][j+1])
			}
		}
	}

	var pairs [][2]int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case model.SameSlot(a[i], b[j]):
			pairs = append(pairs, [2]int{i, j})
			i++
			j++
		case table[i+1][j] >= table[i][j+1]:
			i++
		default:
			j++
		}
	}
	return pairs
}

// Apply は old に m を所定の順序で適用した新しい一覧を返す。old は変更しない。
func Apply(old []model.ViewItem, m Mutation) []model.ViewItem {
	out := slices.Clone(old)
	for _, idx := range m.Removed {
		out = slices.Delete(out, idx, idx+1)
	}
	for _, ins := range m.Inserted {
		out = slices.Insert(out, ins.Index, ins.Item)
	}
	for _, c := range m.Changed {
		out[c.Index] = model.ApplyPayload(out[c.Index], c.Payload)
	}
	return out
}

// Appended は末尾に items を追加する挿入のみの Mutation を返す。
func Appended(current int, items []model.ViewItem) Mutation {
	var m Mutation
	for k, item := range items {
		m.Inserted = append(m.Inserted, Insert{Index: current + k, Item: item})
	}
	return m
}

// Prepended は先頭に items を追加する挿入のみの Mutation を返す。
func Prepended(items []model.ViewItem) Mutation {
	var m Mutation
	for k, item := range items {
		m.Inserted = append(m.Inserted, Insert{Index: k, Item: item})
	}
	return m
}
