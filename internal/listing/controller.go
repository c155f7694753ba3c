// Package listing は画面に表示中の一覧を保持し、読み込み結果を変更バッチに変換する。
package listing

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/hitoshi/furuhon/internal/diff"
	"github.com/hitoshi/furuhon/internal/model"
)

// State はコントローラの読み込み状態。
type State int

const (
	StateIdle State = iota
	StateLoadingInitial
	StateLoadingOlder
	StateLoadingNewer
	StateSearching
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingInitial:
		return "loading_initial"
	case StateLoadingOlder:
		return "loading_older"
	case StateLoadingNewer:
		return "loading_newer"
	case StateSearching:
		return "searching"
	}
	return "unknown"
}

// Outcome は1回の読み込みで生じた変更と、代替データだったかどうか。
type Outcome struct {
	Mutation diff.Mutation
	Degraded bool
}

// Controller は1つの一覧について表示中の並びを所有する。
// 読み込みは同時に1つだけ実行でき、実行中の要求には model.ErrBusy を返す。
type Controller struct {
	source Source
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	items       []model.ViewItem
	searchItems []model.ViewItem
	lastQuery   string
	searched    bool
	generation  uint64
}

// NewController はControllerを生成する。
func NewController(source Source, logger *slog.Logger) *Controller {
	return &Controller{source: source, logger: logger}
}

// begin は状態を next に遷移させ、読み込み開始時点の世代を返す。
func (c *Controller) begin(next State) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return 0, model.ErrBusy
	}
	c.state = next
	return c.generation, nil
}

// current は読み込みの途中で Reset されていないかを返す。c.mu を保持して呼ぶこと。
func (c *Controller) current(gen uint64) bool {
	if gen != c.generation {
		c.logger.Warn("読み込み中に一覧が破棄されたため結果を捨てました")
		return false
	}
	return true
}

// LoadInitial は最新ページを読み込み、表示中の並びを置き換える。
func (c *Controller) LoadInitial(ctx context.Context) (Outcome, error) {
	gen, err := c.begin(StateLoadingInitial)
	if err != nil {
		return Outcome{}, err
	}
	res := c.source.Initial(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.release(gen)
	if !c.current(gen) {
		return Outcome{}, nil
	}

	m := diff.Compute(c.items, res.Items)
	c.items = slices.Clone(res.Items)
	return Outcome{Mutation: m, Degraded: res.Degraded}, nil
}

// LoadOlder は末尾の要素より古いページを読み込み、末尾に追加する。
// 表示中の並びが空の場合は何もしない。既に表示中の要素は追加しない。
func (c *Controller) LoadOlder(ctx context.Context) (Outcome, error) {
	gen, err := c.begin(StateLoadingOlder)
	if err != nil {
		return Outcome{}, err
	}
	c.mu.Lock()
	if len(c.items) == 0 {
		c.release(gen)
		c.mu.Unlock()
		return Outcome{}, nil
	}
	last := c.items[len(c.items)-1]
	c.mu.Unlock()

	res := c.source.OlderThan(ctx, last)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.release(gen)
	if !c.current(gen) {
		return Outcome{}, nil
	}

	fresh := withoutKnown(c.items, res.Items)
	m := diff.Appended(len(c.items), fresh)
	c.items = append(c.items, fresh...)
	return Outcome{Mutation: m, Degraded: res.Degraded}, nil
}

// LoadNewer は先頭の要素より新しいページを読み込み、先頭に追加する。
func (c *Controller) LoadNewer(ctx context.Context) (Outcome, error) {
	gen, err := c.begin(StateLoadingNewer)
	if err != nil {
		return Outcome{}, err
	}
	c.mu.Lock()
	if len(c.items) == 0 {
		c.release(gen)
		c.mu.Unlock()
		return Outcome{}, nil
	}
	first := c.items[0]
	c.mu.Unlock()

	res := c.source.NewerThan(ctx, first)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.release(gen)
	if !c.current(gen) {
		return Outcome{}, nil
	}

	// 古い順で返るため新しい順に並べ替えて先頭に置く
	newer := slices.Clone(res.Items)
	slices.Reverse(newer)
	fresh := withoutKnown(c.items, newer)
	m := diff.Prepended(fresh)
	c.items = append(fresh, c.items...)
	return Outcome{Mutation: m, Degraded: res.Degraded}, nil
}

// Search は検索結果の並びを query の結果で置き換える。
// 直前に成功した検索と同じ query の場合はデータソースに問い合わせず空の変更を返す。
func (c *Controller) Search(ctx context.Context, query string) (Outcome, error) {
	gen, err := c.begin(StateSearching)
	if err != nil {
		return Outcome{}, err
	}
	c.mu.Lock()
	if c.searched && c.lastQuery == query {
		c.release(gen)
		c.mu.Unlock()
		return Outcome{}, nil
	}
	c.mu.Unlock()

	res := c.source.ByQuery(ctx, query)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.release(gen)
	if !c.current(gen) {
		return Outcome{}, nil
	}

	m := diff.Compute(c.searchItems, res.Items)
	c.searchItems = slices.Clone(res.Items)
	c.lastQuery = query
	c.searched = true
	return Outcome{Mutation: m, Degraded: res.Degraded}, nil
}

// release は c.mu を保持したまま状態を Idle に戻す。
func (c *Controller) release(gen uint64) {
	if gen == c.generation {
		c.state = StateIdle
	}
}

// Snapshot は表示中の並びを返す。古い方向・新しい方向の読み込み中は該当する端に
// 読み込み中のプレースホルダを含める。
func (c *Controller) Snapshot() []model.ViewItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.ViewItem, 0, len(c.items)+1)
	if c.state == StateLoadingNewer {
		out = append(out, model.Loading{Direction: model.DirectionNewer})
	}
	out = append(out, c.items...)
	if c.state == StateLoadingOlder {
		out = append(out, model.Loading{Direction: model.DirectionOlder})
	}
	return out
}

// SearchSnapshot は検索結果の並びを返す。
func (c *Controller) SearchSnapshot() []model.ViewItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.searchItems)
}

// State は現在の読み込み状態を返す。
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset は表示中の並びと検索結果を破棄する。実行中の読み込みの結果は反映されない。
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.state = StateIdle
	c.items = nil
	c.searchItems = nil
	c.lastQuery = ""
	c.searched = false
}

// withoutKnown は items から known に含まれる要素と items 内の重複を除いたものを返す。
func withoutKnown(known, items []model.ViewItem) []model.ViewItem {
	seen := make(map[string]struct{}, len(known)+len(items))
	key := func(v model.ViewItem) string { return v.Kind().String() + ":" + v.ItemID() }
	for _, v := range known {
		seen[key(v)] = struct{}{}
	}
	out := make([]model.ViewItem, 0, len(items))
	for _, v := range items {
		k := key(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
