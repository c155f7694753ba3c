package listing

import (
	"context"

	"github.com/hitoshi/furuhon/internal/cache"
	"github.com/hitoshi/furuhon/internal/model"
)

// Result はデータソースからの読み込み結果。
type Result struct {
	Items    []model.ViewItem
	Degraded bool
}

// Source は一覧コントローラが読み込みに使うデータソース。
// OlderThan は新しい順、NewerThan は新しい順のちょうど逆の並びで返す。
// どちらもカーソル自身を含めず、カーソルに近いものから1ページ分を返す。
type Source interface {
	Initial(ctx context.Context) Result
	OlderThan(ctx context.Context, cursor model.ViewItem) Result
	NewerThan(ctx context.Context, cursor model.ViewItem) Result
	ByQuery(ctx context.Context, query string) Result
}

// InsertionReader は出品の読み込み操作。*cache.Repository が実装する。
type InsertionReader interface {
	GetInitial(ctx context.Context, view model.ViewKind) cache.Page
	GetOlderThan(ctx context.Context, view model.ViewKind, cursor model.Insertion) cache.Page
	GetNewerThan(ctx context.Context, view model.ViewKind, cursor model.Insertion) cache.Page
	GetByQuery(ctx context.Context, view model.ViewKind, query string) cache.Page
}

var _ InsertionReader = (*cache.Repository)(nil)

type insertionSource struct {
	reader InsertionReader
	view   model.ViewKind
}

// NewInsertionSource は出品の一覧 view を読み込む Source を生成する。
func NewInsertionSource(reader InsertionReader, view model.ViewKind) Source {
	return &insertionSource{reader: reader, view: view}
}

func (s *insertionSource) Initial(ctx context.Context) Result {
	return toResult(s.reader.GetInitial(ctx, s.view))
}

// OlderThan は出品以外のカーソルには空の結果を返す。
func (s *insertionSource) OlderThan(ctx context.Context, cursor model.ViewItem) Result {
	ins, ok := cursor.(model.Insertion)
	if !ok {
		return Result{}
	}
	return toResult(s.reader.GetOlderThan(ctx, s.view, ins))
}

func (s *insertionSource) NewerThan(ctx context.Context, cursor model.ViewItem) Result {
	ins, ok := cursor.(model.Insertion)
	if !ok {
		return Result{}
	}
	return toResult(s.reader.GetNewerThan(ctx, s.view, ins))
}

func (s *insertionSource) ByQuery(ctx context.Context, query string) Result {
	return toResult(s.reader.GetByQuery(ctx, s.view, query))
}

func toResult(p cache.Page) Result {
	return Result{Items: model.AsViewItems(p.Items), Degraded: p.Degraded}
}
