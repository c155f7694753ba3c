package cache

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hitoshi/furuhon/internal/metrics"
	"github.com/hitoshi/furuhon/internal/model"
	"github.com/hitoshi/furuhon/internal/repository"
)

var errUnavailable = errors.New("unavailable")

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// at は t0 から minutes 分後の出品を生成する。
func at(id string, minutes int) model.Insertion {
	return model.Insertion{
		ID:        id,
		SellerID:  "seller-" + id,
		Book:      model.BookInfo{Title: "Title " + id, Authors: []string{"Author " + id}},
		Price:     1000,
		Currency:  "JPY",
		Condition: model.ConditionGood,
		CreatedAt: t0.Add(time.Duration(minutes) * time.Minute),
	}
}

// fakeStore はメモリ上のレコードストア。
type fakeStore struct {
	mu       sync.Mutex
	items    map[string]model.Insertion
	err      error
	upserts  int
	findHook func() // FindAll が結果を読み込んだ後に呼ばれる

	upsertErr func(id string) error // 出品ごとに Upsert を失敗させる
}

func newFakeStore(items ...model.Insertion) *fakeStore {
	s := &fakeStore{items: make(map[string]model.Insertion)}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return s
}

func (s *fakeStore) get(id string) (model.Insertion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	return it, ok
}

func (s *fakeStore) query(keep func(model.Insertion) bool, order func(a, b model.Insertion) int, f repository.Filter) ([]model.Insertion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []model.Insertion
	for _, it := range s.items {
		if f.Match(it) && keep(it) {
			out = append(out, it.Clone())
		}
	}
	slices.SortFunc(out, order)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*model.Insertion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	it, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (s *fakeStore) FindAll(ctx context.Context, f repository.Filter) ([]model.Insertion, error) {
	items, err := s.query(func(model.Insertion) bool { return true }, model.CompareNewestFirst, f)
	if s.findHook != nil {
		s.findHook()
	}
	if err == nil {
		err = ctx.Err()
	}
	return items, err
}

// FindAllAfter と FindAllBefore は PostgreSQL の実装と同じく CursorID 指定時は
// (createdAt, ID) の組でカーソルを厳密に越える出品だけを返す。
func (s *fakeStore) FindAllAfter(_ context.Context, t time.Time, f repository.Filter) ([]model.Insertion, error) {
	cursor := model.Insertion{ID: f.CursorID, CreatedAt: t}
	return s.query(func(i model.Insertion) bool {
		if f.CursorID != "" {
			return model.CompareNewestFirst(i, cursor) < 0
		}
		return !i.CreatedAt.Before(t)
	}, model.CompareOldestFirst, f)
}

func (s *fakeStore) FindAllBefore(_ context.Context, t time.Time, f repository.Filter) ([]model.Insertion, error) {
	cursor := model.Insertion{ID: f.CursorID, CreatedAt: t}
	return s.query(func(i model.Insertion) bool {
		if f.CursorID != "" {
			return model.CompareNewestFirst(i, cursor) > 0
		}
		return !i.CreatedAt.After(t)
	}, model.CompareNewestFirst, f)
}

func (s *fakeStore) Upsert(_ context.Context, ins model.Insertion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.upsertErr != nil {
		if err := s.upsertErr(ins.ID); err != nil {
			return err
		}
	}
	s.upserts++
	s.items[ins.ID] = ins.Clone()
	return nil
}

func (s *fakeStore) CurrentUserID(context.Context) (string, error) { return "", nil }

// fakeRemote は関数フィールドで振る舞いを差し替えるリモートAPI。
type fakeRemote struct {
	mu    sync.Mutex
	calls map[string]int

	fetchRecentFn    func(pageSize int) ([]model.Insertion, error)
	fetchByQueryFn   func(text string) ([]model.Insertion, error)
	fetchAfterFn     func(t time.Time) ([]model.Insertion, error)
	fetchBeforeFn    func(t time.Time) ([]model.Insertion, error)
	fetchByIDFn      func(id string) (*model.Insertion, error)
	fetchSavedFn     func(userID string, pageSize int) ([]model.Insertion, error)
	fetchPublishedFn func(sellerID string, pageSize int) ([]model.Insertion, error)
	setSaveStatusFn  func(id string, desired bool) (bool, error)
}

func (f *fakeRemote) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) FetchRecent(_ context.Context, pageSize int) ([]model.Insertion, error) {
	f.record("recent")
	if f.fetchRecentFn == nil {
		return nil, errUnavailable
	}
	return f.fetchRecentFn(pageSize)
}

func (f *fakeRemote) FetchByQuery(_ context.Context, text string) ([]model.Insertion, error) {
	f.record("query")
	if f.fetchByQueryFn == nil {
		return nil, errUnavailable
	}
	return f.fetchByQueryFn(text)
}

func (f *fakeRemote) FetchAfter(_ context.Context, t time.Time) ([]model.Insertion, error) {
	f.record("after")
	if f.fetchAfterFn == nil {
		return nil, errUnavailable
	}
	return f.fetchAfterFn(t)
}

func (f *fakeRemote) FetchBefore(_ context.Context, t time.Time) ([]model.Insertion, error) {
	f.record("before")
	if f.fetchBeforeFn == nil {
		return nil, errUnavailable
	}
	return f.fetchBeforeFn(t)
}

func (f *fakeRemote) FetchByID(_ context.Context, id string) (*model.Insertion, error) {
	f.record("by_id")
	if f.fetchByIDFn == nil {
		return nil, errUnavailable
	}
	return f.fetchByIDFn(id)
}

func (f *fakeRemote) FetchSaved(_ context.Context, userID string, pageSize int) ([]model.Insertion, error) {
	f.record("saved")
	if f.fetchSavedFn == nil {
		return nil, errUnavailable
	}
	return f.fetchSavedFn(userID, pageSize)
}

func (f *fakeRemote) FetchPublished(_ context.Context, sellerID string, pageSize int) ([]model.Insertion, error) {
	f.record("published")
	if f.fetchPublishedFn == nil {
		return nil, errUnavailable
	}
	return f.fetchPublishedFn(sellerID, pageSize)
}

func (f *fakeRemote) SetSaveStatus(_ context.Context, id string, desired bool) (bool, error) {
	f.record("set_save")
	if f.setSaveStatusFn == nil {
		return false, errUnavailable
	}
	return f.setSaveStatusFn(id, desired)
}

// fakeSession は固定のログイン状態。
type fakeSession struct{ userID string }

func (s fakeSession) CurrentUserID() (string, bool) { return s.userID, s.userID != "" }
func (s fakeSession) IsLoggedIn() bool              { return s.userID != "" }

func newTestRepo(store *fakeStore, remote *fakeRemote, userID string, pageSize int) (*Repository, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return NewRepository(store, remote, fakeSession{userID: userID}, Config{PageSize: pageSize}, logger, metrics.Nop{}), &buf
}

func idsOf(items []model.Insertion) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
