package listing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/furuhon/internal/cache"
	"github.com/hitoshi/furuhon/internal/metrics"
	"github.com/hitoshi/furuhon/internal/model"
	"github.com/hitoshi/furuhon/internal/repository"
)

var errOffline = errors.New("offline")

// memStore はメモリ上のレコードストア。CursorID の扱いは PostgreSQL の実装と同じ。
type memStore struct {
	mu    sync.Mutex
	items map[string]model.Insertion
}

func newMemStore(ins ...model.Insertion) *memStore {
	s := &memStore{items: make(map[string]model.Insertion)}
	s.add(ins...)
	return s
}

func (s *memStore) add(ins ...model.Insertion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range ins {
		s.items[it.ID] = it
	}
}

func (s *memStore) query(keep func(model.Insertion) bool, order func(a, b model.Insertion) int, f repository.Filter) []model.Insertion {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Insertion
	for _, it := range s.items {
		if f.Match(it) && keep(it) {
			out = append(out, it)
		}
	}
	slices.SortFunc(out, order)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (s *memStore) FindByID(_ context.Context, id string) (*model.Insertion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (s *memStore) FindAll(_ context.Context, f repository.Filter) ([]model.Insertion, error) {
	return s.query(func(model.Insertion) bool { return true }, model.CompareNewestFirst, f), nil
}

func (s *memStore) FindAllAfter(_ context.Context, t time.Time, f repository.Filter) ([]model.Insertion, error) {
	cursor := model.Insertion{ID: f.CursorID, CreatedAt: t}
	return s.query(func(i model.Insertion) bool {
		if f.CursorID != "" {
			return model.CompareNewestFirst(i, cursor) < 0
		}
		return !i.CreatedAt.Before(t)
	}, model.CompareOldestFirst, f), nil
}

func (s *memStore) FindAllBefore(_ context.Context, t time.Time, f repository.Filter) ([]model.Insertion, error) {
	cursor := model.Insertion{ID: f.CursorID, CreatedAt: t}
	return s.query(func(i model.Insertion) bool {
		if f.CursorID != "" {
			return model.CompareNewestFirst(i, cursor) > 0
		}
		return !i.CreatedAt.After(t)
	}, model.CompareNewestFirst, f), nil
}

func (s *memStore) Upsert(_ context.Context, ins model.Insertion) error {
	s.add(ins)
	return nil
}

func (s *memStore) CurrentUserID(context.Context) (string, error) { return "", nil }

// mirrorRemote は memStore と同じ出品を返すリモート。境界時刻の出品もすべて含めて返す。
// offline の場合はすべての呼び出しが失敗する。
type mirrorRemote struct {
	store   *memStore
	offline bool
}

func (m *mirrorRemote) all() ([]model.Insertion, error) {
	if m.offline {
		return nil, errOffline
	}
	return m.store.FindAll(context.Background(), repository.Filter{})
}

func (m *mirrorRemote) FetchRecent(_ context.Context, pageSize int) ([]model.Insertion, error) {
	all, err := m.all()
	return all[:min(pageSize, len(all))], err
}

func (m *mirrorRemote) FetchBefore(_ context.Context, t time.Time) ([]model.Insertion, error) {
	all, err := m.all()
	return slices.DeleteFunc(all, func(i model.Insertion) bool { return i.CreatedAt.After(t) }), err
}

func (m *mirrorRemote) FetchAfter(_ context.Context, t time.Time) ([]model.Insertion, error) {
	all, err := m.all()
	return slices.DeleteFunc(all, func(i model.Insertion) bool { return i.CreatedAt.Before(t) }), err
}

func (m *mirrorRemote) FetchByQuery(context.Context, string) ([]model.Insertion, error) {
	return nil, errOffline
}

func (m *mirrorRemote) FetchByID(context.Context, string) (*model.Insertion, error) {
	return nil, errOffline
}

func (m *mirrorRemote) FetchSaved(context.Context, string, int) ([]model.Insertion, error) {
	return nil, errOffline
}

func (m *mirrorRemote) FetchPublished(context.Context, string, int) ([]model.Insertion, error) {
	return nil, errOffline
}

func (m *mirrorRemote) SetSaveStatus(context.Context, string, bool) (bool, error) {
	return false, errOffline
}

// randomInsertions は同時刻の出品を多く含む n 件を新しい順で生成する。
func randomInsertions(rnd *rand.Rand, n int) []model.Insertion {
	var all []model.Insertion
	for _, i := range rnd.Perm(n) {
		all = append(all, at(fmt.Sprintf("i%02d", i), rnd.IntN(4)))
	}
	slices.SortFunc(all, model.CompareNewestFirst)
	return all
}

func newCacheController(store *memStore, remote *mirrorRemote, pageSize int) *Controller {
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	repo := cache.NewRepository(store, remote, nil, cache.Config{PageSize: pageSize}, logger, metrics.Nop{})
	return NewController(NewInsertionSource(repo, model.ViewFeed), logger)
}

func assertCanonical(t *testing.T, label string, got []model.ViewItem, want []model.Insertion) {
	t.Helper()
	wantIDs := make([]string, len(want))
	for i, it := range want {
		wantIDs[i] = it.ID
	}
	if !slices.Equal(ids(got), wantIDs) {
		t.Fatalf("%s: Snapshot = %v, want %v", label, ids(got), wantIDs)
	}
}

// TestInsertionSource_OlderReachesEveryItem はキャッシュ経由で古いページを読み続けると
// 同時刻の出品が1ページを超えてもすべての出品に重複なく新しい順で到達することをテストする。
func TestInsertionSource_OlderReachesEveryItem(t *testing.T) {
	rnd := rand.New(rand.NewPCG(3, 5))
	ctx := context.Background()

	for iter := 0; iter < 80; iter++ {
		all := randomInsertions(rnd, rnd.IntN(25))
		store := newMemStore(all...)
		remote := &mirrorRemote{store: store, offline: rnd.IntN(2) == 0}
		pageSize := 1 + rnd.IntN(4)
		label := fmt.Sprintf("iter %d (pageSize %d, offline %v)", iter, pageSize, remote.offline)
		c := newCacheController(store, remote, pageSize)

		if _, err := c.LoadInitial(ctx); err != nil {
			t.Fatal(err)
		}
		for step := 0; step <= len(all); step++ {
			out, err := c.LoadOlder(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if out.Mutation.IsEmpty() {
				break
			}
		}

		assertCanonical(t, label, c.Snapshot(), all)
	}
}

// TestInsertionSource_NewerReachesEveryItem は先頭より新しい出品が後から増えても
// 新しいページを読み続けると元の並びの前に新しい順で連続してつながることをテストする。
func TestInsertionSource_NewerReachesEveryItem(t *testing.T) {
	rnd := rand.New(rand.NewPCG(13, 17))
	ctx := context.Background()

	for iter := 0; iter < 80; iter++ {
		all := randomInsertions(rnd, 1+rnd.IntN(25))
		late := rnd.IntN(len(all))
		store := newMemStore(all[late:]...)
		remote := &mirrorRemote{store: store, offline: rnd.IntN(2) == 0}
		pageSize := 1 + rnd.IntN(4)
		label := fmt.Sprintf("iter %d (pageSize %d, late %d)", iter, pageSize, late)
		c := newCacheController(store, remote, pageSize)

		if _, err := c.LoadInitial(ctx); err != nil {
			t.Fatal(err)
		}
		for step := 0; step <= len(all); step++ {
			if out, _ := c.LoadOlder(ctx); out.Mutation.IsEmpty() {
				break
			}
		}
		assertCanonical(t, label+" 古いページ", c.Snapshot(), all[late:])

		store.add(all[:late]...)
		for step := 0; step <= len(all); step++ {
			out, err := c.LoadNewer(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if out.Mutation.IsEmpty() {
				break
			}
		}
		assertCanonical(t, label+" 新しいページ", c.Snapshot(), all)
	}
}
