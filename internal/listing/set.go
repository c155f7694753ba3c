package listing

import (
	"log/slog"

	"github.com/hitoshi/furuhon/internal/model"
)

// Set は一覧種別ごとのコントローラをまとめたもの。
type Set struct {
	controllers map[model.ViewKind]*Controller
}

// NewSet はフィード・保存済み・自分の出品のコントローラを生成する。
func NewSet(reader InsertionReader, logger *slog.Logger) *Set {
	s := &Set{controllers: make(map[model.ViewKind]*Controller)}
	for _, view := range model.ListViews {
		s.controllers[view] = NewController(
			NewInsertionSource(reader, view),
			logger.With(slog.String("view", string(view))),
		)
	}
	return s
}

// Get は view のコントローラを返す。
func (s *Set) Get(view model.ViewKind) (*Controller, bool) {
	c, ok := s.controllers[view]
	return c, ok
}

// ResetAll はすべてのコントローラの表示中の並びを破棄する。
func (s *Set) ResetAll() {
	for _, c := range s.controllers {
		c.Reset()
	}
}
