package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SaveToggler は出品の保存状態を切り替える。*cache.Repository が実装する。
type SaveToggler interface {
	ToggleSaveStatus(ctx context.Context, id string) (bool, error)
}

// InsertionHandler は出品に対する操作のHTTPハンドラー。
type InsertionHandler struct {
	toggler SaveToggler
	logger  *slog.Logger
}

// NewInsertionHandler はInsertionHandlerを生成する。
func NewInsertionHandler(toggler SaveToggler, logger *slog.Logger) *InsertionHandler {
	return &InsertionHandler{toggler: toggler, logger: logger}
}

type savedResponse struct {
	ID    string `json:"id"`
	Saved bool   `json:"saved"`
}

// ToggleSaved は出品の保存状態を反転する。
// レスポンスの saved は確定した状態であり、リモートへの書き込みが失敗した場合は変更前の状態になる。
// PUT /api/insertions/{id}/saved
func (h *InsertionHandler) ToggleSaved(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	saved, err := h.toggler.ToggleSaveStatus(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, savedResponse{ID: id, Saved: saved})
}
