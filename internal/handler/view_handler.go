package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/furuhon/internal/listing"
	"github.com/hitoshi/furuhon/internal/model"
)

// ControllerFinder は一覧種別に対応するコントローラを返す。*listing.Set が実装する。
type ControllerFinder interface {
	Get(view model.ViewKind) (*listing.Controller, bool)
}

// ViewHandler は一覧の読み込みのHTTPハンドラー。
type ViewHandler struct {
	controllers ControllerFinder
	logger      *slog.Logger
}

// NewViewHandler はViewHandlerを生成する。
func NewViewHandler(controllers ControllerFinder, logger *slog.Logger) *ViewHandler {
	return &ViewHandler{controllers: controllers, logger: logger}
}

// controller はURLの {view} に対応するコントローラを返す。
func (h *ViewHandler) controller(r *http.Request) (*listing.Controller, model.ViewKind, error) {
	view, err := model.ParseViewKind(chi.URLParam(r, "view"))
	if err != nil {
		return nil, "", err
	}
	c, ok := h.controllers.Get(view)
	if !ok {
		return nil, "", model.NewInvalidViewError(string(view))
	}
	return c, view, nil
}

// load はコントローラの読み込みを実行し、変更バッチを返す。
func (h *ViewHandler) load(w http.ResponseWriter, r *http.Request, fn func(*listing.Controller, context.Context) (listing.Outcome, error)) {
	c, _, err := h.controller(r)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	out, err := fn(c, r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toMutationResponse(out))
}

// Initial は最新ページを読み込む。
// POST /api/views/{view}/initial
func (h *ViewHandler) Initial(w http.ResponseWriter, r *http.Request) {
	h.load(w, r, (*listing.Controller).LoadInitial)
}

// Older は末尾より古いページを読み込む。
// POST /api/views/{view}/older
func (h *ViewHandler) Older(w http.ResponseWriter, r *http.Request) {
	h.load(w, r, (*listing.Controller).LoadOlder)
}

// Newer は先頭より新しいページを読み込む。
// POST /api/views/{view}/newer
func (h *ViewHandler) Newer(w http.ResponseWriter, r *http.Request) {
	h.load(w, r, (*listing.Controller).LoadNewer)
}

// Items は表示中の並びを返す。読み込み中はプレースホルダを含む。
// GET /api/views/{view}/items
func (h *ViewHandler) Items(w http.ResponseWriter, r *http.Request) {
	c, view, err := h.controller(r)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse{
		View:  string(view),
		State: c.State().String(),
		Items: toViewItemResponses(c.Snapshot()),
	})
}

// Search は一覧の中を検索し、検索結果の並びに対する変更バッチを返す。
// GET /api/views/{view}/search?q=xxx
func (h *ViewHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	h.load(w, r, func(c *listing.Controller, ctx context.Context) (listing.Outcome, error) {
		return c.Search(ctx, query)
	})
}

// SearchItems は検索結果の並びを返す。
// GET /api/views/{view}/search/items
func (h *ViewHandler) SearchItems(w http.ResponseWriter, r *http.Request) {
	c, view, err := h.controller(r)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse{
		View:  string(view),
		State: c.State().String(),
		Items: toViewItemResponses(c.SearchSnapshot()),
	})
}
