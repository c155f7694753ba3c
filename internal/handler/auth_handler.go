package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/furuhon/internal/model"
)

// maxLoginBodyBytes はログインリクエストのボディの上限。
const maxLoginBodyBytes = 4 << 10

// SessionManager はログイン状態を操作する。*auth.Session が実装する。
type SessionManager interface {
	Login(ctx context.Context, userID string) error
	Logout(ctx context.Context) error
	CurrentUserID() (string, bool)
}

// AuthHandler はログイン状態のHTTPハンドラー。
// 資格情報の検証は外部で行い、結果のユーザーIDだけを受け取る。
type AuthHandler struct {
	session SessionManager
	logger  *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(session SessionManager, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{session: session, logger: logger}
}

type loginRequest struct {
	UserID string `json:"user_id"`
}

type meResponse struct {
	UserID   string `json:"user_id,omitempty"`
	LoggedIn bool   `json:"logged_in"`
}

// Login はユーザーをログイン状態にする。
// POST /auth/login {"user_id": "..."}
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)).Decode(&req); err != nil {
		handleServiceError(w, h.logger, model.NewInvalidRequestError("JSONの形式が不正です"))
		return
	}

	if err := h.session.Login(r.Context(), req.UserID); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.Me(w, r)
}

// Logout はログイン状態を破棄する。ユーザーごとのキャッシュと一覧も破棄される。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログイン状態を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.session.CurrentUserID()
	writeJSON(w, http.StatusOK, meResponse{UserID: userID, LoggedIn: ok})
}
