package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/furuhon/internal/model"
)

// ErrorResponseBody はエラー応答のJSON本体。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// errInternal は利用者に詳細を見せない内部エラー。
var errInternal = &model.APIError{
	Code:     "INTERNAL_ERROR",
	Message:  "内部エラーが発生しました。",
	Category: "system",
	Action:   "しばらく待ってから再度お試しください。",
}

// statusByCode はエラーコードとHTTPステータスの対応。載っていないコードは500。
var statusByCode = map[string]int{
	model.ErrCodeNoSession:      http.StatusUnauthorized,
	model.ErrCodeItemNotFound:   http.StatusNotFound,
	model.ErrCodeBusy:           http.StatusConflict,
	model.ErrCodeInvalidView:    http.StatusBadRequest,
	model.ErrCodeInvalidRequest: http.StatusBadRequest,
}

func bodyOf(e *model.APIError) ErrorResponseBody {
	return ErrorResponseBody{Code: e.Code, Message: e.Message, Category: e.Category, Action: e.Action}
}

// WriteErrorResponse は apiErr を指定ステータスで書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(bodyOf(apiErr))
}

// WriteInternalServerError は500を書き込む。原因はログにのみ残す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, errInternal)
}

// StatusForError はエラーコードに対応するHTTPステータスを返す。
func StatusForError(apiErr *model.APIError) int {
	if status, ok := statusByCode[apiErr.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteError は err を統一エラーフォーマットで書き込む。
// model.APIError を含まないエラーは内部エラーになる。
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, StatusForError(apiErr), apiErr)
		return
	}
	WriteInternalServerError(w)
}
