// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/furuhon/internal/diff"
	"github.com/hitoshi/furuhon/internal/listing"
	"github.com/hitoshi/furuhon/internal/middleware"
	"github.com/hitoshi/furuhon/internal/model"
)

// --- レスポンス型 ---

// viewItemResponse は一覧の要素のレスポンス。kind に応じて該当するフィールドだけを持つ。
type viewItemResponse struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`

	// 出品
	SellerID       string     `json:"seller_id,omitempty"`
	Title          string     `json:"title,omitempty"`
	Authors        []string   `json:"authors,omitempty"`
	Year           int        `json:"year,omitempty"`
	Publisher      string     `json:"publisher,omitempty"`
	ISBN           string     `json:"isbn,omitempty"`
	Price          int64      `json:"price,omitempty"`
	Currency       string     `json:"currency,omitempty"`
	Condition      string     `json:"condition,omitempty"`
	Thumbnail      string     `json:"thumbnail,omitempty"`
	PictureSources []string   `json:"picture_sources,omitempty"`
	Saved          *bool      `json:"saved,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`

	// 会話
	PartnerID   string     `json:"partner_id,omitempty"`
	PartnerName string     `json:"partner_name,omitempty"`
	Preview     string     `json:"preview,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`

	// 読み込み中
	Direction string `json:"direction,omitempty"`
}

type insertResponse struct {
	Index int              `json:"index"`
	Item  viewItemResponse `json:"item"`
}

type changeResponse struct {
	Index  int            `json:"index"`
	Fields map[string]any `json:"fields"`
}

// mutationResponse は変更バッチのレスポンス。
// クライアントは removed（降順）、inserted（昇順）、changed の順に適用する。
type mutationResponse struct {
	Inserted []insertResponse `json:"inserted"`
	Removed  []int            `json:"removed"`
	Changed  []changeResponse `json:"changed"`
	Degraded bool             `json:"degraded"`
}

type itemsResponse struct {
	View  string             `json:"view"`
	State string             `json:"state"`
	Items []viewItemResponse `json:"items"`
}

func toViewItemResponse(item model.ViewItem) viewItemResponse {
	switch v := item.(type) {
	case model.Insertion:
		saved := v.SavedByCurrentUser
		createdAt := v.CreatedAt
		return viewItemResponse{
			Kind:           v.Kind().String(),
			ID:             v.ID,
			SellerID:       v.SellerID,
			Title:          v.Book.Title,
			Authors:        v.Book.Authors,
			Year:           v.Book.Year,
			Publisher:      v.Book.Publisher,
			ISBN:           v.Book.ISBN,
			Price:          v.Price,
			Currency:       v.Currency,
			Condition:      string(v.Condition),
			Thumbnail:      v.Thumbnail(),
			PictureSources: v.PictureSources,
			Saved:          &saved,
			CreatedAt:      &createdAt,
		}
	case model.Conversation:
		updatedAt := v.UpdatedAt
		return viewItemResponse{
			Kind:        v.Kind().String(),
			ID:          v.ID,
			PartnerID:   v.PartnerID,
			PartnerName: v.PartnerName,
			Preview:     v.Preview,
			UpdatedAt:   &updatedAt,
		}
	case model.Loading:
		return viewItemResponse{
			Kind:      v.Kind().String(),
			ID:        v.ItemID(),
			Direction: string(v.Direction),
		}
	}
	return viewItemResponse{Kind: item.Kind().String(), ID: item.ItemID()}
}

func toViewItemResponses(items []model.ViewItem) []viewItemResponse {
	out := make([]viewItemResponse, len(items))
	for i, it := range items {
		out[i] = toViewItemResponse(it)
	}
	return out
}

func toMutationResponse(out listing.Outcome) mutationResponse {
	m := out.Mutation
	resp := mutationResponse{
		Inserted: make([]insertResponse, 0, len(m.Inserted)),
		Removed:  make([]int, 0, len(m.Removed)),
		Changed:  make([]changeResponse, 0, len(m.Changed)),
		Degraded: out.Degraded,
	}
	for _, ins := range m.Inserted {
		resp.Inserted = append(resp.Inserted, insertResponse{Index: ins.Index, Item: toViewItemResponse(ins.Item)})
	}
	resp.Removed = append(resp.Removed, m.Removed...)
	for _, c := range m.Changed {
		resp.Changed = append(resp.Changed, changeResponse{Index: c.Index, Fields: payloadFields(c)})
	}
	return resp
}

func payloadFields(c diff.Change) map[string]any {
	fields := make(map[string]any, len(c.Payload))
	for f, v := range c.Payload {
		fields[string(f)] = v
	}
	return fields
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleServiceError はエラーを統一フォーマットで書き込む。model.APIError 以外はログに記録する。
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		logger.Error("internal server error", slog.String("error", err.Error()))
	}
	middleware.WriteError(w, err)
}
