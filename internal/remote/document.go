package remote

import (
	"log/slog"
	"time"

	"github.com/hitoshi/furuhon/internal/model"
	"github.com/hitoshi/furuhon/internal/security"
)

// insertionDocument はリモートAPIが返す出品のJSON表現。
type insertionDocument struct {
	ID       string `json:"id"`
	SellerID string `json:"seller_id"`
	Book     struct {
		Title     string   `json:"title"`
		Authors   []string `json:"authors"`
		Year      int      `json:"year"`
		Publisher string   `json:"publisher"`
		ISBN      string   `json:"isbn"`
	} `json:"book"`
	Price              int64     `json:"price"`
	Currency           string    `json:"currency"`
	Condition          string    `json:"condition"`
	PictureSources     []string  `json:"picture_sources"`
	SavedByCurrentUser bool      `json:"saved_by_current_user"`
	CreatedAt          time.Time `json:"created_at"`
}

type listResponse struct {
	Insertions []insertionDocument `json:"insertions"`
}

type saveStatusRequest struct {
	Saved bool `json:"saved"`
}

type saveStatusResponse struct {
	Saved bool `json:"saved"`
}

// mapper はリモートの表現をドメインモデルに変換し、テキストと画像URLを無害化する。
type mapper struct {
	sanitizer *security.TextSanitizer
	logger    *slog.Logger
}

func (m mapper) toModel(doc insertionDocument) (model.Insertion, bool) {
	if doc.ID == "" || doc.CreatedAt.IsZero() {
		m.logger.Warn("IDまたは作成日時のない出品を破棄しました",
			slog.String("insertion_id", doc.ID),
		)
		return model.Insertion{}, false
	}

	condition := model.Condition(doc.Condition)
	if !condition.Valid() {
		condition = ""
	}

	return model.Insertion{
		ID:       doc.ID,
		SellerID: doc.SellerID,
		Book: model.BookInfo{
			Title:     m.sanitizer.Clean(doc.Book.Title),
			Authors:   m.sanitizer.CleanAll(doc.Book.Authors),
			Year:      doc.Book.Year,
			Publisher: m.sanitizer.Clean(doc.Book.Publisher),
			ISBN:      m.sanitizer.Clean(doc.Book.ISBN),
		},
		Price:              doc.Price,
		Currency:           doc.Currency,
		Condition:          condition,
		PictureSources:     security.FilterPictureURLs(doc.PictureSources),
		SavedByCurrentUser: doc.SavedByCurrentUser,
		CreatedAt:          doc.CreatedAt,
	}, true
}

func (m mapper) toModels(docs []insertionDocument) []model.Insertion {
	out := make([]model.Insertion, 0, len(docs))
	for _, d := range docs {
		if ins, ok := m.toModel(d); ok {
			out = append(out, ins)
		}
	}
	return out
}
