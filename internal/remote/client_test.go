package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/furuhon/internal/metrics"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

type fakeSession struct{ userID string }

func (s fakeSession) CurrentUserID() (string, bool) { return s.userID, s.userID != "" }
func (s fakeSession) IsLoggedIn() bool              { return s.userID != "" }

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *bytes.Buffer) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	c := NewClient(server.Client(), Options{BaseURL: server.URL, Token: "secret"}, newTestLogger(&buf), metrics.Nop{})
	return c, &buf
}

const listJSON = `{"insertions":[
 {"id":"b","seller_id":"s1","book":{"title":"<b>こころ</b>","authors":["夏目漱石"],"year":1914,"publisher":"岩波書店","isbn":"9784003101049"},
  "price":800,"currency":"JPY","condition":"good",
  "picture_sources":["https://img.example.com/b.jpg","http://127.0.0.1/evil.jpg"],
  "saved_by_current_user":true,"created_at":"2026-04-01T10:00:00Z"},
 {"id":"","seller_id":"s1","book":{"title":"no id"},"created_at":"2026-04-01T09:00:00Z"},
 {"id":"a","seller_id":"s2","book":{"title":"門"},"condition":"mint","created_at":"2026-04-01T08:00:00Z"}
]}`

// TestClient_FetchRecent は最新一覧の取得と無害化をテストする。
func TestClient_FetchRecent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("HTTPメソッド = %s, want GET", r.Method)
		}
		if r.URL.Path != "/v1/insertions" {
			t.Errorf("パス = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "20" {
			t.Errorf("limit = %s, want 20", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(listJSON))
	})

	items, err := c.FetchRecent(context.Background(), 20)
	if err != nil {
		t.Fatalf("FetchRecent がエラーを返した: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("件数 = %d, want 2（IDのない出品は破棄）", len(items))
	}
	b := items[0]
	if b.Book.Title != "こころ" {
		t.Errorf("Title = %q, want タグ除去済み", b.Book.Title)
	}
	if len(b.PictureSources) != 1 || b.PictureSources[0] != "https://img.example.com/b.jpg" {
		t.Errorf("PictureSources = %v", b.PictureSources)
	}
	if !b.SavedByCurrentUser || b.Price != 800 {
		t.Errorf("フィールドの変換が不正: %+v", b)
	}
	if want := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC); !b.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", b.CreatedAt, want)
	}
	if items[1].Condition != "" {
		t.Errorf("未定義の状態は空にするべき: %q", items[1].Condition)
	}
}

// TestClient_FetchAfterBefore は日時パラメータがRFC3339Nanoで送られることをテストする。
func TestClient_FetchAfterBefore(t *testing.T) {
	ts := time.Date(2026, 4, 1, 10, 0, 0, 123, time.UTC)
	var gotAfter, gotBefore string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAfter = r.URL.Query().Get("after")
		gotBefore = r.URL.Query().Get("before")
		w.Write([]byte(`{"insertions":[]}`))
	})

	if _, err := c.FetchAfter(context.Background(), ts); err != nil {
		t.Fatalf("FetchAfter がエラーを返した: %v", err)
	}
	if gotAfter != ts.Format(time.RFC3339Nano) {
		t.Errorf("after = %q", gotAfter)
	}
	if _, err := c.FetchBefore(context.Background(), ts); err != nil {
		t.Fatalf("FetchBefore がエラーを返した: %v", err)
	}
	if gotBefore != ts.Format(time.RFC3339Nano) {
		t.Errorf("before = %q", gotBefore)
	}
}

// TestClient_FetchSavedAndPublished はユーザー別のパスが使われることをテストする。
func TestClient_FetchSavedAndPublished(t *testing.T) {
	var paths []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if got := r.Header.Get("X-User-ID"); got != "u1" {
			t.Errorf("X-User-ID = %q, want u1", got)
		}
		w.Write([]byte(`{"insertions":[]}`))
	})
	c.SetSession(fakeSession{userID: "u1"})

	if _, err := c.FetchSaved(context.Background(), "u1", 10); err != nil {
		t.Fatalf("FetchSaved がエラーを返した: %v", err)
	}
	if _, err := c.FetchPublished(context.Background(), "u1", 10); err != nil {
		t.Fatalf("FetchPublished がエラーを返した: %v", err)
	}
	want := []string{"/v1/users/u1/saved", "/v1/users/u1/insertions"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

// TestClient_FetchByID_NotFound は404のときに nil, nil を返すことをテストする。
func TestClient_FetchByID_NotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	ins, err := c.FetchByID(context.Background(), "missing")
	if err != nil || ins != nil {
		t.Errorf("FetchByID = %v, %v, want nil, nil", ins, err)
	}
}

// TestClient_SetSaveStatus は保存状態の書き込みと確認結果をテストする。
func TestClient_SetSaveStatus(t *testing.T) {
	tests := []struct {
		name     string
		respond  bool
		desired  bool
		wantConf bool
	}{
		{"希望どおりに保存された", true, true, true},
		{"サーバーが保存を拒否した", false, true, false},
		{"保存解除が確認された", false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPut || r.URL.Path != "/v1/insertions/x/saved" {
					t.Errorf("リクエスト = %s %s", r.Method, r.URL.Path)
				}
				if r.Header.Get("Idempotency-Key") == "" {
					t.Error("Idempotency-Key ヘッダーがない")
				}
				var req saveStatusRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Errorf("リクエストボディのデコードに失敗: %v", err)
				}
				if req.Saved != tt.desired {
					t.Errorf("saved = %v, want %v", req.Saved, tt.desired)
				}
				json.NewEncoder(w).Encode(saveStatusResponse{Saved: tt.respond})
			})

			confirmed, err := c.SetSaveStatus(context.Background(), "x", tt.desired)
			if err != nil {
				t.Fatalf("SetSaveStatus がエラーを返した: %v", err)
			}
			if confirmed != tt.wantConf {
				t.Errorf("confirmed = %v, want %v", confirmed, tt.wantConf)
			}
		})
	}
}

// TestClient_ServerError はエラーステータスでエラーを返しログを出力することをテストする。
func TestClient_ServerError(t *testing.T) {
	c, buf := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if _, err := c.FetchByQuery(context.Background(), "漱石"); err == nil {
		t.Fatal("503 でエラーを返すべき")
	}
	if !strings.Contains(buf.String(), "リモートAPIがエラーステータスを返しました") {
		t.Errorf("エラーログが出力されていない: %s", buf.String())
	}
}

// TestClient_InvalidJSON は不正なJSONでエラーを返すことをテストする。
func TestClient_InvalidJSON(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	})

	if _, err := c.FetchRecent(context.Background(), 5); err == nil {
		t.Fatal("不正なJSONでエラーを返すべき")
	}
}

// TestClient_ContextCanceled はキャンセル済みのコンテキストで即座にエラーを返すことをテストする。
func TestClient_ContextCanceled(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("キャンセル済みのリクエストが送信された")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.FetchRecent(ctx, 5); err == nil {
		t.Fatal("キャンセル済みコンテキストでエラーを返すべき")
	}
}
