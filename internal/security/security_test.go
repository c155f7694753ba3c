package security

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"
)

// TestTextSanitizer_Clean はマークアップが除去されることを検証する。
func TestTextSanitizer_Clean(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "坊っちゃん", "坊っちゃん"},
		{"タグを除去", "<b>坊っちゃん</b>", "坊っちゃん"},
		{"scriptを除去", `<script>alert(1)</script>草枕`, "草枕"},
		{"エンティティを戻す", "Tom &amp; Jerry", "Tom & Jerry"},
		{"前後の空白を除去", "  三四郎 ", "三四郎"},
		{"空文字", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Clean(tt.input); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestTextSanitizer_Idempotent は同一入力に対して同一出力を返すことを検証する。
func TestTextSanitizer_Idempotent(t *testing.T) {
	s := NewTextSanitizer()
	input := `<a href="javascript:alert(1)">門</a>`
	first := s.Clean(input)
	if second := s.Clean(input); first != second {
		t.Errorf("Clean が冪等でない: %q != %q", first, second)
	}
}

// TestTextSanitizer_CleanAll は空になった要素が除かれることを検証する。
func TestTextSanitizer_CleanAll(t *testing.T) {
	s := NewTextSanitizer()
	got := s.CleanAll([]string{"<i>夏目漱石</i>", "<script></script>", " 森鴎外"})
	want := []string{"夏目漱石", "森鴎外"}
	if !slices.Equal(got, want) {
		t.Errorf("CleanAll = %v, want %v", got, want)
	}
	if s.CleanAll(nil) != nil {
		t.Error("CleanAll(nil) は nil を返すべき")
	}
}

// TestValidatePictureURL は画像URLの静的検証を行う。
func TestValidatePictureURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://img.example.com/a.jpg", false},
		{"http://cdn.example.org/b.png", false},
		{"", true},
		{"javascript:alert(1)", true},
		{"data:image/png;base64,AAAA", true},
		{"https://127.0.0.1/a.jpg", true},
		{"https://10.1.2.3/a.jpg", true},
		{"https://169.254.169.254/latest/meta-data", true},
		{"https://[::1]/a.jpg", true},
		{"https://localhost/a.jpg", true},
		{"https:///nohost.jpg", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidatePictureURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePictureURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

// TestFilterPictureURLs は安全なURLのみが順序を保って残ることを検証する。
func TestFilterPictureURLs(t *testing.T) {
	got := FilterPictureURLs([]string{
		"https://img.example.com/1.jpg",
		"https://192.168.0.1/2.jpg",
		"https://img.example.com/3.jpg",
	})
	want := []string{"https://img.example.com/1.jpg", "https://img.example.com/3.jpg"}
	if !slices.Equal(got, want) {
		t.Errorf("FilterPictureURLs = %v, want %v", got, want)
	}
}

// TestNewRestrictedClient_BlocksLoopback はループバックへのリクエストがブロックされることを検証する。
func TestNewRestrictedClient_BlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewRestrictedClient(5 * time.Second)
	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", client.Timeout)
	}
	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("ループバックへのリクエストはエラーになるべき")
	}
}
