// Package security はリモートから受け取ったデータの無害化と、
// 接続先ネットワークの制限機能を提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は出品の書誌情報などのテキストからマークアップを除去する。
// bluemondayのStrictPolicyは並行利用に対して安全である。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はすべてのタグを除去するTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean はタグを除去し、エスケープされた文字を戻して前後の空白を除いた文字列を返す。
// 同一入力に対して常に同一出力を返す。
func (s *TextSanitizer) Clean(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// CleanAll はスライスの各要素を Clean し、空になった要素を除く。
func (s *TextSanitizer) CleanAll(raws []string) []string {
	if len(raws) == 0 {
		return nil
	}
	out := make([]string, 0, len(raws))
	for _, r := range raws {
		if c := s.Clean(r); c != "" {
			out = append(out, c)
		}
	}
	return out
}
