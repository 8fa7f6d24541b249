package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// TextSanitizer はAPIから受け取ったタイトルや著者名などの文字列をプレーンテキストに変換する。
// サーバーは投稿内容を検証しないため、端末表示やRSS出力の前に通す。
// bluemondayのポリシーはスレッドセーフのため共有して使用できる。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はすべてのタグを除去するTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// PlainText はタグを除去し、文字参照を元の文字に戻し、空白を1つにまとめた文字列を返す。
// 空文字列の入力には空文字列を返す。
func (s *TextSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	unescaped := html.UnescapeString(stripped)
	return strings.Join(strings.Fields(unescaped), " ")
}
