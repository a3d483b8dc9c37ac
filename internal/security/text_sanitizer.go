// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は外部から受け取った自由記述テキストを平文にする。
// 解析結果の製品名、成分の説明、比較の要約などAPI応答に載る文字列に使用される。
type TextSanitizerService interface {
	// SanitizeText は全てのHTMLタグを除去し、エンティティを展開して前後の空白を取り除く。
	// 同一入力に対して常に同一出力を返す。
	SanitizeText(text string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はタグを一切許可しないポリシーでTextSanitizerServiceを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeText はテキストを平文にする。
func (s *textSanitizer) SanitizeText(text string) string {
	if text == "" {
		return ""
	}
	cleaned := s.policy.Sanitize(text)
	// StrictPolicyは & や < をエスケープして返すため平文に戻す
	cleaned = html.UnescapeString(cleaned)
	return strings.TrimSpace(cleaned)
}
