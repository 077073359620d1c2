package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はイベント種別の説明文を公開予約ページに出せる形に整える。
type ContentSanitizerService interface {
	// Sanitize は許可タグ（p, br, a, ul, ol, li, strong, em）以外を除去し、前後の空白を落とす。
	// 外部リンクにはtarget="_blank"とrel="noopener noreferrer"が付く。冪等。
	Sanitize(rawHTML string) string
}

// descriptionTags は説明文で許可する要素。aは属性付きで別途許可する。
var descriptionTags = []string{"p", "br", "ul", "ol", "li", "strong", "em"}

// descriptionPolicy は説明文用のbluemondayポリシー。
// script, style, img, iframe, on*属性は許可リストにないため落ちる。
func descriptionPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(descriptionTags...)
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https", "http", "mailto")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	return p
}

// contentSanitizer のポリシーはゴルーチン間で共有してよい。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceを生成する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{policy: descriptionPolicy()}
}

func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return strings.TrimSpace(s.policy.Sanitize(rawHTML))
}
