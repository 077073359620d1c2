package eventtype

import "strings"

// maxSlugLength は公開URLに使うslugの最大長。
const maxSlugLength = 60

// Slugify は名前から公開URL用のslugを生成する。
// 英数字以外は "-" にまとめ、前後の "-" を除去する。
// 英数字を1文字も含まない名前は空文字列を返す。
func Slugify(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(name) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			pendingDash = b.Len() > 0
			continue
		}
		if pendingDash {
			b.WriteByte('-')
			pendingDash = false
		}
		b.WriteRune(r)
	}

	slug := b.String()
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}
