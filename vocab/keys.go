package vocab

import (
	"strings"
	"unicode"
)

// ToInternal converts an external lowerCamelCase attribute name to the
// internal lower_snake_case form: "attributedTo" -> "attributed_to".
// Compact IRIs ("toot:discoverable") lose their prefix.
func ToInternal(key string) string {
	if i := strings.LastIndex(key, ":"); i >= 0 && !strings.HasPrefix(key, "@") {
		key = key[i+1:]
	}

	var b strings.Builder
	b.Grow(len(key) + 4)
	for i, r := range key {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToExternal converts an internal lower_snake_case name to lowerCamelCase.
// Leading underscores are kept so vendor keys like "_misskey_content" keep
// their marker.
func ToExternal(key string) string {
	trimmed := strings.TrimLeft(key, "_")
	lead := key[:len(key)-len(trimmed)]

	parts := strings.Split(trimmed, "_")
	var b strings.Builder
	b.Grow(len(key))
	b.WriteString(lead)
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}
