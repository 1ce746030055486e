package vocab

import (
	"net/url"
	"strings"
)

// URIOf resolves a reference to its URI: a string is itself, an object or
// map yields its id, a list yields its first element's URI.
func URIOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case Object:
		return t.ID()
	case map[string]any:
		if id, ok := t["id"].(string); ok {
			return id
		}
		if href, ok := t["href"].(string); ok {
			return href
		}
	case []any:
		for _, e := range t {
			if u := URIOf(e); u != "" {
				return u
			}
		}
	case []string:
		if len(t) > 0 {
			return t[0]
		}
	}
	return ""
}

// URIsOf resolves every element of a reference or reference list.
func URIsOf(v any) []string {
	var out []string
	for _, e := range asList(v) {
		if u := URIOf(e); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// StripFragment drops a trailing #fragment.
func StripFragment(uri string) string {
	if i := strings.IndexByte(uri, '#'); i >= 0 {
		return uri[:i]
	}
	return uri
}

// NormalizeURI trims uri and lowercases its scheme and host. The fragment
// is kept.
func NormalizeURI(uri string) string {
	uri = strings.TrimSpace(uri)
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return uri
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

// CanonicalURI is the stable lookup key for remote content: the normalized
// URI with its fragment removed.
func CanonicalURI(uri string) string {
	return StripFragment(NormalizeURI(uri))
}

// Host returns the lowercased host of uri, empty when it has none.
func Host(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []any{t}
	}
}
