package vocab

import (
	"net/url"
	"sort"
	"strings"
)

// Well-known vocabulary URIs.
const (
	ActivityStreamsURI = "https://www.w3.org/ns/activitystreams"
	SecurityURI        = "https://w3id.org/security/v1"
	PublicCollection   = "https://www.w3.org/ns/activitystreams#Public"
)

// Term is the target of a context mapping. Type is empty for the plain
// string form ("sensitive": "as:sensitive").
type Term struct {
	ID   string
	Type string
}

// ContextEntry is either a bare vocabulary URI or a map of terms.
type ContextEntry struct {
	URI   string
	Terms map[string]Term
}

// Context is the ordered @context table of an object.
type Context []ContextEntry

// ParseContext reads the wire form of @context. Entries it does not
// understand are skipped.
func ParseContext(raw any) Context {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		return Context{{URI: v}}
	case map[string]any:
		return Context{{Terms: parseTerms(v)}}
	case []any:
		var c Context
		for _, e := range v {
			c = append(c, ParseContext(e)...)
		}
		return c
	case []string:
		var c Context
		for _, e := range v {
			c = append(c, ContextEntry{URI: e})
		}
		return c
	}
	return nil
}

func parseTerms(m map[string]any) map[string]Term {
	terms := make(map[string]Term, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case string:
			terms[k] = Term{ID: t}
		case map[string]any:
			var term Term
			if id, ok := t["@id"].(string); ok {
				term.ID = id
			} else if id, ok := t["id"].(string); ok {
				term.ID = id
			}
			if typ, ok := t["@type"].(string); ok {
				term.Type = typ
			} else if typ, ok := t["type"].(string); ok {
				term.Type = typ
			}
			terms[k] = term
		}
	}
	return terms
}

// Raw renders the table in wire form.
func (c Context) Raw() any {
	if len(c) == 1 && c[0].Terms == nil {
		return c[0].URI
	}
	out := make([]any, 0, len(c))
	for _, e := range c {
		if e.Terms == nil {
			out = append(out, e.URI)
			continue
		}
		m := make(map[string]any, len(e.Terms))
		for k, t := range e.Terms {
			if t.Type == "" {
				m[k] = t.ID
			} else {
				m[k] = map[string]any{"@id": t.ID, "@type": t.Type}
			}
		}
		out = append(out, m)
	}
	return out
}

// Lookup returns the last definition of name in the table.
func (c Context) Lookup(name string) (Term, bool) {
	for i := len(c) - 1; i >= 0; i-- {
		if t, ok := c[i].Terms[name]; ok {
			return t, true
		}
	}
	return Term{}, false
}

// IsNamespaced reports whether attr (external spelling) maps to an absolute
// http(s) vocabulary URI.
func (c Context) IsNamespaced(attr string) bool {
	t, ok := c.Lookup(attr)
	if !ok {
		return false
	}
	return isAbsoluteURI(t.ID)
}

// Prefix returns the declared prefix term whose URI the attribute's URI
// extends, e.g. "toot" for "discoverable": "http://joinmastodon.org/ns#discoverable".
func (c Context) Prefix(attr string) (string, bool) {
	t, ok := c.Lookup(attr)
	if !ok || !isAbsoluteURI(t.ID) {
		return "", false
	}

	best := ""
	bestLen := 0
	seen := map[string]bool{}
	for i := len(c) - 1; i >= 0; i-- {
		names := make([]string, 0, len(c[i].Terms))
		for name := range c[i].Terms {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if seen[name] || name == attr {
				continue
			}
			seen[name] = true
			p := c[i].Terms[name]
			if p.Type != "" || !isAbsoluteURI(p.ID) {
				continue
			}
			if strings.HasPrefix(t.ID, p.ID) && len(t.ID) > len(p.ID) && len(p.ID) > bestLen {
				best, bestLen = name, len(p.ID)
			}
		}
	}
	return best, best != ""
}

// Compose concatenates two tables. Bare URIs are deduplicated and term maps
// merge into one trailing map where b's definitions win.
func Compose(a, b Context) Context {
	var out Context
	seen := map[string]bool{}
	terms := map[string]Term{}
	for _, c := range []Context{a, b} {
		for _, e := range c {
			if e.Terms == nil {
				if !seen[e.URI] {
					seen[e.URI] = true
					out = append(out, ContextEntry{URI: e.URI})
				}
				continue
			}
			for k, t := range e.Terms {
				terms[k] = t
			}
		}
	}
	if len(terms) > 0 {
		out = append(out, ContextEntry{Terms: terms})
	}
	return out
}

func isAbsoluteURI(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func activityContext() Context {
	return Context{{URI: ActivityStreamsURI}}
}

func actorContext() Context {
	return Context{
		{URI: ActivityStreamsURI},
		{URI: SecurityURI},
		{Terms: map[string]Term{
			"toot":                      {ID: "http://joinmastodon.org/ns#"},
			"schema":                    {ID: "http://schema.org#"},
			"manuallyApprovesFollowers": {ID: "as:manuallyApprovesFollowers"},
			"movedTo":                   {ID: "as:movedTo", Type: "@id"},
			"alsoKnownAs":               {ID: "as:alsoKnownAs", Type: "@id"},
			"discoverable":              {ID: "toot:discoverable"},
			"indexable":                 {ID: "toot:indexable"},
			"featured":                  {ID: "toot:featured", Type: "@id"},
			"featuredTags":              {ID: "toot:featuredTags", Type: "@id"},
			"PropertyValue":             {ID: "schema:PropertyValue"},
			"value":                     {ID: "schema:value"},
		}},
	}
}

func contentContext() Context {
	return Context{
		{URI: ActivityStreamsURI},
		{Terms: map[string]Term{
			"gts":               {ID: "https://gotosocial.org/ns#"},
			"interactionPolicy": {ID: "gts:interactionPolicy", Type: "@id"},
			"canQuote":          {ID: "gts:canQuote", Type: "@id"},
			"automaticApproval": {ID: "gts:automaticApproval", Type: "@id"},
			"manualApproval":    {ID: "gts:manualApproval", Type: "@id"},
			"sensitive":         {ID: "as:sensitive"},
			"quote":             {ID: "https://w3id.org/fep/044f#quote", Type: "@id"},
		}},
	}
}
