package vocab

// Content is a content-bearing object: Note, Article, Event, Tombstone and
// the rest of the content registry.
type Content struct {
	base
}

// NewContent returns an empty content object of the given type.
func NewContent(typ string) *Content {
	c := &Content{base{newAttrs(typ, contentAttributes, contentContext())}}
	c.put("type", nonEmpty(typ))
	return c
}

func (c *Content) Kind() Kind { return KindContent }

func (c *Content) Content() string { return c.str("content") }

func (c *Content) SetContent(html string) { c.put("content", nonEmpty(html)) }

// Sensitive reports the sensitivity flag.
func (c *Content) Sensitive() bool {
	b, _ := c.value("sensitive").(bool)
	return b
}

func (c *Content) SetSensitive(v bool) { c.put("sensitive", v) }

// Attachments returns the attachment list, promoting a single value.
func (c *Content) Attachments() []any { return asList(c.value("attachment")) }

// QuoteURI returns the quoted post, accepting the FEP-044f and legacy spellings.
func (c *Content) QuoteURI() string {
	for _, k := range []string{"quote", "quote_url", "quote_uri"} {
		if u := URIOf(c.value(k)); u != "" {
			return u
		}
	}
	return ""
}

// IsTombstone reports whether the object marks a deleted resource.
func (c *Content) IsTombstone() bool { return c.Type() == "Tombstone" }

func (c *Content) ToMap(includeContext bool) map[string]any { return Encode(c, includeContext) }

func (c *Content) MarshalJSON() ([]byte, error) { return marshal(c) }
