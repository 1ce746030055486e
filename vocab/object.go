package vocab

// Kind tags the variant family of an Object.
type Kind int

const (
	KindGeneric Kind = iota
	KindContent
	KindActor
	KindActivity
)

func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindActor:
		return "actor"
	case KindActivity:
		return "activity"
	default:
		return "generic"
	}
}

// Object is any protocol entity. The set of implementations is closed:
// *Generic, *Content, *Actor and *Activity.
type Object interface {
	Kind() Kind
	Type() string
	ID() string
	Has(key string) bool
	Get(key string) (any, error)
	Set(key string, value any) error
	Add(key string, value any) error
	Keys() []string
	Context() Context

	attrs() *Attrs
}

// Serializable objects render to the nested map wire form.
type Serializable interface {
	ToMap(includeContext bool) map[string]any
}

// Namespaced objects carry their own @context table.
type Namespaced interface {
	Context() Context
	SetContext(Context)
}

func set(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

func union(sets ...map[string]struct{}) map[string]struct{} {
	out := map[string]struct{}{}
	for _, s := range sets {
		for k := range s {
			out[k] = struct{}{}
		}
	}
	return out
}

var baseAttributes = set(
	"id", "type", "attachment", "attributed_to", "audience", "bcc", "bto", "cc",
	"content", "content_map", "context", "duration", "end_time", "generator",
	"icon", "image", "in_reply_to", "interaction_policy", "likes", "location",
	"media_type", "name", "name_map", "preview", "published", "replies", "sensitive",
	"shares", "source", "start_time", "summary", "summary_map", "tag", "to",
	"updated", "url",
)

var (
	contentAttributes = union(baseAttributes, set(
		"quote", "quote_url", "quote_uri", "quote_authorization", "former_type",
		"deleted", "one_of", "any_of", "closed", "voters_count", "href", "width", "height",
		"blurhash", "focal_point", "address", "latitude", "longitude", "altitude",
		"accuracy", "radius", "units", "timezone", "comments_enabled", "join_mode",
	))

	actorAttributes = union(baseAttributes, set(
		"inbox", "outbox", "followers", "following", "liked", "streams", "endpoints",
		"preferred_username", "public_key", "manually_approves_followers", "discoverable",
		"indexable", "also_known_as", "moved_to", "featured", "featured_tags", "webfinger",
		"attribution_domains", "suspended", "memorial", "posting_restricted_to_mods",
	))

	activityAttributes = union(baseAttributes, set(
		"actor", "object", "target", "result", "origin", "instrument",
	))
)

var (
	activityTypes = set(
		"Accept", "Add", "Announce", "Arrive", "Block", "Create", "Delete", "Dislike",
		"Flag", "Follow", "Ignore", "Invite", "Join", "Leave", "Like", "Listen", "Move",
		"Offer", "Read", "Reject", "Remove", "TentativeAccept", "TentativeReject",
		"Travel", "Undo", "Update", "View", "QuoteRequest",
	)
	intransitiveTypes = set("Arrive", "Travel")

	actorTypes = set("Person", "Service", "Group", "Organization", "Application")

	contentTypes = set(
		"Note", "Article", "Event", "Place", "Question", "Page", "Image", "Video",
		"Audio", "Document", "Tombstone",
	)
)

// IsActivityType reports whether t is a registered activity type.
func IsActivityType(t string) bool { _, ok := activityTypes[t]; return ok }

// IsActorType reports whether t is a registered actor type.
func IsActorType(t string) bool { _, ok := actorTypes[t]; return ok }

// IsContentType reports whether t is a registered content type.
func IsContentType(t string) bool { _, ok := contentTypes[t]; return ok }

// IsIntransitive reports whether activities of type t carry no object.
func IsIntransitive(t string) bool { _, ok := intransitiveTypes[t]; return ok }

// base carries the accessors every variant shares.
type base struct {
	Attrs
}

func (b *base) ID() string   { return b.str("id") }
func (b *base) Type() string { return b.str("type") }

func (b *base) SetID(id string) { b.put("id", nonEmpty(id)) }

func (b *base) Name() string      { return b.str("name") }
func (b *base) Summary() string   { return b.str("summary") }
func (b *base) Published() string { return b.str("published") }
func (b *base) Updated() string   { return b.str("updated") }
func (b *base) URL() string       { return URIOf(b.value("url")) }

func (b *base) SetPublished(ts string) { b.put("published", nonEmpty(ts)) }
func (b *base) SetUpdated(ts string)   { b.put("updated", nonEmpty(ts)) }

// AttributedTo returns the URI of the attributed author.
func (b *base) AttributedTo() string { return URIOf(b.value("attributed_to")) }

func (b *base) SetAttributedTo(uri string) { b.put("attributed_to", nonEmpty(uri)) }

// InReplyTo returns the URI of the object this one replies to.
func (b *base) InReplyTo() string { return URIOf(b.value("in_reply_to")) }

func (b *base) SetInReplyTo(uri string) { b.put("in_reply_to", nonEmpty(uri)) }

func (b *base) To() []string       { return URIsOf(b.value("to")) }
func (b *base) Cc() []string       { return URIsOf(b.value("cc")) }
func (b *base) Bto() []string      { return URIsOf(b.value("bto")) }
func (b *base) Bcc() []string      { return URIsOf(b.value("bcc")) }
func (b *base) Audience() []string { return URIsOf(b.value("audience")) }

func (b *base) SetTo(uris ...string) { b.put("to", stringList(uris)) }
func (b *base) SetCc(uris ...string) { b.put("cc", stringList(uris)) }

// InteractionPolicy returns the raw interaction policy document.
func (b *base) InteractionPolicy() any { return b.value("interaction_policy") }

func (b *base) SetInteractionPolicy(p any) { b.put("interaction_policy", p) }

func nonEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func stringList(uris []string) any {
	if len(uris) == 0 {
		return nil
	}
	out := make([]any, 0, len(uris))
	for _, u := range uris {
		out = append(out, u)
	}
	return dedupe(out)
}

// Generic is the open fallback for types outside the registries.
type Generic struct {
	base
}

// NewGeneric returns an empty object of the given type.
func NewGeneric(typ string) *Generic {
	g := &Generic{base{newAttrs(typ, nil, activityContext())}}
	g.put("type", nonEmpty(typ))
	return g
}

func (g *Generic) Kind() Kind { return KindGeneric }

func (g *Generic) ToMap(includeContext bool) map[string]any { return Encode(g, includeContext) }

func (g *Generic) MarshalJSON() ([]byte, error) { return marshal(g) }
