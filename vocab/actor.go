package vocab

// Actor is an addressable identity: Person, Service, Group, Organization or
// Application.
type Actor struct {
	base
}

// NewActor returns an empty actor of the given type.
func NewActor(typ string) *Actor {
	a := &Actor{base{newAttrs(typ, actorAttributes, actorContext())}}
	a.put("type", nonEmpty(typ))
	return a
}

func (a *Actor) Kind() Kind { return KindActor }

func (a *Actor) Inbox() string     { return URIOf(a.value("inbox")) }
func (a *Actor) Outbox() string    { return URIOf(a.value("outbox")) }
func (a *Actor) Followers() string { return URIOf(a.value("followers")) }
func (a *Actor) Following() string { return URIOf(a.value("following")) }

func (a *Actor) SetInbox(uri string)     { a.put("inbox", nonEmpty(uri)) }
func (a *Actor) SetOutbox(uri string)    { a.put("outbox", nonEmpty(uri)) }
func (a *Actor) SetFollowers(uri string) { a.put("followers", nonEmpty(uri)) }
func (a *Actor) SetFollowing(uri string) { a.put("following", nonEmpty(uri)) }

func (a *Actor) PreferredUsername() string { return a.str("preferred_username") }

func (a *Actor) SetPreferredUsername(name string) { a.put("preferred_username", nonEmpty(name)) }

// SharedInbox returns endpoints.sharedInbox, empty when absent.
func (a *Actor) SharedInbox() string {
	ep, _ := a.value("endpoints").(map[string]any)
	s, _ := ep["sharedInbox"].(string)
	return s
}

// PublicKeyPem returns publicKey.publicKeyPem, empty when absent.
func (a *Actor) PublicKeyPem() string {
	pk := a.value("public_key")
	if list, ok := pk.([]any); ok && len(list) > 0 {
		pk = list[0]
	}
	m, _ := pk.(map[string]any)
	s, _ := m["publicKeyPem"].(string)
	return s
}

// SetPublicKey stores the key document for keyID owned by this actor.
func (a *Actor) SetPublicKey(keyID, pem string) {
	a.put("public_key", map[string]any{
		"id":           keyID,
		"owner":        a.ID(),
		"publicKeyPem": pem,
	})
}

func (a *Actor) ManuallyApprovesFollowers() bool {
	b, _ := a.value("manually_approves_followers").(bool)
	return b
}

func (a *Actor) Discoverable() bool {
	b, _ := a.value("discoverable").(bool)
	return b
}

// AlsoKnownAs returns the alias list.
func (a *Actor) AlsoKnownAs() []string { return URIsOf(a.value("also_known_as")) }

// MovedTo returns the migration target, empty when the actor has not moved.
func (a *Actor) MovedTo() string { return URIOf(a.value("moved_to")) }

func (a *Actor) SetMovedTo(uri string) { a.put("moved_to", nonEmpty(uri)) }

func (a *Actor) ToMap(includeContext bool) map[string]any { return Encode(a, includeContext) }

func (a *Actor) MarshalJSON() ([]byte, error) { return marshal(a) }
