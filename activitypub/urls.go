package activitypub

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// URLs builds the public URIs of local resources under one domain.
type URLs struct {
	Domain string
}

func (u URLs) base() string { return "https://" + u.Domain }

func (u URLs) Actor(username string) string {
	return fmt.Sprintf("%s/users/%s", u.base(), username)
}

func (u URLs) Inbox(username string) string     { return u.Actor(username) + "/inbox" }
func (u URLs) Outbox(username string) string    { return u.Actor(username) + "/outbox" }
func (u URLs) Followers(username string) string { return u.Actor(username) + "/followers" }
func (u URLs) Following(username string) string { return u.Actor(username) + "/following" }

// SharedInbox is the site-wide inbox, also used by the application actor.
func (u URLs) SharedInbox() string { return u.base() + "/inbox" }

// ApplicationActor is the server's own Service actor.
func (u URLs) ApplicationActor() string { return u.base() + "/actor" }

func (u URLs) Note(id uuid.UUID) string { return fmt.Sprintf("%s/notes/%s", u.base(), id) }

func (u URLs) QuoteGrant(id uuid.UUID) string {
	return fmt.Sprintf("%s/quote-grants/%s", u.base(), id)
}

func (u URLs) Activity(id uuid.UUID) string {
	return fmt.Sprintf("%s/activities/%s", u.base(), id)
}

// KeyID is the id of the actor's public key document.
func KeyID(actorURI string) string { return actorURI + "#main-key" }

// Username extracts the local username from an actor URI on this domain.
func (u URLs) Username(actorURI string) (string, bool) {
	name, ok := strings.CutPrefix(actorURI, u.base()+"/users/")
	if !ok || name == "" || strings.ContainsAny(name, "/#?") {
		return "", false
	}
	return name, true
}

// NoteID extracts the note id from a local note URI.
func (u URLs) NoteID(uri string) (uuid.UUID, bool) {
	s, ok := strings.CutPrefix(uri, u.base()+"/notes/")
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// IsLocal reports whether uri lives on this domain.
func (u URLs) IsLocal(uri string) bool {
	return strings.HasPrefix(uri, u.base()+"/")
}
