package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/deemkeen/stegofed/activitypub"
	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/vocab"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (s *server) handleActor(c *gin.Context) {
	username := c.Param("actor")
	if username == s.conf.Conf.ApplicationUser {
		c.Redirect(http.StatusMovedPermanently, s.urls.ApplicationActor())
		return
	}

	acc, err := s.store.ReadAccByUsername(c.Request.Context(), username)
	if err != nil {
		s.lookupFailed(c, err)
		return
	}
	doc, err := s.actorDocument(acc)
	if err != nil {
		s.serverError(c, "Failed to build actor", err)
		return
	}
	s.renderActivity(c, doc)
}

// handleApplicationActor serves the server's own actor, which signs
// deliveries and fetches that no local user is responsible for.
func (s *server) handleApplicationActor(c *gin.Context) {
	acc, err := s.store.ReadAccByUsername(c.Request.Context(), s.conf.Conf.ApplicationUser)
	if err != nil {
		s.lookupFailed(c, err)
		return
	}

	uri := s.urls.ApplicationActor()
	actor := vocab.NewActor("Service")
	actor.SetID(uri)
	actor.SetPreferredUsername(s.conf.Conf.ApplicationUser)
	actor.SetInbox(uri + "/inbox")
	err = errors.Join(
		actor.Set("name", s.conf.Conf.SslDomain),
		actor.Set("url", uri),
		actor.Set("manually_approves_followers", true),
		actor.Set("endpoints", map[string]any{"sharedInbox": s.urls.SharedInbox()}),
	)
	if err != nil {
		s.serverError(c, "Failed to build application actor", err)
		return
	}
	actor.SetPublicKey(activitypub.KeyID(uri), acc.WebPublicKey)
	s.renderActivity(c, actor)
}

// actorDocument renders a local account as a Person.
func (s *server) actorDocument(acc *domain.Account) (*vocab.Actor, error) {
	uri := s.urls.Actor(acc.Username)

	// Use DisplayName if available, otherwise use username
	displayName := acc.DisplayName
	if displayName == "" {
		displayName = acc.Username
	}

	actor := vocab.NewActor("Person")
	actor.SetID(uri)
	actor.SetPreferredUsername(acc.Username)
	actor.SetInbox(s.urls.Inbox(acc.Username))
	actor.SetOutbox(s.urls.Outbox(acc.Username))
	actor.SetFollowers(s.urls.Followers(acc.Username))
	actor.SetFollowing(s.urls.Following(acc.Username))
	actor.SetMovedTo(acc.MovedTo)
	if !acc.CreatedAt.IsZero() {
		actor.SetPublished(acc.CreatedAt.UTC().Format(time.RFC3339))
	}

	var summary any
	if acc.Summary != "" {
		summary = acc.Summary
	}
	err := errors.Join(
		actor.Set("name", displayName),
		actor.Set("summary", summary),
		actor.Set("url", uri),
		actor.Set("manually_approves_followers", acc.ManuallyApprovesFollowers),
		actor.Set("discoverable", true),
		actor.Set("endpoints", map[string]any{"sharedInbox": s.urls.SharedInbox()}),
	)
	if err != nil {
		return nil, err
	}
	actor.SetPublicKey(activitypub.KeyID(uri), acc.WebPublicKey)
	return actor, nil
}

// handleNote serves a local note at its object URI.
func (s *server) handleNote(c *gin.Context) {
	ctx := c.Request.Context()
	noteId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.notFound(c)
		return
	}

	note, err := s.store.ReadNoteById(ctx, noteId)
	if err != nil {
		s.lookupFailed(c, err)
		return
	}
	acc, err := s.store.ReadAccById(ctx, note.AccountId)
	if err != nil {
		s.lookupFailed(c, err)
		return
	}
	obj, err := s.outbox.NoteObject(acc, note)
	if err != nil {
		s.lookupFailed(c, err)
		return
	}
	s.renderActivity(c, obj)
}

// lookupFailed answers 404 for missing rows and 500 for everything else.
func (s *server) lookupFailed(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		s.notFound(c)
		return
	}
	s.serverError(c, "Lookup failed", err)
}
