package web

import (
	"errors"
	"net/http"

	"github.com/deemkeen/stegofed/activitypub"
	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/vocab"
	"github.com/gin-gonic/gin"
)

// handleSharedInbox accepts deliveries addressed to the server and routes
// each to the local actor it concerns.
func (s *server) handleSharedInbox(c *gin.Context) {
	s.receive(c, func(act *vocab.Activity) (*activitypub.Recipient, error) {
		return s.inbox.ResolveRecipient(c.Request.Context(), act)
	})
}

func (s *server) handleActorInbox(c *gin.Context) {
	actorURI := s.urls.Actor(c.Param("actor"))
	s.receive(c, func(*vocab.Activity) (*activitypub.Recipient, error) {
		return s.inbox.LocalRecipient(c.Request.Context(), actorURI)
	})
}

func (s *server) handleApplicationInbox(c *gin.Context) {
	s.receive(c, func(*vocab.Activity) (*activitypub.Recipient, error) {
		return s.inbox.ApplicationRecipient(), nil
	})
}

// receive authenticates a delivery, decodes it and hands it to the inbox.
// Deliveries are acknowledged with 202 whatever the handler decided; only
// malformed or unauthenticated requests are refused.
func (s *server) receive(c *gin.Context, recipient func(*vocab.Activity) (*activitypub.Recipient, error)) {
	ctx := c.Request.Context()

	body, err := c.GetRawData()
	if err != nil {
		if isBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	act, err := s.inbox.Decode(body)
	if err != nil {
		s.log.Debug("Undecodable delivery", "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid activity"})
		return
	}
	logger := s.log.With("type", act.Type(), "actor", act.Actor())

	signer, err := activitypub.VerifyRequest(ctx, c.Request, s.keys)
	if err != nil {
		// the key of a deleted actor can no longer be fetched; there is
		// nothing left to authenticate or to act on
		if act.Type() == "Delete" && errors.Is(err, activitypub.ErrGone) {
			logger.Debug("Dropping delete from gone actor")
			c.Status(http.StatusAccepted)
			return
		}
		logger.Warn("Signature rejected", "err", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}
	if err := activitypub.VerifyDigest(c.Request, body); err != nil {
		logger.Warn("Digest rejected", "err", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid digest"})
		return
	}
	if vocab.CanonicalURI(signer) != vocab.CanonicalURI(act.Actor()) {
		logger.Warn("Signer does not match actor", "signer", signer)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Signer does not match actor"})
		return
	}

	r, err := recipient(act)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.notFound(c)
			return
		}
		s.serverError(c, "Failed to resolve recipient", err)
		return
	}

	out, err := s.inbox.Handle(ctx, act, r)
	if err != nil {
		var ve *activitypub.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
			return
		}
		s.serverError(c, "Failed to handle activity", err)
		return
	}

	logger.Debug("Delivery handled", "recipient", r.ActorURI, "success", out.Success, "disallowed", out.Disallowed)
	c.Status(http.StatusAccepted)
}
