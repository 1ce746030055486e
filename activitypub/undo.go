package activitypub

import (
	"context"
	"errors"

	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/vocab"
)

func (i *Inbox) handleUndo(ctx context.Context, act *vocab.Activity, r *Recipient) (Outcome, error) {
	inner, ok := act.ObjectValue().(*vocab.Activity)
	if !ok {
		if act.ObjectValue() != nil {
			return i.decline(act, "object is not an activity", "object", act.ObjectValue().Type())
		}
		return i.undoByURI(ctx, act, r, act.ObjectURI())
	}
	if inner.Actor() != "" && vocab.CanonicalURI(inner.Actor()) != vocab.CanonicalURI(act.Actor()) {
		return i.decline(act, "undone activity belongs to another actor", "inner_actor", inner.Actor())
	}

	switch inner.Type() {
	case "Follow":
		return i.undoFollow(ctx, act, r)
	case "Like", "Announce", "Create":
		return i.undoInteraction(ctx, act, interactionKey(inner))
	}
	return i.decline(act, "cannot undo "+inner.Type())
}

// undoFollow removes the inbound edge from the Undo's actor.
func (i *Inbox) undoFollow(ctx context.Context, act *vocab.Activity, r *Recipient) (Outcome, error) {
	if r.IsApplication() {
		return Outcome{}, nil
	}
	removed, err := i.store.DeleteRelationship(ctx, r.Account.Id, act.Actor(), domain.Inbound)
	if err != nil {
		return Outcome{}, err
	}
	if removed {
		i.log.Info("Follower left", "account", r.Account.Username, "follower", act.Actor())
	}
	return Outcome{Success: removed}, nil
}

func (i *Inbox) undoInteraction(ctx context.Context, act *vocab.Activity, key string) (Outcome, error) {
	if !i.conf.AllowIncomingInteractions || key == "" {
		return Outcome{}, nil
	}
	removed, err := i.store.DeleteInteraction(ctx, key, act.Actor())
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Success: removed}, nil
}

// undoByURI handles an Undo whose object is a bare URI: a follow id first,
// then an interaction.
func (i *Inbox) undoByURI(ctx context.Context, act *vocab.Activity, r *Recipient, uri string) (Outcome, error) {
	rel, err := i.store.ReadRelationshipByFollowURI(ctx, uri, domain.Inbound)
	switch {
	case err == nil:
		if rel.RemoteActorURI != act.Actor() {
			return i.decline(act, "follow belongs to another actor")
		}
		removed, err := i.store.DeleteRelationship(ctx, rel.AccountId, rel.RemoteActorURI, domain.Inbound)
		return Outcome{Success: removed}, err
	case !errors.Is(err, domain.ErrNotFound):
		return Outcome{}, err
	}

	for _, key := range []string{vocab.NormalizeURI(uri), vocab.CanonicalURI(uri)} {
		out, err := i.undoInteraction(ctx, act, key)
		if err != nil || out.Success {
			return out, err
		}
	}
	return Outcome{}, nil
}

// interactionKey is the dedup key of a like, repost or reply. Likes and
// reposts are keyed by their activity id, replies by the reply note.
func interactionKey(act *vocab.Activity) string {
	if act.Type() == "Create" {
		return vocab.CanonicalURI(act.ObjectURI())
	}
	if act.ID() == "" {
		return ""
	}
	return vocab.NormalizeURI(act.ID())
}
