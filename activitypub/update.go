package activitypub

import (
	"context"

	"github.com/deemkeen/stegofed/vocab"
)

// handleUpdate refreshes a remote actor's cached profile or the content of
// a stored reply. Actors may only update themselves.
func (i *Inbox) handleUpdate(ctx context.Context, act *vocab.Activity, r *Recipient) (Outcome, error) {
	switch obj := act.ObjectValue().(type) {
	case *vocab.Actor:
		return i.updateActor(ctx, act, obj.ID())
	case *vocab.Content:
		if !i.conf.AllowIncomingInteractions {
			return Outcome{}, nil
		}
		updated, err := i.store.UpdateInteractionContent(ctx, vocab.CanonicalURI(obj.ID()), act.Actor(), obj.Content())
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Success: updated}, nil
	case nil:
		if vocab.CanonicalURI(act.ObjectURI()) == vocab.CanonicalURI(act.Actor()) {
			return i.updateActor(ctx, act, act.ObjectURI())
		}
	}
	return Outcome{}, nil
}

func (i *Inbox) updateActor(ctx context.Context, act *vocab.Activity, uri string) (Outcome, error) {
	if vocab.CanonicalURI(uri) != vocab.CanonicalURI(act.Actor()) {
		return i.decline(act, "actor may only update itself", "object", uri)
	}
	actor, err := i.actors.Refresh(ctx, act.Actor())
	if err != nil {
		return i.decline(act, "cannot refresh actor", "err", err)
	}
	return Outcome{Success: true, Result: actor}, nil
}
