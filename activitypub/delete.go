package activitypub

import (
	"context"
	"errors"
	"fmt"

	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/vocab"
)

// handleDelete removes what a remote actor deleted once the deletion is
// confirmed. Deleting an actor drops its cache entry and follow edges and
// queues removal of its interactions; deleting content drops the matching
// interaction.
func (i *Inbox) handleDelete(ctx context.Context, act *vocab.Activity, r *Recipient) (Outcome, error) {
	uri := act.ObjectURI()
	if uri == "" {
		return i.decline(act, "object has no id")
	}

	actorPath := deletesActor(act)
	if actorPath && vocab.CanonicalURI(uri) != vocab.CanonicalURI(act.Actor()) {
		return i.decline(act, "actor may only delete itself", "object", uri)
	}

	confirmed, err := i.confirmDeleted(ctx, act, uri)
	if err != nil {
		return Outcome{}, err
	}
	if !confirmed {
		return i.decline(act, "object still exists", "object", uri)
	}

	if actorPath {
		return i.deleteActor(ctx, uri)
	}
	removed, err := i.store.DeleteInteraction(ctx, vocab.CanonicalURI(uri), act.Actor())
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Success: removed}, nil
}

// deletesActor reports whether a Delete targets an actor: a typed actor, a
// tombstone of one, or a bare reference to the sender itself.
func deletesActor(act *vocab.Activity) bool {
	switch obj := act.ObjectValue().(type) {
	case *vocab.Actor:
		return true
	case *vocab.Content:
		if obj.IsTombstone() {
			if ft, _ := obj.Get("former_type"); ft != nil {
				if s, ok := ft.(string); ok {
					return vocab.IsActorType(s)
				}
			}
		}
		return false
	case nil, *vocab.Generic:
		return vocab.CanonicalURI(act.ObjectURI()) == vocab.CanonicalURI(act.Actor())
	}
	return false
}

// confirmDeleted checks that uri is really gone: a local tombstone, a
// fetch answering 404 or 410, or a fetched Tombstone. Unreachable origins
// do not confirm.
func (i *Inbox) confirmDeleted(ctx context.Context, act *vocab.Activity, uri string) (bool, error) {
	tombstoned, err := i.store.HasTombstone(ctx, vocab.CanonicalURI(uri))
	if err != nil {
		return false, err
	}
	if tombstoned {
		return true, nil
	}

	obj, err := i.fetcher.Fetch(ctx, uri)
	switch {
	case isGone(err):
		return true, nil
	case err != nil:
		i.log.Info("Cannot verify deletion", "object", uri, "actor", act.Actor(), "err", err)
		return false, nil
	}
	if c, ok := obj.(*vocab.Content); ok && c.IsTombstone() {
		return true, nil
	}
	return false, nil
}

func (i *Inbox) deleteActor(ctx context.Context, uri string) (Outcome, error) {
	cached, err := i.store.DeleteRemoteActor(ctx, uri)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to drop actor: %w", err)
	}
	edges, err := i.store.DeleteRelationshipsByActor(ctx, uri)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return Outcome{}, fmt.Errorf("failed to drop relationships: %w", err)
	}
	if err := i.store.EnqueueCascadeJob(ctx, domain.CascadeDeleteActorInteractions, uri); err != nil {
		return Outcome{}, fmt.Errorf("failed to queue interaction cleanup: %w", err)
	}
	i.log.Info("Remote actor deleted", "actor", uri, "cached", cached, "relationships", edges)
	return Outcome{Success: true}, nil
}
