package activitypub

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/vocab"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// handleMove migrates a remote actor to its new identity. Both documents
// are fetched fresh and must point at each other: the target lists the
// origin in alsoKnownAs and the origin's movedTo is the target.
func (i *Inbox) handleMove(ctx context.Context, act *vocab.Activity, r *Recipient) (Outcome, error) {
	targetURI := act.TargetURI()
	if targetURI == "" {
		targetURI = act.ObjectURI()
	}
	originURI := act.OriginURI()
	if originURI == "" {
		originURI = act.Actor()
	}
	if vocab.CanonicalURI(targetURI) == vocab.CanonicalURI(originURI) {
		return i.decline(act, "origin and target are the same actor", "target", targetURI)
	}

	var origin, target *vocab.Actor
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := i.actors.fetchActor(gctx, originURI)
		origin = a
		return err
	})
	g.Go(func() error {
		a, err := i.actors.fetchActor(gctx, targetURI)
		target = a
		return err
	})
	if err := g.Wait(); err != nil {
		return i.decline(act, "cannot fetch both actors", "err", err)
	}

	if !slices.Contains(canonicalAll(target.AlsoKnownAs()), vocab.CanonicalURI(origin.ID())) {
		return i.decline(act, "target does not list origin in alsoKnownAs", "target", target.ID())
	}
	if vocab.CanonicalURI(origin.MovedTo()) != vocab.CanonicalURI(target.ID()) {
		return i.decline(act, "origin movedTo does not name target", "moved_to", origin.MovedTo())
	}

	if _, err := i.store.ReadRemoteActorByURI(ctx, origin.ID()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			i.log.Debug("Ignoring move of unknown actor", "origin", origin.ID(), "target", target.ID())
			return Outcome{}, nil
		}
		return Outcome{}, err
	}

	following, err := i.followersOf(ctx, origin.ID())
	if err != nil {
		return Outcome{}, err
	}
	alreadyFollowing, err := i.followersOf(ctx, target.ID())
	if err != nil {
		return Outcome{}, err
	}

	record, err := RemoteActorFrom(target)
	if err != nil {
		return Outcome{}, err
	}
	moved, err := i.store.MigrateActor(ctx, origin.ID(), record)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to migrate %s: %w", origin.ID(), err)
	}
	i.log.Info("Remote actor moved", "origin", origin.ID(), "target", target.ID(), "relationships", moved)

	for _, accountId := range following {
		if slices.Contains(alreadyFollowing, accountId) {
			continue
		}
		acc, err := i.store.ReadAccById(ctx, accountId)
		if err != nil {
			i.log.Warn("Cannot re-follow moved actor", "account", accountId, "err", err)
			continue
		}
		if _, err := i.outbox.Follow(ctx, acc, target.ID()); err != nil {
			i.log.Warn("Failed to follow move target", "account", acc.Username, "target", target.ID(), "err", err)
		}
	}
	return Outcome{Success: true, Result: record}, nil
}

// followersOf lists local accounts with an outbound edge to actorURI.
func (i *Inbox) followersOf(ctx context.Context, actorURI string) ([]uuid.UUID, error) {
	rels, err := i.store.ReadRelationshipsByActor(ctx, actorURI)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for _, rel := range rels {
		if rel.Direction == domain.Outbound && rel.State != domain.StateRejected {
			ids = append(ids, rel.AccountId)
		}
	}
	return ids, nil
}

func canonicalAll(uris []string) []string {
	out := make([]string, len(uris))
	for n, u := range uris {
		out[n] = vocab.CanonicalURI(u)
	}
	return out
}
