package activitypub

import (
	"context"
	"errors"
	"fmt"

	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/vocab"
)

// handleFollow records an inbound follow. Accounts that approve followers
// manually get a pending edge; everyone else is accepted right away.
func (i *Inbox) handleFollow(ctx context.Context, act *vocab.Activity, r *Recipient) (Outcome, error) {
	if r.IsApplication() {
		reject, err := ComposeCorrelated(act, "Reject", r.ActorURI, nil)
		if err != nil {
			return Outcome{}, err
		}
		i.reply(ctx, reject, act.Actor(), nil)
		return Outcome{Result: reject.Activity}, nil
	}
	if vocab.CanonicalURI(act.ObjectURI()) != r.ActorURI {
		return i.decline(act, "object is not the recipient", "object", act.ObjectURI())
	}

	follower, err := i.actors.Resolve(ctx, act.Actor())
	if err != nil {
		return i.decline(act, "cannot resolve follower", "err", err)
	}

	state := domain.StateAccepted
	if r.Account.ManuallyApprovesFollowers {
		state = domain.StatePending
	}
	existing, err := i.store.ReadRelationship(ctx, r.Account.Id, follower.ID(), domain.Inbound)
	switch {
	case err == nil && existing.State == domain.StateAccepted:
		state = domain.StateAccepted
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return Outcome{}, err
	}

	rel := &domain.Relationship{
		AccountId:      r.Account.Id,
		RemoteActorURI: follower.ID(),
		Direction:      domain.Inbound,
		State:          state,
		FollowURI:      act.ID(),
	}
	if err := i.store.UpsertRelationship(ctx, rel); err != nil {
		return Outcome{}, fmt.Errorf("failed to store follow: %w", err)
	}
	if state == domain.StatePending {
		i.log.Info("Follow awaiting approval", "account", r.Account.Username, "follower", follower.ID())
		return Outcome{Success: true, Result: rel}, nil
	}

	accept, err := ComposeCorrelated(act, "Accept", r.ActorURI, nil)
	if err != nil {
		return Outcome{}, err
	}
	if err := i.deliverer.Deliver(ctx, accept, follower.Inbox(), r.Account); err != nil {
		i.log.Warn("Failed to deliver Accept", "follower", follower.ID(), "err", err)
	}
	i.log.Info("Accepted follow", "account", r.Account.Username, "follower", follower.ID())
	return Outcome{Success: true, Result: accept.Activity}, nil
}

func (i *Inbox) handleAccept(ctx context.Context, act *vocab.Activity, r *Recipient) (Outcome, error) {
	return i.answerFollow(ctx, act, r, domain.StateAccepted)
}

func (i *Inbox) handleReject(ctx context.Context, act *vocab.Activity, r *Recipient) (Outcome, error) {
	return i.answerFollow(ctx, act, r, domain.StateRejected)
}

// answerFollow settles one of our outbound follows. Only the followed
// actor's server may answer it.
func (i *Inbox) answerFollow(ctx context.Context, act *vocab.Activity, r *Recipient, state domain.RelationshipState) (Outcome, error) {
	if r.IsApplication() {
		return i.decline(act, "application actor does not follow")
	}
	rel, err := i.correlateFollow(ctx, act, r)
	if err != nil {
		return Outcome{}, err
	}
	if rel == nil {
		return i.decline(act, "no matching follow")
	}

	if echo, ok := act.ObjectValue().(*vocab.Activity); ok && echo.ObjectURI() != "" {
		if vocab.CanonicalURI(echo.ObjectURI()) != vocab.CanonicalURI(rel.RemoteActorURI) {
			return i.decline(act, "echoed follow targets another actor", "object", echo.ObjectURI())
		}
	}
	if vocab.Host(act.Actor()) != vocab.Host(rel.RemoteActorURI) {
		return i.decline(act, "answer does not come from the followed server", "followed", rel.RemoteActorURI)
	}

	if rel.State == state {
		return Outcome{}, nil
	}
	if err := i.store.UpdateRelationshipState(ctx, rel.Id, state); err != nil {
		return Outcome{}, fmt.Errorf("failed to update follow: %w", err)
	}
	rel.State = state
	i.log.Info("Follow answered", "account", r.Account.Username, "actor", rel.RemoteActorURI, "state", state)
	return Outcome{Success: true, Result: rel}, nil
}

// correlateFollow finds the outbound edge an Accept or Reject refers to,
// first by the echoed follow id and then by the echoed actor and object.
func (i *Inbox) correlateFollow(ctx context.Context, act *vocab.Activity, r *Recipient) (*domain.Relationship, error) {
	if followURI := act.ObjectURI(); followURI != "" {
		rel, err := i.store.ReadRelationshipByFollowURI(ctx, followURI, domain.Outbound)
		switch {
		case err == nil && rel.AccountId == r.Account.Id:
			return rel, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}

	echo, ok := act.ObjectValue().(*vocab.Activity)
	if !ok || echo.Type() != "Follow" || echo.ObjectURI() == "" {
		return nil, nil
	}
	if echo.Actor() != "" && vocab.CanonicalURI(echo.Actor()) != r.ActorURI {
		return nil, nil
	}
	rel, err := i.store.ReadRelationship(ctx, r.Account.Id, vocab.CanonicalURI(echo.ObjectURI()), domain.Outbound)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return rel, err
}
