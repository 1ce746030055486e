package activitypub

import (
	"context"
	"errors"

	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/vocab"
	"github.com/google/uuid"
)

// handleQuoteRequest answers a request to quote a local note according to
// the note's quote policy. Granted requests get an Accept carrying the
// grant's URI as result.
func (i *Inbox) handleQuoteRequest(ctx context.Context, act *vocab.Activity, r *Recipient) (Outcome, error) {
	note, owner, err := i.quotedNote(ctx, act)
	if errors.Is(err, domain.ErrNotFound) {
		return i.rejectQuote(ctx, act, nil)
	}
	if err != nil {
		return Outcome{}, err
	}

	allowed := false
	switch note.QuotePolicy {
	case domain.QuoteAnyone, "":
		allowed = true
	case domain.QuoteFollowers:
		rel, err := i.store.ReadRelationship(ctx, owner.Id, act.Actor(), domain.Inbound)
		switch {
		case err == nil:
			allowed = rel.State == domain.StateAccepted
		case !errors.Is(err, domain.ErrNotFound):
			return Outcome{}, err
		}
	}
	if !allowed {
		return i.rejectQuote(ctx, act, owner)
	}

	id := uuid.New()
	grant, err := i.store.GrantQuote(ctx, &domain.QuoteGrant{
		Id:           id,
		NoteId:       note.Id,
		RequesterURI: act.Actor(),
		GrantURI:     i.urls.QuoteGrant(id),
	})
	if err != nil {
		return Outcome{}, err
	}
	accept, err := ComposeCorrelated(act, "Accept", i.urls.Actor(owner.Username), map[string]any{"result": grant.GrantURI})
	if err != nil {
		return Outcome{}, err
	}
	i.reply(ctx, accept, act.Actor(), owner)
	i.log.Info("Quote granted", "note", note.Id, "requester", act.Actor())
	return Outcome{Success: true, Result: accept.Activity}, nil
}

// rejectDisallowedQuote answers a blocked QuoteRequest so the requester
// does not wait forever.
func (i *Inbox) rejectDisallowedQuote(ctx context.Context, act *vocab.Activity, r *Recipient) (Outcome, error) {
	_, owner, err := i.quotedNote(ctx, act)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return Outcome{}, err
	}
	return i.rejectQuote(ctx, act, owner)
}

// rejectQuote sends a Reject signed by owner, or by the application actor
// when the note is unknown.
func (i *Inbox) rejectQuote(ctx context.Context, act *vocab.Activity, owner *domain.Account) (Outcome, error) {
	actorURI := i.urls.ApplicationActor()
	if owner != nil {
		actorURI = i.urls.Actor(owner.Username)
	}
	reject, err := ComposeCorrelated(act, "Reject", actorURI, nil)
	if err != nil {
		return Outcome{}, err
	}
	i.reply(ctx, reject, act.Actor(), owner)
	return Outcome{Result: reject.Activity}, nil
}

func (i *Inbox) quotedNote(ctx context.Context, act *vocab.Activity) (*domain.Note, *domain.Account, error) {
	note, err := i.localNote(ctx, act.ObjectURI())
	if err != nil {
		return nil, nil, err
	}
	owner, err := i.store.ReadAccById(ctx, note.AccountId)
	if err != nil {
		return nil, nil, err
	}
	return note, owner, nil
}
