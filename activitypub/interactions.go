package activitypub

import (
	"context"
	"errors"

	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/vocab"
)

// maxAnnounceDepth bounds how many Announce wrappers are unwrapped.
const maxAnnounceDepth = 2

type announceDepthKey struct{}

func announceDepth(ctx context.Context) int {
	d, _ := ctx.Value(announceDepthKey{}).(int)
	return d
}

func (i *Inbox) handleLike(ctx context.Context, act *vocab.Activity, r *Recipient) (Outcome, error) {
	return i.recordInteraction(ctx, act, domain.InteractionLike, act.ObjectURI(), interactionKey(act), "")
}

// handleAnnounce records a repost of local content. An Announce wrapping
// another activity, as groups and relays send, is unwrapped and handled
// as that activity.
func (i *Inbox) handleAnnounce(ctx context.Context, act *vocab.Activity, r *Recipient) (Outcome, error) {
	if inner, ok := act.ObjectValue().(*vocab.Activity); ok {
		return i.unwrapAnnounce(ctx, act, inner, r)
	}

	uri := act.ObjectURI()
	_, err := i.localNote(ctx, uri)
	switch {
	case err == nil:
		return i.recordInteraction(ctx, act, domain.InteractionRepost, uri, interactionKey(act), "")
	case !errors.Is(err, domain.ErrNotFound):
		return Outcome{}, err
	case i.urls.IsLocal(uri) || act.ObjectValue() != nil:
		return Outcome{}, nil
	}

	obj, err := i.fetcher.Fetch(ctx, uri)
	if err != nil {
		return i.decline(act, "cannot fetch announced object", "object", uri, "err", err)
	}
	if inner, ok := obj.(*vocab.Activity); ok {
		return i.unwrapAnnounce(ctx, act, inner, r)
	}
	return Outcome{}, nil
}

// unwrapAnnounce handles inner on behalf of its own actor. Unless the
// announcer is that actor, only the copy served by the actor's server is
// trusted.
func (i *Inbox) unwrapAnnounce(ctx context.Context, act, inner *vocab.Activity, r *Recipient) (Outcome, error) {
	depth := announceDepth(ctx)
	if depth >= maxAnnounceDepth {
		return i.decline(act, "announce nested too deep")
	}
	if vocab.CanonicalURI(inner.Actor()) != vocab.CanonicalURI(act.Actor()) {
		origin, err := i.originCopy(ctx, inner)
		if err != nil {
			return i.decline(act, "announced activity not confirmed by its origin", "inner", inner.ID(), "err", err)
		}
		inner = origin
	}
	return i.Handle(context.WithValue(ctx, announceDepthKey{}, depth+1), inner, r)
}

// originCopy dereferences inner from the server of its actor.
func (i *Inbox) originCopy(ctx context.Context, inner *vocab.Activity) (*vocab.Activity, error) {
	id := inner.ID()
	if id == "" || vocab.Host(id) != vocab.Host(inner.Actor()) {
		return nil, errors.New("activity id is not on its actor's server")
	}
	obj, err := i.fetcher.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	fetched, ok := obj.(*vocab.Activity)
	if !ok {
		return nil, errors.New("origin did not serve an activity")
	}
	if vocab.NormalizeURI(fetched.ID()) != vocab.NormalizeURI(id) ||
		vocab.CanonicalURI(fetched.Actor()) != vocab.CanonicalURI(inner.Actor()) {
		return nil, errors.New("origin copy differs")
	}
	return fetched, nil
}

// handleCreate records a remote reply to local content. Other creations
// are not stored.
func (i *Inbox) handleCreate(ctx context.Context, act *vocab.Activity, r *Recipient) (Outcome, error) {
	note, ok := act.ObjectValue().(*vocab.Content)
	if !ok || note.InReplyTo() == "" {
		return Outcome{}, nil
	}
	if note.AttributedTo() != "" && vocab.CanonicalURI(note.AttributedTo()) != vocab.CanonicalURI(act.Actor()) {
		return i.decline(act, "reply attributed to another actor", "attributed_to", note.AttributedTo())
	}
	return i.recordInteraction(ctx, act, domain.InteractionReply, note.InReplyTo(), interactionKey(act), note.Content())
}

// recordInteraction stores a like, repost or reply of a local note. A key
// that is already recorded is a redelivery and changes nothing.
func (i *Inbox) recordInteraction(ctx context.Context, act *vocab.Activity, typ domain.InteractionType, targetURI, key, content string) (Outcome, error) {
	if !i.conf.AllowIncomingInteractions {
		return Outcome{}, nil
	}
	if typ == domain.InteractionRepost && !i.conf.EnableReposts {
		return Outcome{}, nil
	}
	if key == "" {
		return i.decline(act, "interaction has no id")
	}

	note, err := i.localNote(ctx, targetURI)
	if errors.Is(err, domain.ErrNotFound) {
		return Outcome{}, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	in := &domain.Interaction{
		Type:         typ,
		ActorURI:     act.Actor(),
		CanonicalURI: key,
		ActivityURI:  act.ID(),
		NoteId:       note.Id,
		Content:      content,
	}
	inserted, err := i.store.InsertInteraction(ctx, in)
	if err != nil {
		return Outcome{}, err
	}
	if !inserted {
		return Outcome{}, nil
	}
	i.log.Debug("Recorded interaction", "type", typ, "note", note.Id, "actor", act.Actor())
	return Outcome{Success: true, Result: in}, nil
}
