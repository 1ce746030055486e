package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/moderation"
	"github.com/deemkeen/stegofed/vocab"
	"github.com/google/uuid"
)

// Config holds the engine settings.
type Config struct {
	Domain                    string
	ApplicationUser           string // username of the account holding the application actor's keys
	AllowIncomingInteractions bool
	EnableReposts             bool
	Hooks                     Hooks
}

// Deps are the collaborators of the engine. Gate may be nil.
type Deps struct {
	Store     Store
	Gate      Gate
	Fetcher   Fetcher
	Deliverer Deliverer
	Logger    *log.Logger
}

// Recipient is the local actor an activity was delivered to. A nil Account
// is the application actor.
type Recipient struct {
	Account  *domain.Account
	ActorURI string
}

func (r *Recipient) IsApplication() bool { return r == nil || r.Account == nil }

// Outcome reports what a handler did. Nothing to do is Success false with
// a nil Result, never an error.
type Outcome struct {
	Success    bool
	Result     any
	Disallowed bool
}

type handlerFunc func(ctx context.Context, act *vocab.Activity, r *Recipient) (Outcome, error)

// Inbox interprets incoming activities and applies their side effects.
// It holds no per-activity state; everything lives in the store.
type Inbox struct {
	conf      Config
	urls      URLs
	store     Store
	gate      Gate
	fetcher   Fetcher
	deliverer Deliverer
	actors    *ActorResolver
	outbox    *Outbox
	log       *log.Logger

	handlers   map[string]handlerFunc
	disallowed map[string]handlerFunc
}

func NewInbox(conf Config, deps Deps) *Inbox {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	i := &Inbox{
		conf:      conf,
		urls:      URLs{Domain: conf.Domain},
		store:     deps.Store,
		gate:      deps.Gate,
		fetcher:   deps.Fetcher,
		deliverer: deps.Deliverer,
		actors:    NewActorResolver(deps.Store, deps.Fetcher, logger),
		outbox:    NewOutbox(conf, deps),
		log:       logger.WithPrefix("inbox"),
	}
	i.handlers = map[string]handlerFunc{
		"Follow":       i.handleFollow,
		"Accept":       i.handleAccept,
		"Reject":       i.handleReject,
		"Undo":         i.handleUndo,
		"Delete":       i.handleDelete,
		"Move":         i.handleMove,
		"QuoteRequest": i.handleQuoteRequest,
		"Like":         i.handleLike,
		"Announce":     i.handleAnnounce,
		"Create":       i.handleCreate,
		"Update":       i.handleUpdate,
	}
	i.disallowed = map[string]handlerFunc{
		"QuoteRequest": i.rejectDisallowedQuote,
	}
	return i
}

// Decode parses a delivered document into an activity.
func (i *Inbox) Decode(body []byte) (*vocab.Activity, error) {
	obj, err := vocab.DecodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	act, ok := obj.(*vocab.Activity)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an activity", ErrDecode, obj.Type())
	}
	return act, nil
}

// Process decodes body and handles it for r.
func (i *Inbox) Process(ctx context.Context, body []byte, r *Recipient) (Outcome, error) {
	act, err := i.Decode(body)
	if err != nil {
		countInbox("unknown", outcomeError)
		return Outcome{}, err
	}
	return i.Handle(ctx, act, r)
}

// Handle validates act, logs it, checks it against the moderation gate and
// runs the handler for its type followed by the configured hooks.
func (i *Inbox) Handle(ctx context.Context, act *vocab.Activity, r *Recipient) (Outcome, error) {
	if r == nil {
		r = i.ApplicationRecipient()
	}
	label := i.metricType(act.Type())
	logger := i.log.With("type", act.Type(), "actor", act.Actor())

	if err := validate(act); err != nil {
		countInbox(label, outcomeError)
		return Outcome{}, err
	}
	i.record(ctx, act, logger)

	blocked, reason, err := i.blocked(ctx, act, r)
	if err != nil {
		countInbox(label, outcomeError)
		return Outcome{}, fmt.Errorf("moderation check: %w", err)
	}
	if blocked {
		logger.Info("Disallowed", "reason", reason.String())
		countInbox(label, outcomeDisallowed)
		return i.sink(ctx, act, r)
	}

	handle, ok := i.handlers[act.Type()]
	if !ok {
		logger.Debug("Ignoring unsupported activity")
		countInbox(label, outcomeUnhandled)
		return Outcome{}, nil
	}

	out, err := handle(ctx, act, r)
	if err != nil {
		countInbox(label, outcomeError)
		return Outcome{}, err
	}
	i.conf.Hooks.fire(ctx, act, r, out)
	i.markProcessed(ctx, act, logger)

	if out.Success {
		countInbox(label, outcomeSuccess)
	} else {
		countInbox(label, outcomeNoop)
	}
	return out, nil
}

// validate rejects activities missing fields their type requires.
func validate(act *vocab.Activity) error {
	if act.Actor() == "" {
		return &ValidationError{Type: act.Type(), Field: "actor"}
	}
	switch {
	case act.Type() == "Move":
		if act.TargetURI() == "" && act.ObjectURI() == "" {
			return &ValidationError{Type: act.Type(), Field: "target"}
		}
	case !act.IsIntransitive():
		if act.Object() == nil {
			return &ValidationError{Type: act.Type(), Field: "object"}
		}
	}
	return nil
}

func (i *Inbox) blocked(ctx context.Context, act *vocab.Activity, r *Recipient) (bool, moderation.Reason, error) {
	if i.gate == nil {
		return false, moderation.Reason{}, nil
	}
	var scope *uuid.UUID
	if !r.IsApplication() {
		scope = &r.Account.Id
	}
	return i.gate.IsBlocked(ctx, act, scope)
}

// sink runs the disallowed handler for act's type, if any.
func (i *Inbox) sink(ctx context.Context, act *vocab.Activity, r *Recipient) (Outcome, error) {
	out := Outcome{Disallowed: true}
	if handle, ok := i.disallowed[act.Type()]; ok {
		res, err := handle(ctx, act, r)
		if err != nil {
			return out, err
		}
		out.Result = res.Result
	}
	return out, nil
}

// record logs act in the activity log. Failures are not fatal.
func (i *Inbox) record(ctx context.Context, act *vocab.Activity, logger *log.Logger) {
	if act.ID() == "" {
		return
	}
	raw, err := json.Marshal(act)
	if err != nil {
		logger.Warn("Failed to encode activity", "err", err)
		return
	}
	created, err := i.store.CreateActivity(ctx, &domain.Activity{
		ActivityURI:  act.ID(),
		ActivityType: act.Type(),
		ActorURI:     act.Actor(),
		ObjectURI:    act.ObjectURI(),
		RawJSON:      string(raw),
	})
	if err != nil {
		logger.Warn("Failed to log activity", "err", err)
		return
	}
	if !created {
		logger.Debug("Redelivered", "id", act.ID())
	}
}

func (i *Inbox) markProcessed(ctx context.Context, act *vocab.Activity, logger *log.Logger) {
	if act.ID() == "" {
		return
	}
	if err := i.store.MarkActivityProcessed(ctx, act.ID()); err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Warn("Failed to mark activity processed", "err", err)
	}
}

// metricType bounds the type label to the handled types.
func (i *Inbox) metricType(typ string) string {
	if _, ok := i.handlers[typ]; ok {
		return typ
	}
	return "other"
}

// ApplicationRecipient is the recipient for deliveries addressed to the
// server itself.
func (i *Inbox) ApplicationRecipient() *Recipient {
	return &Recipient{ActorURI: i.urls.ApplicationActor()}
}

// LocalRecipient maps a local actor URI to its account.
func (i *Inbox) LocalRecipient(ctx context.Context, actorURI string) (*Recipient, error) {
	if actorURI == i.urls.ApplicationActor() {
		return i.ApplicationRecipient(), nil
	}
	name, ok := i.urls.Username(actorURI)
	if !ok {
		return nil, domain.ErrNotFound
	}
	acc, err := i.store.ReadAccByUsername(ctx, name)
	if err != nil {
		return nil, err
	}
	if acc.Username == i.conf.ApplicationUser {
		return i.ApplicationRecipient(), nil
	}
	return &Recipient{Account: acc, ActorURI: i.urls.Actor(acc.Username)}, nil
}

// ResolveRecipient picks the local actor a shared-inbox delivery concerns:
// the activity's object, the actor or object of an embedded activity, the
// owner of a targeted local note, then the addressees. Anything else goes
// to the application actor.
func (i *Inbox) ResolveRecipient(ctx context.Context, act *vocab.Activity) (*Recipient, error) {
	candidates := []string{act.ObjectURI()}
	if inner, ok := act.ObjectValue().(*vocab.Activity); ok {
		candidates = append(candidates, inner.Actor(), inner.ObjectURI())
	}
	for _, uri := range candidates {
		if r, err := i.localActorRecipient(ctx, uri); r != nil || err != nil {
			return r, err
		}
	}

	note, err := i.localNote(ctx, act.ObjectURI())
	switch {
	case err == nil:
		acc, err := i.store.ReadAccById(ctx, note.AccountId)
		if err != nil {
			return nil, err
		}
		return &Recipient{Account: acc, ActorURI: i.urls.Actor(acc.Username)}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	for _, uri := range append(act.To(), act.Cc()...) {
		if r, err := i.localActorRecipient(ctx, uri); r != nil || err != nil {
			return r, err
		}
	}
	return i.ApplicationRecipient(), nil
}

// localActorRecipient is LocalRecipient with unknown actors mapped to nil.
func (i *Inbox) localActorRecipient(ctx context.Context, uri string) (*Recipient, error) {
	if uri == "" || !i.urls.IsLocal(uri) {
		return nil, nil
	}
	r, err := i.LocalRecipient(ctx, uri)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return r, err
}

// localNote finds local content by its object URI.
func (i *Inbox) localNote(ctx context.Context, uri string) (*domain.Note, error) {
	if uri == "" {
		return nil, domain.ErrNotFound
	}
	note, err := i.store.ReadNoteByObjectURI(ctx, uri)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return note, err
	}
	if id, ok := i.urls.NoteID(vocab.CanonicalURI(uri)); ok {
		return i.store.ReadNoteById(ctx, id)
	}
	return nil, domain.ErrNotFound
}

// reply delivers out to the inbox of actorURI. Failures are logged; the
// triggering activity's effects stand.
func (i *Inbox) reply(ctx context.Context, out *Outgoing, actorURI string, sender *domain.Account) {
	actor, err := i.actors.Resolve(ctx, actorURI)
	if err != nil {
		i.log.Warn("Cannot reply, actor unresolved", "type", out.Activity.Type(), "actor", actorURI, "err", err)
		return
	}
	if err := i.deliverer.Deliver(ctx, out, actor.Inbox(), sender); err != nil {
		i.log.Warn("Failed to deliver reply", "type", out.Activity.Type(), "inbox", actor.Inbox(), "err", err)
	}
}

// decline logs why an activity had no effect.
func (i *Inbox) decline(act *vocab.Activity, reason string, keyvals ...any) (Outcome, error) {
	i.log.Info("Declined "+act.Type()+": "+reason, append([]any{"actor", act.Actor(), "id", act.ID()}, keyvals...)...)
	return Outcome{}, nil
}
