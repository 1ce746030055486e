package activitypub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/vocab"
	"github.com/google/uuid"
)

// Outgoing is an activity ready for delivery.
type Outgoing struct {
	Activity   *vocab.Activity
	Visibility domain.Visibility
}

// ComposeCorrelated builds a reply of newType to trigger, addressed only to
// the trigger's actor. The reply's object is a minimal echo of the trigger:
// its id, type, actor, object and instrument. extras are set on the reply
// after the echo.
func ComposeCorrelated(trigger *vocab.Activity, newType, localActorURI string, extras map[string]any) (*Outgoing, error) {
	echoRaw := map[string]any{}
	for k, v := range map[string]string{
		"id":         trigger.ID(),
		"type":       trigger.Type(),
		"actor":      trigger.Actor(),
		"object":     trigger.ObjectURI(),
		"instrument": vocab.URIOf(trigger.Instrument()),
	} {
		if v != "" {
			echoRaw[k] = v
		}
	}
	echo, err := vocab.Decode(echoRaw)
	if err != nil {
		return nil, err
	}

	out := vocab.NewActivity(newType)
	out.SetID(fmt.Sprintf("%s#%s-%s", vocab.StripFragment(localActorURI), strings.ToLower(newType), uuid.NewString()))
	out.SetActor(localActorURI)
	if trigger.Actor() != "" {
		out.SetTo(trigger.Actor())
	}
	out.SetObject(echo)

	keys := make([]string, 0, len(extras))
	for k := range extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := out.Set(k, extras[k]); err != nil {
			return nil, err
		}
	}
	return &Outgoing{Activity: out, Visibility: domain.VisibilityPrivate}, nil
}

// Audience is the addressing of an outgoing activity.
type Audience struct {
	To        []string
	Cc        []string
	Federated bool
}

// ComputeAudience addresses content of the given visibility. Local content
// is not federated and gets no audience.
func ComputeAudience(visibility domain.Visibility, mentions []string, followersURI, replyParentAuthor string) Audience {
	private := uniqueURIs(append(slices.Clone(mentions), replyParentAuthor))
	shared := uniqueURIs(append([]string{followersURI}, private...))

	switch visibility {
	case domain.VisibilityPublic:
		return Audience{To: []string{vocab.PublicCollection}, Cc: shared, Federated: true}
	case domain.VisibilityQuietPublic:
		return Audience{To: shared, Cc: []string{vocab.PublicCollection}, Federated: true}
	case domain.VisibilityPrivate:
		return Audience{To: private, Federated: true}
	}
	return Audience{}
}

// Apply sets the audience on obj.
func (a Audience) Apply(obj vocab.Object) error {
	if err := obj.Set("to", toAny(a.To)); err != nil {
		return err
	}
	return obj.Set("cc", toAny(a.Cc))
}

func toAny(uris []string) any {
	if len(uris) == 0 {
		return nil
	}
	out := make([]any, len(uris))
	for i, u := range uris {
		out[i] = u
	}
	return out
}

func uniqueURIs(uris []string) []string {
	seen := make(map[string]struct{}, len(uris))
	var out []string
	for _, u := range uris {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// ErrMoveNotAcknowledged is returned when a move target does not list the
// moving account among its aliases.
var ErrMoveNotAcknowledged = errors.New("move target does not list this account in alsoKnownAs")

// Outbox performs local actions that federate.
type Outbox struct {
	urls      URLs
	store     Store
	actors    *ActorResolver
	deliverer Deliverer
	log       *log.Logger
}

func NewOutbox(conf Config, deps Deps) *Outbox {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Outbox{
		urls:      URLs{Domain: conf.Domain},
		store:     deps.Store,
		actors:    NewActorResolver(deps.Store, deps.Fetcher, logger),
		deliverer: deps.Deliverer,
		log:       logger.WithPrefix("outbox"),
	}
}

// Publish announces a new local note to its audience.
func (o *Outbox) Publish(ctx context.Context, acc *domain.Account, note *domain.Note, mentions []string, replyParentAuthor string) (*Outgoing, error) {
	aud := ComputeAudience(note.Visibility, mentions, o.urls.Followers(acc.Username), replyParentAuthor)
	if !aud.Federated {
		return nil, nil
	}

	obj, err := o.noteObject(acc, note, aud)
	if err != nil {
		return nil, err
	}

	create := vocab.NewActivity("Create")
	create.SetID(o.urls.Activity(uuid.New()))
	create.SetObject(obj)

	out := &Outgoing{Activity: create, Visibility: note.Visibility}
	return out, o.fanOut(ctx, acc, out, mentions)
}

// NoteObject renders a stored note as the document served at its URI.
// Only public and quiet-public notes are served; the rest report
// ErrNotFound.
func (o *Outbox) NoteObject(acc *domain.Account, note *domain.Note) (*vocab.Content, error) {
	if note.Visibility != domain.VisibilityPublic && note.Visibility != domain.VisibilityQuietPublic {
		return nil, domain.ErrNotFound
	}
	aud := ComputeAudience(note.Visibility, nil, o.urls.Followers(acc.Username), "")
	return o.noteObject(acc, note, aud)
}

func (o *Outbox) noteObject(acc *domain.Account, note *domain.Note, aud Audience) (*vocab.Content, error) {
	actorURI := o.urls.Actor(acc.Username)

	obj := vocab.NewContent("Note")
	obj.SetID(o.noteURI(note))
	obj.SetAttributedTo(actorURI)
	obj.SetContent(note.Message)
	obj.SetPublished(note.CreatedAt.UTC().Format(time.RFC3339))
	if note.EditedAt != nil {
		obj.SetUpdated(note.EditedAt.UTC().Format(time.RFC3339))
	}
	obj.SetInReplyTo(note.InReplyToURI)
	if note.Sensitive || note.ContentWarning != "" {
		obj.SetSensitive(true)
	}
	if note.ContentWarning != "" {
		if err := obj.Set("summary", note.ContentWarning); err != nil {
			return nil, err
		}
	}
	obj.SetInteractionPolicy(quotePolicyDocument(note.QuotePolicy, actorURI, o.urls.Followers(acc.Username)))
	if err := aud.Apply(obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Follow sends a Follow to targetURI and records the pending edge.
func (o *Outbox) Follow(ctx context.Context, acc *domain.Account, targetURI string) (*domain.Relationship, error) {
	target, err := o.actors.Resolve(ctx, targetURI)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", targetURI, err)
	}

	follow := vocab.NewActivity("Follow")
	follow.SetID(o.urls.Activity(uuid.New()))
	follow.SetActor(o.urls.Actor(acc.Username))
	follow.SetObject(target.ID())
	follow.SetTo(target.ID())

	rel := &domain.Relationship{
		AccountId:      acc.Id,
		RemoteActorURI: target.ID(),
		Direction:      domain.Outbound,
		State:          domain.StatePending,
		FollowURI:      follow.ID(),
	}
	if err := o.store.UpsertRelationship(ctx, rel); err != nil {
		return nil, fmt.Errorf("failed to store follow: %w", err)
	}

	out := &Outgoing{Activity: follow, Visibility: domain.VisibilityPrivate}
	if err := o.deliverer.Deliver(ctx, out, target.Inbox(), acc); err != nil {
		return rel, err
	}
	o.log.Info("Sent Follow", "from", acc.Username, "to", target.ID())
	return rel, nil
}

// Unfollow retracts an outbound follow. It reports false when there was none.
func (o *Outbox) Unfollow(ctx context.Context, acc *domain.Account, targetURI string) (bool, error) {
	rel, err := o.store.ReadRelationship(ctx, acc.Id, targetURI, domain.Outbound)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	actorURI := o.urls.Actor(acc.Username)
	undo, err := ComposeCorrelated(o.followEcho(rel, actorURI, targetURI), "Undo", actorURI, nil)
	if err != nil {
		return false, err
	}
	undo.Activity.SetTo(targetURI)

	if _, err := o.store.DeleteRelationship(ctx, acc.Id, targetURI, domain.Outbound); err != nil {
		return false, err
	}
	return true, o.deliverTo(ctx, undo, targetURI, acc)
}

// ApproveFollower accepts a pending inbound follow.
func (o *Outbox) ApproveFollower(ctx context.Context, acc *domain.Account, followerURI string) error {
	return o.answerFollower(ctx, acc, followerURI, "Accept", domain.StateAccepted)
}

// RejectFollower declines a pending inbound follow.
func (o *Outbox) RejectFollower(ctx context.Context, acc *domain.Account, followerURI string) error {
	return o.answerFollower(ctx, acc, followerURI, "Reject", domain.StateRejected)
}

func (o *Outbox) answerFollower(ctx context.Context, acc *domain.Account, followerURI, answer string, state domain.RelationshipState) error {
	rel, err := o.store.ReadRelationship(ctx, acc.Id, followerURI, domain.Inbound)
	if err != nil {
		return err
	}
	actorURI := o.urls.Actor(acc.Username)
	reply, err := ComposeCorrelated(o.followEcho(rel, followerURI, actorURI), answer, actorURI, nil)
	if err != nil {
		return err
	}
	if err := o.store.UpdateRelationshipState(ctx, rel.Id, state); err != nil {
		return err
	}
	return o.deliverTo(ctx, reply, followerURI, acc)
}

// followEcho rebuilds the Follow a relationship was created from.
func (o *Outbox) followEcho(rel *domain.Relationship, actor, object string) *vocab.Activity {
	follow := vocab.NewActivity("Follow")
	follow.SetID(rel.FollowURI)
	follow.SetActor(actor)
	follow.SetObject(object)
	return follow
}

// DeleteNote removes a local note, leaving a tombstone so remote servers can
// verify the deletion, and tells the note's audience.
func (o *Outbox) DeleteNote(ctx context.Context, acc *domain.Account, noteId uuid.UUID) error {
	note, err := o.store.ReadNoteById(ctx, noteId)
	if err != nil {
		return err
	}
	if note.AccountId != acc.Id {
		return fmt.Errorf("note %s does not belong to %s", noteId, acc.Username)
	}

	uri := o.noteURI(note)
	if err := o.store.CreateTombstone(ctx, vocab.CanonicalURI(uri), "Note"); err != nil {
		return fmt.Errorf("failed to write tombstone: %w", err)
	}
	if err := o.store.DeleteNote(ctx, note.Id); err != nil {
		return err
	}

	aud := ComputeAudience(note.Visibility, nil, o.urls.Followers(acc.Username), "")
	if !aud.Federated {
		return nil
	}
	out, err := o.deleteActivity(acc, uri, "Note", aud)
	if err != nil {
		return err
	}
	out.Visibility = note.Visibility
	return o.fanOut(ctx, acc, out, nil)
}

// DeleteAccount tombstones the account's actor and tells its followers.
func (o *Outbox) DeleteAccount(ctx context.Context, acc *domain.Account) error {
	actorURI := o.urls.Actor(acc.Username)
	if err := o.store.CreateTombstone(ctx, vocab.CanonicalURI(actorURI), "Person"); err != nil {
		return fmt.Errorf("failed to write tombstone: %w", err)
	}
	aud := ComputeAudience(domain.VisibilityPublic, nil, o.urls.Followers(acc.Username), "")
	out, err := o.deleteActivity(acc, actorURI, "Person", aud)
	if err != nil {
		return err
	}
	return o.fanOut(ctx, acc, out, nil)
}

func (o *Outbox) deleteActivity(acc *domain.Account, uri, formerType string, aud Audience) (*Outgoing, error) {
	tomb := vocab.NewContent("Tombstone")
	tomb.SetID(uri)
	if err := tomb.Set("former_type", formerType); err != nil {
		return nil, err
	}

	del := vocab.NewActivity("Delete")
	del.SetID(o.urls.Activity(uuid.New()))
	del.SetActor(o.urls.Actor(acc.Username))
	if err := aud.Apply(del); err != nil {
		return nil, err
	}
	del.SetObject(tomb)
	return &Outgoing{Activity: del, Visibility: domain.VisibilityPublic}, nil
}

// Move announces that acc now lives at targetURI. The target must already
// list acc among its aliases.
func (o *Outbox) Move(ctx context.Context, acc *domain.Account, targetURI string) error {
	actorURI := o.urls.Actor(acc.Username)
	target, err := o.actors.Refresh(ctx, targetURI)
	if err != nil {
		return fmt.Errorf("failed to resolve move target: %w", err)
	}
	if !slices.Contains(target.AlsoKnownAs(), actorURI) {
		return ErrMoveNotAcknowledged
	}

	if err := o.store.UpdateAccMovedTo(ctx, acc.Id, target.ID()); err != nil {
		return err
	}

	move := vocab.NewActivity("Move")
	move.SetID(o.urls.Activity(uuid.New()))
	move.SetActor(actorURI)
	move.SetObject(actorURI)
	move.SetTarget(target.ID())
	move.SetTo(o.urls.Followers(acc.Username))

	out := &Outgoing{Activity: move, Visibility: domain.VisibilityPrivate}
	o.log.Info("Announcing move", "account", acc.Username, "target", target.ID())
	return o.fanOut(ctx, acc, out, nil)
}

// fanOut delivers out to every accepted follower of acc plus any extra
// recipients, one request per inbox.
func (o *Outbox) fanOut(ctx context.Context, acc *domain.Account, out *Outgoing, extra []string) error {
	inboxes, err := o.followerInboxes(ctx, acc)
	if err != nil {
		return err
	}
	for _, uri := range extra {
		record, err := o.actors.Record(ctx, uri)
		if err != nil {
			o.log.Warn("Skipping recipient", "uri", uri, "err", err)
			continue
		}
		inboxes = append(inboxes, record.InboxURI)
	}

	var errs []error
	for _, inbox := range uniqueURIs(inboxes) {
		if err := o.deliverer.Deliver(ctx, out, inbox, acc); err != nil {
			errs = append(errs, fmt.Errorf("deliver to %s: %w", inbox, err))
		}
	}
	o.log.Debug("Fanned out activity", "type", out.Activity.Type(), "inboxes", len(inboxes))
	return errors.Join(errs...)
}

// followerInboxes lists the inboxes of accepted followers, preferring
// shared inboxes.
func (o *Outbox) followerInboxes(ctx context.Context, acc *domain.Account) ([]string, error) {
	rels, err := o.store.ReadRelationshipsByAccount(ctx, acc.Id, domain.Inbound, domain.StateAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to read followers: %w", err)
	}
	var inboxes []string
	for _, rel := range rels {
		record, err := o.actors.Record(ctx, rel.RemoteActorURI)
		if err != nil {
			o.log.Warn("Skipping follower", "uri", rel.RemoteActorURI, "err", err)
			continue
		}
		if record.SharedInboxURI != "" {
			inboxes = append(inboxes, record.SharedInboxURI)
		} else {
			inboxes = append(inboxes, record.InboxURI)
		}
	}
	return uniqueURIs(inboxes), nil
}

func (o *Outbox) deliverTo(ctx context.Context, out *Outgoing, actorURI string, sender *domain.Account) error {
	record, err := o.actors.Record(ctx, actorURI)
	if err != nil {
		return fmt.Errorf("failed to resolve inbox of %s: %w", actorURI, err)
	}
	return o.deliverer.Deliver(ctx, out, record.InboxURI, sender)
}

func (o *Outbox) noteURI(note *domain.Note) string {
	if note.ObjectURI != "" {
		return note.ObjectURI
	}
	return o.urls.Note(note.Id)
}

// quotePolicyDocument renders a quote policy as an interaction policy.
func quotePolicyDocument(p domain.QuotePolicy, actorURI, followersURI string) map[string]any {
	approved := vocab.PublicCollection
	switch p {
	case domain.QuoteFollowers:
		approved = followersURI
	case domain.QuoteSelf:
		approved = actorURI
	}
	return map[string]any{
		"canQuote": map[string]any{"automaticApproval": []any{approved}},
	}
}
