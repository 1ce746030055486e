package activitypub

import (
	"context"
	"time"

	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/moderation"
	"github.com/deemkeen/stegofed/vocab"
	"github.com/google/uuid"
)

type AccountStore interface {
	ReadAccById(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	ReadAccByUsername(ctx context.Context, username string) (*domain.Account, error)
	UpdateAccMovedTo(ctx context.Context, id uuid.UUID, target string) error
}

type NoteStore interface {
	ReadNoteById(ctx context.Context, id uuid.UUID) (*domain.Note, error)
	ReadNoteByObjectURI(ctx context.Context, uri string) (*domain.Note, error)
	ReadNotesByUserId(ctx context.Context, userId uuid.UUID) ([]domain.Note, error)
	DeleteNote(ctx context.Context, id uuid.UUID) error
}

// RelationshipStore keeps follow edges. Upserts are atomic per
// (account, remote actor, direction).
type RelationshipStore interface {
	UpsertRelationship(ctx context.Context, rel *domain.Relationship) error
	ReadRelationship(ctx context.Context, accountId uuid.UUID, remoteActorURI string, dir domain.Direction) (*domain.Relationship, error)
	ReadRelationshipByFollowURI(ctx context.Context, followURI string, dir domain.Direction) (*domain.Relationship, error)
	ReadRelationshipsByAccount(ctx context.Context, accountId uuid.UUID, dir domain.Direction, state domain.RelationshipState) ([]domain.Relationship, error)
	ReadRelationshipsByActor(ctx context.Context, remoteActorURI string) ([]domain.Relationship, error)
	UpdateRelationshipState(ctx context.Context, id uuid.UUID, state domain.RelationshipState) error
	DeleteRelationship(ctx context.Context, accountId uuid.UUID, remoteActorURI string, dir domain.Direction) (bool, error)
	DeleteRelationshipsByActor(ctx context.Context, remoteActorURI string) (int64, error)
	MigrateActor(ctx context.Context, originURI string, target *domain.RemoteActor) (int64, error)
}

type RemoteActorStore interface {
	UpsertRemoteActor(ctx context.Context, actor *domain.RemoteActor) error
	ReadRemoteActorByURI(ctx context.Context, uri string) (*domain.RemoteActor, error)
	DeleteRemoteActor(ctx context.Context, uri string) (bool, error)
}

// InteractionStore keeps remote likes, reposts and replies. InsertInteraction
// reports false when the canonical URI is already recorded.
type InteractionStore interface {
	InsertInteraction(ctx context.Context, in *domain.Interaction) (bool, error)
	ReadInteractionByCanonicalURI(ctx context.Context, uri string) (*domain.Interaction, error)
	UpdateInteractionContent(ctx context.Context, canonicalURI, actorURI, content string) (bool, error)
	DeleteInteraction(ctx context.Context, canonicalURI, actorURI string) (bool, error)
	DeleteInteractionsByActor(ctx context.Context, actorURI string) (int64, error)
}

type TombstoneStore interface {
	CreateTombstone(ctx context.Context, uri, formerType string) error
	HasTombstone(ctx context.Context, uri string) (bool, error)
}

type QuoteStore interface {
	GrantQuote(ctx context.Context, g *domain.QuoteGrant) (*domain.QuoteGrant, error)
	ReadQuoteGrant(ctx context.Context, noteId uuid.UUID, requesterURI string) (*domain.QuoteGrant, error)
}

type ActivityLog interface {
	CreateActivity(ctx context.Context, a *domain.Activity) (bool, error)
	MarkActivityProcessed(ctx context.Context, uri string) error
	PruneActivities(ctx context.Context, cutoff time.Time) (int64, error)
}

type DeliveryQueue interface {
	EnqueueDelivery(ctx context.Context, item *domain.DeliveryQueueItem) error
	ReadPendingDeliveries(ctx context.Context, at time.Time, limit int) ([]domain.DeliveryQueueItem, error)
	UpdateDeliveryAttempt(ctx context.Context, id uuid.UUID, attempts int, nextRetry time.Time) error
	DeleteDelivery(ctx context.Context, id uuid.UUID) error
}

type CascadeQueue interface {
	EnqueueCascadeJob(ctx context.Context, kind domain.CascadeKind, actorURI string) error
	ReadPendingCascadeJobs(ctx context.Context, limit int) ([]domain.CascadeJob, error)
	CompleteCascadeJob(ctx context.Context, id uuid.UUID) error
	PruneCascadeJobs(ctx context.Context) (int64, error)
}

// Store is everything the engine persists. *db.DB implements it.
type Store interface {
	AccountStore
	NoteStore
	RelationshipStore
	RemoteActorStore
	InteractionStore
	TombstoneStore
	QuoteStore
	ActivityLog
	CascadeQueue
	moderation.BlockReader
}

// Fetcher retrieves a remote object. Errors unwrap to ErrNotFound, ErrGone
// or ErrTransient.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (vocab.Object, error)
}

// Deliverer hands an outgoing activity to the transport. sender is nil for
// the application actor.
type Deliverer interface {
	Deliver(ctx context.Context, out *Outgoing, inbox string, sender *domain.Account) error
}

// Gate decides whether an incoming activity may reach its handler.
type Gate interface {
	IsBlocked(ctx context.Context, activity *vocab.Activity, recipient *uuid.UUID) (bool, moderation.Reason, error)
}
