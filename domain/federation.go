package domain

import (
	"time"

	"github.com/google/uuid"
)

// RemoteActor is the cached snapshot of a federated actor.
type RemoteActor struct {
	Id             uuid.UUID
	ActorURI       string
	Username       string
	Domain         string
	DisplayName    string
	InboxURI       string
	SharedInboxURI string
	FollowersURI   string
	PublicKeyPem   string
	MovedTo        string
	Snapshot       string // raw JSON as last fetched
	RefreshedAt    time.Time
}

// Direction of a follow edge, seen from the local account.
type Direction string

const (
	Inbound  Direction = "inbound"  // remote actor follows the local account
	Outbound Direction = "outbound" // local account follows the remote actor
)

type RelationshipState string

const (
	StatePending  RelationshipState = "pending"
	StateAccepted RelationshipState = "accepted"
	StateRejected RelationshipState = "rejected"
)

// Relationship is a follow edge between a local account and a remote actor.
// At most one exists per (AccountId, RemoteActorURI, Direction).
type Relationship struct {
	Id             uuid.UUID
	AccountId      uuid.UUID
	RemoteActorURI string
	Direction      Direction
	State          RelationshipState
	FollowURI      string // id of the Follow activity
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type InteractionType string

const (
	InteractionLike   InteractionType = "like"
	InteractionRepost InteractionType = "repost"
	InteractionReply  InteractionType = "reply"
)

// Interaction is a remote like, repost or reply targeting local content.
// CanonicalURI is unique.
type Interaction struct {
	Id           uuid.UUID
	Type         InteractionType
	ActorURI     string
	CanonicalURI string
	ActivityURI  string
	NoteId       uuid.UUID // local note the interaction targets
	Content      string    // reply body, empty for likes and reposts
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Tombstone marks a deleted resource URI.
type Tombstone struct {
	Id         uuid.UUID
	SubjectURI string
	FormerType string
	DeletedAt  time.Time
}

// QuoteGrant authorizes a remote actor to quote a local note.
type QuoteGrant struct {
	Id           uuid.UUID
	NoteId       uuid.UUID
	RequesterURI string
	GrantURI     string
	CreatedAt    time.Time
}

type BlockKind string

const (
	BlockDomain  BlockKind = "domain"
	BlockActor   BlockKind = "actor"
	BlockKeyword BlockKind = "keyword"
)

// Block is a moderation rule. Scope is uuid.Nil for site-wide rules and
// the local account id otherwise.
type Block struct {
	Id        uuid.UUID
	Scope     uuid.UUID
	Kind      BlockKind
	Value     string
	CreatedAt time.Time
}

// Activity represents an ActivityPub activity (for logging/deduplication)
type Activity struct {
	Id           uuid.UUID
	ActivityURI  string
	ActivityType string // Follow, Create, Like, Announce, Undo, etc.
	ActorURI     string
	ObjectURI    string
	RawJSON      string
	Processed    bool
	CreatedAt    time.Time
	Local        bool // true if originated from this server
}

// DeliveryQueueItem represents an item in the delivery queue
type DeliveryQueueItem struct {
	Id           uuid.UUID
	InboxURI     string
	ActivityJSON string    // The complete activity to deliver
	SenderId     uuid.UUID // local account signing the request, uuid.Nil for the application actor
	Attempts     int
	NextRetryAt  time.Time
	CreatedAt    time.Time
}

type CascadeKind string

const CascadeDeleteActorInteractions CascadeKind = "delete_actor_interactions"

// CascadeJob is deferred cleanup run by the janitor.
type CascadeJob struct {
	Id          uuid.UUID
	Kind        CascadeKind
	ActorURI    string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}
