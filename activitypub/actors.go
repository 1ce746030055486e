package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/vocab"
)

// actorCacheTTL is how long a cached actor snapshot is trusted.
const actorCacheTTL = 24 * time.Hour

// ActorResolver returns remote actors from the cache, fetching them when
// missing or stale.
type ActorResolver struct {
	store   RemoteActorStore
	fetcher Fetcher
	log     *log.Logger
}

func NewActorResolver(store RemoteActorStore, fetcher Fetcher, logger *log.Logger) *ActorResolver {
	if logger == nil {
		logger = log.Default()
	}
	return &ActorResolver{store: store, fetcher: fetcher, log: logger}
}

// Resolve returns the actor document for uri.
func (r *ActorResolver) Resolve(ctx context.Context, uri string) (*vocab.Actor, error) {
	cached, err := r.store.ReadRemoteActorByURI(ctx, uri)
	switch {
	case err == nil && time.Since(cached.RefreshedAt) < actorCacheTTL:
		if actor, err := actorFromSnapshot(cached.Snapshot); err == nil {
			return actor, nil
		}
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	return r.Refresh(ctx, uri)
}

// Refresh fetches uri and overwrites the cached snapshot.
func (r *ActorResolver) Refresh(ctx context.Context, uri string) (*vocab.Actor, error) {
	actor, err := r.fetchActor(ctx, uri)
	if err != nil {
		return nil, err
	}
	record, err := RemoteActorFrom(actor)
	if err != nil {
		return nil, err
	}
	if err := r.store.UpsertRemoteActor(ctx, record); err != nil {
		return nil, fmt.Errorf("cache actor %s: %w", uri, err)
	}
	r.log.Debug("Cached remote actor", "uri", actor.ID())
	return actor, nil
}

// Record returns the cached record for uri, resolving it first if needed.
func (r *ActorResolver) Record(ctx context.Context, uri string) (*domain.RemoteActor, error) {
	cached, err := r.store.ReadRemoteActorByURI(ctx, uri)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if _, err := r.Refresh(ctx, uri); err != nil {
		return nil, err
	}
	return r.store.ReadRemoteActorByURI(ctx, uri)
}

// fetchActor fetches uri and checks that the document is the actor it
// claims to be.
func (r *ActorResolver) fetchActor(ctx context.Context, uri string) (*vocab.Actor, error) {
	obj, err := r.fetcher.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	actor, ok := obj.(*vocab.Actor)
	if !ok {
		return nil, fmt.Errorf("%s is a %q, not an actor", uri, obj.Type())
	}
	if vocab.CanonicalURI(actor.ID()) != vocab.CanonicalURI(uri) {
		return nil, fmt.Errorf("%s returned actor %s", uri, actor.ID())
	}
	if actor.Inbox() == "" {
		return nil, fmt.Errorf("actor %s has no inbox", uri)
	}
	return actor, nil
}

// RemoteActorFrom builds the cache record of an actor document.
func RemoteActorFrom(actor *vocab.Actor) (*domain.RemoteActor, error) {
	snapshot, err := json.Marshal(actor)
	if err != nil {
		return nil, fmt.Errorf("encode actor %s: %w", actor.ID(), err)
	}
	username := actor.PreferredUsername()
	if username == "" {
		username = extractUsername(actor.ID())
	}
	return &domain.RemoteActor{
		ActorURI:       actor.ID(),
		Username:       username,
		Domain:         vocab.Host(actor.ID()),
		DisplayName:    actor.Name(),
		InboxURI:       actor.Inbox(),
		SharedInboxURI: actor.SharedInbox(),
		FollowersURI:   actor.Followers(),
		PublicKeyPem:   actor.PublicKeyPem(),
		MovedTo:        actor.MovedTo(),
		Snapshot:       string(snapshot),
		RefreshedAt:    time.Now().UTC(),
	}, nil
}

func actorFromSnapshot(snapshot string) (*vocab.Actor, error) {
	obj, err := vocab.DecodeJSON([]byte(snapshot))
	if err != nil {
		return nil, err
	}
	actor, ok := obj.(*vocab.Actor)
	if !ok {
		return nil, fmt.Errorf("snapshot holds a %q", obj.Type())
	}
	return actor, nil
}

// extractUsername extracts username from various URI formats
// Examples:
// - "https://example.com/users/alice" -> "alice"
// - "https://example.com/@alice" -> "alice"
func extractUsername(uri string) string {
	parts := strings.Split(strings.TrimRight(vocab.StripFragment(uri), "/"), "/")
	return strings.TrimPrefix(parts[len(parts)-1], "@")
}
