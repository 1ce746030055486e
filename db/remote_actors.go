package db

import (
	"context"
	"database/sql"

	"github.com/deemkeen/stegofed/domain"
	"github.com/google/uuid"
)

const (
	sqlUpsertRemoteActor = `INSERT INTO remote_actors(id, actor_uri, username, domain, display_name, inbox_uri, shared_inbox_uri,
			followers_uri, public_key_pem, moved_to, snapshot, refreshed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(actor_uri) DO UPDATE SET
			username = excluded.username,
			domain = excluded.domain,
			display_name = excluded.display_name,
			inbox_uri = excluded.inbox_uri,
			shared_inbox_uri = excluded.shared_inbox_uri,
			followers_uri = excluded.followers_uri,
			public_key_pem = excluded.public_key_pem,
			moved_to = excluded.moved_to,
			snapshot = excluded.snapshot,
			refreshed_at = excluded.refreshed_at`
	sqlSelectRemoteActorByURI = `SELECT id, actor_uri, username, domain, COALESCE(display_name, ''), inbox_uri, COALESCE(shared_inbox_uri, ''),
			COALESCE(followers_uri, ''), COALESCE(public_key_pem, ''), COALESCE(moved_to, ''), snapshot, refreshed_at
		FROM remote_actors WHERE actor_uri = ?`
	sqlDeleteRemoteActor = `DELETE FROM remote_actors WHERE actor_uri = ?`
)

// UpsertRemoteActor stores a fetched actor snapshot keyed by its URI.
func (db *DB) UpsertRemoteActor(ctx context.Context, actor *domain.RemoteActor) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		return upsertRemoteActor(ctx, tx, actor)
	})
}

func upsertRemoteActor(ctx context.Context, tx *sql.Tx, actor *domain.RemoteActor) error {
	if actor.Id == uuid.Nil {
		actor.Id = uuid.New()
	}
	if actor.RefreshedAt.IsZero() {
		actor.RefreshedAt = now()
	}
	_, err := tx.ExecContext(ctx, sqlUpsertRemoteActor, actor.Id, actor.ActorURI, actor.Username, actor.Domain,
		actor.DisplayName, actor.InboxURI, actor.SharedInboxURI, actor.FollowersURI, actor.PublicKeyPem,
		actor.MovedTo, actor.Snapshot, actor.RefreshedAt.UTC())
	return err
}

func (db *DB) ReadRemoteActorByURI(ctx context.Context, uri string) (*domain.RemoteActor, error) {
	var a domain.RemoteActor
	err := db.db.QueryRowContext(ctx, sqlSelectRemoteActorByURI, uri).Scan(&a.Id, &a.ActorURI, &a.Username, &a.Domain,
		&a.DisplayName, &a.InboxURI, &a.SharedInboxURI, &a.FollowersURI, &a.PublicKeyPem, &a.MovedTo, &a.Snapshot, &a.RefreshedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// DeleteRemoteActor drops the cache entry and reports whether one existed.
func (db *DB) DeleteRemoteActor(ctx context.Context, uri string) (bool, error) {
	var n int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = exec(ctx, tx, sqlDeleteRemoteActor, uri)
		return err
	})
	return n > 0, err
}
