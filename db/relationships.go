package db

import (
	"context"
	"database/sql"

	"github.com/deemkeen/stegofed/domain"
	"github.com/google/uuid"
)

const (
	sqlUpsertRelationship = `INSERT INTO relationships(id, account_id, remote_actor_uri, direction, state, follow_uri, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, remote_actor_uri, direction) DO UPDATE SET
			state = excluded.state,
			follow_uri = COALESCE(NULLIF(excluded.follow_uri, ''), relationships.follow_uri),
			updated_at = excluded.updated_at`
	sqlSelectRelationshipColumns = `SELECT id, account_id, remote_actor_uri, direction, state, COALESCE(follow_uri, ''), created_at, updated_at FROM relationships`
	sqlSelectRelationship        = sqlSelectRelationshipColumns + ` WHERE account_id = ? AND remote_actor_uri = ? AND direction = ?`
	sqlSelectRelationshipByURI   = sqlSelectRelationshipColumns + ` WHERE follow_uri = ? AND direction = ?`
	sqlSelectRelationshipsByAcc  = sqlSelectRelationshipColumns + ` WHERE account_id = ? AND direction = ? AND state = ? ORDER BY created_at`
	sqlSelectRelationshipsByURI  = sqlSelectRelationshipColumns + ` WHERE remote_actor_uri = ?`
	sqlUpdateRelationshipState   = `UPDATE relationships SET state = ?, updated_at = ? WHERE id = ?`
	sqlDeleteRelationship        = `DELETE FROM relationships WHERE account_id = ? AND remote_actor_uri = ? AND direction = ?`
	sqlDeleteRelationshipsByURI  = `DELETE FROM relationships WHERE remote_actor_uri = ?`
	sqlInsertRelationshipIgnore  = `INSERT INTO relationships(id, account_id, remote_actor_uri, direction, state, follow_uri, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, remote_actor_uri, direction) DO NOTHING`
)

// UpsertRelationship creates the edge or overwrites its state, in one
// statement keyed by (account, remote actor, direction). rel is refreshed
// with the stored row.
func (db *DB) UpsertRelationship(ctx context.Context, rel *domain.Relationship) error {
	t := now()
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlUpsertRelationship, uuid.New(), rel.AccountId, rel.RemoteActorURI,
			string(rel.Direction), string(rel.State), rel.FollowURI, t, t)
		if err != nil {
			return err
		}
		stored, err := scanRelationship(tx.QueryRowContext(ctx, sqlSelectRelationship, rel.AccountId, rel.RemoteActorURI, string(rel.Direction)))
		if err != nil {
			return err
		}
		*rel = *stored
		return nil
	})
}

func (db *DB) ReadRelationship(ctx context.Context, accountId uuid.UUID, remoteActorURI string, dir domain.Direction) (*domain.Relationship, error) {
	return scanRelationship(db.db.QueryRowContext(ctx, sqlSelectRelationship, accountId, remoteActorURI, string(dir)))
}

// ReadRelationshipByFollowURI correlates a Follow activity id with its edge.
func (db *DB) ReadRelationshipByFollowURI(ctx context.Context, followURI string, dir domain.Direction) (*domain.Relationship, error) {
	return scanRelationship(db.db.QueryRowContext(ctx, sqlSelectRelationshipByURI, followURI, string(dir)))
}

func (db *DB) ReadRelationshipsByAccount(ctx context.Context, accountId uuid.UUID, dir domain.Direction, state domain.RelationshipState) ([]domain.Relationship, error) {
	return db.queryRelationships(ctx, sqlSelectRelationshipsByAcc, accountId, string(dir), string(state))
}

// ReadRelationshipsByActor lists every edge involving a remote actor.
func (db *DB) ReadRelationshipsByActor(ctx context.Context, remoteActorURI string) ([]domain.Relationship, error) {
	return db.queryRelationships(ctx, sqlSelectRelationshipsByURI, remoteActorURI)
}

func (db *DB) UpdateRelationshipState(ctx context.Context, id uuid.UUID, state domain.RelationshipState) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		return execOne(ctx, tx, sqlUpdateRelationshipState, string(state), now(), id)
	})
}

// DeleteRelationship removes one edge and reports whether it existed.
func (db *DB) DeleteRelationship(ctx context.Context, accountId uuid.UUID, remoteActorURI string, dir domain.Direction) (bool, error) {
	var n int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = exec(ctx, tx, sqlDeleteRelationship, accountId, remoteActorURI, string(dir))
		return err
	})
	return n > 0, err
}

// DeleteRelationshipsByActor removes every edge involving a remote actor.
func (db *DB) DeleteRelationshipsByActor(ctx context.Context, remoteActorURI string) (int64, error) {
	var n int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = exec(ctx, tx, sqlDeleteRelationshipsByURI, remoteActorURI)
		return err
	})
	return n, err
}

// MigrateActor moves a remote actor's identity to target: the target
// snapshot is stored, the origin's edges are re-pointed at the target
// (existing target edges win) and the origin cache entry is dropped. It
// returns the number of edges carried over.
func (db *DB) MigrateActor(ctx context.Context, originURI string, target *domain.RemoteActor) (int64, error) {
	var moved int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		moved = 0
		if err := upsertRemoteActor(ctx, tx, target); err != nil {
			return err
		}

		rels, err := queryRelationships(ctx, tx, sqlSelectRelationshipsByURI, originURI)
		if err != nil {
			return err
		}
		t := now()
		for _, rel := range rels {
			n, err := exec(ctx, tx, sqlInsertRelationshipIgnore, uuid.New(), rel.AccountId, target.ActorURI,
				string(rel.Direction), string(rel.State), rel.FollowURI, rel.CreatedAt, t)
			if err != nil {
				return err
			}
			moved += n
		}

		if _, err := exec(ctx, tx, sqlDeleteRelationshipsByURI, originURI); err != nil {
			return err
		}
		_, err = exec(ctx, tx, sqlDeleteRemoteActor, originURI)
		return err
	})
	return moved, err
}

func (db *DB) queryRelationships(ctx context.Context, query string, args ...any) ([]domain.Relationship, error) {
	return queryRelationships(ctx, db.db, query, args...)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryRelationships(ctx context.Context, q querier, query string, args ...any) ([]domain.Relationship, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []domain.Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return rels, err
		}
		rels = append(rels, *rel)
	}
	return rels, rows.Err()
}

func scanRelationship(row scanner) (*domain.Relationship, error) {
	var rel domain.Relationship
	err := row.Scan(&rel.Id, &rel.AccountId, &rel.RemoteActorURI, &rel.Direction, &rel.State, &rel.FollowURI, &rel.CreatedAt, &rel.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &rel, nil
}
