package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/stegofed/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertActivity = `INSERT INTO activities(id, activity_uri, activity_type, actor_uri, object_uri, raw_json, processed, local, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(activity_uri) DO NOTHING`
	sqlSelectActivityByURI = `SELECT id, activity_uri, activity_type, actor_uri, COALESCE(object_uri, ''), raw_json, processed, created_at, local
		FROM activities WHERE activity_uri = ?`
	sqlMarkActivityProcessed = `UPDATE activities SET processed = 1 WHERE activity_uri = ?`
	sqlPruneActivities       = `DELETE FROM activities WHERE processed = 1 AND created_at < ?`
)

// CreateActivity logs an activity. It reports false when the activity id
// was already logged.
func (db *DB) CreateActivity(ctx context.Context, a *domain.Activity) (bool, error) {
	if a.Id == uuid.Nil {
		a.Id = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now()
	}
	var n int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = exec(ctx, tx, sqlInsertActivity, a.Id, a.ActivityURI, a.ActivityType, a.ActorURI, a.ObjectURI,
			a.RawJSON, a.Processed, a.Local, a.CreatedAt.UTC())
		return err
	})
	return n > 0, err
}

func (db *DB) ReadActivityByURI(ctx context.Context, uri string) (*domain.Activity, error) {
	var a domain.Activity
	err := db.db.QueryRowContext(ctx, sqlSelectActivityByURI, uri).Scan(&a.Id, &a.ActivityURI, &a.ActivityType,
		&a.ActorURI, &a.ObjectURI, &a.RawJSON, &a.Processed, &a.CreatedAt, &a.Local)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (db *DB) MarkActivityProcessed(ctx context.Context, uri string) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlMarkActivityProcessed, uri)
		return err
	})
}

// PruneActivities deletes processed log entries created before cutoff.
func (db *DB) PruneActivities(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = exec(ctx, tx, sqlPruneActivities, cutoff.UTC())
		return err
	})
	return n, err
}
