package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const (
	sqlInsertTombstone = `INSERT INTO tombstones(id, subject_uri, former_type, deleted_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(subject_uri) DO NOTHING`
	sqlSelectTombstone = `SELECT COUNT(*) FROM tombstones WHERE subject_uri = ?`
)

// CreateTombstone marks uri as deleted. Marking it twice is a no-op.
func (db *DB) CreateTombstone(ctx context.Context, uri, formerType string) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlInsertTombstone, uuid.New(), uri, formerType, now())
		return err
	})
}

func (db *DB) HasTombstone(ctx context.Context, uri string) (bool, error) {
	var n int
	if err := db.db.QueryRowContext(ctx, sqlSelectTombstone, uri).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
