package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/deemkeen/stegofed/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertBlock = `INSERT INTO blocks(id, scope, kind, value, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(scope, kind, value) DO NOTHING`
	sqlSelectBlocks = `SELECT id, scope, kind, value, created_at FROM blocks WHERE scope = ? ORDER BY created_at`
	sqlDeleteBlock  = `DELETE FROM blocks WHERE id = ?`
)

// CreateBlock adds a moderation rule. Values are stored lowercased.
func (db *DB) CreateBlock(ctx context.Context, b *domain.Block) error {
	if b.Id == uuid.Nil {
		b.Id = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now()
	}
	b.Value = strings.ToLower(strings.TrimSpace(b.Value))
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlInsertBlock, b.Id, b.Scope, string(b.Kind), b.Value, b.CreatedAt)
		return err
	})
}

// ReadBlocks lists the rules of one scope; uuid.Nil reads the site-wide rules.
func (db *DB) ReadBlocks(ctx context.Context, scope uuid.UUID) ([]domain.Block, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectBlocks, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []domain.Block
	for rows.Next() {
		var b domain.Block
		if err := rows.Scan(&b.Id, &b.Scope, &b.Kind, &b.Value, &b.CreatedAt); err != nil {
			return blocks, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (db *DB) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		return execOne(ctx, tx, sqlDeleteBlock, id)
	})
}
