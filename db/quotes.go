package db

import (
	"context"
	"database/sql"

	"github.com/deemkeen/stegofed/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertQuoteGrant = `INSERT INTO quote_grants(id, note_id, requester_uri, grant_uri, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(note_id, requester_uri) DO NOTHING`
	sqlSelectQuoteGrant = `SELECT id, note_id, requester_uri, grant_uri, created_at FROM quote_grants WHERE note_id = ? AND requester_uri = ?`
)

// GrantQuote stores a grant for (note, requester) and returns the stored
// one. A repeated request returns the first grant unchanged.
func (db *DB) GrantQuote(ctx context.Context, g *domain.QuoteGrant) (*domain.QuoteGrant, error) {
	if g.Id == uuid.Nil {
		g.Id = uuid.New()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now()
	}

	var stored domain.QuoteGrant
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, sqlInsertQuoteGrant, g.Id, g.NoteId, g.RequesterURI, g.GrantURI, g.CreatedAt); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, sqlSelectQuoteGrant, g.NoteId, g.RequesterURI).
			Scan(&stored.Id, &stored.NoteId, &stored.RequesterURI, &stored.GrantURI, &stored.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (db *DB) ReadQuoteGrant(ctx context.Context, noteId uuid.UUID, requesterURI string) (*domain.QuoteGrant, error) {
	var g domain.QuoteGrant
	err := db.db.QueryRowContext(ctx, sqlSelectQuoteGrant, noteId, requesterURI).
		Scan(&g.Id, &g.NoteId, &g.RequesterURI, &g.GrantURI, &g.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}
