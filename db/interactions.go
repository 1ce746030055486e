package db

import (
	"context"
	"database/sql"

	"github.com/deemkeen/stegofed/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertInteraction = `INSERT INTO interactions(id, type, actor_uri, canonical_uri, activity_uri, note_id, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(canonical_uri) DO NOTHING`
	sqlSelectInteractionByURI = `SELECT id, type, actor_uri, canonical_uri, COALESCE(activity_uri, ''), note_id, COALESCE(content, ''), created_at, updated_at
		FROM interactions WHERE canonical_uri = ?`
	sqlUpdateInteractionContent = `UPDATE interactions SET content = ?, updated_at = ? WHERE canonical_uri = ? AND actor_uri = ?`
	sqlDeleteInteraction        = `DELETE FROM interactions WHERE canonical_uri = ? AND actor_uri = ?`
	sqlDeleteInteractionsByURI  = `DELETE FROM interactions WHERE actor_uri = ?`
	sqlCountInteractions        = `SELECT COUNT(*) FROM interactions WHERE note_id = ? AND type = ?`
)

// InsertInteraction records an interaction unless one with the same
// canonical URI exists. It reports whether a row was written.
func (db *DB) InsertInteraction(ctx context.Context, in *domain.Interaction) (bool, error) {
	if in.Id == uuid.Nil {
		in.Id = uuid.New()
	}
	t := now()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = t
	}
	in.UpdatedAt = t

	var n int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = exec(ctx, tx, sqlInsertInteraction, in.Id, string(in.Type), in.ActorURI, in.CanonicalURI,
			in.ActivityURI, in.NoteId, in.Content, in.CreatedAt.UTC(), in.UpdatedAt)
		return err
	})
	return n > 0, err
}

func (db *DB) ReadInteractionByCanonicalURI(ctx context.Context, uri string) (*domain.Interaction, error) {
	var in domain.Interaction
	err := db.db.QueryRowContext(ctx, sqlSelectInteractionByURI, uri).Scan(&in.Id, &in.Type, &in.ActorURI, &in.CanonicalURI,
		&in.ActivityURI, &in.NoteId, &in.Content, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &in, nil
}

// UpdateInteractionContent mutates the interaction in place when it belongs
// to actorURI.
func (db *DB) UpdateInteractionContent(ctx context.Context, canonicalURI, actorURI, content string) (bool, error) {
	var n int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = exec(ctx, tx, sqlUpdateInteractionContent, content, now(), canonicalURI, actorURI)
		return err
	})
	return n > 0, err
}

// DeleteInteraction removes the interaction only when it belongs to actorURI.
func (db *DB) DeleteInteraction(ctx context.Context, canonicalURI, actorURI string) (bool, error) {
	var n int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = exec(ctx, tx, sqlDeleteInteraction, canonicalURI, actorURI)
		return err
	})
	return n > 0, err
}

func (db *DB) DeleteInteractionsByActor(ctx context.Context, actorURI string) (int64, error) {
	var n int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = exec(ctx, tx, sqlDeleteInteractionsByURI, actorURI)
		return err
	})
	return n, err
}

func (db *DB) CountInteractions(ctx context.Context, noteId uuid.UUID, typ domain.InteractionType) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, sqlCountInteractions, noteId, string(typ)).Scan(&n)
	return n, err
}
