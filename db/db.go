package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/stegofed/domain"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the database struct.
type DB struct {
	db *sql.DB
}

// maxBusyRetries bounds how often a transaction is restarted on SQLITE_BUSY.
const maxBusyRetries = 5

const dsnFormat = "file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_time_format=sqlite&_txlock=immediate"

const (
	//Accounts
	sqlCreateUserTable = `CREATE TABLE IF NOT EXISTS accounts(
                        id uuid NOT NULL PRIMARY KEY,
                        username varchar(100) UNIQUE NOT NULL,
                        created_at timestamp default current_timestamp,
                        web_public_key text,
                        web_private_key text
                        )`
	sqlInsertUser           = `INSERT INTO accounts(id, username, display_name, summary, manually_approves_followers, web_public_key, web_private_key, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectUserColumns    = `SELECT id, username, COALESCE(display_name, ''), COALESCE(summary, ''), created_at, manually_approves_followers, COALESCE(web_public_key, ''), COALESCE(web_private_key, ''), COALESCE(moved_to, '') FROM accounts`
	sqlSelectUserById       = sqlSelectUserColumns + ` WHERE id = ?`
	sqlSelectUserByUsername = sqlSelectUserColumns + ` WHERE username = ?`
	sqlUpdateUserMovedTo    = `UPDATE accounts SET moved_to = ? WHERE id = ?`
	sqlUpdateUserApproval   = `UPDATE accounts SET manually_approves_followers = ? WHERE id = ?`

	//Notes
	sqlCreateNotesTable = `CREATE TABLE IF NOT EXISTS notes(
                        id uuid NOT NULL PRIMARY KEY,
                        user_id uuid NOT NULL,
                        message varchar(1000),
                        created_at timestamp default current_timestamp
                        )`
	sqlInsertNote = `INSERT INTO notes(id, user_id, message, visibility, in_reply_to_uri, object_uri, sensitive, content_warning, quote_policy, created_at)
                                                            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectNoteColumns = `SELECT notes.id, notes.user_id, accounts.username, notes.message, notes.created_at, notes.edited_at,
                                                            notes.visibility, COALESCE(notes.in_reply_to_uri, ''), COALESCE(notes.object_uri, ''),
                                                            notes.sensitive, COALESCE(notes.content_warning, ''), notes.quote_policy FROM notes
    														INNER JOIN accounts ON accounts.id = notes.user_id`
	sqlSelectNoteById        = sqlSelectNoteColumns + ` WHERE notes.id = ?`
	sqlSelectNoteByObjectURI = sqlSelectNoteColumns + ` WHERE notes.object_uri = ?`
	sqlSelectNotesByUserId   = sqlSelectNoteColumns + ` WHERE notes.user_id = ? ORDER BY notes.created_at DESC`
	sqlDeleteNote            = `DELETE FROM notes WHERE id = ?`
)

// Open opens the database at path and brings the schema up to date.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", fmt.Sprintf(dsnFormat, path))
	if err != nil {
		return nil, err
	}

	// Configure connection pool for concurrent access
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	db := &DB{db: sqlDB}
	if err := db.RunMigrations(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	log.Info("Database ready", "path", path)
	return db, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) CreateAccount(ctx context.Context, acc *domain.Account) error {
	if acc.Id == uuid.Nil {
		acc.Id = uuid.New()
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now()
	}
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlInsertUser, acc.Id, acc.Username, acc.DisplayName, acc.Summary,
			acc.ManuallyApprovesFollowers, acc.WebPublicKey, acc.WebPrivateKey, acc.CreatedAt.UTC())
		return err
	})
}

func (db *DB) ReadAccById(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return scanAccount(db.db.QueryRowContext(ctx, sqlSelectUserById, id))
}

func (db *DB) ReadAccByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return scanAccount(db.db.QueryRowContext(ctx, sqlSelectUserByUsername, username))
}

// UpdateAccMovedTo records the migration target of a local account.
func (db *DB) UpdateAccMovedTo(ctx context.Context, id uuid.UUID, target string) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		return execOne(ctx, tx, sqlUpdateUserMovedTo, target, id)
	})
}

func (db *DB) UpdateAccApproval(ctx context.Context, id uuid.UUID, manual bool) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		return execOne(ctx, tx, sqlUpdateUserApproval, manual, id)
	})
}

func (db *DB) CreateNote(ctx context.Context, note *domain.Note) error {
	if note.Id == uuid.Nil {
		note.Id = uuid.New()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now()
	}
	if note.Visibility == "" {
		note.Visibility = domain.VisibilityPublic
	}
	if note.QuotePolicy == "" {
		note.QuotePolicy = domain.QuoteAnyone
	}
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlInsertNote, note.Id, note.AccountId, note.Message, string(note.Visibility),
			note.InReplyToURI, note.ObjectURI, note.Sensitive, note.ContentWarning, string(note.QuotePolicy), note.CreatedAt.UTC())
		return err
	})
}

func (db *DB) ReadNoteById(ctx context.Context, id uuid.UUID) (*domain.Note, error) {
	return scanNote(db.db.QueryRowContext(ctx, sqlSelectNoteById, id))
}

// ReadNoteByObjectURI finds local content by its federated object id.
func (db *DB) ReadNoteByObjectURI(ctx context.Context, uri string) (*domain.Note, error) {
	return scanNote(db.db.QueryRowContext(ctx, sqlSelectNoteByObjectURI, uri))
}

func (db *DB) ReadNotesByUserId(ctx context.Context, userId uuid.UUID) ([]domain.Note, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectNotesByUserId, userId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []domain.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return notes, err
		}
		notes = append(notes, *note)
	}
	return notes, rows.Err()
}

func (db *DB) DeleteNote(ctx context.Context, id uuid.UUID) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		return execOne(ctx, tx, sqlDeleteNote, id)
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*domain.Account, error) {
	var acc domain.Account
	err := row.Scan(&acc.Id, &acc.Username, &acc.DisplayName, &acc.Summary, &acc.CreatedAt,
		&acc.ManuallyApprovesFollowers, &acc.WebPublicKey, &acc.WebPrivateKey, &acc.MovedTo)
	if err != nil {
		return nil, notFound(err)
	}
	return &acc, nil
}

func scanNote(row scanner) (*domain.Note, error) {
	var note domain.Note
	var edited sql.NullTime
	err := row.Scan(&note.Id, &note.AccountId, &note.CreatedBy, &note.Message, &note.CreatedAt, &edited,
		&note.Visibility, &note.InReplyToURI, &note.ObjectURI, &note.Sensitive, &note.ContentWarning, &note.QuotePolicy)
	if err != nil {
		return nil, notFound(err)
	}
	if edited.Valid {
		note.EditedAt = &edited.Time
	}
	return &note, nil
}

// wrapTransaction runs f inside an immediate transaction. When SQLite
// reports the database busy the transaction is rolled back and f runs again
// in a fresh one.
func (db *DB) wrapTransaction(ctx context.Context, f func(tx *sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxBusyRetries; attempt++ {
		err = db.runTx(ctx, f)
		if !isBusy(err) {
			return err
		}
		log.Debug("Database busy, retrying transaction", "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 20 * time.Millisecond):
		}
	}
	log.Error("Transaction failed", "err", err)
	return err
}

func (db *DB) runTx(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isBusy(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code() & 0xff
		return code == sqlitelib.SQLITE_BUSY || code == sqlitelib.SQLITE_LOCKED
	}
	return false
}

// execOne executes a statement that must touch exactly one row.
func execOne(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	n, err := exec(ctx, tx, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func now() time.Time {
	return time.Now().UTC()
}
