package db

import (
	"context"
	"database/sql"

	"github.com/charmbracelet/log"
)

// SQL for the federation tables
const (
	// Follow edges between local accounts and remote actors
	sqlCreateRelationshipsTable = `CREATE TABLE IF NOT EXISTS relationships (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		remote_actor_uri TEXT NOT NULL,
		direction TEXT NOT NULL,
		state TEXT NOT NULL,
		follow_uri TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(account_id, remote_actor_uri, direction)
	)`

	sqlCreateRelationshipsIndices = `
		CREATE INDEX IF NOT EXISTS idx_relationships_remote_actor_uri ON relationships(remote_actor_uri);
		CREATE INDEX IF NOT EXISTS idx_relationships_follow_uri ON relationships(follow_uri);
	`

	// Remote actors cache table
	sqlCreateRemoteActorsTable = `CREATE TABLE IF NOT EXISTS remote_actors (
		id TEXT NOT NULL PRIMARY KEY,
		actor_uri TEXT UNIQUE NOT NULL,
		username TEXT NOT NULL,
		domain TEXT NOT NULL,
		display_name TEXT,
		inbox_uri TEXT NOT NULL,
		shared_inbox_uri TEXT,
		followers_uri TEXT,
		public_key_pem TEXT,
		moved_to TEXT,
		snapshot TEXT NOT NULL,
		refreshed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateRemoteActorsIndices = `
		CREATE INDEX IF NOT EXISTS idx_remote_actors_domain ON remote_actors(domain);
	`

	// Remote likes, reposts and replies targeting local notes
	sqlCreateInteractionsTable = `CREATE TABLE IF NOT EXISTS interactions (
		id TEXT NOT NULL PRIMARY KEY,
		type TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		canonical_uri TEXT UNIQUE NOT NULL,
		activity_uri TEXT,
		note_id TEXT NOT NULL,
		content TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateInteractionsIndices = `
		CREATE INDEX IF NOT EXISTS idx_interactions_actor_uri ON interactions(actor_uri);
		CREATE INDEX IF NOT EXISTS idx_interactions_note_id ON interactions(note_id);
	`

	sqlCreateTombstonesTable = `CREATE TABLE IF NOT EXISTS tombstones (
		id TEXT NOT NULL PRIMARY KEY,
		subject_uri TEXT UNIQUE NOT NULL,
		former_type TEXT,
		deleted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateQuoteGrantsTable = `CREATE TABLE IF NOT EXISTS quote_grants (
		id TEXT NOT NULL PRIMARY KEY,
		note_id TEXT NOT NULL,
		requester_uri TEXT NOT NULL,
		grant_uri TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(note_id, requester_uri)
	)`

	// Moderation rules, scope is the nil uuid for site-wide rules
	sqlCreateBlocksTable = `CREATE TABLE IF NOT EXISTS blocks (
		id TEXT NOT NULL PRIMARY KEY,
		scope TEXT NOT NULL,
		kind TEXT NOT NULL,
		value TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(scope, kind, value)
	)`

	// Activities log table (for deduplication & debugging)
	sqlCreateActivitiesTable = `CREATE TABLE IF NOT EXISTS activities (
		id TEXT NOT NULL PRIMARY KEY,
		activity_uri TEXT UNIQUE NOT NULL,
		activity_type TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		object_uri TEXT,
		raw_json TEXT NOT NULL,
		processed INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		local INTEGER DEFAULT 0
	)`

	sqlCreateActivitiesIndices = `
		CREATE INDEX IF NOT EXISTS idx_activities_processed ON activities(processed);
		CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(activity_type);
		CREATE INDEX IF NOT EXISTS idx_activities_created_at ON activities(created_at DESC);
	`

	// Delivery queue table
	sqlCreateDeliveryQueueTable = `CREATE TABLE IF NOT EXISTS delivery_queue (
		id TEXT NOT NULL PRIMARY KEY,
		inbox_uri TEXT NOT NULL,
		activity_json TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		next_retry_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDeliveryQueueIndices = `
		CREATE INDEX IF NOT EXISTS idx_delivery_queue_next_retry ON delivery_queue(next_retry_at);
	`

	// Deferred cleanup run by the janitor
	sqlCreateCascadeJobsTable = `CREATE TABLE IF NOT EXISTS cascade_jobs (
		id TEXT NOT NULL PRIMARY KEY,
		kind TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		processed_at TIMESTAMP
	)`

	sqlCreateNotesIndices = `
		CREATE INDEX IF NOT EXISTS idx_notes_user_id ON notes(user_id);
		CREATE INDEX IF NOT EXISTS idx_notes_created_at ON notes(created_at DESC);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_notes_object_uri ON notes(object_uri) WHERE object_uri IS NOT NULL AND object_uri != '';
	`
)

var federationTables = []struct {
	name   string
	create string
}{
	{"relationships", sqlCreateRelationshipsTable},
	{"remote_actors", sqlCreateRemoteActorsTable},
	{"interactions", sqlCreateInteractionsTable},
	{"tombstones", sqlCreateTombstonesTable},
	{"quote_grants", sqlCreateQuoteGrantsTable},
	{"blocks", sqlCreateBlocksTable},
	{"activities", sqlCreateActivitiesTable},
	{"delivery_queue", sqlCreateDeliveryQueueTable},
	{"cascade_jobs", sqlCreateCascadeJobsTable},
}

var federationIndices = map[string]string{
	"relationships":  sqlCreateRelationshipsIndices,
	"remote_actors":  sqlCreateRemoteActorsIndices,
	"interactions":   sqlCreateInteractionsIndices,
	"activities":     sqlCreateActivitiesIndices,
	"delivery_queue": sqlCreateDeliveryQueueIndices,
	"notes":          sqlCreateNotesIndices,
}

// RunMigrations executes all database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		if err := db.createTableIfNotExists(ctx, tx, sqlCreateUserTable, "accounts"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(ctx, tx, sqlCreateNotesTable, "notes"); err != nil {
			return err
		}

		// Extend existing tables (ignore errors if columns already exist)
		db.extendExistingTables(ctx, tx)

		for _, t := range federationTables {
			if err := db.createTableIfNotExists(ctx, tx, t.create, t.name); err != nil {
				return err
			}
		}

		for table, indices := range federationIndices {
			if _, err := tx.ExecContext(ctx, indices); err != nil {
				log.Warn("Failed to create indices", "table", table, "err", err)
			}
		}
		return nil
	})
}

func (db *DB) createTableIfNotExists(ctx context.Context, tx *sql.Tx, createSQL string, tableName string) error {
	_, err := tx.ExecContext(ctx, createSQL)
	if err != nil {
		log.Error("Error creating table", "table", tableName, "err", err)
		return err
	}
	log.Debug("Table created or already exists", "table", tableName)
	return nil
}

func (db *DB) extendExistingTables(ctx context.Context, tx *sql.Tx) {
	// Try to add columns to accounts table (ignore errors if they exist)
	tx.ExecContext(ctx, "ALTER TABLE accounts ADD COLUMN display_name TEXT")
	tx.ExecContext(ctx, "ALTER TABLE accounts ADD COLUMN summary TEXT")
	tx.ExecContext(ctx, "ALTER TABLE accounts ADD COLUMN manually_approves_followers INTEGER DEFAULT 0")
	tx.ExecContext(ctx, "ALTER TABLE accounts ADD COLUMN moved_to TEXT")

	// Try to add columns to notes table (ignore errors if they exist)
	tx.ExecContext(ctx, "ALTER TABLE notes ADD COLUMN visibility TEXT DEFAULT 'public'")
	tx.ExecContext(ctx, "ALTER TABLE notes ADD COLUMN in_reply_to_uri TEXT")
	tx.ExecContext(ctx, "ALTER TABLE notes ADD COLUMN object_uri TEXT")
	tx.ExecContext(ctx, "ALTER TABLE notes ADD COLUMN sensitive INTEGER DEFAULT 0")
	tx.ExecContext(ctx, "ALTER TABLE notes ADD COLUMN content_warning TEXT")
	tx.ExecContext(ctx, "ALTER TABLE notes ADD COLUMN edited_at TIMESTAMP")
	tx.ExecContext(ctx, "ALTER TABLE notes ADD COLUMN quote_policy TEXT DEFAULT 'anyone'")
}
