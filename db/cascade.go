package db

import (
	"context"
	"database/sql"

	"github.com/deemkeen/stegofed/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertCascadeJob   = `INSERT INTO cascade_jobs(id, kind, actor_uri, created_at) VALUES (?, ?, ?, ?)`
	sqlSelectPendingJobs  = `SELECT id, kind, actor_uri, created_at FROM cascade_jobs WHERE processed_at IS NULL ORDER BY created_at LIMIT ?`
	sqlCompleteCascadeJob = `UPDATE cascade_jobs SET processed_at = ? WHERE id = ?`
	sqlPruneCascadeJobs   = `DELETE FROM cascade_jobs WHERE processed_at IS NOT NULL`
)

// EnqueueCascadeJob schedules deferred cleanup for an actor.
func (db *DB) EnqueueCascadeJob(ctx context.Context, kind domain.CascadeKind, actorURI string) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlInsertCascadeJob, uuid.New(), string(kind), actorURI, now())
		return err
	})
}

func (db *DB) ReadPendingCascadeJobs(ctx context.Context, limit int) ([]domain.CascadeJob, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectPendingJobs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.CascadeJob
	for rows.Next() {
		var job domain.CascadeJob
		if err := rows.Scan(&job.Id, &job.Kind, &job.ActorURI, &job.CreatedAt); err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (db *DB) CompleteCascadeJob(ctx context.Context, id uuid.UUID) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		return execOne(ctx, tx, sqlCompleteCascadeJob, now(), id)
	})
}

// PruneCascadeJobs removes finished jobs.
func (db *DB) PruneCascadeJobs(ctx context.Context) (int64, error) {
	var n int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = exec(ctx, tx, sqlPruneCascadeJobs)
		return err
	})
	return n, err
}
