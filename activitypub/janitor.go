package activitypub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/charmbracelet/log"
	"github.com/deemkeen/stegofed/domain"
)

const cascadeBatchSize = 100

// JanitorStore is what the janitor cleans up.
type JanitorStore interface {
	CascadeQueue
	ActivityLog
	DeleteInteractionsByActor(ctx context.Context, actorURI string) (int64, error)
}

// Janitor runs deferred cleanup on a cron schedule: queued cascade jobs
// from actor deletions and activity log pruning.
type Janitor struct {
	store     JanitorStore
	cron      string
	retention time.Duration
	log       *log.Logger
}

func NewJanitor(store JanitorStore, cron string, retention time.Duration, logger *log.Logger) (*Janitor, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cron == "" {
		cron = "*/15 * * * *"
	}
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid janitor cron expression: %s", cron)
	}
	return &Janitor{store: store, cron: cron, retention: retention, log: logger.WithPrefix("janitor")}, nil
}

// Run sleeps until each cron tick and cleans up, until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	j.log.Info("Starting janitor", "cron", j.cron, "retention", j.retention)
	for {
		next, err := gronx.NextTickAfter(j.cron, time.Now().UTC(), false)
		wait := time.Until(next)
		if err != nil {
			j.log.Error("Failed to compute next run", "cron", j.cron, "err", err)
			wait = 30 * time.Second
		}

		select {
		case <-ctx.Done():
			j.log.Info("Janitor stopped")
			return
		case <-time.After(wait):
			if err != nil {
				continue
			}
			if err := j.RunOnce(ctx); err != nil {
				j.log.Error("Cleanup failed", "err", err)
			}
		}
	}
}

// RunOnce drains pending cascade jobs and prunes old log entries.
func (j *Janitor) RunOnce(ctx context.Context) error {
	jobs, err := j.store.ReadPendingCascadeJobs(ctx, cascadeBatchSize)
	if err != nil {
		return fmt.Errorf("read cascade jobs: %w", err)
	}

	var errs []error
	for _, job := range jobs {
		if err := j.runJob(ctx, job); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := j.store.CompleteCascadeJob(ctx, job.Id); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := j.store.PruneCascadeJobs(ctx); err != nil {
		errs = append(errs, fmt.Errorf("prune cascade jobs: %w", err))
	}
	if j.retention > 0 {
		n, err := j.store.PruneActivities(ctx, time.Now().Add(-j.retention))
		if err != nil {
			errs = append(errs, fmt.Errorf("prune activities: %w", err))
		} else if n > 0 {
			j.log.Info("Pruned activity log", "removed", n)
		}
	}
	return errors.Join(errs...)
}

func (j *Janitor) runJob(ctx context.Context, job domain.CascadeJob) error {
	switch job.Kind {
	case domain.CascadeDeleteActorInteractions:
		n, err := j.store.DeleteInteractionsByActor(ctx, job.ActorURI)
		if err != nil {
			return fmt.Errorf("delete interactions of %s: %w", job.ActorURI, err)
		}
		j.log.Info("Removed interactions of deleted actor", "actor", job.ActorURI, "removed", n)
		return nil
	}
	j.log.Warn("Unknown cascade job", "kind", job.Kind, "id", job.Id)
	return nil
}
