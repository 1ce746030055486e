package activitypub

import (
	"errors"
	"testing"
	"time"

	"github.com/deemkeen/stegofed/domain"
)

func TestNewJanitorRejectsBadCron(t *testing.T) {
	f := newFixture(t)
	if _, err := NewJanitor(f.store, "every tuesday", time.Hour, nil); err == nil {
		t.Error("Expected invalid cron expression to be rejected")
	}
	if _, err := NewJanitor(f.store, "0 3 * * *", time.Hour, nil); err != nil {
		t.Errorf("Expected valid cron expression to be accepted, got %v", err)
	}
}

func TestJanitorRunsCascadeJobs(t *testing.T) {
	f := newFixture(t)
	_, uri := f.note(f.alice, domain.QuoteAnyone)
	f.handle(f.recipient(f.alice), likeOf(bobURI, bobURI+"#likes/1", uri))
	f.handle(f.recipient(f.alice), likeOf("https://remote.example/users/carol", "https://remote.example/users/carol#likes/1", uri))

	if err := f.store.EnqueueCascadeJob(f.ctx, domain.CascadeDeleteActorInteractions, bobURI); err != nil {
		t.Fatalf("EnqueueCascadeJob failed: %v", err)
	}
	j, err := NewJanitor(f.store, "", 0, nil)
	if err != nil {
		t.Fatalf("NewJanitor failed: %v", err)
	}
	if err := j.RunOnce(f.ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if _, err := f.store.ReadInteractionByCanonicalURI(f.ctx, bobURI+"#likes/1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected bob's like to be removed, got %v", err)
	}
	if _, err := f.store.ReadInteractionByCanonicalURI(f.ctx, "https://remote.example/users/carol#likes/1"); err != nil {
		t.Errorf("Expected carol's like to survive, got %v", err)
	}
	jobs, _ := f.store.ReadPendingCascadeJobs(f.ctx, 10)
	if len(jobs) != 0 {
		t.Errorf("Expected no pending jobs, got %d", len(jobs))
	}
}

func TestJanitorPrunesActivityLog(t *testing.T) {
	f := newFixture(t)
	old := &domain.Activity{
		ActivityURI:  "https://remote.example/activities/old",
		ActivityType: "Like",
		ActorURI:     bobURI,
		RawJSON:      "{}",
		Processed:    true,
		CreatedAt:    time.Now().Add(-48 * time.Hour),
	}
	unprocessed := &domain.Activity{
		ActivityURI:  "https://remote.example/activities/stuck",
		ActivityType: "Like",
		ActorURI:     bobURI,
		RawJSON:      "{}",
		CreatedAt:    time.Now().Add(-48 * time.Hour),
	}
	recent := &domain.Activity{
		ActivityURI:  "https://remote.example/activities/new",
		ActivityType: "Like",
		ActorURI:     bobURI,
		RawJSON:      "{}",
		Processed:    true,
	}
	for _, a := range []*domain.Activity{old, unprocessed, recent} {
		if _, err := f.store.CreateActivity(f.ctx, a); err != nil {
			t.Fatalf("CreateActivity failed: %v", err)
		}
	}

	j, _ := NewJanitor(f.store, "", 24*time.Hour, nil)
	if err := j.RunOnce(f.ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	tests := []struct {
		uri  string
		kept bool
	}{
		{old.ActivityURI, false},
		{unprocessed.ActivityURI, true},
		{recent.ActivityURI, true},
	}
	for _, tt := range tests {
		_, err := f.store.ReadActivityByURI(f.ctx, tt.uri)
		if tt.kept && err != nil {
			t.Errorf("Expected %s to be kept, got %v", tt.uri, err)
		}
		if !tt.kept && !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected %s to be pruned, got %v", tt.uri, err)
		}
	}
}
