package activitypub

import (
	"errors"
	"testing"

	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/vocab"
	"github.com/google/go-cmp/cmp"
)

func TestComposeCorrelatedEchoesTrigger(t *testing.T) {
	trigger := decodeActivity(t, map[string]any{
		"id":         "https://remote.example/quote-requests/1",
		"type":       "QuoteRequest",
		"actor":      bobURI,
		"object":     "https://local.example/notes/1",
		"instrument": map[string]any{"id": "https://remote.example/notes/2", "type": "Note", "content": "dropped"},
		"summary":    "dropped too",
	})

	out, err := ComposeCorrelated(trigger, "Accept", aliceURI, map[string]any{"result": "https://local.example/quote-grants/1"})
	if err != nil {
		t.Fatalf("ComposeCorrelated failed: %v", err)
	}
	act := out.Activity
	if act.Type() != "Accept" || act.Actor() != aliceURI {
		t.Errorf("Expected Accept by alice, got %s by %s", act.Type(), act.Actor())
	}
	if act.ID() == "" {
		t.Error("Expected an id")
	}
	if diff := cmp.Diff([]string{bobURI}, act.To()); diff != "" {
		t.Errorf("to mismatch (-want +got):\n%s", diff)
	}
	if act.Result() != "https://local.example/quote-grants/1" {
		t.Errorf("Expected result to be set, got %v", act.Result())
	}

	want := map[string]any{
		"id":         "https://remote.example/quote-requests/1",
		"type":       "QuoteRequest",
		"actor":      bobURI,
		"object":     "https://local.example/notes/1",
		"instrument": "https://remote.example/notes/2",
	}
	if diff := cmp.Diff(want, vocab.Encode(act.ObjectValue(), false)); diff != "" {
		t.Errorf("Echo mismatch (-want +got):\n%s", diff)
	}
}

func TestComposeCorrelatedIdsAreUnique(t *testing.T) {
	trigger := decodeActivity(t, followFrom(bobURI, "https://remote.example/follows/1"))
	a, _ := ComposeCorrelated(trigger, "Accept", aliceURI, nil)
	b, _ := ComposeCorrelated(trigger, "Accept", aliceURI, nil)
	if a.Activity.ID() == b.Activity.ID() {
		t.Errorf("Expected distinct ids, got %s twice", a.Activity.ID())
	}
}

func TestComputeAudience(t *testing.T) {
	followers := aliceURI + "/followers"
	mention := "https://remote.example/users/carol"
	parent := bobURI

	tests := []struct {
		visibility domain.Visibility
		want       Audience
	}{
		{domain.VisibilityPublic, Audience{
			To:        []string{vocab.PublicCollection},
			Cc:        []string{followers, mention, parent},
			Federated: true,
		}},
		{domain.VisibilityQuietPublic, Audience{
			To:        []string{followers, mention, parent},
			Cc:        []string{vocab.PublicCollection},
			Federated: true,
		}},
		{domain.VisibilityPrivate, Audience{
			To:        []string{mention, parent},
			Federated: true,
		}},
		{domain.VisibilityLocal, Audience{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.visibility), func(t *testing.T) {
			got := ComputeAudience(tt.visibility, []string{mention, parent}, followers, parent)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Audience mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPublishFansOutToFollowers(t *testing.T) {
	f := newFixture(t)
	f.remote(bobURI)
	f.handle(f.recipient(f.alice), followFrom(bobURI, "https://remote.example/follows/1"))
	n, uri := f.note(f.alice, domain.QuoteFollowers)

	out, err := f.inbox.outbox.Publish(f.ctx, f.alice, n, nil, "")
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if out.Activity.Type() != "Create" || out.Activity.Actor() != aliceURI {
		t.Errorf("Expected Create by alice, got %s by %s", out.Activity.Type(), out.Activity.Actor())
	}
	note, ok := out.Activity.ObjectValue().(*vocab.Content)
	if !ok || note.ID() != uri {
		t.Fatalf("Expected embedded note %s, got %#v", uri, out.Activity.Object())
	}
	policy, _ := note.InteractionPolicy().(map[string]any)
	canQuote, _ := policy["canQuote"].(map[string]any)
	if diff := cmp.Diff([]any{aliceURI + "/followers"}, canQuote["automaticApproval"]); diff != "" {
		t.Errorf("Quote policy mismatch (-want +got):\n%s", diff)
	}

	creates := f.sent.ofType("Create")
	if len(creates) != 1 || creates[0].Inbox != bobURI+"/inbox" {
		t.Errorf("Expected one Create to bob, got %+v", creates)
	}
}

func TestPublishLocalOnlyDoesNotFederate(t *testing.T) {
	f := newFixture(t)
	n := &domain.Note{AccountId: f.alice.Id, Message: "just us", Visibility: domain.VisibilityLocal}
	if err := f.store.CreateNote(f.ctx, n); err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}

	out, err := f.inbox.outbox.Publish(f.ctx, f.alice, n, nil, "")
	if err != nil || out != nil {
		t.Errorf("Expected nothing to publish, got %v, %v", out, err)
	}
}

func TestFollowAndUnfollow(t *testing.T) {
	f := newFixture(t)
	f.remote(bobURI)

	rel, err := f.inbox.outbox.Follow(f.ctx, f.alice, bobURI)
	if err != nil {
		t.Fatalf("Follow failed: %v", err)
	}
	if rel.State != domain.StatePending {
		t.Errorf("Expected pending, got %s", rel.State)
	}
	follows := f.sent.ofType("Follow")
	if len(follows) != 1 || follows[0].Activity.ID() != rel.FollowURI {
		t.Fatalf("Expected one Follow with id %s, got %+v", rel.FollowURI, follows)
	}

	removed, err := f.inbox.outbox.Unfollow(f.ctx, f.alice, bobURI)
	if err != nil || !removed {
		t.Fatalf("Unfollow: expected removal, got %v, %v", removed, err)
	}
	undo := f.sent.ofType("Undo")
	if len(undo) != 1 {
		t.Fatalf("Expected one Undo, got %d", len(undo))
	}
	if undo[0].Activity.ObjectURI() != rel.FollowURI {
		t.Errorf("Expected Undo to echo %s, got %s", rel.FollowURI, undo[0].Activity.ObjectURI())
	}

	if removed, _ := f.inbox.outbox.Unfollow(f.ctx, f.alice, bobURI); removed {
		t.Error("Expected second Unfollow to report false")
	}
}

func TestApproveFollower(t *testing.T) {
	f := newFixture(t)
	carol := f.account("carol", true)
	f.remote(bobURI)
	raw := followFrom(bobURI, "https://remote.example/follows/2")
	raw["object"] = "https://local.example/users/carol"
	f.handle(f.recipient(carol), raw)

	if err := f.inbox.outbox.ApproveFollower(f.ctx, carol, bobURI); err != nil {
		t.Fatalf("ApproveFollower failed: %v", err)
	}
	if n := len(f.relationships(carol, domain.Inbound, domain.StateAccepted)); n != 1 {
		t.Errorf("Expected 1 accepted follower, got %d", n)
	}
	accepts := f.sent.ofType("Accept")
	if len(accepts) != 1 || accepts[0].Activity.ObjectURI() != "https://remote.example/follows/2" {
		t.Errorf("Expected Accept echoing the follow, got %+v", accepts)
	}
}

func TestDeleteNoteLeavesTombstone(t *testing.T) {
	f := newFixture(t)
	f.remote(bobURI)
	f.handle(f.recipient(f.alice), followFrom(bobURI, "https://remote.example/follows/1"))
	n, uri := f.note(f.alice, domain.QuoteAnyone)

	if err := f.inbox.outbox.DeleteNote(f.ctx, f.alice, n.Id); err != nil {
		t.Fatalf("DeleteNote failed: %v", err)
	}
	if _, err := f.store.ReadNoteById(f.ctx, n.Id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected note to be gone, got %v", err)
	}
	if ok, _ := f.store.HasTombstone(f.ctx, uri); !ok {
		t.Error("Expected a tombstone for the note")
	}

	deletes := f.sent.ofType("Delete")
	if len(deletes) != 1 {
		t.Fatalf("Expected one Delete, got %d", len(deletes))
	}
	tomb, ok := deletes[0].Activity.ObjectValue().(*vocab.Content)
	if !ok || !tomb.IsTombstone() || tomb.ID() != uri {
		t.Errorf("Expected tombstone object for %s, got %#v", uri, deletes[0].Activity.Object())
	}
}

func TestDeleteNoteOfAnotherAccount(t *testing.T) {
	f := newFixture(t)
	carol := f.account("carol", false)
	n, _ := f.note(f.alice, domain.QuoteAnyone)

	if err := f.inbox.outbox.DeleteNote(f.ctx, carol, n.Id); err == nil {
		t.Error("Expected error deleting someone else's note")
	}
}

func TestMoveRequiresAlias(t *testing.T) {
	f := newFixture(t)
	f.remote(newBobURI)

	if err := f.inbox.outbox.Move(f.ctx, f.alice, newBobURI); !errors.Is(err, ErrMoveNotAcknowledged) {
		t.Errorf("Expected ErrMoveNotAcknowledged, got %v", err)
	}

	target := f.remote(newBobURI)
	target.Set("also_known_as", []any{aliceURI})
	f.fetcher.serve(target)
	if err := f.inbox.outbox.Move(f.ctx, f.alice, newBobURI); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	acc, _ := f.store.ReadAccById(f.ctx, f.alice.Id)
	if acc.MovedTo != newBobURI {
		t.Errorf("Expected account to record its move, got %q", acc.MovedTo)
	}
}
