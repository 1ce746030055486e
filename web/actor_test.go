package web

import (
	"net/http"
	"strings"
	"testing"

	"github.com/deemkeen/stegofed/activitypub"
	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/vocab"
)

func TestGetActor(t *testing.T) {
	f := newFixture(t)

	w := f.get("/users/alice")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/activity+json") {
		t.Errorf("Expected activity content type, got %s", ct)
	}

	obj, err := vocab.DecodeJSON(w.Body.Bytes())
	if err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	actor, ok := obj.(*vocab.Actor)
	if !ok {
		t.Fatalf("Expected an actor, got %T", obj)
	}
	if actor.ID() != aliceURI {
		t.Errorf("Expected id %s, got %s", aliceURI, actor.ID())
	}
	if actor.Type() != "Person" {
		t.Errorf("Expected Person, got %s", actor.Type())
	}
	if actor.Inbox() != aliceURI+"/inbox" {
		t.Errorf("Expected inbox %s/inbox, got %s", aliceURI, actor.Inbox())
	}
	if actor.SharedInbox() != "https://"+testDomain+"/inbox" {
		t.Errorf("Expected shared inbox, got %s", actor.SharedInbox())
	}
	if actor.PublicKeyPem() != f.alice.WebPublicKey {
		t.Error("Expected the account's public key in the document")
	}
	if actor.Name() != "alice" {
		t.Errorf("Expected name to fall back to username, got %s", actor.Name())
	}

	doc := decodeBody(t, w)
	pk, _ := doc["publicKey"].(map[string]any)
	if pk["id"] != activitypub.KeyID(aliceURI) {
		t.Errorf("Expected key id %s, got %v", activitypub.KeyID(aliceURI), pk["id"])
	}
	if _, ok := doc["@context"]; !ok {
		t.Error("Expected @context in actor document")
	}
}

func TestGetActorUnknown(t *testing.T) {
	f := newFixture(t)

	if w := f.get("/users/nobody"); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestGetApplicationActor(t *testing.T) {
	f := newFixture(t)

	w := f.get("/actor")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	obj, err := vocab.DecodeJSON(w.Body.Bytes())
	if err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	actor := obj.(*vocab.Actor)
	if actor.Type() != "Service" {
		t.Errorf("Expected Service, got %s", actor.Type())
	}
	if actor.ID() != "https://"+testDomain+"/actor" {
		t.Errorf("Expected application actor id, got %s", actor.ID())
	}
	if actor.PublicKeyPem() == "" {
		t.Error("Expected the application actor to publish a key")
	}

	w = f.get("/users/instance.actor")
	if w.Code != http.StatusMovedPermanently {
		t.Errorf("Expected status 301 for the application user, got %d", w.Code)
	}
}

func TestGetNote(t *testing.T) {
	f := newFixture(t)

	public := &domain.Note{AccountId: f.alice.Id, Message: "hello", Visibility: domain.VisibilityPublic}
	local := &domain.Note{AccountId: f.alice.Id, Message: "just us", Visibility: domain.VisibilityLocal}
	for _, n := range []*domain.Note{public, local} {
		if err := f.store.CreateNote(f.ctx, n); err != nil {
			t.Fatalf("CreateNote failed: %v", err)
		}
	}

	w := f.get("/notes/" + public.Id.String())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	obj, err := vocab.DecodeJSON(w.Body.Bytes())
	if err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	note, ok := obj.(*vocab.Content)
	if !ok {
		t.Fatalf("Expected content, got %T", obj)
	}
	if note.Content() != "hello" {
		t.Errorf("Expected content hello, got %s", note.Content())
	}
	if note.AttributedTo() != aliceURI {
		t.Errorf("Expected attributedTo %s, got %s", aliceURI, note.AttributedTo())
	}

	tests := []struct {
		name string
		path string
	}{
		{"local only", "/notes/" + local.Id.String()},
		{"invalid id", "/notes/not-a-uuid"},
		{"unknown id", "/notes/00000000-0000-0000-0000-000000000000"},
	}
	for _, tt := range tests {
		if w := f.get(tt.path); w.Code != http.StatusNotFound {
			t.Errorf("%s: expected status 404, got %d", tt.name, w.Code)
		}
	}
}
