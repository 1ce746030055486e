package activitypub

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/stegofed/db"
	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/vocab"
)

const testDomain = "local.example"

// fakeFetcher serves objects from memory. Unknown URIs are 404.
type fakeFetcher struct {
	mu      sync.Mutex
	objects map[string]vocab.Object
	errs    map[string]error
	calls   map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{objects: map[string]vocab.Object{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, uri string) (vocab.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[uri]++
	if err, ok := f.errs[uri]; ok {
		return nil, err
	}
	if obj, ok := f.objects[uri]; ok {
		return vocab.Clone(obj), nil
	}
	return nil, &FetchError{URI: uri, Status: 404, Err: ErrNotFound}
}

func (f *fakeFetcher) serve(obj vocab.Object) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[obj.ID()] = obj
	delete(f.errs, obj.ID())
}

func (f *fakeFetcher) fail(uri string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[uri] = err
}

type sentActivity struct {
	Activity *vocab.Activity
	Inbox    string
	Sender   *domain.Account
}

// recordingDeliverer keeps every delivery instead of sending it.
type recordingDeliverer struct {
	mu   sync.Mutex
	sent []sentActivity
}

func (d *recordingDeliverer) Deliver(ctx context.Context, out *Outgoing, inbox string, sender *domain.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentActivity{Activity: out.Activity, Inbox: inbox, Sender: sender})
	return nil
}

func (d *recordingDeliverer) ofType(typ string) []sentActivity {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []sentActivity
	for _, s := range d.sent {
		if s.Activity.Type() == typ {
			out = append(out, s)
		}
	}
	return out
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *db.DB
	fetcher *fakeFetcher
	sent    *recordingDeliverer
	inbox   *Inbox
	alice   *domain.Account
}

func newFixture(t *testing.T, opts ...func(*Config, *Deps)) *fixture {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   store,
		fetcher: newFakeFetcher(),
		sent:    &recordingDeliverer{},
	}
	f.alice = f.account("alice", false)

	conf := Config{
		Domain:                    testDomain,
		ApplicationUser:           "instance.actor",
		AllowIncomingInteractions: true,
		EnableReposts:             true,
	}
	deps := Deps{Store: store, Fetcher: f.fetcher, Deliverer: f.sent, Logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(&conf, &deps)
	}
	f.inbox = NewInbox(conf, deps)
	return f
}

func (f *fixture) account(username string, manual bool) *domain.Account {
	f.t.Helper()
	acc := &domain.Account{Username: username, ManuallyApprovesFollowers: manual}
	if err := f.store.CreateAccount(f.ctx, acc); err != nil {
		f.t.Fatalf("Failed to create account: %v", err)
	}
	return acc
}

func (f *fixture) recipient(acc *domain.Account) *Recipient {
	f.t.Helper()
	r, err := f.inbox.LocalRecipient(f.ctx, "https://"+testDomain+"/users/"+acc.Username)
	if err != nil {
		f.t.Fatalf("LocalRecipient failed: %v", err)
	}
	return r
}

func (f *fixture) note(acc *domain.Account, policy domain.QuotePolicy) (*domain.Note, string) {
	f.t.Helper()
	n := &domain.Note{AccountId: acc.Id, Message: "hello fediverse", QuotePolicy: policy}
	if err := f.store.CreateNote(f.ctx, n); err != nil {
		f.t.Fatalf("Failed to create note: %v", err)
	}
	return n, URLs{Domain: testDomain}.Note(n.Id)
}

// remote serves a remote actor and returns it.
func (f *fixture) remote(uri string) *vocab.Actor {
	a := vocab.NewActor("Person")
	a.SetID(uri)
	a.SetInbox(uri + "/inbox")
	a.SetPreferredUsername(path.Base(uri))
	f.fetcher.serve(a)
	return a
}

func (f *fixture) handle(r *Recipient, raw map[string]any) Outcome {
	f.t.Helper()
	out, err := f.inbox.Handle(f.ctx, decodeActivity(f.t, raw), r)
	if err != nil {
		f.t.Fatalf("Handle failed: %v", err)
	}
	return out
}

func (f *fixture) relationships(acc *domain.Account, dir domain.Direction, state domain.RelationshipState) []domain.Relationship {
	f.t.Helper()
	rels, err := f.store.ReadRelationshipsByAccount(f.ctx, acc.Id, dir, state)
	if err != nil {
		f.t.Fatalf("ReadRelationshipsByAccount failed: %v", err)
	}
	return rels
}

func decodeActivity(t *testing.T, raw map[string]any) *vocab.Activity {
	t.Helper()
	obj, err := vocab.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	act, ok := obj.(*vocab.Activity)
	if !ok {
		t.Fatalf("Expected an activity, got %T", obj)
	}
	return act
}
