package activitypub

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/vocab"
)

// keyedAccount creates a local account holding a fresh key pair and returns
// its public key.
func keyedAccount(t *testing.T, f *fixture, username string) (*domain.Account, string) {
	t.Helper()
	priv, pub, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	publicPEM, err := publicKeyToPEM(pub)
	if err != nil {
		t.Fatalf("Failed to encode public key: %v", err)
	}
	acc := &domain.Account{Username: username, WebPublicKey: publicPEM, WebPrivateKey: privateKeyToPEM(priv)}
	if err := f.store.CreateAccount(f.ctx, acc); err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	return acc, publicPEM
}

// remoteInbox is an inbox that verifies signatures and answers with status.
type remoteInbox struct {
	mu       sync.Mutex
	keys     staticKeys
	status   int
	received []map[string]any
	signers  []string
}

func (ri *remoteInbox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	signer, err := VerifyRequest(r.Context(), r, ri.keys)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	body, _ := io.ReadAll(r.Body)
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	ri.mu.Lock()
	ri.received = append(ri.received, doc)
	ri.signers = append(ri.signers, signer)
	status := ri.status
	ri.mu.Unlock()
	w.WriteHeader(status)
}

func newDeliveryWorker(f *fixture) *DeliveryWorker {
	conf := Config{Domain: testDomain, ApplicationUser: "instance.actor"}
	return NewDeliveryWorker(conf, f.store, f.store, log.New(io.Discard))
}

func queuedFollow(t *testing.T, f *fixture, inbox string, sender *domain.Account) {
	t.Helper()
	actor := "https://local.example/actor"
	if sender != nil {
		actor = URLs{Domain: testDomain}.Actor(sender.Username)
	}
	follow := vocab.NewActivity("Follow")
	follow.SetID("https://local.example/activities/1")
	follow.SetActor(actor)
	follow.SetObject(bobURI)

	q := NewQueueDeliverer(f.store, log.New(io.Discard))
	if err := q.Deliver(f.ctx, &Outgoing{Activity: follow, Visibility: domain.VisibilityPrivate}, inbox, sender); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
}

func TestDeliveryIsSignedAndDequeued(t *testing.T) {
	f := newFixture(t)
	dora, publicPEM := keyedAccount(t, f, "dora")
	inbox := &remoteInbox{keys: staticKeys{"https://local.example/users/dora": publicPEM}, status: http.StatusAccepted}
	srv := httptest.NewServer(inbox)
	defer srv.Close()

	queuedFollow(t, f, srv.URL+"/inbox", dora)
	delivered, err := newDeliveryWorker(f).ProcessQueue(f.ctx)
	if err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("Expected 1 delivery, got %d", delivered)
	}
	if len(inbox.received) != 1 || inbox.received[0]["type"] != "Follow" {
		t.Errorf("Expected the Follow to arrive, got %v", inbox.received)
	}
	if inbox.signers[0] != "https://local.example/users/dora" {
		t.Errorf("Expected dora's signature, got %s", inbox.signers[0])
	}

	left, _ := f.store.ReadPendingDeliveries(f.ctx, time.Now().Add(time.Hour), 10)
	if len(left) != 0 {
		t.Errorf("Expected queue to be empty, got %d items", len(left))
	}
}

func TestDeliveryAsApplicationActor(t *testing.T) {
	f := newFixture(t)
	_, publicPEM := keyedAccount(t, f, "instance.actor")
	inbox := &remoteInbox{keys: staticKeys{"https://local.example/actor": publicPEM}, status: http.StatusOK}
	srv := httptest.NewServer(inbox)
	defer srv.Close()

	queuedFollow(t, f, srv.URL+"/inbox", nil)
	if delivered, _ := newDeliveryWorker(f).ProcessQueue(f.ctx); delivered != 1 {
		t.Fatalf("Expected 1 delivery, got %d", delivered)
	}
	if inbox.signers[0] != "https://local.example/actor" {
		t.Errorf("Expected application actor signature, got %s", inbox.signers[0])
	}
}

func TestDeliveryFailureIsRescheduled(t *testing.T) {
	f := newFixture(t)
	dora, publicPEM := keyedAccount(t, f, "dora")
	inbox := &remoteInbox{keys: staticKeys{"https://local.example/users/dora": publicPEM}, status: http.StatusInternalServerError}
	srv := httptest.NewServer(inbox)
	defer srv.Close()

	queuedFollow(t, f, srv.URL+"/inbox", dora)
	delivered, err := newDeliveryWorker(f).ProcessQueue(f.ctx)
	if err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}
	if delivered != 0 {
		t.Errorf("Expected no successful delivery, got %d", delivered)
	}

	due, _ := f.store.ReadPendingDeliveries(f.ctx, time.Now(), 10)
	if len(due) != 0 {
		t.Errorf("Expected the retry to be in the future, got %d due items", len(due))
	}
	later, _ := f.store.ReadPendingDeliveries(f.ctx, time.Now().Add(2*time.Minute), 10)
	if len(later) != 1 || later[0].Attempts != 1 {
		t.Fatalf("Expected one item with 1 attempt, got %+v", later)
	}
}

func TestDeliveryGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	dora, publicPEM := keyedAccount(t, f, "dora")
	inbox := &remoteInbox{keys: staticKeys{"https://local.example/users/dora": publicPEM}, status: http.StatusBadGateway}
	srv := httptest.NewServer(inbox)
	defer srv.Close()

	item := &domain.DeliveryQueueItem{
		InboxURI:     srv.URL + "/inbox",
		ActivityJSON: `{"type":"Follow","actor":"https://local.example/users/dora","object":"https://remote.example/users/bob"}`,
		SenderId:     dora.Id,
		Attempts:     maxDeliveryAttempts - 1,
	}
	if err := f.store.EnqueueDelivery(f.ctx, item); err != nil {
		t.Fatalf("EnqueueDelivery failed: %v", err)
	}
	newDeliveryWorker(f).ProcessQueue(f.ctx)

	left, _ := f.store.ReadPendingDeliveries(f.ctx, time.Now().Add(48*time.Hour), 10)
	if len(left) != 0 {
		t.Errorf("Expected the item to be dropped, got %+v", left)
	}
}

func TestLocalOnlyIsNotQueued(t *testing.T) {
	f := newFixture(t)
	q := NewQueueDeliverer(f.store, log.New(io.Discard))
	create := vocab.NewActivity("Create")
	create.SetID("https://local.example/activities/2")

	if err := q.Deliver(f.ctx, &Outgoing{Activity: create, Visibility: domain.VisibilityLocal}, bobURI+"/inbox", f.alice); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	items, _ := f.store.ReadPendingDeliveries(f.ctx, time.Now().Add(time.Hour), 10)
	if len(items) != 0 {
		t.Errorf("Expected nothing queued, got %d", len(items))
	}
}
