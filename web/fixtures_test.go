package web

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/stegofed/activitypub"
	"github.com/deemkeen/stegofed/db"
	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/util"
	"github.com/deemkeen/stegofed/vocab"
	"github.com/gin-gonic/gin"
)

const (
	testDomain = "local.example"
	bobURI     = "https://remote.example/users/bob"
	malloryURI = "https://evil.example/users/mallory"
)

// remoteKey is a remote actor and the private key it signs with.
type remoteKey struct {
	actor *vocab.Actor
	key   *rsa.PrivateKey
}

// remotes plays the remote servers: it serves actor documents to both the
// fetcher and the signature check.
type remotes struct {
	mu     sync.Mutex
	actors map[string]remoteKey
}

func (r *remotes) Fetch(ctx context.Context, uri string) (vocab.Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rk, ok := r.actors[uri]
	if !ok {
		return nil, &activitypub.FetchError{URI: uri, Status: http.StatusNotFound, Err: activitypub.ErrNotFound}
	}
	return vocab.Clone(rk.actor), nil
}

func (r *remotes) Resolve(ctx context.Context, uri string) (*vocab.Actor, error) {
	obj, err := r.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	actor, ok := obj.(*vocab.Actor)
	if !ok {
		return nil, errors.New("not an actor")
	}
	return actor, nil
}

type recordingDeliverer struct {
	mu   sync.Mutex
	sent []*vocab.Activity
}

func (d *recordingDeliverer) Deliver(ctx context.Context, out *activitypub.Outgoing, inbox string, sender *domain.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, out.Activity)
	return nil
}

func (d *recordingDeliverer) types() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, a := range d.sent {
		out = append(out, a.Type())
	}
	return out
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	conf    *util.AppConfig
	store   *db.DB
	remotes *remotes
	sent    *recordingDeliverer
	router  *gin.Engine
	alice   *domain.Account
}

func testConfig() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.SslDomain = testDomain
	conf.Conf.WithAp = true
	conf.Conf.ApplicationUser = "instance.actor"
	conf.Conf.AllowIncomingInteractions = true
	conf.Conf.EnableReposts = true
	return conf
}

func newFixture(t *testing.T, opts ...func(*util.AppConfig)) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	conf := testConfig()
	for _, opt := range opts {
		opt(conf)
	}

	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		conf:    conf,
		store:   store,
		remotes: &remotes{actors: map[string]remoteKey{}},
		sent:    &recordingDeliverer{},
	}
	f.alice = f.account("alice")
	f.account(conf.Conf.ApplicationUser)
	f.remote(bobURI)
	f.remote(malloryURI)

	engineConf := activitypub.Config{
		Domain:                    conf.Conf.SslDomain,
		ApplicationUser:           conf.Conf.ApplicationUser,
		AllowIncomingInteractions: conf.Conf.AllowIncomingInteractions,
		EnableReposts:             conf.Conf.EnableReposts,
	}
	logger := log.New(io.Discard)
	deps := activitypub.Deps{Store: store, Fetcher: f.remotes, Deliverer: f.sent, Logger: logger}

	f.router = NewRouter(conf, Deps{
		Store:  store,
		Inbox:  activitypub.NewInbox(engineConf, deps),
		Outbox: activitypub.NewOutbox(engineConf, deps),
		Keys:   f.remotes,
		Logger: logger,
	})
	return f
}

func generateKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("Failed to marshal public key: %v", err)
	}
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}))
}

func (f *fixture) account(username string) *domain.Account {
	f.t.Helper()
	key, publicPEM := generateKey(f.t)
	acc := &domain.Account{
		Username:     username,
		WebPublicKey: publicPEM,
		WebPrivateKey: string(pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		})),
	}
	if err := f.store.CreateAccount(f.ctx, acc); err != nil {
		f.t.Fatalf("Failed to create account: %v", err)
	}
	return acc
}

func (f *fixture) remote(uri string) {
	f.t.Helper()
	key, publicPEM := generateKey(f.t)
	actor := vocab.NewActor("Person")
	actor.SetID(uri)
	actor.SetInbox(uri + "/inbox")
	actor.SetPublicKey(activitypub.KeyID(uri), publicPEM)

	f.remotes.mu.Lock()
	defer f.remotes.mu.Unlock()
	f.remotes.actors[uri] = remoteKey{actor: actor, key: key}
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	f.t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", path, nil)
	req.Host = testDomain
	req.Header.Set("Accept", "application/activity+json")
	f.router.ServeHTTP(w, req)
	return w
}

// post delivers doc to path signed with the key of signer. An empty signer
// sends the request unsigned.
func (f *fixture) post(path, signer string, doc any) *httptest.ResponseRecorder {
	f.t.Helper()
	body, ok := doc.([]byte)
	if !ok {
		var err error
		if body, err = json.Marshal(doc); err != nil {
			f.t.Fatalf("Failed to encode body: %v", err)
		}
	}
	return f.postSigned(path, signer, body, body)
}

// postSigned signs signedBody but sends body.
func (f *fixture) postSigned(path, signer string, signedBody, body []byte) *httptest.ResponseRecorder {
	f.t.Helper()
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Host = testDomain
	req.Header.Set("Content-Type", "application/activity+json")
	if signer != "" {
		f.remotes.mu.Lock()
		rk := f.remotes.actors[signer]
		f.remotes.mu.Unlock()
		if err := activitypub.SignRequest(req, signedBody, rk.key, activitypub.KeyID(signer)); err != nil {
			f.t.Fatalf("SignRequest failed: %v", err)
		}
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Response is not JSON: %v\n%s", err, w.Body.String())
	}
	return doc
}
