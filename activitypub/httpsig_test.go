package activitypub

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/deemkeen/stegofed/vocab"
)

// generateTestKeyPair generates an RSA key pair for testing
func generateTestKeyPair() (*rsa.PrivateKey, *rsa.PublicKey, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, err
	}
	return privateKey, &privateKey.PublicKey, nil
}

// calculateDigest calculates SHA-256 digest for request body
func calculateDigest(body []byte) string {
	hash := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])
}

// privateKeyToPEM converts private key to PEM string
func privateKeyToPEM(key *rsa.PrivateKey) string {
	keyBytes := x509.MarshalPKCS1PrivateKey(key)
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: keyBytes,
	})
	return string(keyPEM)
}

// publicKeyToPEM converts public key to PEM string
func publicKeyToPEM(key *rsa.PublicKey) (string, error) {
	keyBytes, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: keyBytes,
	})
	return string(keyPEM), nil
}

func TestParsePrivateKey(t *testing.T) {
	privateKey, _, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}

	pemString := privateKeyToPEM(privateKey)

	parsed, err := ParsePrivateKey(pemString)
	if err != nil {
		t.Fatalf("ParsePrivateKey failed: %v", err)
	}

	if parsed == nil {
		t.Fatal("ParsePrivateKey returned nil")
	}

	// Verify the key can be used for signing
	if parsed.N.Cmp(privateKey.N) != 0 {
		t.Error("Parsed key doesn't match original")
	}
}

func TestParsePrivateKeyInvalidPEM(t *testing.T) {
	_, err := ParsePrivateKey("not a valid PEM")
	if err == nil {
		t.Error("Expected error for invalid PEM")
	}
}

func TestParsePrivateKeyEmptyString(t *testing.T) {
	_, err := ParsePrivateKey("")
	if err == nil {
		t.Error("Expected error for empty string")
	}
}

func TestParsePublicKey(t *testing.T) {
	_, publicKey, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}

	pemString, err := publicKeyToPEM(publicKey)
	if err != nil {
		t.Fatalf("Failed to convert public key to PEM: %v", err)
	}

	parsed, err := ParsePublicKey(pemString)
	if err != nil {
		t.Fatalf("ParsePublicKey failed: %v", err)
	}

	if parsed == nil {
		t.Fatal("ParsePublicKey returned nil")
	}

	// Verify the key matches
	if parsed.N.Cmp(publicKey.N) != 0 {
		t.Error("Parsed key doesn't match original")
	}
}

func TestParsePublicKeyInvalidPEM(t *testing.T) {
	_, err := ParsePublicKey("not a valid PEM")
	if err == nil {
		t.Error("Expected error for invalid PEM")
	}
}

func TestParsePublicKeyEmptyString(t *testing.T) {
	_, err := ParsePublicKey("")
	if err == nil {
		t.Error("Expected error for empty string")
	}
}

// staticKeys resolves actors from a fixed map of actor URI to public key.
type staticKeys map[string]string

func (k staticKeys) Resolve(ctx context.Context, actorURI string) (*vocab.Actor, error) {
	pemString, ok := k[actorURI]
	if !ok {
		return nil, errors.New("unknown actor")
	}
	actor := vocab.NewActor("Person")
	actor.SetID(actorURI)
	actor.SetInbox(actorURI + "/inbox")
	actor.SetPublicKey(KeyID(actorURI), pemString)
	return actor, nil
}

func signedPost(t *testing.T, key *rsa.PrivateKey, keyId, url string, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/activity+json")
	if err := SignRequest(req, body, key, keyId); err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}

	// the server side sees a fresh body
	out, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to recreate request: %v", err)
	}
	out.Header = req.Header.Clone()
	return out
}

func TestSignRequestSetsHeaders(t *testing.T) {
	privateKey, _, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	body := []byte(`{"type":"Follow"}`)
	req := signedPost(t, privateKey, "https://myserver.com/users/alice#main-key", "https://example.com/inbox", body)

	if req.Header.Get("Date") == "" {
		t.Error("Expected Date header to be set")
	}
	if got := req.Header.Get("Digest"); got != calculateDigest(body) {
		t.Errorf("Expected digest %s, got %s", calculateDigest(body), got)
	}
	sig := req.Header.Get("Signature")
	if !strings.Contains(sig, `keyId="https://myserver.com/users/alice#main-key"`) {
		t.Errorf("Expected keyId in signature header, got %s", sig)
	}
	if !strings.Contains(sig, "(request-target)") || !strings.Contains(sig, "digest") {
		t.Errorf("Expected signed header list to cover request-target and digest, got %s", sig)
	}
}

func TestSignRequestSetsHostHeader(t *testing.T) {
	privateKey, _, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}

	req, _ := http.NewRequest("POST", "https://example.com/users/bob/inbox", bytes.NewReader([]byte(`{}`)))
	if err := SignRequest(req, []byte(`{}`), privateKey, "https://myserver.com/users/alice#main-key"); err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}
	if got := req.Header.Get("Host"); got != "example.com" {
		t.Errorf("Expected Host header example.com, got %q", got)
	}
	if !strings.Contains(req.Header.Get("Signature"), `headers="(request-target) host date digest"`) {
		t.Errorf("Expected host to be covered by the signature, got %s", req.Header.Get("Signature"))
	}

	get, _ := http.NewRequest("GET", "https://example.com/users/bob", nil)
	get.Host = "alias.example"
	if err := SignGetRequest(get, privateKey, "https://myserver.com/users/alice#main-key"); err != nil {
		t.Fatalf("SignGetRequest failed: %v", err)
	}
	if got := get.Header.Get("Host"); got != "alias.example" {
		t.Errorf("Expected Host header from req.Host, got %q", got)
	}
}

func TestVerifyRequestKeyIdExtraction(t *testing.T) {
	privateKey, publicKey, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	publicPEM, err := publicKeyToPEM(publicKey)
	if err != nil {
		t.Fatalf("Failed to convert public key to PEM: %v", err)
	}

	req := signedPost(t, privateKey, "https://myserver.com/users/alice#main-key", "https://example.com/inbox", []byte(`{"type":"Create"}`))
	keys := staticKeys{"https://myserver.com/users/alice": publicPEM}

	actorURI, err := VerifyRequest(context.Background(), req, keys)
	if err != nil {
		t.Fatalf("VerifyRequest failed: %v", err)
	}
	if actorURI != "https://myserver.com/users/alice" {
		t.Errorf("Expected actor URI 'https://myserver.com/users/alice', got '%s'", actorURI)
	}
}

func TestVerifyRequestInvalidSignature(t *testing.T) {
	privateKey1, _, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair 1: %v", err)
	}
	_, publicKey2, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair 2: %v", err)
	}
	publicPEM2, err := publicKeyToPEM(publicKey2)
	if err != nil {
		t.Fatalf("Failed to convert public key to PEM: %v", err)
	}

	req := signedPost(t, privateKey1, "https://myserver.com/users/alice#main-key", "https://example.com/inbox", []byte(`{"type":"Create"}`))
	keys := staticKeys{"https://myserver.com/users/alice": publicPEM2}

	if _, err := VerifyRequest(context.Background(), req, keys); err == nil {
		t.Error("Expected verification to fail with wrong public key")
	}
}

func TestVerifyRequestUnknownActor(t *testing.T) {
	privateKey, _, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	req := signedPost(t, privateKey, "https://myserver.com/users/mallory#main-key", "https://example.com/inbox", []byte(`{}`))

	if _, err := VerifyRequest(context.Background(), req, staticKeys{}); err == nil {
		t.Error("Expected error when the key owner cannot be resolved")
	}
}

func TestVerifyRequestUnsigned(t *testing.T) {
	req, err := http.NewRequest("POST", "https://example.com/inbox", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if _, err := VerifyRequest(context.Background(), req, staticKeys{}); err == nil {
		t.Error("Expected error for a request without signature")
	}
}

func TestVerifyRequestTamperedBodyHeaders(t *testing.T) {
	privateKey, publicKey, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	publicPEM, _ := publicKeyToPEM(publicKey)

	req := signedPost(t, privateKey, "https://myserver.com/users/alice#main-key", "https://example.com/inbox", []byte(`{"type":"Like"}`))
	req.Header.Set("Digest", calculateDigest([]byte(`{"type":"Delete"}`)))

	keys := staticKeys{"https://myserver.com/users/alice": publicPEM}
	if _, err := VerifyRequest(context.Background(), req, keys); err == nil {
		t.Error("Expected verification to fail after the digest changed")
	}
}

func TestSignAndVerifyRoundtrip(t *testing.T) {
	privateKey, publicKey, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	publicPEM, err := publicKeyToPEM(publicKey)
	if err != nil {
		t.Fatalf("Failed to convert public key to PEM: %v", err)
	}
	keys := staticKeys{"https://myserver.com/users/testuser": publicPEM}

	tests := []struct {
		name   string
		method string
		url    string
		body   []byte
	}{
		{
			name:   "POST with body",
			method: "POST",
			url:    "https://example.com/inbox",
			body:   []byte(`{"type":"Create","object":{}}`),
		},
		{
			name:   "GET without body",
			method: "GET",
			url:    "https://example.com/users/alice",
		},
		{
			name:   "POST to different path",
			method: "POST",
			url:    "https://example.com/users/bob/inbox",
			body:   []byte(`{"type":"Follow"}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keyId := "https://myserver.com/users/testuser#main-key"
			var req *http.Request
			if tt.body != nil {
				req = signedPost(t, privateKey, keyId, tt.url, tt.body)
			} else {
				req, err = http.NewRequest(tt.method, tt.url, nil)
				if err != nil {
					t.Fatalf("Failed to create request: %v", err)
				}
				if err := SignGetRequest(req, privateKey, keyId); err != nil {
					t.Fatalf("SignGetRequest failed: %v", err)
				}
			}

			actorURI, err := VerifyRequest(context.Background(), req, keys)
			if err != nil {
				t.Fatalf("VerifyRequest failed: %v", err)
			}
			if actorURI != "https://myserver.com/users/testuser" {
				t.Errorf("Expected actor URI 'https://myserver.com/users/testuser', got '%s'", actorURI)
			}
		})
	}
}

func TestParsePublicKeyPKCS1(t *testing.T) {
	_, publicKey, err := generateTestKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	pemString := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(publicKey),
	}))

	parsed, err := ParsePublicKey(pemString)
	if err != nil {
		t.Fatalf("ParsePublicKey failed: %v", err)
	}
	if parsed.N.Cmp(publicKey.N) != 0 {
		t.Error("Parsed key doesn't match original")
	}
}

func TestVerifyDigest(t *testing.T) {
	body := []byte(`{"type":"Follow"}`)

	tests := []struct {
		name    string
		header  string
		wantErr bool
	}{
		{"matching", calculateDigest(body), false},
		{"lowercase algorithm", strings.Replace(calculateDigest(body), "SHA-256", "sha-256", 1), false},
		{"among others", "SHA-512=abc, " + calculateDigest(body), false},
		{"mismatch", calculateDigest([]byte(`{"type":"Like"}`)), true},
		{"missing", "", true},
		{"unsupported", "MD5=abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("POST", "https://local.example/inbox", bytes.NewReader(body))
			if tt.header != "" {
				req.Header.Set("Digest", tt.header)
			}
			err := VerifyDigest(req, body)
			if tt.wantErr && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}
