package activitypub

import (
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/stegofed/vocab"
	"golang.org/x/sync/singleflight"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxFetchBytes       = 1 << 20

	acceptActivityJSON = `application/activity+json, application/ld+json; profile="https://www.w3.org/ns/activitystreams"`
)

// FetcherOptions configures an HTTPFetcher. SigningKey and KeyID are optional;
// when set, every GET is signed for servers requiring authorized fetch.
type FetcherOptions struct {
	Timeout    time.Duration
	UserAgent  string
	SigningKey *rsa.PrivateKey
	KeyID      string
	Client     *http.Client
	Logger     *log.Logger
}

// HTTPFetcher retrieves remote objects over HTTP. Concurrent fetches of the
// same URI share one request.
type HTTPFetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	key       *rsa.PrivateKey
	keyID     string
	group     singleflight.Group
	log       *log.Logger
}

func NewHTTPFetcher(opts FetcherOptions) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    opts.Client,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		key:       opts.SigningKey,
		keyID:     opts.KeyID,
		log:       opts.Logger,
	}
	if f.timeout <= 0 {
		f.timeout = defaultFetchTimeout
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: f.timeout}
	}
	if f.userAgent == "" {
		f.userAgent = "stegofed/1.0 ActivityPub"
	}
	if f.log == nil {
		f.log = log.Default()
	}
	f.log = f.log.WithPrefix("fetch")
	return f
}

// Fetch returns the object at uri. Callers sharing an in-flight request get
// their own copy.
func (f *HTTPFetcher) Fetch(ctx context.Context, uri string) (vocab.Object, error) {
	v, err, shared := f.group.Do(uri, func() (any, error) {
		return f.fetch(ctx, uri)
	})
	if err != nil {
		return nil, err
	}
	obj := v.(vocab.Object)
	if shared {
		return vocab.Clone(obj), nil
	}
	return obj, nil
}

func (f *HTTPFetcher) fetch(ctx context.Context, uri string) (vocab.Object, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, &FetchError{URI: uri, Err: fmt.Errorf("%w: %w", ErrTransient, err)}
	}
	req.Header.Set("Accept", acceptActivityJSON)
	req.Header.Set("User-Agent", f.userAgent)

	if f.key != nil && f.keyID != "" {
		if err := SignGetRequest(req, f.key, f.keyID); err != nil {
			return nil, &FetchError{URI: uri, Err: fmt.Errorf("%w: %w", ErrTransient, err)}
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		remoteFetches.WithLabelValues("error").Inc()
		f.log.Debug("Request failed", "uri", uri, "err", err)
		return nil, &FetchError{URI: uri, Err: fmt.Errorf("%w: %w", ErrTransient, err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		remoteFetches.WithLabelValues("not_found").Inc()
		return nil, &FetchError{URI: uri, Status: resp.StatusCode, Err: ErrNotFound}
	case resp.StatusCode == http.StatusGone:
		remoteFetches.WithLabelValues("gone").Inc()
		return nil, &FetchError{URI: uri, Status: resp.StatusCode, Err: ErrGone}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		remoteFetches.WithLabelValues("error").Inc()
		return nil, &FetchError{URI: uri, Status: resp.StatusCode, Err: ErrTransient}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		remoteFetches.WithLabelValues("error").Inc()
		return nil, &FetchError{URI: uri, Status: resp.StatusCode, Err: fmt.Errorf("%w: %w", ErrTransient, err)}
	}
	if len(body) > maxFetchBytes {
		remoteFetches.WithLabelValues("error").Inc()
		return nil, &FetchError{URI: uri, Status: resp.StatusCode, Err: fmt.Errorf("%w: response exceeds %d bytes", ErrTransient, maxFetchBytes)}
	}

	obj, err := vocab.DecodeJSON(body)
	if err != nil {
		remoteFetches.WithLabelValues("error").Inc()
		return nil, &FetchError{URI: uri, Status: resp.StatusCode, Err: fmt.Errorf("%w: %w", ErrTransient, err)}
	}
	remoteFetches.WithLabelValues("ok").Inc()
	return obj, nil
}
