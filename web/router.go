package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/stegofed/activitypub"
	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const (
	activityContentType = "application/activity+json; charset=utf-8"
	maxActivityBytes    = 1 * 1024 * 1024
	shutdownTimeout     = 10 * time.Second
)

// Store is the read side the HTTP layer serves documents from.
type Store interface {
	ReadAccById(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	ReadAccByUsername(ctx context.Context, username string) (*domain.Account, error)
	ReadNoteById(ctx context.Context, id uuid.UUID) (*domain.Note, error)
	ReadNotesByUserId(ctx context.Context, userId uuid.UUID) ([]domain.Note, error)
	ReadRelationshipsByAccount(ctx context.Context, accountId uuid.UUID, dir domain.Direction, state domain.RelationshipState) ([]domain.Relationship, error)
}

// Deps are the engine parts the routes hand requests to.
type Deps struct {
	Store  Store
	Inbox  *activitypub.Inbox
	Outbox *activitypub.Outbox
	Keys   activitypub.KeyResolver
	Logger *log.Logger
}

type server struct {
	conf   *util.AppConfig
	urls   activitypub.URLs
	store  Store
	inbox  *activitypub.Inbox
	outbox *activitypub.Outbox
	keys   activitypub.KeyResolver
	log    *log.Logger
}

// NewRouter wires the federation endpoints. The ActivityPub routes are only
// mounted when withAp is set.
func NewRouter(conf *util.AppConfig, deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &server{
		conf:   conf,
		urls:   activitypub.URLs{Domain: conf.Conf.SslDomain},
		store:  deps.Store,
		inbox:  deps.Inbox,
		outbox: deps.Outbox,
		keys:   deps.Keys,
		log:    logger.WithPrefix("web"),
	}

	g := gin.New()
	g.Use(gin.Recovery(), RequestLogger(s.log))
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	g.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if !conf.Conf.WithAp {
		return g
	}

	// Stricter rate limit for deliveries: 5 req/sec per IP
	apLimiter := NewRateLimiter(rate.Limit(5), 10)
	maxBodySize := MaxBytesMiddleware(maxActivityBytes)

	g.POST("/inbox", RateLimitMiddleware(apLimiter), maxBodySize, s.handleSharedInbox)
	g.POST("/users/:actor/inbox", RateLimitMiddleware(apLimiter), maxBodySize, s.handleActorInbox)
	g.POST("/actor/inbox", RateLimitMiddleware(apLimiter), maxBodySize, s.handleApplicationInbox)

	g.GET("/actor", s.handleApplicationActor)
	g.GET("/users/:actor", s.handleActor)
	g.GET("/users/:actor/outbox", s.handleOutbox)
	g.GET("/users/:actor/followers", s.handleCollection(domain.Inbound))
	g.GET("/users/:actor/following", s.handleCollection(domain.Outbound))
	g.GET("/notes/:id", s.handleNote)
	g.GET("/.well-known/webfinger", s.handleWebfinger)

	return g
}

// Serve runs handler on the configured address until ctx is done, then
// shuts the server down gracefully.
func Serve(ctx context.Context, conf *util.AppConfig, handler http.Handler, logger *log.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", conf.Conf.Host, conf.Conf.HttpPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting federation server", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// renderActivity writes doc as an activity document. vocab objects carry
// their own @context through MarshalJSON.
func (s *server) renderActivity(c *gin.Context, doc any) {
	body, err := json.Marshal(doc)
	if err != nil {
		s.serverError(c, "Failed to encode document", err)
		return
	}
	c.Data(http.StatusOK, activityContentType, body)
}

func (s *server) notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
}

func (s *server) serverError(c *gin.Context, msg string, err error) {
	s.log.Error(msg, "path", c.Request.URL.Path, "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
}
