package web

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func inboxFrom(f *fixture, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/users/alice/inbox", strings.NewReader("{}"))
	req.Host = testDomain
	req.RemoteAddr = addr
	req.Header.Set("Content-Type", "application/activity+json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestInboxRateLimitedPerServer(t *testing.T) {
	f := newFixture(t)

	// the inbox limiter allows a burst of 10 before refusing
	for i := 0; i < 10; i++ {
		if w := inboxFrom(f, "198.51.100.7:4000"); w.Code == http.StatusTooManyRequests {
			t.Fatalf("Delivery %d was rate limited inside the burst", i+1)
		}
	}
	w := inboxFrom(f, "198.51.100.7:4000")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429 after the burst, got %d", w.Code)
	}
	if doc := decodeBody(t, w); !strings.Contains(fmt.Sprint(doc["error"]), "Rate limit exceeded") {
		t.Errorf("Expected rate limit error, got %v", doc)
	}

	if w := inboxFrom(f, "203.0.113.9:4000"); w.Code == http.StatusTooManyRequests {
		t.Error("Another server should have its own allowance")
	}
	if w := f.get("/users/alice"); w.Code != http.StatusOK {
		t.Errorf("Actor documents should not share the inbox allowance, got %d", w.Code)
	}
}

func TestLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1)

	a := rl.getLimiter("198.51.100.7")
	if a != rl.getLimiter("198.51.100.7") {
		t.Error("Expected the same limiter for a returning client")
	}
	b := rl.getLimiter("203.0.113.9")
	if a == b {
		t.Fatal("Expected separate limiters per client")
	}

	if !a.Allow() || a.Allow() {
		t.Error("Expected a single-token burst")
	}
	if !b.Allow() {
		t.Error("Exhausting one client should not affect another")
	}
}

func TestActivityBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var readErr error
	router := gin.New()
	router.Use(MaxBytesMiddleware(64))
	router.POST("/inbox", func(c *gin.Context) {
		_, readErr = io.ReadAll(c.Request.Body)
		if isBodyTooLarge(readErr) {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusAccepted)
	})

	tests := []struct {
		name     string
		body     string
		chunked  bool
		wantCode int
		wantRead bool
	}{
		{"fits", strings.Repeat("x", 64), false, http.StatusAccepted, true},
		{"declared length too large", strings.Repeat("x", 65), false, http.StatusRequestEntityTooLarge, false},
		{"chunked body too large", strings.Repeat("x", 65), true, http.StatusRequestEntityTooLarge, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readErr = nil
			req := httptest.NewRequest("POST", "/inbox", strings.NewReader(tt.body))
			if tt.chunked {
				req.ContentLength = -1
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, w.Code)
			}
			handlerRan := readErr != nil || w.Code == http.StatusAccepted
			if handlerRan != tt.wantRead {
				t.Errorf("Expected handler reached = %v, got %v", tt.wantRead, handlerRan)
			}
		})
	}
}

func TestPruneIdleLimiters(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(10), 20)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.lastPrune = now

	rl.getLimiter("192.168.1.1")
	rl.getLimiter("192.168.1.2")

	// only the second client comes back before the idle window closes
	now = now.Add(limiterIdleTTL - time.Minute)
	rl.getLimiter("192.168.1.2")

	now = now.Add(pruneInterval + time.Minute)
	rl.getLimiter("192.168.1.3")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.limiters["192.168.1.1"]; ok {
		t.Error("Expected idle limiter to be pruned")
	}
	for _, ip := range []string{"192.168.1.2", "192.168.1.3"} {
		if _, ok := rl.limiters[ip]; !ok {
			t.Errorf("Expected limiter for %s to survive", ip)
		}
	}
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		status int
		level  string
	}{
		{http.StatusAccepted, "DEBU"},
		{http.StatusUnauthorized, "WARN"},
		{http.StatusInternalServerError, "ERRO"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			logger := log.New(&buf)
			logger.SetLevel(log.DebugLevel)

			router := gin.New()
			router.Use(RequestLogger(logger))
			router.POST("/users/:actor/inbox", func(c *gin.Context) {
				c.Status(tt.status)
			})

			req := httptest.NewRequest("POST", "/users/alice/inbox", nil)
			router.ServeHTTP(httptest.NewRecorder(), req)

			out := buf.String()
			if !strings.Contains(out, tt.level) {
				t.Errorf("Expected %s level, got: %s", tt.level, out)
			}
			if !strings.Contains(out, "path=/users/alice/inbox") || !strings.Contains(out, fmt.Sprintf("status=%d", tt.status)) {
				t.Errorf("Expected path and status in log line, got: %s", out)
			}
		})
	}
}
