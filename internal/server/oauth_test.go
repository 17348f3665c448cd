package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/likesync/internal/shared"
	"golang.org/x/oauth2"
)

// newTokenServer returns an OAuth token endpoint that issues a fixed token for code "good-code".
func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-123",
			"refresh_token": "refresh-456",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://127.0.0.1:8080/spotify/callback",
		Endpoint:     oauth2.Endpoint{AuthURL: "http://example.invalid/authorize", TokenURL: tokenURL},
	}
}

func TestOAuthHandler(t *testing.T) {
	t.Run("uses the redirect URI path", func(t *testing.T) {
		h := NewOAuthHandler(testConfig(""), "state")
		if routes := h.Routes(); len(routes) != 1 || routes[0] != "/spotify/callback" {
			t.Errorf("unexpected routes %v", routes)
		}
	})

	t.Run("exchanges the code", func(t *testing.T) {
		ts := newTokenServer(t)
		h := NewOAuthHandler(testConfig(ts.URL), "state-abc")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spotify/callback?state=state-abc&code=good-code", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Connected to Spotify") {
			t.Error("expected success page")
		}

		result := <-h.Result()
		if err := result.Error(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Token.AccessToken != "access-123" || result.Token.RefreshToken != "refresh-456" {
			t.Errorf("unexpected token %+v", result.Token)
		}
	})

	t.Run("rejects a state mismatch", func(t *testing.T) {
		h := NewOAuthHandler(testConfig(""), "expected")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spotify/callback?state=forged&code=good-code", nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		result := <-h.Result()
		if !errors.Is(result.Error(), shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", result.Error())
		}
	})

	t.Run("reports a denied authorization", func(t *testing.T) {
		h := NewOAuthHandler(testConfig(""), "s")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spotify/callback?state=s&error=access_denied", nil))

		result := <-h.Result()
		if result.Error() == nil || !strings.Contains(result.Error().Error(), "access_denied") {
			t.Errorf("expected access_denied error, got %v", result.Error())
		}
	})

	t.Run("reports a failed exchange", func(t *testing.T) {
		ts := newTokenServer(t)
		h := NewOAuthHandler(testConfig(ts.URL), "s")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spotify/callback?state=s&code=bad-code", nil))

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}
		if result := <-h.Result(); !errors.Is(result.Error(), shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", result.Error())
		}
	})

	t.Run("processes only the first callback", func(t *testing.T) {
		ts := newTokenServer(t)
		h := NewOAuthHandler(testConfig(ts.URL), "s")

		first := httptest.NewRecorder()
		h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/spotify/callback?state=wrong", nil))

		second := httptest.NewRecorder()
		h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/spotify/callback?state=s&code=good-code", nil))
		if second.Code != http.StatusBadRequest {
			t.Errorf("expected replay to be rejected, got %d", second.Code)
		}

		results := 0
		for range h.Result() {
			results++
		}
		if results != 1 {
			t.Errorf("expected exactly one result, got %d", results)
		}
	})
}

func TestCallbackPath(t *testing.T) {
	tests := map[string]string{
		"http://127.0.0.1:8080/callback":    "/callback",
		"http://localhost:3000/auth/return": "/auth/return",
		"http://localhost:3000":             "/callback",
		"http://localhost:3000/":            "/callback",
		"::not a url":                       "/callback",
	}
	for in, want := range tests {
		if got := CallbackPath(in); got != want {
			t.Errorf("CallbackPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBasicRouter(t *testing.T) {
	t.Run("applies middleware in order", func(t *testing.T) {
		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(mw("first"), mw("second"))
		router.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

		want := []string{"first", "second", "handler"}
		if strings.Join(order, ",") != strings.Join(want, ",") {
			t.Errorf("expected %v, got %v", want, order)
		}
	})

	t.Run("rejects other methods", func(t *testing.T) {
		router := NewBasicRouter()
		router.Handler(NewOAuthHandler(testConfig(""), "s"))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/spotify/callback", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("logs without the query string", func(t *testing.T) {
		var buf bytes.Buffer
		logger := log.New(&buf)
		logger.SetLevel(log.DebugLevel)

		router := NewBasicRouter()
		router.Use(LoggingMiddleware(logger))
		router.Handle(http.MethodGet, "/callback", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?code=secret", nil))

		out := buf.String()
		if !strings.Contains(out, "/callback") || !strings.Contains(out, "418") {
			t.Errorf("expected path and status in log, got %q", out)
		}
		if strings.Contains(out, "secret") {
			t.Errorf("authorization code leaked into log: %q", out)
		}
	})
}

func TestCallbackServer(t *testing.T) {
	t.Run("returns the token from the redirect", func(t *testing.T) {
		ts := newTokenServer(t)
		handler := NewOAuthHandler(testConfig(ts.URL), "s")
		router := NewBasicRouter()
		router.Handler(handler)

		srv, err := NewCallbackServer("127.0.0.1:0", router, handler)
		if err != nil {
			t.Fatalf("failed to start: %v", err)
		}
		srv.Start()

		go func() {
			resp, err := http.Get("http://" + srv.Addr() + "/spotify/callback?state=s&code=good-code")
			if err == nil {
				resp.Body.Close()
			}
		}()

		token, err := srv.Wait(context.Background(), 5*time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token.AccessToken != "access-123" {
			t.Errorf("unexpected token %+v", token)
		}
	})

	t.Run("times out", func(t *testing.T) {
		handler := NewOAuthHandler(testConfig(""), "s")
		router := NewBasicRouter()
		router.Handler(handler)

		srv, err := NewCallbackServer("127.0.0.1:0", router, handler)
		if err != nil {
			t.Fatalf("failed to start: %v", err)
		}
		srv.Start()

		_, err = srv.Wait(context.Background(), 10*time.Millisecond)
		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		handler := NewOAuthHandler(testConfig(""), "s")
		srv, err := NewCallbackServer("127.0.0.1:0", NewBasicRouter(), handler)
		if err != nil {
			t.Fatalf("failed to start: %v", err)
		}
		srv.Start()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := srv.Wait(ctx, time.Minute); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
