package httpsource

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	auditview "github.com/kafeiih/go-auditview"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	c, err := New(srv.URL+"/api/", opts...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return c
}

func TestNew_RejectsBadURL(t *testing.T) {
	if _, err := New("ftp://example.com"); err == nil {
		t.Fatal("expected error for non-http scheme")
	}
	if _, err := New("://nope"); err == nil {
		t.Fatal("expected error for unparsable url")
	}
}

func TestParams(t *testing.T) {
	from := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)

	v := Params(auditview.Query{
		Level:        auditview.LevelError,
		Search:       "disk",
		ResourceType: "hotel",
		From:         &from,
		To:           &to,
	})

	want := map[string]string{
		"level":        "error",
		"search":       "disk",
		"resourceType": "hotel",
		"from":         "2024-01-05T00:00:00.000Z",
		"to":           "2024-01-05T23:59:59.999Z",
		"limit":        "100",
		"sort":         "-timestamp",
	}
	for k, w := range want {
		if got := v.Get(k); got != w {
			t.Errorf("param %s = %q, want %q", k, got, w)
		}
	}
	if v.Has("actor") {
		t.Errorf("expected empty actor to be omitted, got %q", v.Get("actor"))
	}
}

func TestFetch_SendsQueryAndHeaders(t *testing.T) {
	var gotPath, gotAuth, gotRequestID, gotLevel string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		gotLevel = r.URL.Query().Get("level")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"logs":[{"id":"1","level":"error","message":"Disk full"}]}`)
	}, WithSession(StaticToken("secret")))

	ctx := auditview.WithCorrelationID(context.Background(), "corr-1")
	q := auditview.BuildQuery(auditview.FilterSpec{Level: "ERROR"}, 0, time.UTC)

	entries, err := c.Fetch(ctx, q)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "1" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if gotPath != "/api/logs" {
		t.Errorf("path = %q, want /api/logs", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want Bearer secret", gotAuth)
	}
	if gotRequestID != "corr-1" {
		t.Errorf("X-Request-ID = %q, want corr-1", gotRequestID)
	}
	if gotLevel != "error" {
		t.Errorf("level = %q, want error", gotLevel)
	}
}

func TestFetch_GeneratesRequestIDAndSkipsEmptyToken(t *testing.T) {
	var gotAuth, gotRequestID string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		_, _ = io.WriteString(w, `[]`)
	}, WithSession(StaticToken("")))

	if _, err := c.Fetch(context.Background(), auditview.Query{}); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("expected no Authorization header, got %q", gotAuth)
	}
	if len(gotRequestID) != 36 {
		t.Errorf("expected a generated uuid request id, got %q", gotRequestID)
	}
}

func TestFetch_GzipResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Encoding") != "gzip" {
			t.Errorf("expected Accept-Encoding gzip, got %q", r.Header.Get("Accept-Encoding"))
		}
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = io.WriteString(gz, `[{"id":"a"},{"id":"b"}]`)
		_ = gz.Close()

		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	})

	entries, err := c.Fetch(context.Background(), auditview.Query{})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
}

func TestFetch_StatusErrorMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"message":"database unavailable"}`)
	})

	_, err := c.Fetch(context.Background(), auditview.Query{})
	var fe *auditview.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", fe.Status)
	}
	if fe.Message != "database unavailable" {
		t.Errorf("Message = %q, want database unavailable", fe.Message)
	}
}

type expiringSession struct {
	expired atomic.Bool
}

func (s *expiringSession) Token(context.Context) (string, error) {
	return "old", nil
}

func (s *expiringSession) Expire(context.Context) {
	s.expired.Store(true)
}

func TestFetch_UnauthorizedExpiresSession(t *testing.T) {
	session := &expiringSession{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, WithSession(session))

	_, err := c.Fetch(context.Background(), auditview.Query{})
	if !errors.Is(err, auditview.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if !session.expired.Load() {
		t.Error("expected session to be expired")
	}
	if got := auditview.DisplayMessage(err); got != "failed to load logs (HTTP 401)" {
		t.Errorf("unexpected display message %q", got)
	}
}

func TestFetch_SessionError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent without credentials")
	}, WithSession(TokenFunc(func(context.Context) (string, error) {
		return "", errors.New("storage locked")
	})))

	_, err := c.Fetch(context.Background(), auditview.Query{})
	var fe *auditview.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
}

func TestFetch_MalformedPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"logs": [`)
	})

	_, err := c.Fetch(context.Background(), auditview.Query{})
	var fe *auditview.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
}

func TestFetch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(url)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	_, err = c.Fetch(context.Background(), auditview.Query{})
	var fe *auditview.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
}

func TestFetch_RateLimitHonoursContext(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `[]`)
	}, WithRateLimit(0.001, 1))

	if _, err := c.Fetch(context.Background(), auditview.Query{}); err != nil {
		t.Fatalf("first fetch should use the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Fetch(ctx, auditview.Query{}); err == nil {
		t.Fatal("expected second fetch to fail waiting for the limiter")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 request to reach the server, got %d", calls.Load())
	}
}

func TestFetch_LogsUnknownLevels(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"1","level":"DEBUG"},{"id":"2","level":"error"},{"id":"3","level":"debug"},{"id":"4","level":"trace"}]`))
	}, WithLogger(logger))

	entries, err := c.Fetch(context.Background(), auditview.Query{})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(entries) != 4 || entries[0].Level != "debug" {
		t.Fatalf("expected unknown levels to be kept lower-cased, got %+v", entries)
	}
	if !bytes.Contains(logs.Bytes(), []byte("log source sent unknown levels")) ||
		!bytes.Contains(logs.Bytes(), []byte("levels=\"[debug trace]\"")) {
		t.Errorf("expected a debug line listing debug and trace, got:\n%s", logs.String())
	}
}

func TestUnknownLevels(t *testing.T) {
	entries := []auditview.LogEntry{
		{Level: auditview.LevelInfo},
		{Level: auditview.LevelCritical},
	}
	if got := unknownLevels(entries); len(got) != 0 {
		t.Errorf("expected no unknown levels, got %v", got)
	}
}
