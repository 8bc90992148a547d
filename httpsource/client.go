// Package httpsource fetches audit logs from a REST log source.
package httpsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/time/rate"

	auditview "github.com/kafeiih/go-auditview"
)

const (
	logsPath     = "/logs"
	maxBodyBytes = 32 << 20

	// isoLayout matches the millisecond UTC instants browsers produce.
	isoLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Client implements auditview.Source over HTTP.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	session    SessionProvider
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var _ auditview.Source = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport. Timeouts are whatever hc enforces.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSession attaches a credential provider.
func WithSession(p SessionProvider) Option {
	return func(c *Client) { c.session = p }
}

// WithRateLimit caps outgoing requests. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the log source rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Params encodes q as query parameters. Empty values are omitted; limit and
// sort are always sent.
func Params(q auditview.Query) url.Values {
	v := url.Values{}
	if q.Level != "" {
		v.Set("level", string(q.Level))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Actor != "" {
		v.Set("actor", q.Actor)
	}
	if q.ResourceType != "" {
		v.Set("resourceType", q.ResourceType)
	}
	if q.From != nil {
		v.Set("from", q.From.UTC().Format(isoLayout))
	}
	if q.To != nil {
		v.Set("to", q.To.UTC().Format(isoLayout))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = auditview.DefaultPageSize
	}
	v.Set("limit", strconv.Itoa(limit))

	sort := q.Sort
	if sort == "" {
		sort = auditview.DefaultSort
	}
	v.Set("sort", sort)
	return v
}

// Fetch issues GET /logs and returns the normalized entries. Every failure
// is a *auditview.FetchError.
func (c *Client) Fetch(ctx context.Context, q auditview.Query) ([]auditview.LogEntry, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &auditview.FetchError{Message: "failed to load logs", Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	u := *c.baseURL
	u.Path += logsPath
	u.RawQuery = Params(q).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &auditview.FetchError{Message: "failed to load logs", Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")

	requestID := auditview.CorrelationIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)

	if c.session != nil {
		token, err := c.session.Token(ctx)
		if err != nil {
			return nil, &auditview.FetchError{Message: "could not read session credentials", Err: err}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &auditview.FetchError{Message: "failed to load logs", Err: err}
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, &auditview.FetchError{Status: resp.StatusCode, Message: "failed to read log response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.statusError(ctx, resp.StatusCode, body)
	}

	entries, err := Decode(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched audit logs",
		"count", len(entries),
		"request_id", requestID,
		"status", resp.StatusCode,
	)
	if levels := unknownLevels(entries); len(levels) > 0 {
		c.logger.Debug("log source sent unknown levels",
			"levels", levels,
			"request_id", requestID,
		)
	}
	return entries, nil
}

// unknownLevels lists the distinct non-standard levels in entries. Such
// entries are kept; they only match a filter naming the same level.
func unknownLevels(entries []auditview.LogEntry) []string {
	var out []string
	seen := make(map[auditview.Level]bool)
	for _, e := range entries {
		if e.Level.IsKnown() || seen[e.Level] {
			continue
		}
		seen[e.Level] = true
		out = append(out, string(e.Level))
	}
	return out
}

func (c *Client) statusError(ctx context.Context, status int, body []byte) error {
	fe := &auditview.FetchError{
		Status:  status,
		Message: errorMessage(status, body),
		Err:     fmt.Errorf("unexpected status %d", status),
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		fe.Err = auditview.ErrUnauthorized
		if exp, ok := c.session.(SessionExpirer); ok {
			exp.Expire(ctx)
		}
	}
	return fe
}

// readBody reads at most maxBodyBytes, decoding gzip when the server used it.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, fmt.Errorf("opening gzip body: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	body, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}
