package auditview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultPageSize is the number of entries requested per fetch.
	DefaultPageSize = 100
	// DefaultSort asks the source for newest entries first.
	DefaultSort = "-timestamp"
)

// ErrUnauthorized marks a fetch rejected for missing or expired credentials.
var ErrUnauthorized = errors.New("unauthorized")

// Query holds the server-side parameters derived from a FilterSpec.
// Empty strings and nil bounds mean "not sent".
type Query struct {
	Level        Level
	Search       string
	Actor        string
	ResourceType string
	From         *time.Time
	To           *time.Time
	Limit        int
	Sort         string
}

// BuildQuery translates spec into source parameters. Date strings become
// start-of-day and end-of-day instants in loc; invalid dates are dropped.
func BuildQuery(spec FilterSpec, limit int, loc *time.Location) Query {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	from, to := DayBounds(spec, loc)
	return Query{
		Level:        spec.LevelFilter(),
		Search:       strings.TrimSpace(spec.Search),
		Actor:        strings.TrimSpace(spec.Actor),
		ResourceType: strings.TrimSpace(spec.ResourceType),
		From:         from,
		To:           to,
		Limit:        limit,
		Sort:         DefaultSort,
	}
}

// Source is a log source the fetcher can query.
type Source interface {
	Fetch(ctx context.Context, q Query) ([]LogEntry, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, q Query) ([]LogEntry, error)

func (f SourceFunc) Fetch(ctx context.Context, q Query) ([]LogEntry, error) {
	return f(ctx, q)
}

// ---------- Errors ----------

// FetchError reports a failed fetch: transport failure, non-2xx status or a
// payload that is not JSON. Message is suitable for display.
type FetchError struct {
	Status  int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrNoSelection is returned when an operation needs a selected entry.
var ErrNoSelection = errors.New("no log entry selected")

// ClipboardError reports a failed copy of an entry payload.
type ClipboardError struct {
	Err error
}

func (e *ClipboardError) Error() string {
	return fmt.Sprintf("copy failed: %v", e.Err)
}

func (e *ClipboardError) Unwrap() error {
	return e.Err
}

// DisplayMessage returns the user-facing text for err.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	var ce *ClipboardError
	if errors.As(err, &ce) {
		return "Copy failed"
	}
	return err.Error()
}
