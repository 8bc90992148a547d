package pgxsource

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	auditview "github.com/kafeiih/go-auditview"
)

const listQuery = `SELECT id, level, message, actor_id, actor_name, actor_email,
		resource_type, resource_id, context, details, created_at
	FROM auditview.audit_log
	WHERE ($1::TEXT IS NULL OR level = $1)
		AND ($2::TEXT IS NULL OR message ILIKE $2 OR actor_name ILIKE $2 OR context ILIKE $2)
		AND ($3::TEXT IS NULL OR actor_name ILIKE $3 OR actor_email ILIKE $3 OR actor_id ILIKE $3)
		AND ($4::TEXT IS NULL OR resource_type ILIKE $4 OR resource_id ILIKE $4)
		AND ($5::TIMESTAMPTZ IS NULL OR created_at >= $5)
		AND ($6::TIMESTAMPTZ IS NULL OR created_at <= $6)
	ORDER BY created_at %s
	LIMIT $7`

// Source implements auditview.Source on top of the audit_log table.
type Source struct {
	db DB
}

var _ auditview.Source = (*Source)(nil)

// New creates a Source. It accepts any DB implementation (*pgxpool.Pool or a test mock).
func New(db DB) *Source {
	return &Source{db: db}
}

// Fetch runs q against the table. Failures are *auditview.FetchError so
// callers treat both sources alike.
func (s *Source) Fetch(ctx context.Context, q auditview.Query) ([]auditview.LogEntry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = auditview.DefaultPageSize
	}

	rows, err := s.db.Query(ctx, fmt.Sprintf(listQuery, orderDirection(q.Sort)),
		nullString(string(q.Level)),
		likePattern(q.Search),
		likePattern(q.Actor),
		likePattern(q.ResourceType),
		q.From, q.To,
		limit,
	)
	if err != nil {
		return nil, &auditview.FetchError{Message: "failed to load logs", Err: fmt.Errorf("listing audit log entries: %w", err)}
	}
	defer rows.Close()

	entries := []auditview.LogEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, &auditview.FetchError{Message: "failed to load logs", Err: fmt.Errorf("scanning audit log entry: %w", err)}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &auditview.FetchError{Message: "failed to load logs", Err: fmt.Errorf("iterating rows: %w", err)}
	}

	return entries, nil
}

// scanner abstracts pgx.Row and pgx.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

// row mirrors the table; it doubles as the JSON payload of an entry.
type row struct {
	ID           uuid.UUID       `json:"id"`
	Level        string          `json:"level"`
	Message      string          `json:"message"`
	ActorID      string          `json:"actorId,omitempty"`
	ActorName    string          `json:"actorName,omitempty"`
	ActorEmail   string          `json:"actorEmail,omitempty"`
	ResourceType string          `json:"resourceType,omitempty"`
	ResourceID   string          `json:"resourceId,omitempty"`
	Context      string          `json:"context,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	CreatedAt    time.Time       `json:"timestamp"`
}

func scanEntry(s scanner) (auditview.LogEntry, error) {
	var r row
	var details []byte

	err := s.Scan(
		&r.ID, &r.Level, &r.Message,
		&r.ActorID, &r.ActorName, &r.ActorEmail,
		&r.ResourceType, &r.ResourceID,
		&r.Context, &details, &r.CreatedAt,
	)
	if err != nil {
		return auditview.LogEntry{}, err
	}
	if len(details) > 0 && string(details) != "{}" {
		r.Details = details
	}

	raw, err := json.Marshal(r)
	if err != nil {
		return auditview.LogEntry{}, fmt.Errorf("serializing payload: %w", err)
	}

	e := auditview.LogEntry{
		ID:           r.ID.String(),
		RawTimestamp: r.CreatedAt.UTC().Format(time.RFC3339Nano),
		Timestamp:    r.CreatedAt,
		Level:        auditview.NormalizeLevel(r.Level),
		Message:      r.Message,
		Context:      r.Context,
		Raw:          raw,
	}
	if a := (auditview.Actor{ID: r.ActorID, Name: r.ActorName, Email: r.ActorEmail}); a != (auditview.Actor{}) {
		e.Actor = &a
	}
	if res := (auditview.Resource{Type: r.ResourceType, ID: r.ResourceID}); res != (auditview.Resource{}) {
		e.Resource = &res
	}
	return e, nil
}

// orderDirection maps the REST sort parameter onto SQL. Only the timestamp
// column is sortable; anything else falls back to newest first.
func orderDirection(sort string) string {
	if sort == "timestamp" || sort == "+timestamp" {
		return "ASC"
	}
	return "DESC"
}

// nullString returns nil for empty strings, used for optional SQL filters.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps s for a substring ILIKE match with wildcards escaped.
func likePattern(s string) *string {
	if s == "" {
		return nil
	}
	p := "%" + likeEscaper.Replace(s) + "%"
	return &p
}
