// Package auditview provides the query, filtering, grouping and selection
// logic behind an audit-log inspection screen. Sources and presentation
// layers live in sub-packages; everything here is pure and side-effect free.
package auditview

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// ---------- Level ----------

// Level is the severity of an audit event.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// NormalizeLevel lower-cases s and defaults empty input to info.
// Unknown values are kept (lower-cased) rather than rejected.
func NormalizeLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LevelInfo
	}
	return Level(s)
}

// IsKnown reports whether l is one of the four documented levels.
func (l Level) IsKnown() bool {
	switch l {
	case LevelInfo, LevelWarning, LevelError, LevelCritical:
		return true
	}
	return false
}

// ---------- LogEntry ----------

// Actor identifies who triggered an event. Any present field is searchable.
type Actor struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	ID    string `json:"id,omitempty"`
}

// Resource identifies what an event acted on.
type Resource struct {
	Type string `json:"type,omitempty"`
	ID   string `json:"id,omitempty"`
}

// LogEntry is one normalized audit event.
type LogEntry struct {
	ID string `json:"id,omitempty"`

	// RawTimestamp is the wire value coerced to a string. It feeds DeriveKey
	// so the key stays stable across fetches regardless of parsing.
	RawTimestamp string `json:"-"`

	// Timestamp is the parsed instant; zero when absent or unparsable.
	Timestamp time.Time `json:"timestamp,omitzero"`

	Level    Level     `json:"level"`
	Message  string    `json:"message,omitempty"`
	Actor    *Actor    `json:"actor,omitempty"`
	Resource *Resource `json:"resource,omitempty"`
	Context  string    `json:"context,omitempty"`

	// Raw is the original wire object, kept for the payload view.
	Raw json.RawMessage `json:"-"`
}

// HasTimestamp reports whether the entry carries a usable timestamp.
func (e LogEntry) HasTimestamp() bool {
	return !e.Timestamp.IsZero()
}

// Payload renders the entry as pretty-printed JSON. The original wire object
// is preferred so nothing the source sent is lost; key order is not stable.
func Payload(e LogEntry) ([]byte, error) {
	if len(e.Raw) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, e.Raw, "", "  "); err == nil {
			return buf.Bytes(), nil
		}
	}
	return json.MarshalIndent(e, "", "  ")
}
