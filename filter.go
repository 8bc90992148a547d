package auditview

import (
	"strings"
	"time"
)

// LevelAll disables the level predicate.
const LevelAll = "all"

// dayLayout is the calendar-day format used by date filters and bucket keys.
const dayLayout = "2006-01-02"

// FilterSpec is the active query. It lives only in process memory.
type FilterSpec struct {
	Level        string `json:"level,omitempty" yaml:"level"`
	Search       string `json:"search,omitempty" yaml:"search"`
	Actor        string `json:"actor,omitempty" yaml:"actor"`
	ResourceType string `json:"resourceType,omitempty" yaml:"resourceType"`
	DateFrom     string `json:"dateFrom,omitempty" yaml:"dateFrom"`
	DateTo       string `json:"dateTo,omitempty" yaml:"dateTo"`
}

// LevelFilter returns the normalized level constraint, or "" when the spec
// accepts every level.
func (s FilterSpec) LevelFilter() Level {
	l := strings.ToLower(strings.TrimSpace(s.Level))
	if l == "" || l == LevelAll {
		return ""
	}
	return Level(l)
}

// ParseDay parses a YYYY-MM-DD calendar day in loc. Invalid calendar dates
// such as 2024-02-30 are rejected.
func ParseDay(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(dayLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DayBounds converts the spec's date strings into an inclusive instant range:
// from is the start of the DateFrom day, to is the last nanosecond of the
// DateTo day. A bound that does not parse is returned as nil.
func DayBounds(s FilterSpec, loc *time.Location) (from, to *time.Time) {
	if t, ok := ParseDay(s.DateFrom, loc); ok {
		from = &t
	}
	if t, ok := ParseDay(s.DateTo, loc); ok {
		end := t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		to = &end
	}
	return from, to
}

// Apply returns the entries of logs that satisfy every predicate of spec,
// using local time for date bounds. The input order is preserved.
func Apply(logs []LogEntry, spec FilterSpec) []LogEntry {
	return ApplyIn(logs, spec, time.Local)
}

// ApplyIn is Apply with an explicit location for calendar-day bounds.
func ApplyIn(logs []LogEntry, spec FilterSpec, loc *time.Location) []LogEntry {
	m := newMatcher(spec, loc)
	out := make([]LogEntry, 0, len(logs))
	for _, e := range logs {
		if m.match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Matches reports whether a single entry satisfies spec.
func Matches(e LogEntry, spec FilterSpec, loc *time.Location) bool {
	return newMatcher(spec, loc).match(e)
}

// matcher holds a spec with its text predicates lowered and dates parsed once.
type matcher struct {
	level        Level
	search       string
	actor        string
	resourceType string
	from, to     *time.Time
}

func newMatcher(spec FilterSpec, loc *time.Location) matcher {
	from, to := DayBounds(spec, loc)
	return matcher{
		level:        spec.LevelFilter(),
		search:       strings.ToLower(strings.TrimSpace(spec.Search)),
		actor:        strings.ToLower(strings.TrimSpace(spec.Actor)),
		resourceType: strings.ToLower(strings.TrimSpace(spec.ResourceType)),
		from:         from,
		to:           to,
	}
}

func (m matcher) match(e LogEntry) bool {
	return m.matchLevel(e) &&
		m.matchSearch(e) &&
		m.matchActor(e) &&
		m.matchResource(e) &&
		m.matchDate(e)
}

func (m matcher) matchLevel(e LogEntry) bool {
	if m.level == "" {
		return true
	}
	return NormalizeLevel(string(e.Level)) == m.level
}

func (m matcher) matchSearch(e LogEntry) bool {
	if m.search == "" {
		return true
	}
	fields := []string{e.Message, e.Context}
	if e.Actor != nil {
		fields = append(fields, e.Actor.Name)
	}
	return containsAny(m.search, fields...)
}

func (m matcher) matchActor(e LogEntry) bool {
	if m.actor == "" {
		return true
	}
	if e.Actor == nil {
		return false
	}
	return containsAny(m.actor, e.Actor.Name, e.Actor.Email, e.Actor.ID)
}

func (m matcher) matchResource(e LogEntry) bool {
	if m.resourceType == "" {
		return true
	}
	if e.Resource == nil {
		return false
	}
	return containsAny(m.resourceType, e.Resource.Type, e.Resource.ID)
}

// matchDate never excludes an entry for lacking a timestamp.
func (m matcher) matchDate(e LogEntry) bool {
	if !e.HasTimestamp() {
		return true
	}
	if m.from != nil && e.Timestamp.Before(*m.from) {
		return false
	}
	if m.to != nil && e.Timestamp.After(*m.to) {
		return false
	}
	return true
}

// containsAny reports whether needle (already lower-cased) is a substring of
// any non-empty field. Empty fields never match.
func containsAny(needle string, fields ...string) bool {
	for _, f := range fields {
		if f == "" {
			continue
		}
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
