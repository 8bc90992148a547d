package auditview

import (
	"sort"
	"time"
)

const (
	// UnknownDay is the bucket key for entries without a timestamp.
	UnknownDay = "unknown"

	unknownLabel = "Unknown date"
	labelLayout  = "Monday, January 2, 2006"
)

// DayBucket groups the entries that share a calendar day.
type DayBucket struct {
	DayKey  string     `json:"dayKey"`
	Label   string     `json:"label"`
	Entries []LogEntry `json:"entries"`
}

// Group partitions logs into day buckets using local time.
func Group(logs []LogEntry) []DayBucket {
	return GroupIn(logs, time.Local)
}

// GroupIn partitions logs by calendar day in loc. Entries within a bucket are
// ordered newest first (stable, so ties keep input order); buckets are
// ordered newest day first with the unknown bucket always last. Every input
// entry appears in exactly one bucket.
func GroupIn(logs []LogEntry, loc *time.Location) []DayBucket {
	if loc == nil {
		loc = time.Local
	}

	index := make(map[string]int)
	var buckets []DayBucket
	for _, e := range logs {
		key, label := UnknownDay, unknownLabel
		if e.HasTimestamp() {
			local := e.Timestamp.In(loc)
			key, label = local.Format(dayLayout), local.Format(labelLayout)
		}

		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, DayBucket{DayKey: key, Label: label})
		}
		buckets[i].Entries = append(buckets[i].Entries, e)
	}

	for i := range buckets {
		entries := buckets[i].Entries
		sort.SliceStable(entries, func(a, b int) bool {
			return sortInstant(entries[a]).After(sortInstant(entries[b]))
		})
	}

	// YYYY-MM-DD keys order lexically the same as chronologically.
	sort.SliceStable(buckets, func(a, b int) bool {
		ka, kb := buckets[a].DayKey, buckets[b].DayKey
		if ka == UnknownDay {
			return false
		}
		if kb == UnknownDay {
			return true
		}
		return ka > kb
	})

	return buckets
}

// sortInstant treats a missing timestamp as the Unix epoch.
func sortInstant(e LogEntry) time.Time {
	if !e.HasTimestamp() {
		return time.Unix(0, 0)
	}
	return e.Timestamp
}

// ---------- Identity & selection ----------

// DeriveKey returns the identity of an entry across refreshes. It is the only
// identity mechanism: the log set is replaced wholesale on every fetch, so
// entries are never compared by reference.
//
// The source id wins when present. Otherwise the key is the raw timestamp and
// message joined by "::"; an entry with neither yields "" and can never be
// selected.
func DeriveKey(e LogEntry) string {
	if e.ID != "" {
		return e.ID
	}
	if e.RawTimestamp == "" && e.Message == "" {
		return ""
	}
	return e.RawTimestamp + "::" + e.Message
}

// ResolveSelection returns key if some entry in logs still derives it, and ""
// otherwise. A selection is never re-pointed at a different entry.
func ResolveSelection(logs []LogEntry, key string) string {
	if key == "" {
		return ""
	}
	if _, ok := FindByKey(logs, key); ok {
		return key
	}
	return ""
}

// ToggleSelection returns the selection after the user picks key: picking
// the current selection clears it, anything else replaces it. An empty key is
// not selectable and leaves current untouched.
func ToggleSelection(current, key string) string {
	if key == "" {
		return current
	}
	if key == current {
		return ""
	}
	return key
}

// FindByKey returns the first entry deriving key.
func FindByKey(logs []LogEntry, key string) (LogEntry, bool) {
	if key == "" {
		return LogEntry{}, false
	}
	for _, e := range logs {
		if DeriveKey(e) == key {
			return e, true
		}
	}
	return LogEntry{}, false
}
