package auditview_test

import (
	"testing"
	"time"

	auditview "github.com/kafeiih/go-auditview"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ids(logs []auditview.LogEntry) []string {
	out := make([]string, 0, len(logs))
	for _, e := range logs {
		out = append(out, e.ID)
	}
	return out
}

func sameIDs(t *testing.T, got []auditview.LogEntry, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("expected ids %v, got %v", want, g)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("expected ids %v, got %v", want, g)
		}
	}
}

func sampleLogs() []auditview.LogEntry {
	return []auditview.LogEntry{
		{
			ID: "1", Level: auditview.NormalizeLevel("ERROR"), Message: "Disk full",
			Timestamp: ts("2024-01-05T10:00:00Z"),
			Actor:     &auditview.Actor{Name: "Alice", Email: "alice@example.com", ID: "u-1"},
			Resource:  &auditview.Resource{Type: "hotel", ID: "h-9"},
		},
		{
			ID: "2", Level: auditview.LevelInfo, Message: "Login",
			Timestamp: ts("2024-01-05T09:00:00Z"),
			Actor:     &auditview.Actor{Name: "Bob"},
			Context:   "session started from mobile",
		},
		{
			ID: "3", Level: auditview.LevelWarning, Message: "Booking overlap",
			Timestamp: ts("2024-01-07T12:00:00Z"),
			Resource:  &auditview.Resource{Type: "booking", ID: "b-42"},
		},
		{
			ID: "4", Level: auditview.LevelCritical, Message: "Payment gateway down",
		},
	}
}

func TestApply_LevelCaseInsensitive(t *testing.T) {
	got := auditview.ApplyIn(sampleLogs(), auditview.FilterSpec{Level: "error"}, time.UTC)
	sameIDs(t, got, "1")

	got = auditview.ApplyIn(sampleLogs(), auditview.FilterSpec{Level: "CRITICAL"}, time.UTC)
	sameIDs(t, got, "4")
}

func TestApply_LevelAllAndEmptyAcceptEverything(t *testing.T) {
	for _, lvl := range []string{"", "all", "ALL"} {
		got := auditview.ApplyIn(sampleLogs(), auditview.FilterSpec{Level: lvl}, time.UTC)
		sameIDs(t, got, "1", "2", "3", "4")
	}
}

func TestApply_TextPredicates(t *testing.T) {
	tests := []struct {
		name string
		spec auditview.FilterSpec
		want []string
	}{
		{"search message", auditview.FilterSpec{Search: "disk"}, []string{"1"}},
		{"search actor name", auditview.FilterSpec{Search: "bob"}, []string{"2"}},
		{"search context", auditview.FilterSpec{Search: "MOBILE"}, []string{"2"}},
		{"search does not cover email", auditview.FilterSpec{Search: "example.com"}, []string{}},
		{"actor email", auditview.FilterSpec{Actor: "ALICE@"}, []string{"1"}},
		{"actor id", auditview.FilterSpec{Actor: "u-1"}, []string{"1"}},
		{"actor missing never matches", auditview.FilterSpec{Actor: "a"}, []string{"1"}},
		{"resource type", auditview.FilterSpec{ResourceType: "book"}, []string{"3"}},
		{"resource id", auditview.FilterSpec{ResourceType: "h-9"}, []string{"1"}},
		{"whitespace is no constraint", auditview.FilterSpec{Search: "   "}, []string{"1", "2", "3", "4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := auditview.ApplyIn(sampleLogs(), tt.spec, time.UTC)
			sameIDs(t, got, tt.want...)
		})
	}
}

func TestApply_DateRangeInclusive(t *testing.T) {
	spec := auditview.FilterSpec{DateFrom: "2024-01-05", DateTo: "2024-01-05"}
	got := auditview.ApplyIn(sampleLogs(), spec, time.UTC)
	// Entry 4 has no timestamp and always passes the date predicate.
	sameIDs(t, got, "1", "2", "4")

	spec = auditview.FilterSpec{DateFrom: "2024-01-06"}
	got = auditview.ApplyIn(sampleLogs(), spec, time.UTC)
	sameIDs(t, got, "3", "4")

	spec = auditview.FilterSpec{DateTo: "2024-01-04"}
	got = auditview.ApplyIn(sampleLogs(), spec, time.UTC)
	sameIDs(t, got, "4")
}

func TestApply_DateBoundsUseLocation(t *testing.T) {
	// 2024-01-05T23:30 in UTC-5 is 2024-01-06T04:30Z.
	loc := time.FixedZone("EST", -5*60*60)
	logs := []auditview.LogEntry{{ID: "late", Timestamp: ts("2024-01-06T04:30:00Z")}}

	got := auditview.ApplyIn(logs, auditview.FilterSpec{DateTo: "2024-01-05"}, loc)
	sameIDs(t, got, "late")

	got = auditview.ApplyIn(logs, auditview.FilterSpec{DateTo: "2024-01-05"}, time.UTC)
	sameIDs(t, got)
}

func TestApply_InvalidDateFailsOpen(t *testing.T) {
	for _, bad := range []string{"2024-02-30", "yesterday", "2024/01/05", "13-01-2024"} {
		t.Run(bad, func(t *testing.T) {
			withBad := auditview.ApplyIn(sampleLogs(), auditview.FilterSpec{DateFrom: bad}, time.UTC)
			withEmpty := auditview.ApplyIn(sampleLogs(), auditview.FilterSpec{DateFrom: ""}, time.UTC)
			sameIDs(t, withBad, ids(withEmpty)...)

			withBad = auditview.ApplyIn(sampleLogs(), auditview.FilterSpec{DateTo: bad}, time.UTC)
			sameIDs(t, withBad, ids(withEmpty)...)
		})
	}
}

func TestApply_PreservesOrderAndDoesNotMutate(t *testing.T) {
	logs := sampleLogs()
	got := auditview.ApplyIn(logs, auditview.FilterSpec{}, time.UTC)
	sameIDs(t, got, "1", "2", "3", "4")

	got[0].ID = "changed"
	if logs[0].ID != "1" {
		t.Errorf("expected input to be untouched, got id %q", logs[0].ID)
	}
}

func TestApply_ConjunctionAndRelaxation(t *testing.T) {
	full := auditview.FilterSpec{
		Level:        "error",
		Search:       "disk",
		Actor:        "alice",
		ResourceType: "hotel",
		DateFrom:     "2024-01-01",
		DateTo:       "2024-01-31",
	}
	base := auditview.ApplyIn(sampleLogs(), full, time.UTC)
	sameIDs(t, base, "1")

	relaxations := []func(auditview.FilterSpec) auditview.FilterSpec{
		func(s auditview.FilterSpec) auditview.FilterSpec { s.Level = "all"; return s },
		func(s auditview.FilterSpec) auditview.FilterSpec { s.Search = ""; return s },
		func(s auditview.FilterSpec) auditview.FilterSpec { s.Actor = ""; return s },
		func(s auditview.FilterSpec) auditview.FilterSpec { s.ResourceType = ""; return s },
		func(s auditview.FilterSpec) auditview.FilterSpec { s.DateFrom = ""; return s },
		func(s auditview.FilterSpec) auditview.FilterSpec { s.DateTo = ""; return s },
	}
	for i, relax := range relaxations {
		got := auditview.ApplyIn(sampleLogs(), relax(full), time.UTC)
		if len(got) < len(base) {
			t.Errorf("relaxation %d shrank the result: %v", i, ids(got))
		}
	}

	// Every retained entry satisfies each predicate on its own.
	singles := []auditview.FilterSpec{
		{Level: full.Level}, {Search: full.Search}, {Actor: full.Actor},
		{ResourceType: full.ResourceType}, {DateFrom: full.DateFrom, DateTo: full.DateTo},
	}
	for _, e := range base {
		for _, s := range singles {
			if !auditview.Matches(e, s, time.UTC) {
				t.Errorf("entry %s retained but fails %+v", e.ID, s)
			}
		}
	}
}

func TestApply_UsesLocalTime(t *testing.T) {
	spec := auditview.FilterSpec{Level: "error", DateFrom: "2024-01-01"}
	want := auditview.ApplyIn(sampleLogs(), spec, time.Local)
	sameIDs(t, auditview.Apply(sampleLogs(), spec), ids(want)...)
}

func TestParseDay(t *testing.T) {
	if _, ok := auditview.ParseDay("2024-02-29", time.UTC); !ok {
		t.Error("expected leap day to parse")
	}
	if _, ok := auditview.ParseDay("2023-02-29", time.UTC); ok {
		t.Error("expected non-leap Feb 29 to be rejected")
	}
	if _, ok := auditview.ParseDay("", time.UTC); ok {
		t.Error("expected empty string to be rejected")
	}
}

func TestDayBounds(t *testing.T) {
	from, to := auditview.DayBounds(auditview.FilterSpec{DateFrom: "2024-01-05", DateTo: "2024-01-06"}, time.UTC)
	if from == nil || !from.Equal(ts("2024-01-05T00:00:00Z")) {
		t.Errorf("expected from at start of day, got %v", from)
	}
	wantTo := ts("2024-01-07T00:00:00Z").Add(-time.Nanosecond)
	if to == nil || !to.Equal(wantTo) {
		t.Errorf("expected to=%v, got %v", wantTo, to)
	}

	from, to = auditview.DayBounds(auditview.FilterSpec{DateFrom: "nope"}, time.UTC)
	if from != nil || to != nil {
		t.Errorf("expected nil bounds, got %v %v", from, to)
	}
}
