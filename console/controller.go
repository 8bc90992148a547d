// Package console owns the state of the audit-log screen: the active filter,
// the last fetched log set, the selected entry and the transient messages
// shown to the user. Presentation layers read it through View.
package console

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	auditview "github.com/kafeiih/go-auditview"
)

const toastDuration = 2 * time.Second

// Toast is a transient message that disappears after ExpiresAt.
type Toast struct {
	Message   string    `json:"message"`
	Error     bool      `json:"error"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// View is a consistent snapshot of everything the screen renders.
type View struct {
	Buckets     []auditview.DayBucket `json:"buckets"`
	Selected    *auditview.LogEntry   `json:"selected"`
	SelectedKey string                `json:"selectedKey,omitempty"`
	Total       int                   `json:"total"`
	Showing     int                   `json:"showing"`
	Error       string                `json:"error,omitempty"`
	Toast       *Toast                `json:"toast,omitempty"`
	Loading     bool                  `json:"loading"`
	AutoRefresh bool                  `json:"autoRefresh"`
	Filter      auditview.FilterSpec  `json:"filter"`
	RefreshedAt time.Time             `json:"refreshedAt,omitzero"`
}

// Options configures a Controller. Zero values pick the defaults.
type Options struct {
	PageSize int
	Location *time.Location
	Logger   *slog.Logger
	Now      func() time.Time
}

// Controller runs the fetch, filter, group and select pipeline.
//
// Every fetch is tagged with a generation number. When fetches overlap, only
// the response of the most recently started one is applied; older responses
// are discarded whatever order they complete in.
type Controller struct {
	source   auditview.Source
	pageSize int
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.Mutex
	spec        auditview.FilterSpec
	logs        []auditview.LogEntry
	filtered    []auditview.LogEntry
	selected    string
	errMsg      string
	toast       *Toast
	generation  uint64
	inFlight    int
	refreshedAt time.Time
	autoRefresh func() bool
}

// NewController creates a Controller reading from source.
func NewController(source auditview.Source, opts Options) *Controller {
	c := &Controller{
		source:   source,
		pageSize: opts.PageSize,
		loc:      opts.Location,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if c.pageSize <= 0 {
		c.pageSize = auditview.DefaultPageSize
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Refresh fetches with the current filter and replaces the log set. A failed
// fetch clears the data and sets the error banner. The error is returned for
// logging only; the controller state already reflects it.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	q := auditview.BuildQuery(c.spec, c.pageSize, c.loc)
	c.inFlight++
	c.mu.Unlock()

	logs, err := c.source.Fetch(ctx, q)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--

	if gen != c.generation {
		c.logger.Debug("discarding stale log response", "generation", gen, "latest", c.generation)
		return nil
	}

	c.refreshedAt = c.now()
	if err != nil {
		c.errMsg = auditview.DisplayMessage(err)
		c.logs = nil
		c.filtered = nil
		c.selected = ""
		c.logger.Error("failed to fetch audit logs", "error", err, "generation", gen)
		return err
	}

	c.errMsg = ""
	c.logs = logs
	c.refilterLocked()
	c.logger.Debug("refreshed audit logs", "total", len(c.logs), "showing", len(c.filtered))
	return nil
}

// ApplyFilter stores spec, re-filters the data already on screen and fetches
// again with the new server-side parameters. The response is filtered
// client-side too, so a source that ignores some parameters still shows
// correct results.
func (c *Controller) ApplyFilter(ctx context.Context, spec auditview.FilterSpec) error {
	c.SetFilter(spec)
	return c.Refresh(ctx)
}

// SetFilter stores spec and re-filters the current data without fetching.
func (c *Controller) SetFilter(spec auditview.FilterSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spec = spec
	c.refilterLocked()
}

// Filter returns the active filter.
func (c *Controller) Filter() auditview.FilterSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spec
}

// Select toggles the selection of the entry deriving key and returns the
// resulting selected key ("" when cleared). Keys not on screen are ignored.
func (c *Controller) Select(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key != c.selected {
		if _, ok := auditview.FindByKey(c.filtered, key); !ok {
			return c.selected
		}
	}
	c.selected = auditview.ToggleSelection(c.selected, key)
	return c.selected
}

// ClearSelection drops the selected entry.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = ""
}

// Selected returns the selected entry, if any.
func (c *Controller) Selected() (auditview.LogEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return auditview.FindByKey(c.filtered, c.selected)
}

// SelectedPayload returns the pretty-printed payload of the selected entry.
func (c *Controller) SelectedPayload() ([]byte, error) {
	e, ok := c.Selected()
	if !ok {
		return nil, auditview.ErrNoSelection
	}
	return auditview.Payload(e)
}

// CopySelected copies the selected payload to clip and reports the outcome
// with a toast. Core state is never touched.
func (c *Controller) CopySelected(clip Clipboard) error {
	payload, err := c.SelectedPayload()
	if err == nil {
		if werr := clip.WriteAll(string(payload)); werr != nil {
			err = &auditview.ClipboardError{Err: werr}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err == nil:
		c.toast = &Toast{Message: "Copied", ExpiresAt: c.now().Add(toastDuration)}
	case errors.Is(err, auditview.ErrNoSelection):
		return err
	default:
		c.toast = &Toast{Message: auditview.DisplayMessage(err), Error: true, ExpiresAt: c.now().Add(toastDuration)}
		c.logger.Warn("failed to copy log payload", "error", err)
	}
	return err
}

// View returns a snapshot for rendering. Expired toasts are dropped.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Buckets:     auditview.GroupIn(c.filtered, c.loc),
		SelectedKey: c.selected,
		Total:       len(c.logs),
		Showing:     len(c.filtered),
		Error:       c.errMsg,
		Loading:     c.inFlight > 0,
		Filter:      c.spec,
		RefreshedAt: c.refreshedAt,
	}
	if v.Buckets == nil {
		v.Buckets = []auditview.DayBucket{}
	}
	if e, ok := auditview.FindByKey(c.filtered, c.selected); ok {
		v.Selected = &e
	}
	if c.toast != nil {
		if c.now().Before(c.toast.ExpiresAt) {
			t := *c.toast
			v.Toast = &t
		} else {
			c.toast = nil
		}
	}
	if c.autoRefresh != nil {
		v.AutoRefresh = c.autoRefresh()
	}
	return v
}

// BindScheduler lets View report whether auto-refresh is on.
func (c *Controller) BindScheduler(s *Scheduler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoRefresh = s.Enabled
}

// refilterLocked re-applies the filter and re-validates the selection
// against what is now on screen. c.mu must be held.
func (c *Controller) refilterLocked() {
	c.filtered = auditview.ApplyIn(c.logs, c.spec, c.loc)
	c.selected = auditview.ResolveSelection(c.filtered, c.selected)
}
