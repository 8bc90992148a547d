package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	auditview "github.com/kafeiih/go-auditview"
	"github.com/kafeiih/go-auditview/console"
)

var (
	queryFilter auditview.FilterSpec
	queryJSON   bool
	queryCopy   string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Fetch, filter and print audit logs once",
	Long: `Fetches one page of audit logs with the given filter and prints them
grouped by day, newest first. Flags left unset fall back to the configured
default filter.

Use --copy KEY to put the pretty-printed payload of one entry on the
system clipboard.`,
	Example: `  auditview query --level error --from 2024-01-01
  auditview query --search "disk full" --json
  auditview query --copy 42`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	f := queryCmd.Flags()
	f.StringVar(&queryFilter.Level, "level", "", "level: all, info, warning, error or critical")
	f.StringVar(&queryFilter.Search, "search", "", "substring of message, context or actor name")
	f.StringVar(&queryFilter.Actor, "actor", "", "substring of actor name, email or id")
	f.StringVar(&queryFilter.ResourceType, "resource", "", "substring of resource type or id")
	f.StringVar(&queryFilter.DateFrom, "from", "", "first day, YYYY-MM-DD (inclusive)")
	f.StringVar(&queryFilter.DateTo, "to", "", "last day, YYYY-MM-DD (inclusive)")
	f.BoolVar(&queryJSON, "json", false, "print the view as JSON")
	f.StringVar(&queryCopy, "copy", "", "copy the payload of the entry with this key to the clipboard")
}

func runQuery(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	src, cleanup, err := buildSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building log source: %w", err)
	}
	defer cleanup()

	ctrl := console.NewController(src, console.Options{
		PageSize: cfg.PageSize,
		Location: loc,
		Logger:   logger,
	})

	spec := mergeFilter(cfg.DefaultFilter, queryFilter, cmd.Flags().Changed)
	if err := ctrl.ApplyFilter(ctx, spec); err != nil {
		return errors.New(ctrl.View().Error)
	}

	if queryCopy != "" {
		if ctrl.Select(queryCopy) == "" {
			return fmt.Errorf("no entry with key %q in the current result", queryCopy)
		}
		if err := ctrl.CopySelected(console.SystemClipboard{}); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Copied")
		return nil
	}

	view := ctrl.View()
	if queryJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	return render(cmd.OutOrStdout(), view, loc)
}

// mergeFilter overrides base with each flag the user set explicitly.
func mergeFilter(base, flags auditview.FilterSpec, changed func(string) bool) auditview.FilterSpec {
	out := base
	if changed("level") {
		out.Level = flags.Level
	}
	if changed("search") {
		out.Search = flags.Search
	}
	if changed("actor") {
		out.Actor = flags.Actor
	}
	if changed("resource") {
		out.ResourceType = flags.ResourceType
	}
	if changed("from") {
		out.DateFrom = flags.DateFrom
	}
	if changed("to") {
		out.DateTo = flags.DateTo
	}
	return out
}

// render prints the view as day sections with one tab-aligned row per entry.
func render(w io.Writer, v console.View, loc *time.Location) error {
	fmt.Fprintf(w, "Showing %d / %d\n", v.Showing, v.Total)
	if v.Showing == 0 {
		fmt.Fprintln(w, "No logs match the current filter.")
		return nil
	}

	for _, b := range v.Buckets {
		fmt.Fprintf(w, "\n%s (%d)\n", b.Label, len(b.Entries))

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, e := range b.Entries {
			when := "-"
			if e.HasTimestamp() {
				when = e.Timestamp.In(loc).Format("15:04:05")
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
				when, strings.ToUpper(string(e.Level)), e.Message, actorLabel(e), auditview.DeriveKey(e))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func actorLabel(e auditview.LogEntry) string {
	if e.Actor == nil {
		return "-"
	}
	switch {
	case e.Actor.Name != "":
		return e.Actor.Name
	case e.Actor.Email != "":
		return e.Actor.Email
	case e.Actor.ID != "":
		return e.Actor.ID
	}
	return "-"
}
