// Command auditview serves and queries the audit-log console.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	auditview "github.com/kafeiih/go-auditview"
	"github.com/kafeiih/go-auditview/httpsource"
	"github.com/kafeiih/go-auditview/internal/config"
	"github.com/kafeiih/go-auditview/pgxsource"
)

var (
	// Global flags
	verbose bool

	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

var rootCmd = &cobra.Command{
	Use:   "auditview",
	Short: "Inspect audit logs from a REST log source or PostgreSQL",
	Long: `auditview fetches audit events, filters them by level, text, actor,
resource and date range, and groups them by day, newest first.

Configuration comes from the environment (and an optional .env file);
set AUDITVIEW_CONFIG to overlay a YAML file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd, queryCmd, migrationsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration and rebuilds the logger at its level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level, _ := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg, nil
}

// buildSource creates the configured log source. The returned cleanup must
// be called once the source is no longer used.
func buildSource(ctx context.Context, cfg *config.Config) (auditview.Source, func(), error) {
	switch cfg.Source {
	case config.SourcePostgres:
		pool, err := pgxsource.Open(ctx, cfg.DatabaseURL, "auditview")
		if err != nil {
			return nil, nil, err
		}
		return pgxsource.New(pool), pool.Close, nil

	default:
		client, err := httpsource.New(cfg.APIBaseURL,
			httpsource.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
			httpsource.WithSession(httpsource.StaticToken(cfg.APIToken)),
			httpsource.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
			httpsource.WithLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}
}
