package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kafeiih/go-auditview/console"
	"github.com/kafeiih/go-auditview/consoleapi"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the console API",
	Long: `Starts the console HTTP API. The initial log set is fetched with the
configured default filter; auto-refresh starts right away when
AUDITVIEW_AUTO_REFRESH is set and can be toggled through the API.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides AUDITVIEW_LISTEN_ADDR)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	sched := console.NewScheduler(ctrl.Refresh, cfg.RefreshInterval, logger)
	ctrl.BindScheduler(sched)
	ctrl.SetFilter(cfg.DefaultFilter)

	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           consoleapi.NewHandler(gctx, ctrl, sched, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("console listening", "addr", cfg.ListenAddr, "source", cfg.Source)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving console: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if cfg.AutoRefresh {
			sched.Enable(gctx)
		} else {
			_ = sched.RefreshNow(gctx)
		}

		<-gctx.Done()
		sched.Disable()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down console: %w", err)
		}
		if err := sched.Shutdown(shutdownCtx); err != nil {
			logger.Warn("auto-refresh still running at shutdown", "error", err)
		}
		logger.Info("console stopped")
		return nil
	})

	return g.Wait()
}
