// Package pgxsource reads audit logs straight from PostgreSQL. It implements
// auditview.Source with the same filter semantics as the REST log source and
// ships the schema as embedded migrations.
package pgxsource

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultApplicationName = "auditview"

// DB abstracts the pgxpool.Pool methods used by Source.
// *pgxpool.Pool, pgx.Tx and test mocks all satisfy it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Open connects a pool whose sessions are read-only: the viewer never writes
// to the audit table.
func Open(ctx context.Context, dsn, applicationName string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	configureSession(cfg.ConnConfig, applicationName)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

func configureSession(cc *pgx.ConnConfig, applicationName string) {
	if applicationName == "" {
		applicationName = defaultApplicationName
	}
	if cc.RuntimeParams == nil {
		cc.RuntimeParams = map[string]string{}
	}
	cc.RuntimeParams["application_name"] = applicationName
	cc.RuntimeParams["default_transaction_read_only"] = "on"
}
