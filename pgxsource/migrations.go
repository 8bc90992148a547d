package pgxsource

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Execer is the write side needed to apply migrations. The read-only pool
// from Open cannot be used; pass a *pgx.Conn opened for the purpose.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// MigrationFiles returns the embedded migration file names in apply order.
func MigrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

// CopyMigrations writes the embedded migrations into dstDir for use with an
// external migration tool. It refuses to overwrite existing files.
func CopyMigrations(dstDir string) error {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	files, err := MigrationFiles()
	if err != nil {
		return err
	}

	for _, name := range files {
		target := filepath.Join(dstDir, name)
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("migration already exists: %s", target)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("checking existing migration %s: %w", target, err)
		}

		content, err := readMigration(name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, content, 0o644); err != nil {
			return fmt.Errorf("writing migration %s: %w", target, err)
		}
	}

	return nil
}

// Apply executes every embedded migration in order. The statements are
// idempotent, so re-running Apply against an up-to-date schema is safe.
func Apply(ctx context.Context, db Execer) ([]string, error) {
	files, err := MigrationFiles()
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(files))
	for _, name := range files {
		content, err := readMigration(name)
		if err != nil {
			return applied, err
		}
		if _, err := db.Exec(ctx, string(content)); err != nil {
			return applied, fmt.Errorf("applying migration %s: %w", name, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}

func readMigration(name string) ([]byte, error) {
	content, err := fs.ReadFile(embeddedMigrations, path.Join("migrations", name))
	if err != nil {
		return nil, fmt.Errorf("reading embedded migration %s: %w", name, err)
	}
	return content, nil
}
