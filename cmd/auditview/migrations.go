package main

import (
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kafeiih/go-auditview/pgxsource"
)

var (
	migrationsOut string
	migrationsDSN string
)

var migrationsCmd = &cobra.Command{
	Use:   "migrations",
	Short: "Manage the audit_log schema read by the postgres source",
}

var migrationsCopyCmd = &cobra.Command{
	Use:   "copy",
	Short: "Write the embedded migrations to a directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := pgxsource.CopyMigrations(migrationsOut); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Migrations copied to %s\n", migrationsOut)
		return nil
	},
}

var migrationsApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the embedded migrations to a database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dsn := migrationsDSN
		if dsn == "" {
			_ = godotenv.Load()
			dsn = os.Getenv("AUDITVIEW_DATABASE_URL")
		}
		if dsn == "" {
			return fmt.Errorf("--database-url or AUDITVIEW_DATABASE_URL is required")
		}

		ctx := cmd.Context()
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer conn.Close(ctx)

		applied, err := pgxsource.Apply(ctx, conn)
		for _, name := range applied {
			fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
		}
		return err
	},
}

func init() {
	migrationsCopyCmd.Flags().StringVarP(&migrationsOut, "out", "o", "migrations", "output directory for migrations")
	migrationsApplyCmd.Flags().StringVar(&migrationsDSN, "database-url", "", "PostgreSQL url (defaults to AUDITVIEW_DATABASE_URL)")
	migrationsCmd.AddCommand(migrationsCopyCmd, migrationsApplyCmd)
}
