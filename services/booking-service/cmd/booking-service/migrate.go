package main

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/migrations"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationPool(cmd.Context(), func(ctx context.Context, pool *db.Pool) error {
				if err := db.Migrate(ctx, pool, migrations.FS); err != nil {
					return err
				}
				return printVersion(ctx, cmd, pool)
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationPool(cmd.Context(), func(ctx context.Context, pool *db.Pool) error {
				return printVersion(ctx, cmd, pool)
			})
		},
	})
	return cmd
}

func withMigrationPool(parent context.Context, fn func(context.Context, *db.Pool) error) error {
	if parent == nil {
		parent = context.Background()
	}
	_ = config.LoadDotEnv()
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(parent, 2*time.Minute)
	defer cancel()

	pool, err := db.Open(ctx, dbURL, db.PoolConfig{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool)
}

func printVersion(ctx context.Context, cmd *cobra.Command, pool *db.Pool) error {
	v, err := db.MigrationVersion(ctx, pool)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", v)
	return nil
}
