package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"slideboard-measure/internal/config"
	"slideboard-measure/internal/database"
	"slideboard-measure/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "apply-migration [file.sql]",
		Short: "Apply the measure task schema (or a SQL file) to the configured database",
		Long: `Without arguments the embedded schema is applied in a single transaction.
With a file argument only that script is applied. Connection settings come
from the same DB_* environment variables as the service.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			script, source, err := loadScript(args)
			if err != nil {
				return err
			}
			if printOnly {
				fmt.Fprint(cmd.OutOrStdout(), script)
				return nil
			}
			return apply(cmd.Context(), script, source)
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the script instead of applying it")
	cmd.AddCommand(newListCmd())
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List embedded migration files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := database.MigrationFiles()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func loadScript(args []string) (string, string, error) {
	if len(args) == 0 {
		schema, err := database.Schema()
		if err != nil {
			return "", "", err
		}
		return schema, "embedded schema", nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", fmt.Errorf("failed to read migration file: %w", err)
	}
	return string(data), args[0], nil
}

func apply(ctx context.Context, script, source string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Load()
	log, err := logger.NewLogger(cfg.Log.Level, "console", "apply-migration")
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(ctx, &cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.ApplySQL(ctx, db, script); err != nil {
		return err
	}
	fmt.Printf("Migration applied: %s (database %s)\n", source, cfg.Database.Database)
	return nil
}
