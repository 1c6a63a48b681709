package main

import (
	"context"
	"fmt"
	"io"

	"github.com/BaSui01/flowengine/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate handles the migrate command and its subcommands
func runMigrate(args []string, out io.Writer) error {
	if len(args) < 1 {
		printMigrateUsage(out)
		return errUsage
	}

	subcommand := args[0]
	switch subcommand {
	case "up", "down", "status", "version", "info":
	case "help", "-h", "--help":
		printMigrateUsage(out)
		return nil
	default:
		fmt.Fprintf(out, "Unknown migrate subcommand: %s\n", subcommand)
		printMigrateUsage(out)
		return errUsage
	}

	migrator, err := createMigrator(subcommand, args[1:], out)
	if err != nil {
		return err
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(out)
	if err := cli.Run(context.Background(), subcommand); err != nil {
		return fmt.Errorf("migrate %s failed: %w", subcommand, err)
	}
	return nil
}

// createMigrator creates a migrator from command line flags. An explicit
// --db-type/--db-url pair wins over the store.sql section of the config.
func createMigrator(subcommand string, args []string, out io.Writer) (*migration.DefaultMigrator, error) {
	fs := newFlagSet("migrate "+subcommand, out)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}

	if *dbType != "" && *dbURL != "" {
		t, err := migration.ParseDatabaseType(*dbType)
		if err != nil {
			return nil, err
		}
		return migration.NewMigrator(&migration.Config{DatabaseType: t, DatabaseURL: *dbURL})
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return nil, err
	}
	if *dbType != "" {
		cfg.Store.SQL.Driver = *dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Store.SQL)
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage(w io.Writer) {
	fmt.Fprint(w, `Database Migration Commands

Usage:
  flowengine migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration
  status    Show migration status
  version   Show current migration version
  info      Show migration summary
  help      Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: store.sql.driver)
  --db-url <url>      Database connection URL (default: built from store.sql)

Examples:
  flowengine migrate up
  flowengine migrate up --config /etc/flowengine/config.yaml
  flowengine migrate status --db-type sqlite --db-url 'file:flowengine.db'
`)
}
