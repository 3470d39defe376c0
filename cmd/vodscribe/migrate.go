package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/VodScribe/internal/pkg/config"
)

var migrationsPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|goto N|status]",
	Short: "Run SQL migrations",
	Long: `Runs the migrations in <path>/<driver> against the configured database.

Commands:
  up     - apply all pending migrations
  down   - roll back the last migration
  goto N - migrate to version N
  status - show the current migration version`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == "goto" && len(args) < 2 {
			return errors.New("goto needs a version number")
		}
		if !validMigrateCommand(args[0]) {
			return fmt.Errorf("unknown migrate command %q", args[0])
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		source := "file://" + filepath.ToSlash(filepath.Join(migrationsPath, cfg.Database.Driver))
		cmd.Printf("Connecting to %s database %s@%s:%s/%s\n",
			cfg.Database.Driver, cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

		m, err := migrate.New(source, cfg.Database.MigrateURL())
		if err != nil {
			return fmt.Errorf("init migrations: %w", err)
		}
		defer func() {
			if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
				cmd.PrintErrf("closing migration resources: %v, %v\n", sourceErr, dbErr)
			}
		}()

		return runMigration(cmd, m, args)
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsPath, "path", "migrations", "directory holding one migration folder per driver")
}

func validMigrateCommand(name string) bool {
	switch name {
	case "up", "down", "goto", "status":
		return true
	default:
		return false
	}
}

func runMigration(cmd *cobra.Command, m *migrate.Migrate, args []string) error {
	switch args[0] {
	case "up":
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			cmd.Println("No change: database is up to date")
			return nil
		}
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		cmd.Println("Migrations applied")

	case "down":
		if err := m.Steps(-1); err != nil {
			return fmt.Errorf("roll back last migration: %w", err)
		}
		cmd.Println("Last migration rolled back")

	case "goto":
		version, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version: %w", err)
		}
		err = m.Migrate(uint(version))
		if errors.Is(err, migrate.ErrNoChange) {
			cmd.Printf("No change: database is already at version %d\n", version)
			return nil
		}
		if err != nil {
			return fmt.Errorf("migrate to version %d: %w", version, err)
		}
		cmd.Printf("Migrated to version %d\n", version)

	case "status":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			cmd.Println("No migrations applied yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read migration version: %w", err)
		}
		dirtyStatus := ""
		if dirty {
			dirtyStatus = " (dirty)"
		}
		cmd.Printf("Current migration version: %d%s\n", version, dirtyStatus)
	}
	return nil
}
