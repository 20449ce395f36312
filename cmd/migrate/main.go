package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/asakaida/relgraph/internal/demo"
	"github.com/asakaida/relgraph/internal/infrastructure/config"
	"github.com/asakaida/relgraph/internal/infrastructure/database"
	"github.com/asakaida/relgraph/internal/logging"
	"github.com/asakaida/relgraph/internal/repositories"
	"github.com/asakaida/relgraph/internal/repositories/postgres"
)

const (
	migrationsPathSuffix = "internal/infrastructure/database/migrations/postgres"
)

var (
	envFlag string
	pg      *database.Postgres
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool for relgraph",
	Long: `Database migration tool for relgraph.
Manages the PostgreSQL demo schema using golang-migrate.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupDatabase,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if pg != nil {
			pg.Close()
		}
	},
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runUp,
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Rollback migrations",
	Long:  `Rollback the specified number of migrations (default: 1).`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDown,
}

var gotoCmd = &cobra.Command{
	Use:   "goto <version>",
	Short: "Migrate to a specific version",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoto,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show current migration version",
	RunE:  runVersion,
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Force set migration version (use with caution)",
	Long:  `Force set the migration version without running migrations. Use with caution.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runForce,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the demo graph",
	Long:  `Insert the demo persons, animals and movies into an empty, migrated database.`,
	RunE:  runSeed,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")

	rootCmd.AddCommand(upCmd, downCmd, gotoCmd, versionCmd, forceCmd, seedCmd)
}

func main() {
	logger, err := logging.New(os.Stderr, "info", "console")
	if err == nil {
		logging.SetGlobalLogger(logger)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupDatabase(cmd *cobra.Command, args []string) error {
	logging.Info().Str("env", envFlag).Msg("using environment")

	if err := config.InitConfig(envFlag); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.Backend != config.BackendPostgres {
		return fmt.Errorf("migrations need DB_BACKEND=%s, got %s", config.BackendPostgres, cfg.Database.Backend)
	}

	pg, err = database.NewPostgres(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	logging.Info().
		Str("user", cfg.Database.User).
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("database", cfg.Database.Database).
		Msg("connected to database")
	return nil
}

func newMigrator() (*migrate.Migrate, error) {
	projectRoot, err := findProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to find project root: %w", err)
	}

	migrationsPath := filepath.Join(projectRoot, migrationsPathSuffix)
	logging.Info().Str("path", migrationsPath).Msg("using migrations")
	return pg.NewMigrator(migrationsPath)
}

func runUp(cmd *cobra.Command, args []string) error {
	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logging.Info().Msg("no migrations to apply")
	case err != nil:
		return fmt.Errorf("migration up failed: %w", err)
	default:
		logging.Info().Msg("migration up completed successfully")
	}
	return nil
}

func runDown(cmd *cobra.Command, args []string) error {
	steps := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("steps must be a positive integer, got %q", args[0])
		}
		steps = n
	}

	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Steps(-steps)
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logging.Info().Msg("no migrations to rollback")
	case err != nil:
		return fmt.Errorf("migration down failed: %w", err)
	default:
		logging.Info().Int("steps", steps).Msg("migration down completed successfully")
	}
	return nil
}

func runGoto(cmd *cobra.Command, args []string) error {
	version, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[0], err)
	}

	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Migrate(uint(version))
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logging.Info().Uint64("version", version).Msg("already at version")
	case err != nil:
		return fmt.Errorf("migration goto failed: %w", err)
	default:
		logging.Info().Uint64("version", version).Msg("migration goto completed successfully")
	}
	return nil
}

func runVersion(cmd *cobra.Command, args []string) error {
	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logging.Info().Msg("no migrations applied yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}

	logging.Info().Uint("version", version).Bool("dirty", dirty).Msg("current version")
	return nil
}

func runForce(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[0], err)
	}

	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}

	logging.Info().Int("version", version).Msg("migration forced")
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	ex := postgres.NewPostgresExecutor(pg.DB)
	err := ex.Transaction(cmd.Context(), func(tx repositories.Executor) error {
		return demo.Seed(cmd.Context(), tx)
	})
	if err != nil {
		return err
	}

	logging.Info().Msg("demo graph inserted")
	return nil
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}
