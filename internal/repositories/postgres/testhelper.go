package postgres

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/asakaida/relgraph/internal/infrastructure/config"
	"github.com/asakaida/relgraph/internal/infrastructure/database"
	_ "github.com/lib/pq"
)

// demoTables lists the demo schema tables, children first
var demoTables = []string{"persons_movies", "animals", "movies", "persons"}

// SetupTestDB connects to the test database and runs the demo migrations.
// The test is skipped when no database is reachable.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	if err := config.InitConfig("test"); err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Skipf("Skipping: test database is not configured: %v", err)
	}
	if cfg.Database.Backend != config.BackendPostgres {
		t.Skip("Skipping: DB_BACKEND is not postgres")
	}

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Skipf("Skipping: test database is unavailable: %v", err)
	}

	if err := pg.RunMigrations("../../../internal/infrastructure/database/migrations/postgres"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	for _, table := range demoTables {
		if _, err := pg.DB.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			t.Fatalf("Failed to clean table %s: %v", table, err)
		}
	}

	return pg.DB
}

// CleanupTestDB removes demo data and closes the database connection
func CleanupTestDB(t *testing.T, db *sql.DB) {
	t.Helper()

	for _, table := range demoTables {
		_, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("Warning: Failed to clean up table %s: %v", table, err)
		}
	}

	if err := db.Close(); err != nil {
		t.Logf("Warning: Failed to close database: %v", err)
	}
}
