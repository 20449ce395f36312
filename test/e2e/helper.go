package e2e

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/relgraph/internal/demo"
	"github.com/asakaida/relgraph/internal/entities"
	"github.com/asakaida/relgraph/internal/handlers"
	"github.com/asakaida/relgraph/internal/infrastructure/config"
	"github.com/asakaida/relgraph/internal/infrastructure/database"
	"github.com/asakaida/relgraph/internal/infrastructure/declarations"
	"github.com/asakaida/relgraph/internal/infrastructure/metrics"
	"github.com/asakaida/relgraph/internal/repositories"
	"github.com/asakaida/relgraph/internal/repositories/memory"
	"github.com/asakaida/relgraph/internal/repositories/postgres"
	"github.com/asakaida/relgraph/internal/services"
	"github.com/asakaida/relgraph/internal/services/eager"
	"github.com/asakaida/relgraph/internal/services/parser"
	"github.com/asakaida/relgraph/pkg/cache/memorycache"
)

const bufSize = 1024 * 1024

// demoTables lists the demo schema tables, children first
var demoTables = []string{"persons_movies", "animals", "movies", "persons"}

// E2ETestServer holds the test server and client
type E2ETestServer struct {
	Server    *grpc.Server
	Client    *handlers.GraphClient
	Conn      *grpc.ClientConn
	DB        *sql.DB
	Listener  *bufconn.Listener
	Collector *metrics.Collector
	Registry  *prometheus.Registry
	cancel    context.CancelFunc
}

// SetupE2ETest serves the demo graph of models.hcl over an in-process gRPC server.
// The graph lives in the test database when one is reachable and in memory otherwise.
func SetupE2ETest(t *testing.T) *E2ETestServer {
	t.Helper()

	projectRoot, err := findProjectRoot()
	if err != nil {
		t.Fatalf("failed to find project root: %v", err)
	}

	models, err := declarations.Load(filepath.Join(projectRoot, "models.hcl"))
	if err != nil {
		t.Fatalf("failed to load models: %v", err)
	}

	executor, db := setupExecutor(t, projectRoot, models)

	ctx, cancel := context.WithCancel(context.Background())
	if err := demo.Seed(ctx, executor); err != nil {
		cancel()
		t.Fatalf("failed to seed demo graph: %v", err)
	}

	collector := metrics.NewCollector()
	reg := prometheus.NewRegistry()
	exporter := metrics.NewPrometheusExporter(collector, reg)
	recorder := metrics.NewRecorder(collector, exporter)

	registry := services.NewRegistry(repositories.Observe(executor, recorder.ObserveStatement))
	if err := registry.Register(models...); err != nil {
		cancel()
		t.Fatalf("failed to register models: %v", err)
	}

	exprCache := memorycache.New(&memorycache.Config[*parser.EagerNode]{
		MaxSizeBytes:  1 << 20,
		DefaultTTL:    time.Minute,
		EnableMetrics: true,
	})
	collector.SetCache(exprCache)

	loader := eager.NewLoader(registry, eager.Options{
		MaxConcurrency:    4,
		MaxRecursionDepth: 10,
		Cache:             exprCache,
		CacheTTL:          time.Minute,
		Recorder:          recorder,
	})

	server := grpc.NewServer(grpc.UnaryInterceptor(metrics.UnaryServerInterceptor(recorder)))
	handlers.RegisterGraphServer(server, handlers.NewGraphHandler(registry, loader))

	listener := bufconn.Listen(bufSize)
	go func() {
		if err := server.Serve(listener); err != nil {
			t.Logf("server exited with error: %v", err)
		}
	}()

	bufDialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}

	conn, err := grpc.NewClient(
		"passthrough://bufconn",
		grpc.WithContextDialer(bufDialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		cancel()
		t.Fatalf("failed to create client connection: %v", err)
	}

	return &E2ETestServer{
		Server:    server,
		Client:    handlers.NewGraphClient(conn),
		Conn:      conn,
		DB:        db,
		Listener:  listener,
		Collector: collector,
		Registry:  reg,
		cancel:    cancel,
	}
}

// setupExecutor prepares an empty demo schema. db is nil on the memory backend.
func setupExecutor(t *testing.T, projectRoot string, models []*entities.Model) (repositories.Executor, *sql.DB) {
	t.Helper()

	if db := openTestDB(t, projectRoot); db != nil {
		return postgres.NewPostgresExecutor(db), db
	}

	tables := make([]memory.Table, 0, len(models))
	for _, m := range models {
		tables = append(tables, memory.Table{Name: m.Table, IDColumn: m.ID()})
	}
	ex, err := memory.NewExecutor(tables...)
	if err != nil {
		t.Fatalf("failed to create memory executor: %v", err)
	}
	return ex, nil
}

// openTestDB returns the migrated and emptied test database, or nil when none is configured
func openTestDB(t *testing.T, projectRoot string) *sql.DB {
	t.Helper()

	if err := config.InitConfig("test"); err != nil {
		t.Fatalf("failed to init config: %v", err)
	}
	cfg, err := config.Load()
	if err != nil || cfg.Database.Backend != config.BackendPostgres {
		t.Log("test database is not configured, using the memory backend")
		return nil
	}

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Logf("test database is unavailable, using the memory backend: %v", err)
		return nil
	}

	migrationsPath := filepath.Join(projectRoot, "internal/infrastructure/database/migrations/postgres")
	if err := pg.RunMigrations(migrationsPath); err != nil {
		pg.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	cleanupDatabase(t, pg.DB)
	return pg.DB
}

// Teardown cleans up the E2E test environment
func (e *E2ETestServer) Teardown(t *testing.T) {
	t.Helper()

	if e.Conn != nil {
		e.Conn.Close()
	}
	if e.Server != nil {
		e.Server.Stop()
	}
	if e.Listener != nil {
		e.Listener.Close()
	}
	if e.cancel != nil {
		e.cancel()
	}
	if e.DB != nil {
		cleanupDatabase(t, e.DB)
		e.DB.Close()
	}
}

// cleanupDatabase removes all data from test database
func cleanupDatabase(t *testing.T, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, table := range demoTables {
		query := fmt.Sprintf("DELETE FROM %s", table)
		if _, err := db.ExecContext(ctx, query); err != nil {
			t.Logf("warning: failed to clean up table %s: %v", table, err)
		}
	}
}

// Fetch calls GraphService.Fetch and returns the records of the response
func (e *E2ETestServer) Fetch(ctx context.Context, t *testing.T, fields map[string]any) []map[string]any {
	t.Helper()

	resp, err := e.Client.Fetch(ctx, newRequest(t, fields))
	if err != nil {
		t.Fatalf("Fetch(%v) failed: %v", fields, err)
	}

	raw, _ := resp.AsMap()["records"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.(map[string]any))
	}
	return out
}

func newRequest(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()

	req, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	return req
}

// findProjectRoot finds the project root directory by looking for go.mod
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
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
