package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/asakaida/relgraph/internal/demo"
	"github.com/asakaida/relgraph/internal/handlers"
	"github.com/asakaida/relgraph/internal/infrastructure/config"
	"github.com/asakaida/relgraph/internal/infrastructure/database"
	"github.com/asakaida/relgraph/internal/infrastructure/declarations"
	"github.com/asakaida/relgraph/internal/infrastructure/metrics"
	"github.com/asakaida/relgraph/internal/logging"
	"github.com/asakaida/relgraph/internal/repositories"
	"github.com/asakaida/relgraph/internal/repositories/memory"
	"github.com/asakaida/relgraph/internal/repositories/postgres"
	"github.com/asakaida/relgraph/internal/services"
	"github.com/asakaida/relgraph/internal/services/eager"
	"github.com/asakaida/relgraph/internal/services/parser"
	"github.com/asakaida/relgraph/pkg/cache"
	"github.com/asakaida/relgraph/pkg/cache/memorycache"
	"github.com/asakaida/relgraph/pkg/cache/theinecache"
)

const defaultEnv = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relgraph: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	env := os.Getenv("ENV")
	if env == "" {
		env = defaultEnv
	}

	if err := config.InitConfig(env); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logging.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	logging.Info().Str("env", env).Str("backend", cfg.Database.Backend).Msg("starting relgraph")

	models, err := declarations.Load(cfg.Models.File)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}

	// Metrics
	collector := metrics.NewCollector()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	exporter := metrics.NewPrometheusExporter(collector, reg)
	recorder := metrics.NewRecorder(collector, exporter)

	// Executor
	var (
		executor repositories.Executor
		closeDB  = func() error { return nil }
	)
	switch cfg.Database.Backend {
	case config.BackendPostgres:
		pg, err := database.NewPostgres(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		closeDB = pg.Close
		executor = postgres.NewPostgresExecutor(pg.DB)
		logging.Info().
			Str("user", cfg.Database.User).
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("connected to database")
	case config.BackendMemory:
		tables := make([]memory.Table, 0, len(models))
		for _, m := range models {
			tables = append(tables, memory.Table{Name: m.Table, IDColumn: m.ID()})
		}
		mem, err := memory.NewExecutor(tables...)
		if err != nil {
			return fmt.Errorf("failed to create memory executor: %w", err)
		}
		executor = mem
	}
	defer func() {
		if err := closeDB(); err != nil {
			logging.Warn().Err(err).Msg("error closing database connection")
		}
	}()

	if cfg.Models.SeedDemo {
		if err := demo.Seed(context.Background(), executor); err != nil {
			return err
		}
		logging.Info().Msg("seeded demo graph")
	}
	executor = repositories.Observe(executor, recorder.ObserveStatement)

	registry := services.NewRegistry(executor)
	if err := registry.Register(models...); err != nil {
		return fmt.Errorf("failed to register models: %w", err)
	}
	logging.Info().Int("models", len(models)).Str("file", cfg.Models.File).Msg("registered models")

	opts := eager.Options{
		MaxConcurrency:    cfg.Eager.MaxConcurrency,
		MaxRecursionDepth: cfg.Eager.MaxRecursionDepth,
		Recorder:          recorder,
	}
	if cfg.Cache.Enabled {
		exprCache, err := newExpressionCache(cfg.Cache)
		if err != nil {
			return fmt.Errorf("failed to create expression cache: %w", err)
		}
		collector.SetCache(exprCache)
		opts.Cache = exprCache
		logging.Info().Str("backend", cfg.Cache.Backend).Int64("max_bytes", cfg.Cache.MaxMemoryBytes).Msg("expression cache enabled")
	}
	loader := eager.NewLoader(registry, opts)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(metrics.UnaryServerInterceptor(recorder)))
	handlers.RegisterGraphServer(grpcServer, handlers.NewGraphHandler(registry, loader))

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 2)
	go func() {
		logging.Info().Str("addr", listener.Addr().String()).Msg("gRPC server listening")
		if err := grpcServer.Serve(listener); err != nil {
			serverErrors <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	go func() {
		logging.Info().Str("addr", metricsServer.Addr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		grpcServer.Stop()
		return err
	case sig := <-sigChan:
		logging.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		logging.Info().Msg("server stopped gracefully")
	case <-shutdownCtx.Done():
		logging.Warn().Msg("shutdown timeout exceeded, forcing stop")
		grpcServer.Stop()
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("error stopping metrics server")
	}

	logging.Info().Msg("shutdown complete")
	return nil
}

// expressionCache is a parsed-tree cache the metrics collector can inspect
type expressionCache interface {
	cache.Cache[*parser.EagerNode]
	metrics.CacheStats
}

func newExpressionCache(cfg config.CacheConfig) (expressionCache, error) {
	ttl := time.Duration(cfg.TTLMinutes) * time.Minute
	if cfg.Backend == config.CacheBackendTheine {
		c, err := theinecache.New(&theinecache.Config[*parser.EagerNode]{
			MaxCost:    cfg.MaxMemoryBytes,
			DefaultTTL: ttl,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return memorycache.New(&memorycache.Config[*parser.EagerNode]{
		MaxSizeBytes:  cfg.MaxMemoryBytes,
		DefaultTTL:    ttl,
		EnableMetrics: cfg.Metrics,
	}), nil
}
