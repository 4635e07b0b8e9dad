package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vanshika/mint/internal/config"
	"github.com/vanshika/mint/internal/database"
	"github.com/vanshika/mint/internal/generator"
	"github.com/vanshika/mint/internal/graph"
	"github.com/vanshika/mint/internal/logging"
	"github.com/vanshika/mint/internal/repository"
	"github.com/vanshika/mint/internal/server"
	"github.com/vanshika/mint/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Warn("closing database pool failed", "error", err)
		}
	}()
	pool.EnsureSchema(ctx)

	keys := repository.NewKeyStore(pool, cfg.Auth.CacheTTL, logger)
	store := repository.NewTransactionStore(pool)

	projector := buildProjector(ctx, logger, cfg.Graph)
	health := server.DependencyHealth{Database: pool}
	var svcProjector service.Projector
	if projector != nil {
		health.Graph = projector
		svcProjector = projector
		defer func() {
			if err := projector.Close(context.Background()); err != nil {
				logger.Warn("closing graph client failed", "error", err)
			}
		}()
	}

	svc := service.NewTransactionService(store, svcProjector, logger)

	runner := generator.NewRunner(generator.RunnerConfig{Interval: cfg.Generator.Interval}, svc, nil, logger)
	if cfg.Generator.AutoStart {
		runner.Start()
	}
	defer runner.Stop()

	router := server.NewRouter(logger, server.RouterDependencies{
		Health:           health,
		API:              server.NewAPIHandlers(logger, svc, runner),
		Keys:             keys,
		AuthHeader:       cfg.Auth.HeaderName,
		RateLimit:        cfg.RateLimit,
		AllowedOrigins:   parseAllowedOrigins(cfg.HTTP.AllowedOriginsCSV),
		AllowCredentials: true,
	})

	// The generator is joined before the server drains, so no insert races
	// the pool being closed.
	serveCtx, cancelServe := context.WithCancel(context.Background())
	defer cancelServe()
	go func() {
		<-ctx.Done()
		runner.Stop()
		cancelServe()
	}()

	srv := server.New(logger, cfg.HTTP, router)
	if err := srv.Run(serveCtx); err != nil {
		logger.Error("server stopped unexpectedly", "error", err)
	}
	logger.Info("shutting down")
}

// buildProjector connects to the graph when GRAPH_URI is set. A graph that
// cannot be reached is logged and skipped so the API still serves.
func buildProjector(ctx context.Context, logger *slog.Logger, cfg config.GraphConfig) *graph.Projector {
	if cfg.URI == "" {
		logger.Info("graph projection disabled")
		return nil
	}

	client, err := graph.NewNeo4jClient(ctx, graph.OptionsFromConfig(cfg))
	if err != nil {
		logger.Warn("failed to create graph client", "error", err)
		return nil
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		logger.Warn("graph unreachable, projection disabled", "uri", cfg.URI, "error", err)
		_ = client.Close(ctx)
		return nil
	}

	projector := graph.NewProjector(client, logger)
	if err := projector.EnsureConstraints(ctx); err != nil {
		logger.Warn("failed to create graph constraints", "error", err)
	}
	logger.Info("connected to graph", "uri", cfg.URI, "database", cfg.Database)
	return projector
}

func parseAllowedOrigins(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	var origins []string
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		origins = append(origins, origin)
	}
	return origins
}
