package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vanshika/mint/internal/config"
	"github.com/vanshika/mint/internal/database"
	"github.com/vanshika/mint/internal/generator"
	"github.com/vanshika/mint/internal/logging"
	"github.com/vanshika/mint/internal/repository"
	"github.com/vanshika/mint/internal/service"
)

var errMissingDataset = errors.New("dataset not found")

func main() {
	var (
		datasetDir   = flag.String("dataset-dir", "./data", "Directory containing transactions.json")
		transactions = flag.String("transactions", "", "Path to transactions.json (overrides dataset-dir)")
		workers      = flag.Int("workers", 4, "Number of concurrent workers for ingestion")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging).With("component", "ingest")

	txFile, err := resolveDatasetPath(*datasetDir, *transactions)
	if err != nil {
		logger.Error("dataset resolution failed", "error", err)
		os.Exit(1)
	}

	dataset, err := generator.ReadDataset(txFile)
	if err != nil {
		logger.Error("failed to load transactions", "error", err, "path", txFile)
		os.Exit(1)
	}
	if len(dataset.Transactions) == 0 {
		logger.Error("transactions dataset empty", "path", txFile)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	pool.EnsureSchema(ctx)

	svc := service.NewTransactionService(repository.NewTransactionStore(pool), nil, logger)
	ingestor := service.NewBulkIngestor(svc, *workers)

	start := time.Now()
	logger.Info("ingesting transactions", "count", len(dataset.Transactions), "workers", *workers, "seed", dataset.Seed)
	if err := ingestor.IngestTransactions(ctx, dataset.Transactions); err != nil {
		var taskErr *service.TaskError
		if errors.As(err, &taskErr) {
			logger.Error("some transactions failed", "failed", len(taskErr.Errors), "total", len(dataset.Transactions), "error", err)
		} else {
			logger.Error("transaction ingestion failed", "error", err)
		}
		os.Exit(1)
	}

	logger.Info("ingestion complete", "duration", time.Since(start).String(), "transactions", len(dataset.Transactions))
}

func resolveDatasetPath(baseDir, explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("stat %s: %w", explicitPath, err)
		}
		return explicitPath, nil
	}
	path := filepath.Join(baseDir, generator.DatasetFile)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", errMissingDataset, path)
	}
	return path, nil
}
