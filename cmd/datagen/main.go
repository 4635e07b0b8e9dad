package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vanshika/mint/internal/generator"
)

func main() {
	cfg := generator.DefaultConfig()
	var (
		users             = flag.Int("users", cfg.NumUsers, "number of distinct users to draw senders and receivers from")
		transactions      = flag.Int("transactions", cfg.NumTransactions, "number of transactions to generate")
		span              = flag.Duration("span", cfg.Span, "how far back transaction timestamps may reach")
		promotionChance   = flag.Float64("promotion-chance", cfg.PromotionChance, "probability a transaction used a promotion code")
		deviceShareChance = flag.Float64("device-share-chance", cfg.DeviceShareChance, "probability of reusing an existing device")
		seed              = flag.Int64("seed", cfg.Seed, "random seed for deterministic generation")
		outputDir         = flag.String("output-dir", "data", "directory to write transactions.json")
		writeStdout       = flag.Bool("stdout", false, "write the dataset to stdout instead of a file")
	)
	flag.Parse()

	genCfg := generator.Config{
		NumUsers:          *users,
		NumTransactions:   *transactions,
		Span:              *span,
		PromotionChance:   clampProbability(*promotionChance),
		DeviceShareChance: clampProbability(*deviceShareChance),
		Seed:              *seed,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dataset, err := generator.New(genCfg).Generate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generation failed: %v\n", err)
		os.Exit(1)
	}

	if *writeStdout {
		if err := json.NewEncoder(os.Stdout).Encode(dataset); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write dataset to stdout: %v\n", err)
			os.Exit(1)
		}
		return
	}

	path, err := generator.WriteDataset(dataset, *outputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to write dataset: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "Generated %d transactions into %s\n", len(dataset.Transactions), path)
}

func clampProbability(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
