package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"

	"github.com/vanshika/mint/internal/config"
	"github.com/vanshika/mint/internal/database"
	"github.com/vanshika/mint/internal/logging"
	"github.com/vanshika/mint/internal/repository"
	"github.com/vanshika/mint/internal/service"
)

const usage = `usage:
  admin keys list
  admin keys add <key>
  admin keys remove <key>
  admin keys sync <file>
  admin summary -start <date> -end <date>`

var errUsage = errors.New(usage)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging).With("component", "admin")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	pool, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()
	pool.EnsureSchema(ctx)

	switch args[0] {
	case "keys":
		return runKeys(ctx, repository.NewKeyStore(pool, 0, logger), args[1:], out)
	case "summary":
		svc := service.NewTransactionService(repository.NewTransactionStore(pool), nil, logger)
		return runSummary(ctx, svc, args[1:], out)
	default:
		return errUsage
	}
}

func runKeys(ctx context.Context, keys *repository.KeyStore, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "list":
		list, err := keys.List(ctx)
		if err != nil {
			return err
		}
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"#", "API key"})
		for i, k := range list {
			table.Append([]string{strconv.Itoa(i + 1), k})
		}
		table.Render()
		return nil
	case "add":
		if len(args) != 2 {
			return errUsage
		}
		added, err := keys.Add(ctx, args[1])
		if err != nil {
			return err
		}
		if !added {
			fmt.Fprintln(out, "key already registered")
			return nil
		}
		fmt.Fprintln(out, "key added")
		return nil
	case "remove":
		if len(args) != 2 {
			return errUsage
		}
		removed, err := keys.Remove(ctx, args[1])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintln(out, "key not found")
			return nil
		}
		fmt.Fprintln(out, "key removed")
		return nil
	case "sync":
		if len(args) != 2 {
			return errUsage
		}
		list, err := readKeyFile(args[1])
		if err != nil {
			return err
		}
		res, err := keys.Sync(ctx, list)
		if err != nil {
			return err
		}
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Added", "Removed"})
		table.Append([]string{strconv.Itoa(res.Added), strconv.Itoa(res.Removed)})
		table.Render()
		return nil
	default:
		return errUsage
	}
}

// readKeyFile reads one key per line. Blank lines and lines starting with #
// are skipped.
func readKeyFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var keys []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return keys, nil
}

func runSummary(ctx context.Context, svc *service.TransactionService, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	start := fs.String("start", "", "range start (inclusive)")
	end := fs.String("end", "", "range end (inclusive)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rng, err := service.ParseDateRange(*start, *end)
	if err != nil {
		return err
	}
	summaries, err := svc.Summary(ctx, rng)
	if err != nil {
		return err
	}
	total, err := svc.TotalAmount(ctx, rng)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Type", "Count", "Total amount"})
	var count int64
	for _, s := range summaries {
		count += s.Count
		table.Append([]string{string(s.Type), strconv.FormatInt(s.Count, 10), s.TotalAmount.StringFixed(2)})
	}
	table.SetFooter([]string{"All", strconv.FormatInt(count, 10), total.TotalAmount.StringFixed(2)})
	table.Render()
	return nil
}
