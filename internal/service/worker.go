package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vanshika/mint/internal/domain"
)

// TaskError accumulates the per-record failures of one bulk ingestion.
type TaskError struct {
	Errors []error
}

func (e *TaskError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors:", len(e.Errors))
	for _, err := range e.Errors {
		b.WriteString(" ")
		b.WriteString(err.Error())
		b.WriteString(";")
	}
	return b.String()
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e *TaskError) Unwrap() []error {
	return e.Errors
}

func (e *TaskError) append(err error) {
	if err == nil {
		return
	}
	e.Errors = append(e.Errors, err)
}

func (e *TaskError) asError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Recorder persists one fully formed transaction.
type Recorder interface {
	Record(ctx context.Context, tx domain.Transaction) (int64, error)
}

// BulkIngestor records large transaction datasets using a worker pool.
type BulkIngestor struct {
	recorder Recorder
	workers  int
}

// NewBulkIngestor creates a new BulkIngestor instance with the provided concurrency.
// Concurrency beyond the database pool size only queues on connection checkout.
func NewBulkIngestor(recorder Recorder, workers int) *BulkIngestor {
	if workers <= 0 {
		workers = 4
	}
	return &BulkIngestor{
		recorder: recorder,
		workers:  workers,
	}
}

// IngestTransactions records transactions concurrently. Failures of individual
// records are collected into a *TaskError; cancellation stops the run early.
func (bi *BulkIngestor) IngestTransactions(ctx context.Context, txs []domain.Transaction) error {
	return bi.run(ctx, len(txs), func(idx int) error {
		if _, err := bi.recorder.Record(ctx, txs[idx]); err != nil {
			return fmt.Errorf("transaction %d: %w", txs[idx].TransactionID, err)
		}
		return nil
	})
}

func (bi *BulkIngestor) run(ctx context.Context, total int, workerFn func(idx int) error) error {
	if total == 0 {
		return nil
	}
	indexCh := make(chan int)
	errCh := make(chan error, total)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for idx := range indexCh {
			if err := workerFn(idx); err != nil {
				select {
				case errCh <- err:
				case <-ctx.Done():
					return
				}
			}
		}
	}

	for i := 0; i < bi.workers; i++ {
		wg.Add(1)
		go worker()
	}

Loop:
	for i := 0; i < total; i++ {
		select {
		case indexCh <- i:
		case <-ctx.Done():
			break Loop
		}
	}
	close(indexCh)
	wg.Wait()
	close(errCh)

	var taskErr TaskError
	for err := range errCh {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		taskErr.append(err)
	}
	return taskErr.asError()
}
