package generator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vanshika/mint/internal/domain"
)

// State is the run state of a Runner.
type State string

const (
	StateStopped State = "STOPPED"
	StateRunning State = "RUNNING"
)

// Sink persists generated transactions.
type Sink interface {
	Record(ctx context.Context, tx domain.Transaction) (int64, error)
}

// Status is a point-in-time view of a Runner.
type Status struct {
	State    State  `json:"state"`
	Interval string `json:"interval"`
	Cycles   int64  `json:"cycles"`
	Failures int64  `json:"failures"`
}

// Runner inserts one synthetic transaction per interval while running.
// Start and Stop may be called from any goroutine; at most one worker exists.
type Runner struct {
	sink   Sink
	synth  *Synthesizer
	cfg    RunnerConfig
	logger *slog.Logger
	nowFn  func() time.Time

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	cycles   atomic.Int64
	failures atomic.Int64
}

// NewRunner builds a stopped Runner.
func NewRunner(cfg RunnerConfig, sink Sink, synth *Synthesizer, logger *slog.Logger) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = defaultCycleTimeout
	}
	if synth == nil {
		synth = New(Config{})
	}
	return &Runner{
		sink:   sink,
		synth:  synth,
		cfg:    cfg,
		logger: logger.With("component", "generator"),
		nowFn:  time.Now,
		state:  StateStopped,
	}
}

// Start spawns the worker. It reports false if the runner was already running.
func (r *Runner) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRunning {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.state = StateRunning
	go r.loop(ctx, r.done)

	r.logger.Info("generator started", "interval", r.cfg.Interval.String())
	return true
}

// Stop signals the worker and waits for it to exit. An insert already in
// flight completes first. It reports false if the runner was not running.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRunning {
		return false
	}
	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil
	r.state = StateStopped

	r.logger.Info("generator stopped", "cycles", r.cycles.Load(), "failures", r.failures.Load())
	return true
}

// State reports the current run state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Status reports the run state with cycle counters.
func (r *Runner) Status() Status {
	return Status{
		State:    r.State(),
		Interval: r.cfg.Interval.String(),
		Cycles:   r.cycles.Load(),
		Failures: r.failures.Load(),
	}
}

func (r *Runner) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		r.cycle()
		timer.Reset(r.cfg.Interval)
	}
}

// cycle runs on its own context so cancelling the loop never aborts an insert.
func (r *Runner) cycle() {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.CycleTimeout)
	defer cancel()

	r.cycles.Add(1)
	tx := r.synth.Next(r.nowFn())
	id, err := r.sink.Record(ctx, tx)
	if err != nil {
		r.failures.Add(1)
		r.logger.Error("generator cycle failed", "type", tx.Type, "error", err)
		return
	}
	r.logger.Debug("generated transaction", "transactionId", id, "type", tx.Type, "amount", tx.OriginAmountDetails.TransactionAmount.String())
}
