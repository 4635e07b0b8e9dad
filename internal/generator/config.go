package generator

import "time"

// Config drives the synthetic dataset generator.
type Config struct {
	NumUsers        int
	NumTransactions int
	// Span is how far back generated timestamps may reach.
	Span              time.Duration
	PromotionChance   float64
	DeviceShareChance float64
	Seed              int64
}

// DefaultConfig returns baseline settings for a realistic demo dataset.
func DefaultConfig() Config {
	return Config{
		NumUsers:          500,
		NumTransactions:   10000,
		Span:              60 * 24 * time.Hour,
		PromotionChance:   0.1,
		DeviceShareChance: 0.3,
		Seed:              42,
	}
}

// RunnerConfig controls the background generator loop.
type RunnerConfig struct {
	// Interval is the pause between two cycles.
	Interval time.Duration
	// CycleTimeout bounds a single insert; it is independent of Stop.
	CycleTimeout time.Duration
}

const (
	defaultInterval     = time.Second
	defaultCycleTimeout = 30 * time.Second
)
