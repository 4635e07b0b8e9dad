package server

import (
	"context"
	"database/sql"
	"fmt"
)

// HealthService defines behaviour for readiness probes.
type HealthService interface {
	Probe(ctx context.Context) error
}

// Pinger is anything whose reachability can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsProvider exposes connection pool utilisation.
type StatsProvider interface {
	Stats() sql.DBStats
}

// DependencyHealth probes the database pool and, when configured, the graph.
type DependencyHealth struct {
	Database interface {
		Pinger
		StatsProvider
	}
	Graph Pinger
}

// Probe implements the HealthService interface.
func (s DependencyHealth) Probe(ctx context.Context) error {
	if s.Database != nil {
		if err := s.Database.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if s.Graph != nil {
		if err := s.Graph.Ping(ctx); err != nil {
			return fmt.Errorf("graph: %w", err)
		}
	}
	return nil
}

// Details reports pool statistics for the health payload.
func (s DependencyHealth) Details() map[string]any {
	details := map[string]any{"graph": s.Graph != nil}
	if s.Database != nil {
		st := s.Database.Stats()
		details["pool"] = map[string]any{
			"maxOpen": st.MaxOpenConnections,
			"open":    st.OpenConnections,
			"inUse":   st.InUse,
			"idle":    st.Idle,
			"waits":   st.WaitCount,
		}
	}
	return details
}
