package graph

import (
	"context"
	"errors"
	"time"

	"github.com/vanshika/mint/internal/config"
)

// Client is the write-side contract the projector needs from a graph database.
type Client interface {
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (WriteSummary, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// WriteSummary reports what a write statement changed in the graph. A replayed
// MERGE reports zero created nodes and relationships.
type WriteSummary struct {
	NodesCreated         int
	RelationshipsCreated int
	PropertiesSet        int
	ConstraintsAdded     int
}

// Options configures a graph client implementation.
type Options struct {
	URI            string
	Database       string
	Username       string
	Password       string
	MaxConnections int
	// WriteTimeout bounds each managed write transaction on the server.
	WriteTimeout time.Duration
}

// OptionsFromConfig maps the GRAPH_* settings onto client options.
func OptionsFromConfig(cfg config.GraphConfig) Options {
	return Options{
		URI:            cfg.URI,
		Database:       cfg.Database,
		Username:       cfg.Username,
		Password:       cfg.Password,
		MaxConnections: cfg.MaxConnections,
		WriteTimeout:   cfg.WriteTimeout,
	}
}

// ErrMissingURI indicates the graph URI is not provided.
var ErrMissingURI = errors.New("graph URI is required")
