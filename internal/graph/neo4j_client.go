package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// NewNeo4jClient opens a Bolt driver. The driver's own connection pool is
// capped at opts.MaxConnections.
func NewNeo4jClient(ctx context.Context, opts Options) (Client, error) {
	if opts.URI == "" {
		return nil, ErrMissingURI
	}

	auth := neo4j.NoAuth()
	if opts.Username != "" {
		auth = neo4j.BasicAuth(opts.Username, opts.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI, auth, func(c *neo4j.Config) {
		if opts.MaxConnections > 0 {
			c.MaxConnectionPoolSize = opts.MaxConnections
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	var txConfig []func(*neo4j.TransactionConfig)
	if opts.WriteTimeout > 0 {
		txConfig = append(txConfig, neo4j.WithTxTimeout(opts.WriteTimeout))
	}
	txConfig = append(txConfig, neo4j.WithTxMetadata(map[string]any{"app": "mint"}))

	return &neo4jClient{
		driver:   driver,
		database: opts.Database,
		txConfig: txConfig,
	}, nil
}

type neo4jClient struct {
	driver   neo4j.DriverWithContext
	database string
	txConfig []func(*neo4j.TransactionConfig)
}

// ExecuteWrite runs cypher in a managed write transaction; the driver retries
// it on transient cluster errors.
func (c *neo4jClient) ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (WriteSummary, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summarize(summary.Counters()), nil
	}, c.txConfig...)
	if err != nil {
		return WriteSummary{}, err
	}
	return out.(WriteSummary), nil
}

func (c *neo4jClient) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *neo4jClient) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func summarize(counters neo4j.Counters) WriteSummary {
	return WriteSummary{
		NodesCreated:         counters.NodesCreated(),
		RelationshipsCreated: counters.RelationshipsCreated(),
		PropertiesSet:        counters.PropertiesSet(),
		ConstraintsAdded:     counters.ConstraintsAdded(),
	}
}
