package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vanshika/mint/internal/domain"
)

// Projector mirrors stored transactions into the graph as
// (:User)-[:SENT]->(:Transaction)-[:RECEIVED_BY]->(:User).
type Projector struct {
	client Client
	logger *slog.Logger
}

// NewProjector wraps client.
func NewProjector(client Client, logger *slog.Logger) *Projector {
	return &Projector{client: client, logger: logger.With("component", "graph")}
}

var constraintStatements = []string{
	`CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`,
	`CREATE CONSTRAINT transaction_id_unique IF NOT EXISTS FOR (t:Transaction) REQUIRE t.transactionId IS UNIQUE`,
}

// EnsureConstraints creates the uniqueness constraints MERGE relies on.
func (p *Projector) EnsureConstraints(ctx context.Context) error {
	added := 0
	for _, stmt := range constraintStatements {
		summary, err := p.client.ExecuteWrite(ctx, stmt, nil)
		if err != nil {
			return fmt.Errorf("ensure graph constraint: %w", err)
		}
		added += summary.ConstraintsAdded
	}
	p.logger.Info("graph constraints ensured", "added", added)
	return nil
}

const projectTransactionCypher = `
MERGE (t:Transaction {transactionId: $transactionId})
SET t.type = $type,
    t.timestamp = $timestamp,
    t.amount = $amount,
    t.amountText = $amountText,
    t.currency = $currency,
    t.originCountry = $originCountry,
    t.destinationCountry = $destinationCountry
WITH t
CALL {
    WITH t
    WITH t WHERE $originUserId <> ''
    MERGE (o:User {id: $originUserId})
    MERGE (o)-[:SENT]->(t)
}
CALL {
    WITH t
    WITH t WHERE $destinationUserId <> ''
    MERGE (d:User {id: $destinationUserId})
    MERGE (t)-[:RECEIVED_BY]->(d)
}
RETURN t.transactionId AS transactionId`

// ProjectTransaction upserts tx and its sender and receiver. Replaying the
// same transaction is a no-op.
func (p *Projector) ProjectTransaction(ctx context.Context, tx domain.Transaction) error {
	origin := tx.OriginAmountDetails
	params := map[string]any{
		"transactionId":      tx.TransactionID,
		"type":               string(tx.Type),
		"timestamp":          tx.Timestamp.UTC(),
		"amount":             origin.TransactionAmount.InexactFloat64(),
		"amountText":         origin.TransactionAmount.StringFixed(2),
		"currency":           string(origin.TransactionCurrency),
		"originCountry":      string(origin.Country),
		"destinationCountry": string(tx.DestinationAmountDetails.Country),
		"originUserId":       tx.OriginUserID,
		"destinationUserId":  tx.DestinationUserID,
	}
	summary, err := p.client.ExecuteWrite(ctx, projectTransactionCypher, params)
	if err != nil {
		return fmt.Errorf("project transaction %d: %w", tx.TransactionID, err)
	}
	p.logger.Debug("transaction projected",
		"transactionId", tx.TransactionID,
		"nodesCreated", summary.NodesCreated,
		"relationshipsCreated", summary.RelationshipsCreated)
	return nil
}

// Ping verifies the graph is reachable.
func (p *Projector) Ping(ctx context.Context) error {
	return p.client.VerifyConnectivity(ctx)
}

// Close releases the underlying client.
func (p *Projector) Close(ctx context.Context) error {
	return p.client.Close(ctx)
}
