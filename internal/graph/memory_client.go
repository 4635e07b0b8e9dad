package graph

import (
	"context"
	"fmt"
	"sync"
)

// MemoryClient is an in-process stand-in for a graph database. It records
// every write and tracks merged transactions so replays report no new nodes.
type MemoryClient struct {
	mu           sync.Mutex
	writes       []ExecutedQuery
	transactions map[string]struct{}
	users        map[string]struct{}
	err          error
	connectivity error
	closed       bool
}

// ExecutedQuery captures a cypher statement and the parameters it ran with.
type ExecutedQuery struct {
	Query  string
	Params map[string]any
}

// NewMemoryClient returns an empty client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		transactions: make(map[string]struct{}),
		users:        make(map[string]struct{}),
	}
}

// WithError makes subsequent writes fail with err.
func (m *MemoryClient) WithError(err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithConnectivityError makes VerifyConnectivity fail with err.
func (m *MemoryClient) WithConnectivityError(err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectivity = err
	return m
}

func (m *MemoryClient) ExecuteWrite(_ context.Context, cypher string, params map[string]any) (WriteSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return WriteSummary{}, m.err
	}
	copied := make(map[string]any, len(params))
	for k, v := range params {
		copied[k] = v
	}
	m.writes = append(m.writes, ExecutedQuery{Query: cypher, Params: copied})

	var summary WriteSummary
	if id, ok := params["transactionId"]; ok {
		if m.merge(m.transactions, fmt.Sprint(id)) {
			summary.NodesCreated++
			summary.PropertiesSet += len(params)
		}
		for _, key := range []string{"originUserId", "destinationUserId"} {
			user, _ := params[key].(string)
			if user == "" {
				continue
			}
			if m.merge(m.users, user) {
				summary.NodesCreated++
			}
		}
		if summary.NodesCreated > 0 {
			summary.RelationshipsCreated = 2
		}
	}
	return summary, nil
}

func (m *MemoryClient) merge(set map[string]struct{}, key string) bool {
	if _, ok := set[key]; ok {
		return false
	}
	set[key] = struct{}{}
	return true
}

func (m *MemoryClient) VerifyConnectivity(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectivity
}

func (m *MemoryClient) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MemoryClient) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Writes returns a snapshot of executed write statements.
func (m *MemoryClient) Writes() []ExecutedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutedQuery(nil), m.writes...)
}
