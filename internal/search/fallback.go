package search

import (
	"context"
	"strings"

	"shiptivity/api/internal/store"
)

type clientSearcher interface {
	SearchClients(ctx context.Context, text string, status store.Status, limit int) ([]store.Client, error)
}

// StoreSearch runs a case-insensitive substring match in the client table. It
// answers whenever Meilisearch is not configured or not reachable.
type StoreSearch struct {
	store clientSearcher
}

func NewStoreSearch(s clientSearcher) *StoreSearch {
	return &StoreSearch{store: s}
}

// Healthy always returns true; if the database is down the whole app is down.
func (s *StoreSearch) Healthy() bool {
	return true
}

func (s *StoreSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	clients, err := s.store.SearchClients(ctx, q.Text, q.Status, normalizedLimit(q.Limit))
	if err != nil {
		return nil, 0, err
	}
	results := make([]Result, len(clients))
	for i, client := range clients {
		results[i] = Result{
			ID:          client.ID,
			Name:        client.Name,
			Description: client.Description,
			Status:      client.Status,
			Priority:    client.Priority,
		}
	}
	return results, len(results), nil
}
