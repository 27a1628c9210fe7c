package search

import (
	"context"

	"shiptivity/api/internal/store"
)

// Source names the backend that answered a search.
type Source string

const (
	SourceMeili Source = "meilisearch"
	SourceStore Source = "store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Status      store.Status `json:"status"`
	Priority    int          `json:"priority"`
	Snippet     string       `json:"snippet,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Status store.Status // empty = every lane
	Limit  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Source  Source   `json:"source"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push clients into a search index.
type Indexer interface {
	IndexClients(clients []ClientRecord) error
}

// ClientRecord is the data we index for a client.
type ClientRecord struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    int    `json:"priority"`
}

func RecordFor(client store.Client) ClientRecord {
	return ClientRecord{
		ID:          client.ID,
		Name:        client.Name,
		Description: client.Description,
		Status:      string(client.Status),
		Priority:    client.Priority,
	}
}

func RecordsFor(clients []store.Client) []ClientRecord {
	records := make([]ClientRecord, len(clients))
	for i, client := range clients {
		records[i] = RecordFor(client)
	}
	return records
}

const defaultLimit = 20

func normalizedLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > 100 {
		return 100
	}
	return limit
}
