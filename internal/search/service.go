package search

import (
	"context"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"shiptivity/api/internal/store"
)

type index interface {
	Searcher
	Indexer
}

const indexQueueSize = 256

// Service is the facade that tries Meilisearch first and falls back to the
// store's substring search.
type Service struct {
	meili    index
	fallback Searcher
	logger   *log.Logger

	// Index batches go through one worker so Meilisearch sees them in the
	// order reorders committed.
	mu     sync.Mutex
	jobs   chan []ClientRecord
	done   chan struct{}
	closed bool
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured; logger may be nil for the standard logger.
func NewService(meili *Meili, fallback Searcher, logger *log.Logger) *Service {
	if meili == nil {
		return newServiceWithIndex(nil, fallback, logger)
	}
	return newServiceWithIndex(meili, fallback, logger)
}

func newServiceWithIndex(idx index, fallback Searcher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &Service{meili: idx, fallback: fallback, logger: logger}
	if idx != nil {
		s.jobs = make(chan []ClientRecord, indexQueueSize)
		s.done = make(chan struct{})
		go s.indexLoop()
	}
	return s
}

func (s *Service) indexLoop() {
	defer close(s.done)
	for records := range s.jobs {
		if err := s.meili.IndexClients(records); err != nil {
			s.logger.WithError(err).WithField("count", len(records)).Warn("search: index clients")
		}
	}
}

// Close stops accepting index batches and waits for queued ones to be sent.
func (s *Service) Close() {
	if s == nil || s.jobs == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	<-s.done
}

// Search tries Meilisearch if healthy, otherwise falls back to the store.
func (s *Service) Search(ctx context.Context, q Query) Response {
	q.Text = strings.TrimSpace(q.Text)
	q.Limit = normalizedLimit(q.Limit)
	if q.Text == "" {
		return Response{Results: []Result{}, Query: q.Text, Source: SourceStore}
	}

	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: SourceMeili}
		}
		s.logger.WithError(err).Warn("search: meilisearch error, falling back to store")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text, Source: SourceStore}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.WithError(err).Error("search: store search failed")
		return Response{Results: []Result{}, Query: q.Text, Source: SourceStore}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: SourceStore}
}

// IndexClients queues changed clients for Meilisearch and returns without
// waiting. Batches are sent one at a time in the order they were queued.
func (s *Service) IndexClients(clients []store.Client) {
	if s == nil || s.meili == nil || !s.meili.Healthy() || len(clients) == 0 {
		return
	}
	records := RecordsFor(clients)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.jobs <- records
}

// ReindexAll pushes every client to Meilisearch. Called during Bootstrap.
func (s *Service) ReindexAll(clients []store.Client) {
	if s == nil || s.meili == nil || !s.meili.Healthy() {
		return
	}
	if err := s.meili.IndexClients(RecordsFor(clients)); err != nil {
		s.logger.WithError(err).Warn("search: reindex clients")
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
