package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"shiptivity/api/internal/board"
	"shiptivity/api/internal/cache"
	"shiptivity/api/internal/config"
	"shiptivity/api/internal/lock"
	"shiptivity/api/internal/search"
	"shiptivity/api/internal/store"
)

const tracerName = "shiptivity/api"

// ReorderInput carries the optional targets of a PUT. Nil means "keep".
type ReorderInput struct {
	Status   *store.Status
	Priority *int
}

type dataStore interface {
	ListClients(context.Context) ([]store.Client, error)
	ListClientsByStatus(context.Context, store.Status) ([]store.Client, error)
	GetClient(context.Context, int64) (store.Client, error)
	UpdateClients(context.Context, func([]store.Client) ([]store.ClientUpdate, error)) ([]store.Client, error)
	Seed(context.Context, []store.ClientSeed) (int, error)
	Ping(context.Context) error
}

type listingCache interface {
	Clients(context.Context, store.Status) ([]store.Client, bool)
	Generation(context.Context) int64
	StoreClients(context.Context, store.Status, int64, []store.Client) bool
	Evict(context.Context) error
	Ping(context.Context) error
}

type reorderLocker interface {
	Acquire(context.Context) (func(context.Context) error, error)
}

type searcher interface {
	Search(context.Context, search.Query) search.Response
	IndexClients([]store.Client)
	ReindexAll([]store.Client)
}

type Service struct {
	cfg    config.Config
	store  dataStore
	cache  listingCache
	locker reorderLocker
	search searcher
	tracer trace.Tracer
	logger *log.Logger

	// reorderMu keeps one reorder in flight per process; locker extends that
	// across instances. Listing reads that fill the cache hold it shared.
	reorderMu sync.RWMutex
}

type Option func(*Service)

func WithCache(c *cache.RedisCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithLocker(l *lock.RedisLock) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

func WithSearch(svc *search.Service) Option {
	return func(s *Service) {
		if svc != nil {
			s.search = svc
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func New(cfg config.Config, dataStore *store.SQLStore, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		store:  dataStore,
		tracer: otel.Tracer(tracerName),
		logger: log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.search == nil {
		s.search = search.NewService(nil, search.NewStoreSearch(dataStore), s.log())
	}
	return s
}

// Bootstrap seeds an empty store and pushes every client to the search index.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.cfg.Seed {
		seeds, err := store.DefaultSeeds()
		if err != nil {
			return err
		}
		n, err := s.store.Seed(ctx, seeds)
		if err != nil {
			return err
		}
		if n > 0 {
			s.log().WithField("count", n).Info("seeded clients")
			s.evictListings(ctx)
		}
	}

	if s.search != nil {
		clients, err := s.store.ListClients(ctx)
		if err != nil {
			return err
		}
		s.search.ReindexAll(clients)
	}
	return nil
}

// ListClients returns every client, or only those in status when it is set,
// ordered by id. A cache miss is loaded while no reorder is running here, and
// the fill is dropped if another instance evicted in the meantime.
func (s *Service) ListClients(ctx context.Context, status store.Status) ([]store.Client, error) {
	if s.cache != nil {
		if clients, ok := s.cache.Clients(ctx, status); ok {
			return clients, nil
		}
	}

	s.reorderMu.RLock()
	defer s.reorderMu.RUnlock()

	var gen int64
	if s.cache != nil {
		gen = s.cache.Generation(ctx)
	}

	var (
		clients []store.Client
		err     error
	)
	if status == "" {
		clients, err = s.store.ListClients(ctx)
	} else {
		clients, err = s.store.ListClientsByStatus(ctx, status)
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.StoreClients(ctx, status, gen, clients)
	}
	return clients, nil
}

func (s *Service) GetClient(ctx context.Context, id int64) (store.Client, error) {
	client, err := s.store.GetClient(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Client{}, errNotFound()
	}
	return client, err
}

func (s *Service) Board(ctx context.Context) (board.Board, error) {
	clients, err := s.ListClients(ctx, "")
	if err != nil {
		return board.Board{}, err
	}
	return board.BuildBoard(clients), nil
}

func (s *Service) SearchClients(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text, Source: search.SourceStore}
	}
	return s.search.Search(ctx, q)
}

// ReorderClient moves client id to the requested lane and rank, shifting its
// neighbours so both lanes stay ranked 1..N, and returns every client ordered
// by id. The read, plan and write happen in one transaction.
func (s *Service) ReorderClient(ctx context.Context, id int64, input ReorderInput) (clients []store.Client, err error) {
	ctx, span := s.tracerOrDefault().Start(ctx, "clients.reorder", trace.WithAttributes(attribute.Int64("client.id", id)))
	started := time.Now()

	var (
		before store.Client
		batch  board.Batch
	)
	defer func() {
		s.recordReorder(span, id, before, input, batch, started, err)
		span.End()
	}()

	s.reorderMu.Lock()
	defer s.reorderMu.Unlock()

	if s.locker != nil {
		release, lockErr := s.locker.Acquire(ctx)
		if errors.Is(lockErr, lock.ErrNotAcquired) {
			return nil, errBusy()
		}
		if lockErr != nil {
			return nil, fmt.Errorf("acquire reorder lock: %w", lockErr)
		}
		defer func() {
			if releaseErr := release(context.WithoutCancel(ctx)); releaseErr != nil {
				s.log().WithError(releaseErr).Warn("release reorder lock")
			}
		}()
	}

	clients, err = s.store.UpdateClients(ctx, func(current []store.Client) ([]store.ClientUpdate, error) {
		found := false
		for _, client := range current {
			if client.ID == id {
				before, found = client, true
				break
			}
		}
		if !found {
			return nil, errUnknownClient()
		}
		batch = board.Plan(current, board.Move{ClientID: id, Status: input.Status, Priority: input.Priority})
		return batch.Updates, nil
	})
	if err != nil {
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			return nil, err
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, errUnknownClient()
		}
		return nil, fmt.Errorf("reorder client %d: %w", id, err)
	}

	if checkErr := board.CheckLanes(clients); checkErr != nil {
		s.log().WithError(checkErr).WithField("client_id", id).Warn("lane ranks out of order after reorder")
	}

	if !batch.Empty() {
		s.evictListings(ctx)
		if s.search != nil {
			s.search.IndexClients(changedClients(clients, batch))
		}
	}
	return clients, nil
}

func (s *Service) recordReorder(span trace.Span, id int64, before store.Client, input ReorderInput, batch board.Batch, started time.Time, err error) {
	fields := log.Fields{
		"client_id":   id,
		"updates":     len(batch.Updates),
		"duration_ms": time.Since(started).Milliseconds(),
	}
	attrs := []attribute.KeyValue{attribute.Int("reorder.updates", len(batch.Updates))}

	if before.ID != 0 {
		fields["from_status"] = string(before.Status)
		fields["from_priority"] = before.Priority
		attrs = append(attrs,
			attribute.String("reorder.from_status", string(before.Status)),
			attribute.Int("reorder.from_priority", before.Priority),
		)
	}
	if !batch.Empty() {
		moved := batch.Updates[len(batch.Updates)-1]
		fields["to_status"] = string(moved.Status)
		fields["to_priority"] = moved.Priority
		attrs = append(attrs,
			attribute.String("reorder.to_status", string(moved.Status)),
			attribute.Int("reorder.to_priority", moved.Priority),
		)
	}
	if input.Priority != nil {
		fields["requested_priority"] = *input.Priority
	}
	span.SetAttributes(attrs...)

	entry := s.log().WithFields(fields)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry.WithError(err).Warn("clients.reorder")
		return
	}
	span.SetStatus(codes.Ok, "")
	entry.Info("clients.reorder")
}

// ReadyChecks pings every configured backend. Keys are "database" and, when
// the listing cache is on, "redis".
func (s *Service) ReadyChecks(ctx context.Context) map[string]error {
	checks := map[string]error{"database": s.Ping(ctx)}
	if s.cache != nil {
		checks["redis"] = s.cache.Ping(ctx)
	}
	return checks
}

// Ping checks if the database is reachable
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) evictListings(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Evict(ctx); err != nil {
		s.log().WithError(err).Warn("evict client listings")
	}
}

func (s *Service) tracerOrDefault() trace.Tracer {
	if s.tracer == nil {
		return otel.Tracer(tracerName)
	}
	return s.tracer
}

func (s *Service) log() *log.Logger {
	if s.logger == nil {
		return log.StandardLogger()
	}
	return s.logger
}

func changedClients(clients []store.Client, batch board.Batch) []store.Client {
	touched := make(map[int64]struct{}, len(batch.Updates))
	for _, update := range batch.Updates {
		touched[update.ID] = struct{}{}
	}
	changed := make([]store.Client, 0, len(touched))
	for _, client := range clients {
		if _, ok := touched[client.ID]; ok {
			changed = append(changed, client)
		}
	}
	return changed
}
