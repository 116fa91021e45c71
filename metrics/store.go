package metrics

import (
	"context"
	"time"

	"github.com/jacentio/grove/forest"
)

// InstrumentedStore records counts and latency for every NodeStore call.
type InstrumentedStore struct {
	inner forest.NodeStore
	c     *Collector
}

// NewInstrumentedStore wraps inner.
func NewInstrumentedStore(inner forest.NodeStore, c *Collector) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, c: c}
}

func (s *InstrumentedStore) Create(ctx context.Context, label string, parentID *int64) (forest.Node, error) {
	start := time.Now()
	n, err := s.inner.Create(ctx, label, parentID)
	s.observe("create", start, err)
	if err == nil {
		s.c.NodesCreated.Inc()
	}
	return n, err
}

func (s *InstrumentedStore) FetchAll(ctx context.Context) ([]forest.Node, error) {
	start := time.Now()
	nodes, err := s.inner.FetchAll(ctx)
	s.observe("fetch_all", start, err)
	if err == nil {
		s.c.ForestReads.Inc()
	}
	return nodes, err
}

func (s *InstrumentedStore) Exists(ctx context.Context, id int64) (bool, error) {
	start := time.Now()
	ok, err := s.inner.Exists(ctx, id)
	s.observe("exists", start, err)
	return ok, err
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	s.c.StoreOps.WithLabelValues(op, Status(err)).Inc()
	s.c.StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
