// Package breaker guards a forest.NodeStore with a circuit breaker.
//
// Only StoreUnavailable failures count against the breaker. Validation and
// not-found outcomes are answers from a healthy backend, and a cancelled or
// timed-out caller says nothing about the backend at all.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/jacentio/grove/forest"
)

// Config holds circuit breaker settings.
type Config struct {
	Name string

	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32

	// Interval is the closed-state window after which counts reset.
	Interval time.Duration

	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration

	// MinRequests is the number of calls in a window before the breaker may trip.
	MinRequests uint32

	// FailureThreshold is the failure ratio that trips the breaker.
	FailureThreshold float64
}

// DefaultConfig returns the default settings for the named breaker.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		MinRequests:      5,
		FailureThreshold: 0.8,
	}
}

// Store is a forest.NodeStore that fails fast while its breaker is open.
type Store struct {
	inner forest.NodeStore
	cb    *gobreaker.CircuitBreaker
}

// New wraps inner with a breaker built from cfg.
func New(inner forest.NodeStore, cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
		IsSuccessful: func(err error) bool {
			if err == nil || forest.IsCancelled(err) {
				return true
			}
			return !errors.Is(err, forest.ErrStoreUnavailable)
		},
	})
	return &Store{inner: inner, cb: cb}
}

// State returns the current breaker state.
func (s *Store) State() gobreaker.State {
	return s.cb.State()
}

func (s *Store) Create(ctx context.Context, label string, parentID *int64) (forest.Node, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.inner.Create(ctx, label, parentID)
	})
	if err != nil {
		return forest.Node{}, rejected("create", err)
	}
	return res.(forest.Node), nil
}

func (s *Store) FetchAll(ctx context.Context) ([]forest.Node, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.inner.FetchAll(ctx)
	})
	if err != nil {
		return nil, rejected("fetch all", err)
	}
	return res.([]forest.Node), nil
}

func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.inner.Exists(ctx, id)
	})
	if err != nil {
		return false, rejected("exists", err)
	}
	return res.(bool), nil
}

// rejected converts breaker refusals into StoreUnavailable errors and passes
// every other error through.
func rejected(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &forest.StoreUnavailableError{Op: op, Err: err}
	}
	return err
}
