package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/jacentio/grove/config"
	"github.com/jacentio/grove/forest"
	"github.com/jacentio/grove/internal/breaker"
	"github.com/jacentio/grove/internal/logging"
	"github.com/jacentio/grove/metrics"
	"github.com/jacentio/grove/store"
	"github.com/jacentio/grove/store/memory"
	"github.com/jacentio/grove/store/sqlite"
)

// app holds everything a command needs once configuration is loaded.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Collector
	service *forest.Service
	closers []io.Closer
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewCollector("grove"),
	}

	backend, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}

	var nodes forest.NodeStore = metrics.NewInstrumentedStore(backend, a.metrics)
	if cfg.Breaker.Enabled {
		nodes = breaker.New(nodes, breaker.Config{
			Name:             "store",
			MaxRequests:      cfg.Breaker.MaxRequests,
			Interval:         cfg.Breaker.Interval,
			Timeout:          cfg.Breaker.Timeout,
			MinRequests:      cfg.Breaker.MinRequests,
			FailureThreshold: cfg.Breaker.FailureThreshold,
		}, logger)
	}

	a.service = forest.NewService(nodes,
		forest.WithConfig(cfg.ForestConfig()),
		forest.WithLogger(logger),
		forest.WithIntegrityHook(a.metrics.IntegrityHook()),
	)
	return a, nil
}

func (a *app) openBackend(ctx context.Context) (forest.NodeStore, error) {
	switch a.cfg.Store.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendSQLite:
		s, err := sqlite.Open(a.cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	case config.BackendDynamoDB:
		client, err := store.NewClient(ctx, a.cfg.Store.AWSRegion, a.cfg.Store.DynamoDBEndpoint)
		if err != nil {
			return nil, err
		}
		return store.New(client, a.cfg.DynamoConfig()), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
