// Package metrics exposes Prometheus instrumentation for grove.
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jacentio/grove/forest"
)

// Collector owns a private registry and the grove metric families.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	NodesCreated   prometheus.Counter
	ForestReads    prometheus.Counter
	StoreOps       *prometheus.CounterVec
	StoreDuration  *prometheus.HistogramVec
	IntegrityFails prometheus.Counter
}

// NewCollector creates a collector whose metric names are prefixed with namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		NodesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_created_total",
			Help:      "Total number of nodes created",
		}),
		ForestReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forest_reads_total",
			Help:      "Total number of full forest reads",
		}),
		StoreOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of node store operations",
		}, []string{"operation", "status"}),
		StoreDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Node store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		IntegrityFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_violations_total",
			Help:      "Total number of corrupt tree reports",
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.HTTPRequests,
		c.HTTPDuration,
		c.NodesCreated,
		c.ForestReads,
		c.StoreOps,
		c.StoreDuration,
		c.IntegrityFails,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int, seconds float64) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}

// IntegrityHook returns a callback for forest.WithIntegrityHook that counts
// corrupt tree reports.
func (c *Collector) IntegrityHook() func(op string, err error) {
	return func(string, error) { c.IntegrityFails.Inc() }
}

// Status classifies an operation result for the status label.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, forest.ErrInvalidLabel):
		return "invalid_label"
	case errors.Is(err, forest.ErrParentNotFound):
		return "parent_not_found"
	case errors.Is(err, forest.ErrNodeNotFound):
		return "node_not_found"
	case errors.Is(err, forest.ErrCorruptTree):
		return "corrupt_tree"
	case forest.IsCancelled(err):
		return "cancelled"
	default:
		return "unavailable"
	}
}
