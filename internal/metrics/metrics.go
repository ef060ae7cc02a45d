// Package metrics wraps the Prometheus collectors of the portal.
// All methods are safe to call on a nil *Collector.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "fundportal"

// Collector holds the portal metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	actions       *prometheus.CounterVec
	boostAttempts *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	heads         *prometheus.CounterVec
	headBlock     prometheus.Gauge
	synced        prometheus.Gauge
	pruned        prometheus.Counter
}

func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.actions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "action",
			Name:      "total",
			Help:      "Submitted actions by kind and final status",
		},
		[]string{"kind", "status"},
	)

	c.boostAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "boost",
			Name:      "attempts_total",
			Help:      "Transaction submissions made by the gas booster",
		},
		[]string{"method"},
	)

	c.refreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "refresh_total",
			Help:      "Monitor checks by name and result",
		},
		[]string{"check", "result"},
	)

	c.heads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "heads_total",
			Help:      "New heads handled by the monitor, refreshed or rate limited",
		},
		[]string{"outcome"},
	)

	c.headBlock = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "current_block",
		Help:      "Latest block seen by the monitor",
	})

	c.synced = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "synced",
		Help:      "1 when the node reports it is not syncing",
	})

	c.pruned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "journal",
		Name:      "pruned_total",
		Help:      "Journal rows removed by retention",
	})

	c.registry.MustRegister(
		c.actions, c.boostAttempts, c.refreshes, c.heads, c.headBlock, c.synced, c.pruned,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) ObserveAction(kind, status string) {
	if c == nil {
		return
	}
	c.actions.WithLabelValues(kind, status).Inc()
}

func (c *Collector) ObserveBoostAttempt(method string) {
	if c == nil {
		return
	}
	c.boostAttempts.WithLabelValues(method).Inc()
}

func (c *Collector) ObserveRefresh(check string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.refreshes.WithLabelValues(check, result).Inc()
}

func (c *Collector) ObserveHead(refreshed bool) {
	if c == nil {
		return
	}
	outcome := "limited"
	if refreshed {
		outcome = "refreshed"
	}
	c.heads.WithLabelValues(outcome).Inc()
}

func (c *Collector) SetHeadBlock(n uint64) {
	if c == nil {
		return
	}
	c.headBlock.Set(float64(n))
}

func (c *Collector) SetSynced(synced bool) {
	if c == nil {
		return
	}
	if synced {
		c.synced.Set(1)
	} else {
		c.synced.Set(0)
	}
}

func (c *Collector) AddPruned(n int64) {
	if c == nil {
		return
	}
	c.pruned.Add(float64(n))
}

// Handler returns the scrape handler for the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
