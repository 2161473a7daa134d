// Package metrics exposes Prometheus metrics for the bridge.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crystaldolphin/pusherbridge/internal/action"
	"github.com/crystaldolphin/pusherbridge/internal/bus"
)

// BridgeStats is the read side of a bridge that the gauges sample.
type BridgeStats interface {
	Pending() int
	Ready() bool
	Disconnects() int64
}

// Collector owns a registry with the bridge metrics.
// Action types are bounded by the configured bindings plus the five
// lifecycle types, so the type label stays small.
type Collector struct {
	registry *prometheus.Registry
	actions  *prometheus.CounterVec
}

// New creates a Collector with Go runtime and process collectors registered.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Collector{
		registry: reg,
		actions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pusherbridge_actions_dispatched_total",
			Help: "Total number of actions dispatched to the store, by action type.",
		}, []string{"type"}),
	}
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Instrument wraps next so every dispatched action is counted.
func (c *Collector) Instrument(next bus.Dispatcher) bus.Dispatcher {
	return dispatchFunc(func(a action.Action) {
		c.actions.WithLabelValues(a.Type).Inc()
		next.Dispatch(a)
	})
}

// WatchBridge registers gauges sampling b on every scrape.
// bindings reports the live binding count.
func (c *Collector) WatchBridge(b BridgeStats, bindings func() int) {
	f := promauto.With(c.registry)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pusherbridge_pending_commands",
		Help: "Number of subscribe/unsubscribe commands waiting for the connection.",
	}, func() float64 { return float64(b.Pending()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pusherbridge_bindings",
		Help: "Number of live channel/event/action-type bindings.",
	}, func() float64 { return float64(bindings()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pusherbridge_ready",
		Help: "1 when queued commands may run, 0 otherwise.",
	}, func() float64 {
		if b.Ready() {
			return 1
		}
		return 0
	})
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "pusherbridge_disconnects_total",
		Help: "Total number of disconnected signals observed.",
	}, func() float64 { return float64(b.Disconnects()) })
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve runs a metrics HTTP server on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}

type dispatchFunc func(a action.Action)

func (f dispatchFunc) Dispatch(a action.Action) { f(a) }
