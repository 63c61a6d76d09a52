package prometheus

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readHeaderTimeout = 10 * time.Second

// Exporter serves the voice runtime metrics over HTTP at /metrics, with a
// liveness probe at /health.
type Exporter struct {
	registry *prometheus.Registry
	server   *http.Server

	mu      sync.Mutex
	serving bool
}

// NewExporter creates an exporter for every runtime collector plus the Go
// and process collectors.
func NewExporter(addr string) *Exporter {
	reg := prometheus.NewRegistry()
	reg.MustRegister(allMetrics...)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewExporterWithRegistry(addr, reg)
}

// NewExporterWithRegistry creates an exporter serving registry.
func NewExporterWithRegistry(addr string, registry *prometheus.Registry) *Exporter {
	e := &Exporter{registry: registry}
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	e.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return e
}

// Registry returns the registry the exporter serves.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler returns the /metrics handler.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Start listens on the configured address and blocks until Shutdown, when it
// returns http.ErrServerClosed. A second Start is a no-op.
func (e *Exporter) Start() error {
	e.mu.Lock()
	if e.serving {
		e.mu.Unlock()
		return nil
	}
	e.serving = true
	e.mu.Unlock()
	return e.server.ListenAndServe()
}

// Shutdown stops the server gracefully. A Start after Shutdown returns
// http.ErrServerClosed at once.
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.server.Shutdown(ctx)
}
