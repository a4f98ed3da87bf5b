package observability

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StartEndpoint serves the metrics registry on listen until the returned
// shutdown function is called. It returns immediately.
func StartEndpoint(m *Metrics, listen string, log *slog.Logger) func(context.Context) error {
	if m == nil {
		return func(context.Context) error { return nil }
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics endpoint failed", "listen", listen, "error", err)
			}
		}
	}()

	return server.Shutdown
}
