package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// shutdownTimeout bounds graceful shutdown of the endpoint.
const shutdownTimeout = 5 * time.Second

// Health reports the current connection state and whether it is authenticated.
type Health func() (state string, authenticated bool)

// NewRouter returns a router serving /metrics and /healthz.
func NewRouter(health Health) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		state, authenticated := "unknown", false
		if health != nil {
			state, authenticated = health()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"state":         state,
			"authenticated": authenticated,
		}); err != nil {
			slog.Debug("Failed to write health response", "error", err)
		}
	})

	return r
}

// Serve runs handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Metrics endpoint shutdown failed", "error", err)
		}
	}()

	slog.Info("Metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
