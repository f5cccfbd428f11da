package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"poetry-pipeline/internal/infra/api/apiv1"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker func(ctx context.Context) error

type RouterOptions struct {
	AdminToken string
	Timeout    time.Duration
	// Checks are run by /health; any failure turns it into a 503.
	Checks map[string]HealthChecker
}

// NewRouter serves /health and /metrics openly and the operator API behind
// the bearer guard.
func NewRouter(srv *apiv1.Server, opts RouterOptions, logger *zerolog.Logger) http.Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	r := chi.NewRouter()
	r.Get("/health", healthHandler(opts.Checks))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(opts.AdminToken))
		apiv1.RegisterAPIV1(r, srv)
	})

	return Chain(r,
		TraceID(logger),
		Recover(logger),
		RequestLog(logger),
		Timeout(opts.Timeout),
	)
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		body := "OK"
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body = name + ": " + err.Error()
				break
			}
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}
