// Package httpapi serves the worker's operational endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	opsmw "multiverse/internal/middleware"
)

// Pinger is satisfied by infra.SQLRunner.
type Pinger interface {
	Ping(ctx context.Context) error
}

type OpsDeps struct {
	DB       Pinger
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

func NewOpsRouter(deps OpsDeps) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, opsmw.Logger(deps.Logger))

	r.Get("/healthz", health(deps.DB))
	if deps.Gatherer != nil {
		r.Method(stdhttp.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func health(db Pinger) stdhttp.HandlerFunc {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				writeJSON(w, stdhttp.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, stdhttp.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w stdhttp.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
