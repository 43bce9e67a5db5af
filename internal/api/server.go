// Package api exposes the datos records over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"datosgw/internal/metrics"
	"datosgw/internal/store"
)

// Options wires NewServer.
type Options struct {
	Store          store.Store
	Logger         *slog.Logger
	AllowedOrigins []string
	// Metrics, when set, instruments requests and store calls and is served
	// on /metrics.
	Metrics *metrics.Metrics
	// Now stamps updated_at; defaults to time.Now.
	Now func() time.Time
}

// NewServer wires the gateway operations into a chi router behind the
// request id, logging, recovery and CORS middleware.
func NewServer(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger, opts.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(newCORS(opts.AllowedOrigins, logger).Handler)
	r.Use(middleware.StripSlashes)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Cannot "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method "+r.Method+" not allowed on "+r.URL.Path)
	})

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	gw := NewGateway(store.Instrument(opts.Store, opts.Metrics), logger, opts.Now)
	return HandlerWithOptions(gw, ChiServerOptions{
		BaseRouter: r,
		ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			writeError(w, http.StatusBadRequest, err.Error())
		},
	})
}
