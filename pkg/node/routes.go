package node

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/internal/telemetry"
)

// Routes mounts the node's HTTP surface.
func (n *Node) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(n.accessLog)
	r.Use(n.recoverer)

	r.Get("/healthz", n.Healthz)
	r.Get("/info", n.Info)
	r.Method(http.MethodGet, "/metrics", telemetry.MetricsHandler())

	r.Method(http.MethodGet, "/query", telemetry.Instrument("query", http.HandlerFunc(n.Query)))
	r.Method(http.MethodPost, "/add", telemetry.Instrument("add", http.HandlerFunc(n.Add)))
	r.Method(http.MethodDelete, "/delete", telemetry.Instrument("delete", http.HandlerFunc(n.Delete)))
	return r
}

func (n *Node) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		n.logger.Debug("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (n *Node) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				n.logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				// a partial response cannot be replaced
				if ww.Status() == 0 {
					writeJSON(ww, http.StatusInternalServerError, nil, "internal server error")
				}
			}
		}()
		next.ServeHTTP(ww, r)
	})
}
