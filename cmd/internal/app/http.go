package app

import (
	"net/http"
	"time"

	"pastr/cmd/internal/api"
	"pastr/cmd/internal/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
)

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	dbPool *pgxpool.Pool,
	m *metrics.Metrics,
	accounts *api.Handler,
) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && dbPool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if dbPool != nil {
			if err := PingDB(r.Context(), dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	if accounts != nil {
		accounts.Register(mux)
	}
}

// buildHandler layers the middleware chain around mux. Metrics sit innermost
// so they see the pattern ServeMux records on the request.
func buildHandler(mux *http.ServeMux, log Logger, m *metrics.Metrics) http.Handler {
	var h http.Handler = mux
	h = m.Middleware(h)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, log)
	h = WithRequestID(h)
	return h
}
