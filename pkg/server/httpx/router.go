// pkg/server/httpx/router.go
package httpx

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/scanmux/scanmux/pkg/config"
	"github.com/scanmux/scanmux/pkg/server/api"
	v1 "github.com/scanmux/scanmux/pkg/server/api/v1"
)

// HealthzHandler handles GET /healthz
//
// Liveness only: answers OK whenever the process can serve requests at all.
// Readiness gating lives in /readyz.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter mounts the HTTP surface: health probes plus the v1 scan API,
// wrapped in CORS handling driven by server.cors.
func NewRouter(cfg config.ServerConfig, deps *api.Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", HealthzHandler)
	mux.Handle("GET /readyz", v1.ReadyzHandler(deps.Ready))

	mux.Handle("POST /api/v1/scans", v1.StartScanHandler(deps))
	mux.Handle("GET /api/v1/scans", v1.ListScansHandler(deps))
	mux.Handle("GET /api/v1/scans/{id}", v1.GetScanHandler(deps))
	mux.Handle("GET /api/v1/providers", v1.ListProvidersHandler(deps))

	log.Info().
		Str("component", "httpx.router").
		Strs("cors_origins", cfg.Cors).
		Msg("API routes mounted")

	return corsMiddleware(cfg.Cors, mux)
}

// corsMiddleware stamps allowed origins on every response and short-circuits
// preflight requests. An empty allowlist disables CORS headers entirely.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "":
			if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
