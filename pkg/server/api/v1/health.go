package v1

import (
	"net/http"
	"sync/atomic"
)

// ReadyzHandler handles GET /readyz
//
// Readiness flips on once the job manager has started and the listener is
// up, and back off during shutdown so load balancers drain traffic.
func ReadyzHandler(ready *atomic.Bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Not Ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready"))
	}
}
