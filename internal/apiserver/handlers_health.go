package apiserver

import (
	"net/http"
	"time"
)

// handleHealth implements §7's readiness contract: ready=true once the DB is
// reachable (even before the first sample lands), otherwise a transient 503
// with retry_after so clients back off instead of hammering the endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.store.Ready(r.Context()) {
		w.Header().Set("Retry-After", "5")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready":         false,
			"retry_after":   5,
			"error_details": "database not yet reachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":    true,
		"uptime_s": int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleServicesStatus surfaces the most recent scheduler heartbeat, for the
// UI's services-status panel.
func (s *Server) handleServicesStatus(w http.ResponseWriter, r *http.Request) {
	stat, err := s.store.LatestSchedulerStat(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "scheduler": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "scheduler": stat})
}
