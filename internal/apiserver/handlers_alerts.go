package apiserver

import (
	"net/http"

	"github.com/panfm/panfm/internal/model"
)

func (s *Server) handleListAlertConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.store.ListAlertConfigs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "alert_configs": configs})
}

func (s *Server) handleUpsertAlertConfig(w http.ResponseWriter, r *http.Request) {
	var c model.AlertConfig
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if c.MetricType == "" || c.Operator == "" {
		writeError(w, http.StatusBadRequest, "metric_type and operator are required")
		return
	}
	saved, err := s.store.UpsertAlertConfig(r.Context(), c)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	limit := parseLimit(r.URL.Query().Get("limit"), 100, 1000)
	history, err := s.store.AlertHistoryFor(r.Context(), deviceID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "alert_history": history})
}
