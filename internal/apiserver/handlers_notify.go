package apiserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/panfm/panfm/internal/model"
)

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.store.ListNotificationChannels(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "notification_channels": channels})
}

func (s *Server) handleUpsertChannel(w http.ResponseWriter, r *http.Request) {
	var c model.NotificationChannel
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if c.Kind == "" || c.Name == "" {
		writeError(w, http.StatusBadRequest, "kind and name are required")
		return
	}
	saved, err := s.store.UpsertNotificationChannel(r.Context(), c)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteNotificationChannel(r.Context(), chi.URLParam(r, "channelID")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTestChannel(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "notification dispatch is not configured")
		return
	}
	result := s.dispatcher.Test(r.Context(), chi.URLParam(r, "channelID"))
	writeJSON(w, http.StatusOK, result)
}
