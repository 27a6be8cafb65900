package apiserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/panfm/panfm/internal/model"
)

const devicesCacheKey = "all"

// handleListDevices serves the 30s-cached device list (§6's device-info TTL
// cache).
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if cached, ok := s.deviceCache.Get(devicesCacheKey); ok {
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "devices": cached})
		return
	}
	devices, err := s.store.ListDevices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.deviceCache.Set(devicesCacheKey, devices)
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "devices": devices})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDevice(r.Context(), deviceIDParam(r))
	if err != nil {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// deviceRequest is the JSON shape device CRUD endpoints accept. APIKey is
// write-only plaintext in the request; it is encrypted before storage and
// never echoed back (model.Device.EncryptedAPIKey is json:"-").
type deviceRequest struct {
	Name                string   `json:"name"`
	ManagementEndpoint  string   `json:"management_endpoint"`
	APIKey              string   `json:"api_key,omitempty"`
	Enabled             bool     `json:"enabled"`
	MonitoredInterfaces []string `json:"monitored_interfaces,omitempty"`
	GroupLabel          string   `json:"group_label,omitempty"`
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.ManagementEndpoint == "" || req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "name, management_endpoint and api_key are required")
		return
	}

	encrypted, err := s.encryptAPIKey(req.APIKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	now := time.Now().UTC()
	d := model.Device{
		ID:                  uuid.NewString(),
		Name:                req.Name,
		ManagementEndpoint:  req.ManagementEndpoint,
		EncryptedAPIKey:     encrypted,
		Enabled:             req.Enabled,
		MonitoredInterfaces: req.MonitoredInterfaces,
		GroupLabel:          req.GroupLabel,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.UpsertDevice(r.Context(), d); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.deviceCache.Invalidate(devicesCacheKey)
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := deviceIDParam(r)
	existing, err := s.store.GetDevice(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}

	var req deviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	existing.Name = req.Name
	existing.ManagementEndpoint = req.ManagementEndpoint
	existing.Enabled = req.Enabled
	existing.MonitoredInterfaces = req.MonitoredInterfaces
	existing.GroupLabel = req.GroupLabel
	existing.UpdatedAt = time.Now().UTC()

	if req.APIKey != "" {
		encrypted, err := s.encryptAPIKey(req.APIKey)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		existing.EncryptedAPIKey = encrypted
	}

	if err := s.store.UpsertDevice(r.Context(), existing); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.deviceCache.Invalidate(devicesCacheKey)
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) encryptAPIKey(plaintext string) ([]byte, error) {
	if s.cipher == nil {
		return nil, errors.New("apiserver: device key encryption is not configured")
	}
	return s.cipher.Encrypt(plaintext)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteDevice(r.Context(), deviceIDParam(r)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.deviceCache.Invalidate(devicesCacheKey)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConnectedDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := model.TagFilterOr
	if q.Get("mode") == "and" {
		mode = model.TagFilterAnd
	}
	tags := q["tag"]

	devices, err := s.store.ConnectedDevices(r.Context(), deviceIDParam(r), tags, mode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "devices": devices})
}

func (s *Server) handleUpsertDeviceMetadata(w http.ResponseWriter, r *http.Request) {
	var m model.DeviceMetadata
	if err := decodeJSON(r, &m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m.DeviceID = deviceIDParam(r)
	m.UpdatedAt = time.Now().UTC()
	if err := s.store.UpsertDeviceMetadata(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleClearDeviceData(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearDeviceData(r.Context(), deviceIDParam(r)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleClearAllData(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearAllData(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.deviceCache.Invalidate(devicesCacheKey)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleCollectNow(w http.ResponseWriter, r *http.Request) {
	req, err := s.store.EnqueueCollectionRequest(r.Context(), deviceIDParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}
