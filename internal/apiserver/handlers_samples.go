package apiserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// handleThroughputHistory serves the range+resolution query over
// internal/store's QuerySamples, implementing §7's "empty range returns
// status=success, samples=[]" rule rather than a 404 or empty-body response.
func (s *Server) handleThroughputHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	span, err := parseRange(q.Get("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := parseResolution(q.Get("resolution"))

	end := time.Now().UTC()
	start := end.Add(-span)

	samples, err := s.store.QuerySamples(r.Context(), deviceIDParam(r), start, end, res)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]any{"status": "success", "samples": samples}
	if len(samples) == 0 {
		resp["message"] = "no samples in the requested range"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleThroughputLatest(w http.ResponseWriter, r *http.Request) {
	sample, err := s.store.LatestSample(r.Context(), deviceIDParam(r))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "sample": nil, "message": "no samples yet"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "sample": sample})
}

func (s *Server) rangeWindow(r *http.Request) (time.Time, time.Time, error) {
	span, err := parseRange(r.URL.Query().Get("range"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end := time.Now().UTC()
	return end.Add(-span), end, nil
}

func (s *Server) handleTopCategories(w http.ResponseWriter, r *http.Request) {
	start, end, err := s.rangeWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	top, err := s.store.TopCategories(r.Context(), deviceIDParam(r), start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "top_categories": top})
}

func (s *Server) handleTopClients(w http.ResponseWriter, r *http.Request) {
	start, end, err := s.rangeWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	top, err := s.store.TopClients(r.Context(), deviceIDParam(r), start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "top_clients": top})
}

func (s *Server) handleTopApplications(w http.ResponseWriter, r *http.Request) {
	start, end, err := s.rangeWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"), 5, 50)
	apps, err := s.store.TopApplications(r.Context(), deviceIDParam(r), start, end, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "top_applications": apps})
}

func (s *Server) handleThreatLogs(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 100, 1000)
	logs, err := s.store.ThreatLogs(r.Context(), deviceIDParam(r), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "threat_logs": logs})
}

// handleTrafficFlows serves the 60s client-traffic-flows cache keyed by
// (device, client IP), per §6.
func (s *Server) handleTrafficFlows(w http.ResponseWriter, r *http.Request) {
	deviceID := deviceIDParam(r)
	clientIP := r.URL.Query().Get("client_ip")
	limit := parseLimit(r.URL.Query().Get("limit"), 100, 1000)

	cacheKey := deviceID + "|" + clientIP + "|" + strconv.Itoa(limit)
	if cached, ok := s.flowCache.Get(cacheKey); ok {
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "traffic_flows": cached})
		return
	}

	flows, err := s.store.TrafficFlowsForClient(r.Context(), deviceID, clientIP, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.flowCache.Set(cacheKey, flows)
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "traffic_flows": flows})
}

func (s *Server) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "requestID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	req, err := s.store.RequestStatus(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	writeJSON(w, http.StatusOK, req)
}
