package apiserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/panfm/panfm/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func deviceIDParam(r *http.Request) string { return chi.URLParam(r, "deviceID") }

// rangeDurations is the §6 vocabulary of accepted `range` query values.
var rangeDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"60m": 60 * time.Minute,
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

func parseRange(raw string) (time.Duration, error) {
	if raw == "" {
		return time.Hour, nil
	}
	d, ok := rangeDurations[raw]
	if !ok {
		return 0, fmt.Errorf("unrecognized range %q", raw)
	}
	return d, nil
}

func parseResolution(raw string) model.Resolution {
	switch raw {
	case "raw":
		return model.ResolutionRaw
	case "hourly":
		return model.ResolutionHourly
	case "daily":
		return model.ResolutionDaily
	default:
		return model.ResolutionAuto
	}
}

func parseLimit(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
