package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_LevelParsing(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"bogus": zerolog.InfoLevel,
		"":      zerolog.InfoLevel,
	}
	for level, want := range cases {
		var buf bytes.Buffer
		logger := New(level, &buf)
		if logger.GetLevel() != want {
			t.Errorf("New(%q).GetLevel() = %v, want %v", level, logger.GetLevel(), want)
		}
	}
}

func TestNew_WritesJSONWithTimestamp(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", &buf)
	logger.Info().Str("device_id", "fw-01").Msg("polled")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decoding log line: %v", err)
	}
	if decoded["device_id"] != "fw-01" {
		t.Errorf("missing device_id field: %v", decoded)
	}
	if _, ok := decoded["time"]; !ok {
		t.Errorf("expected a timestamp field: %v", decoded)
	}
}

func TestNew_RespectsLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New("warn", &buf)
	logger.Info().Msg("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("expected info-level message to be filtered at warn level, got %q", buf.String())
	}
	logger.Warn().Msg("should pass")
	if buf.Len() == 0 {
		t.Error("expected warn-level message to be written")
	}
}
