package firewall

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, endpoint string) *httpClient {
	t.Helper()
	cfg := DefaultConfig(endpoint, "test-api-key")
	cfg.MaxRetries = 0
	cfg.ConnectTimeout = time.Second
	cfg.ReadTimeout = time.Second
	c, ok := NewHTTPClient(cfg).(*httpClient)
	if !ok {
		t.Fatalf("NewHTTPClient did not return *httpClient")
	}
	return c
}

func stripScheme(rawURL string) string {
	return strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
}

func TestHTTPClient_SystemInfo(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-api-key" {
			t.Errorf("expected api key in query, got %q", r.URL.Query().Get("key"))
		}
		w.Write([]byte(`<response status="success"><result><system><hostname>fw-01</hostname><sw-version>11.1.2</sw-version><uptime>3 days, 04:05:06</uptime><serial>001122334455</serial></system></result></response>`))
	}))
	defer srv.Close()

	c := newTestClient(t, stripScheme(srv.URL))
	info, err := c.SystemInfo(context.Background())
	if err != nil {
		t.Fatalf("SystemInfo: %v", err)
	}
	if info.Hostname != "fw-01" || info.PANOSVersion != "11.1.2" || info.SerialNumber != "001122334455" {
		t.Errorf("unexpected SystemInfo: %+v", info)
	}
	wantUptime := int64(3*86400 + 4*3600 + 5*60 + 6)
	if info.UptimeSeconds != wantUptime {
		t.Errorf("UptimeSeconds = %d, want %d", info.UptimeSeconds, wantUptime)
	}
}

func TestHTTPClient_AuthFailedNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := DefaultConfig(stripScheme(srv.URL), "bad-key")
	cfg.MaxRetries = 2
	c := &httpClient{cfg: cfg, client: &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}}}
	_, err := c.SystemInfo(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly one call for a permanent error, got %d", calls)
	}
}

func TestHTTPClient_ServerErrorRetriesThenFails(t *testing.T) {
	var calls int
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := DefaultConfig(stripScheme(srv.URL), "test-api-key")
	cfg.MaxRetries = 2
	cfg.BaseBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	c := &httpClient{cfg: cfg, client: &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}}}
	_, err := c.SystemInfo(context.Background())
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable after exhausting retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 1 initial + 2 retries = 3 calls, got %d", calls)
	}
}

func TestHTTPClient_BadXMLIsBadResponse(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not xml at all"))
	}))
	defer srv.Close()

	c := newTestClient(t, stripScheme(srv.URL))
	_, err := c.SystemInfo(context.Background())
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	cfg := DefaultConfig("127.0.0.1:1", "test-api-key")
	cfg.MaxRetries = 0
	cfg.ConnectTimeout = 100 * time.Millisecond
	cfg.ReadTimeout = 100 * time.Millisecond
	c := NewHTTPClient(cfg)
	_, err := c.SystemInfo(context.Background())
	if err == nil {
		t.Fatal("expected an error dialing a closed port")
	}
	if !errors.Is(err, ErrUnreachable) && !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrUnreachable or ErrTimeout, got %v", err)
	}
}

func TestOpError_Unwrap(t *testing.T) {
	err := newOpError("SystemInfo", "fw-01", ErrTimeout)
	if !errors.Is(err, ErrTimeout) {
		t.Fatal("OpError should unwrap to its sentinel")
	}
	if err.Error() == "" {
		t.Fatal("OpError.Error() should not be empty")
	}
}

func TestParseUptime(t *testing.T) {
	cases := map[string]int64{
		"3 days, 04:05:06": 3*86400 + 4*3600 + 5*60 + 6,
		"garbage":          0,
		"":                 0,
	}
	for in, want := range cases {
		if got := parseUptime(in); got != want {
			t.Errorf("parseUptime(%q) = %d, want %d", in, got, want)
		}
	}
}
