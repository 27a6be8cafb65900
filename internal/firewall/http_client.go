package firewall

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config controls one appliance connection. TLSSkipVerify defaults to true:
// most deployments point at a management interface with a self-signed
// certificate, and requiring operators to distribute a CA bundle per
// appliance would make onboarding impractical. This is a documented
// security trade-off (§4.1), not an oversight.
type Config struct {
	Endpoint      string // management IP or hostname, no scheme
	APIKey        string
	TLSSkipVerify bool
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	DownloadTimeout time.Duration
	MaxRetries    int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
}

// DefaultConfig returns the §4.1 contract defaults.
func DefaultConfig(endpoint, apiKey string) Config {
	return Config{
		Endpoint:        endpoint,
		APIKey:          apiKey,
		TLSSkipVerify:   true,
		ConnectTimeout:  5 * time.Second,
		ReadTimeout:     10 * time.Second,
		DownloadTimeout: 60 * time.Second,
		MaxRetries:      2,
		BaseBackoff:     200 * time.Millisecond,
		MaxBackoff:      2 * time.Second,
	}
}

// httpClient is the sole Client implementation, speaking
// GET https://<endpoint>/api/?type=op&cmd=<xml>&key=<api-key> and decoding the
// XML response body.
type httpClient struct {
	cfg    Config
	client *http.Client
}

// NewHTTPClient builds a Client backed by a dedicated http.Transport, mirroring
// the teacher's transport.StreamableHTTPAdapter.Connect wiring: per-host
// connection reuse, an explicit TLS config driven by cfg.TLSSkipVerify, and a
// dial timeout bound to cfg.ConnectTimeout.
func NewHTTPClient(cfg Config) Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
	}

	return &httpClient{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.ReadTimeout,
		},
	}
}

// doOp issues one type=op&cmd=...&key=... GET against the appliance, with
// bounded exponential-backoff retry on transient failures (§4.1: up to 2
// retries, jittered exponential backoff; 401/403 is not retried).
func (c *httpClient) doOp(ctx context.Context, op, cmd string, timeout time.Duration) ([]byte, error) {
	u := &url.URL{Scheme: "https", Host: c.cfg.Endpoint, Path: "/api/"}
	q := u.Query()
	q.Set("type", "op")
	q.Set("cmd", cmd)
	q.Set("key", c.cfg.APIKey)
	u.RawQuery = q.Encode()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.BaseBackoff
	policy.MaxInterval = c.cfg.MaxBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0.3 // jitter
	retrier := backoff.WithMaxRetries(policy, uint64(c.cfg.MaxRetries))
	retrier = backoff.WithContext(retrier, ctx)

	var body []byte
	err := backoff.Retry(func() error {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(newOpError(op, c.cfg.Endpoint, err))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if reqCtx.Err() != nil {
				if ctx.Err() != nil {
					return backoff.Permanent(newOpError(op, c.cfg.Endpoint, ErrTimeout))
				}
				return newOpError(op, c.cfg.Endpoint, ErrTimeout) // retryable
			}
			return newOpError(op, c.cfg.Endpoint, ErrUnreachable) // retryable
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return backoff.Permanent(newOpError(op, c.cfg.Endpoint, ErrAuthFailed))
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return backoff.Permanent(newOpError(op, c.cfg.Endpoint, ErrRateLimited))
		}
		if resp.StatusCode >= 500 {
			return newOpError(op, c.cfg.Endpoint, ErrUnreachable) // retryable
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return newOpError(op, c.cfg.Endpoint, ErrBadResponse)
		}
		body = b
		return nil
	}, retrier)

	if err != nil {
		return nil, err
	}
	return body, nil
}

// panResponse is the common envelope every PAN-OS "show" op response uses.
type panResponse struct {
	XMLName xml.Name `xml:"response"`
	Status  string   `xml:"status,attr"`
	Result  struct {
		Inner []byte `xml:",innerxml"`
	} `xml:"result"`
}

func decodeEnvelope(body []byte, op, deviceID string) (panResponse, error) {
	var r panResponse
	if err := xml.Unmarshal(body, &r); err != nil {
		return r, newOpError(op, deviceID, ErrBadResponse)
	}
	if r.Status != "success" {
		return r, newOpError(op, deviceID, ErrBadResponse)
	}
	return r, nil
}
