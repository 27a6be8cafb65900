package firewall

import "errors"

// Sentinel errors for the FirewallClient failure taxonomy (§4.1). Callers use
// errors.Is against these rather than inspecting wrapped HTTP status codes.
var (
	// ErrTimeout means the appliance did not respond within the configured
	// connect/read timeout.
	ErrTimeout = errors.New("firewall: operation timed out")

	// ErrUnreachable means the appliance could not be dialed at all (DNS
	// failure, connection refused, network unreachable) or answered with a
	// 5xx status.
	ErrUnreachable = errors.New("firewall: appliance unreachable")

	// ErrAuthFailed means the appliance returned HTTP 401/403. An XML payload
	// with a non-success status, including one rejecting the API key, is
	// reported as ErrBadResponse instead.
	ErrAuthFailed = errors.New("firewall: authentication failed")

	// ErrBadResponse means the appliance returned a 200 whose body did not
	// parse into the expected XML schema.
	ErrBadResponse = errors.New("firewall: malformed response")

	// ErrRateLimited means the appliance signaled it is throttling requests.
	ErrRateLimited = errors.New("firewall: rate limited by appliance")
)

// OpError wraps one of the sentinel errors above with the operation and
// device context that produced it, without losing errors.Is compatibility.
type OpError struct {
	Op       string
	DeviceID string
	Err      error
}

func (e *OpError) Error() string {
	return "firewall: " + e.Op + " (device " + e.DeviceID + "): " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

func newOpError(op, deviceID string, err error) *OpError {
	return &OpError{Op: op, DeviceID: deviceID, Err: err}
}
