package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportUnavailable means no transport is selected. Resolution always
	// ends in some mode, so seeing it points at a misconfigured override.
	ErrTransportUnavailable = errors.New("bridge: no transport available")
	// ErrProbeTimeout marks a reachability probe that did not answer in time.
	ErrProbeTimeout = errors.New("bridge: probe timed out")
	// ErrSDKUnavailable is returned when a call needs the host SDK and none is present.
	ErrSDKUnavailable = errors.New("bridge: host sdk not available")
)

// TransportError is a network level failure of an HTTP call.
type TransportError struct {
	Action string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bridge %s: transport: %v", e.Action, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx answer from the peer.
type HTTPError struct {
	Action  string
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("Bridge request failed: %d %s", e.Status, e.Message)
}

// ApplicationError means the peer answered but rejected the request.
type ApplicationError struct {
	Action  string
	Message string
}

func (e *ApplicationError) Error() string {
	return e.Message
}

// SDKError wraps whatever the host SDK returned.
type SDKError struct {
	Action string
	Err    error
}

func (e *SDKError) Error() string {
	return fmt.Sprintf("bridge %s: sdk: %v", e.Action, e.Err)
}

func (e *SDKError) Unwrap() error { return e.Err }

// IsTransportFailure reports whether err may be retried over the host SDK.
// Application and SDK errors are final.
func IsTransportFailure(err error) bool {
	var te *TransportError
	var he *HTTPError
	return errors.As(err, &te) || errors.As(err, &he)
}

// outcome maps err to the metrics label used for call results.
func outcome(err error) string {
	var (
		te *TransportError
		he *HTTPError
		ae *ApplicationError
		se *SDKError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &te):
		return "transport_error"
	case errors.As(err, &he):
		return "http_error"
	case errors.As(err, &ae):
		return "application_error"
	case errors.As(err, &se):
		return "sdk_error"
	default:
		return "error"
	}
}
