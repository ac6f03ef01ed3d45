package eventwatch

import (
	"fmt"
	"net/http"
)

// TransportError reports that no response was received for a poll request:
// connection refused, DNS or TLS failure, or a timeout.
//
// It is the only error [Detector.WaitForEvents] returns on its own. The
// detector has already pushed its next eligible time forward by the current
// interval, so calling WaitForEvents again does not busy-loop.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("poll %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError reports a response status the detector was configured to
// surface via [DetectorConfig.FailOnStatus] (typically 401 or 403).
// Without that configuration such statuses are retried silently.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("poll %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}
