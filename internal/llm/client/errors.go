package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// maxErrorBody caps the response body kept on UpstreamHTTPError.
const maxErrorBody = 2048

// UpstreamHTTPError means the endpoint answered with a non-2xx status.
type UpstreamHTTPError struct {
	Status int
	Body   string
}

func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("llm: upstream status %d: %s", e.Status, e.Body)
}

// UpstreamUnavailableError means the endpoint could not be reached or did
// not answer in time.
type UpstreamUnavailableError struct {
	Cause error
}

func (e *UpstreamUnavailableError) Error() string {
	return "llm: upstream unavailable: " + e.Cause.Error()
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Cause }

// Timeout reports whether the failure was a deadline.
func (e *UpstreamUnavailableError) Timeout() bool {
	if errors.Is(e.Cause, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Cause, &ne) && ne.Timeout()
}

// IsUpstream reports whether err belongs to the upstream error taxonomy.
func IsUpstream(err error) bool {
	var httpErr *UpstreamHTTPError
	var unavail *UpstreamUnavailableError
	return errors.As(err, &httpErr) || errors.As(err, &unavail)
}

// Unavailable wraps cause unless it is already classified.
func Unavailable(cause error) error {
	if cause == nil || IsUpstream(cause) {
		return cause
	}
	return &UpstreamUnavailableError{Cause: cause}
}

func truncateBody(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
