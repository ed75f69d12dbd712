package api

import (
	"context"
	"errors"
	"net"
)

// ErrNoData means a stream closed before any completion data was merged.
var ErrNoData = errors.New("stream ended before any completion data arrived")

// ErrBalanceUnsupported means the backend answered 404 to a balance query;
// local model servers do not implement the endpoint.
var ErrBalanceUnsupported = errors.New("backend does not support balance queries")

// UpstreamError carries the provider's own error message, taken from the
// error payload of an HTTP response or an SSE error frame.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return e.Message
}

// IsTransient reports whether err is worth a rollback-and-retry in a
// multi-turn session: timeouts, connection failures and categorized upstream
// request errors. Everything else propagates.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return true
	}
	if errors.Is(err, ErrNoData) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
