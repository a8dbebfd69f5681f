package oracle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/ppiankov/neurorouter"
	openai "github.com/sashabaranov/go-openai"
)

// Kind classifies a transport failure.
type Kind string

const (
	KindNetwork   Kind = "network"
	KindAuth      Kind = "auth"
	KindRateLimit Kind = "rate_limit"
	KindTimeout   Kind = "timeout"
	KindService   Kind = "service"
	KindEmpty     Kind = "empty"
	KindCanceled  Kind = "canceled"
)

// ErrTransport matches every *TransportError via errors.Is.
var ErrTransport = errors.New("oracle transport failure")

// TransportError is an oracle exchange that produced no usable reply.
// The session context is never modified when one is returned.
type TransportError struct {
	Op         string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("oracle: %s: %s (HTTP %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("oracle: %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the cause. Rate-limit failures also match
// neurorouter.ErrRateLimited so callers can defer retries uniformly.
func (e *TransportError) Unwrap() []error {
	if e.Kind == KindRateLimit {
		return []error{e.Err, neurorouter.ErrRateLimited}
	}
	return []error{e.Err}
}

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Retryable reports whether the same request may succeed later.
func (e *TransportError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindTimeout, KindService, KindNetwork:
		return true
	default:
		return false
	}
}

// classify wraps a client error into a *TransportError.
func classify(op string, err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	out := &TransportError{Op: op, Kind: KindNetwork, Err: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		out.Kind = KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = KindTimeout
	case errors.Is(err, neurorouter.ErrRateLimited):
		out.Kind = KindRateLimit
	case errors.As(err, &apiErr):
		out.StatusCode = apiErr.HTTPStatusCode
		out.Kind = kindForStatus(apiErr.HTTPStatusCode)
	case errors.As(err, &reqErr):
		out.StatusCode = reqErr.HTTPStatusCode
		out.Kind = kindForStatus(reqErr.HTTPStatusCode)
	case errors.As(err, &netErr) && netErr.Timeout():
		out.Kind = KindTimeout
	}
	return out
}

func kindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 400:
		return KindService
	default:
		return KindNetwork
	}
}
