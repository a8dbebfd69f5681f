package protocol

import (
	"errors"

	"github.com/ppiankov/sitaware/internal/model"
	"github.com/ppiankov/sitaware/internal/oracle"
	"github.com/ppiankov/sitaware/internal/verdict"
)

var (
	// ErrBusy is returned by Begin while another evaluation holds the session.
	ErrBusy = errors.New("protocol: session has an evaluation in flight")
	// ErrNotPending is returned when a continuation was already resolved,
	// discarded or failed.
	ErrNotPending = errors.New("protocol: evaluation is not awaiting a follow-up")
)

// ConfigError is an input that cannot be rendered into a query.
type ConfigError = model.ConfigError

// ErrorClass groups failures by what the caller should do about them.
type ErrorClass string

const (
	ClassNone      ErrorClass = ""
	ClassTransport ErrorClass = "transport"
	ClassFormat    ErrorClass = "format"
	ClassConfig    ErrorClass = "config"
	ClassInternal  ErrorClass = "internal"
)

// Classify maps an evaluation error to its class.
func Classify(err error) ErrorClass {
	var cfgErr *model.ConfigError
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, oracle.ErrTransport):
		return ClassTransport
	case errors.Is(err, verdict.ErrFormat):
		return ClassFormat
	case errors.As(err, &cfgErr):
		return ClassConfig
	default:
		return ClassInternal
	}
}

// FollowUpError is a phase-two failure. The phase-one verdict it follows
// stays available so an anomaly is never hidden behind the error.
type FollowUpError struct {
	Benign bool
	Err    error
}

func (e *FollowUpError) Error() string { return e.Err.Error() }

func (e *FollowUpError) Unwrap() error { return e.Err }

// VerdictOf returns the phase-one verdict carried by err, if any.
func VerdictOf(err error) (benign, ok bool) {
	var fe *FollowUpError
	if errors.As(err, &fe) {
		return fe.Benign, true
	}
	return false, false
}
