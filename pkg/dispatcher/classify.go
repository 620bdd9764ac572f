package dispatcher

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"

	"github.com/shadowmesh/netcore/pkg/connection"
	"github.com/shadowmesh/netcore/pkg/control"
)

// errAlreadyHandled marks a terminal-stage rejection (permission, rate
// limit, encryption mismatch, cancellation) that has already sent its own
// control-fail directive, so Dispatch does not classify and send a second
// one for the same failure.
var errAlreadyHandled = errors.New("dispatcher: precondition rejection already reported")

// Go has no exception hierarchy, so handlers that want a specific
// classification wrap their error with one of these markers. An
// unwrapped error always falls through to InternalError, matching the
// table's "anything else" row.

type validationError struct{ err error }

func (e validationError) Error() string { return e.err.Error() }
func (e validationError) Unwrap() error { return e.err }

// Invalid wraps err so the dispatcher classifies it as REQUEST_INVALID /
// FIX_AND_RETRY — argument, format, or validation failures.
func Invalid(err error) error { return validationError{err} }

type unauthorizedError struct{ err error }

func (e unauthorizedError) Error() string { return e.err.Error() }
func (e unauthorizedError) Unwrap() error { return e.err }

// Unauthorized wraps err so the dispatcher classifies it as
// ACCOUNT_LOCKED / NONE — unauthorized or security failures.
func Unauthorized(err error) error { return unauthorizedError{err} }

type unsupportedError struct{ err error }

func (e unsupportedError) Error() string { return e.err.Error() }
func (e unsupportedError) Unwrap() error { return e.err }

// Unsupported wraps err so the dispatcher classifies it as
// OPERATION_UNSUPPORTED / NONE — not-supported or not-implemented paths.
func Unsupported(err error) error { return unsupportedError{err} }

// classifyError maps a handler-originated error to the (reason, action,
// flags) triple per SPEC_FULL.md's authoritative exception-classification
// table.
func classifyError(err error) (control.Reason, control.Action, control.Flags) {
	if err == nil {
		return control.ReasonNone, control.ActionNone, control.FlagNone
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return control.ReasonTimeout, control.ActionRetry, control.FlagIsTransient
	}

	var ve validationError
	if errors.As(err, &ve) {
		return control.ReasonRequestInvalid, control.ActionFixAndRetry, control.FlagNone
	}

	var ue unauthorizedError
	if errors.As(err, &ue) {
		return control.ReasonAccountLocked, control.ActionNone, control.FlagNone
	}

	var se unsupportedError
	if errors.As(err, &se) {
		return control.ReasonOperationUnsupported, control.ActionNone, control.FlagNone
	}

	if errors.Is(err, connection.ErrDisposed) {
		return control.ReasonNetworkError, control.ActionRetry, control.FlagIsTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, os.ErrDeadlineExceeded) {
		if isTransientNetError(err) {
			return control.ReasonNetworkError, control.ActionRetry, control.FlagIsTransient
		}
		return control.ReasonNetworkError, control.ActionRetry, control.FlagNone
	}

	return control.ReasonInternalError, control.ActionNone, control.FlagNone
}

// isTransientNetError implements the socket sub-classification:
// ECONNRESET, ECONNABORTED, EHOSTUNREACH, ENETUNREACH, EINTR, deadline
// expiry, and any net.Error reporting Timeout() are transient; everything
// else under NETWORK_ERROR is not.
func isTransientNetError(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EINTR) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
