package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// BuildErrorCode categorizes batch construction failures.
type BuildErrorCode string

const (
	// ErrCodeCapabilityNotSupported indicates a method whose capability the
	// session does not declare, or a method no capability owns.
	ErrCodeCapabilityNotSupported BuildErrorCode = "CAPABILITY_NOT_SUPPORTED"

	// ErrCodeUnknownCallID indicates a reference to a call this builder never produced.
	ErrCodeUnknownCallID BuildErrorCode = "UNKNOWN_CALL_ID"

	// ErrCodeTooManyCalls indicates more calls than maxCallsInRequest.
	ErrCodeTooManyCalls BuildErrorCode = "TOO_MANY_CALLS"

	// ErrCodeCyclicOrForwardReference indicates a reference whose target is
	// not strictly earlier in the batch.
	ErrCodeCyclicOrForwardReference BuildErrorCode = "CYCLIC_OR_FORWARD_REFERENCE"

	// ErrCodeBatchConsumed indicates a second send of the same batch.
	ErrCodeBatchConsumed BuildErrorCode = "BATCH_CONSUMED"

	// ErrCodeInvalidArgument indicates a structurally malformed argument.
	ErrCodeInvalidArgument BuildErrorCode = "INVALID_ARGUMENT"

	// ErrCodeTooManyObjects indicates a literal ids list above maxObjectsInGet.
	ErrCodeTooManyObjects BuildErrorCode = "TOO_MANY_OBJECTS"

	// ErrCodeAlreadyFinalized indicates a builder used after Finalize.
	ErrCodeAlreadyFinalized BuildErrorCode = "ALREADY_FINALIZED"

	// ErrCodeRequestTooLarge indicates an encoded body above maxSizeRequest.
	ErrCodeRequestTooLarge BuildErrorCode = "REQUEST_TOO_LARGE"
)

// BuildError is a batch construction failure detected before any network use.
type BuildError struct {
	Code    BuildErrorCode
	CallID  CallID
	Method  string
	Message string
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.CallID != "" {
		return fmt.Sprintf("%s: %s (call=%s)", e.Code, e.Message, e.CallID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Violations returns every BuildError carried by err, including each entry
// of an aggregated Finalize error.
func Violations(err error) []*BuildError {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		var out []*BuildError
		for _, e := range merr.Errors {
			out = append(out, Violations(e)...)
		}
		return out
	}
	var be *BuildError
	if errors.As(err, &be) {
		return []*BuildError{be}
	}
	return nil
}

// HasCode reports whether err carries a BuildError with the given code.
func HasCode(err error, code BuildErrorCode) bool {
	for _, v := range Violations(err) {
		if v.Code == code {
			return true
		}
	}
	return false
}

// IsCapabilityNotSupported returns true if err reports an unsupported capability.
func IsCapabilityNotSupported(err error) bool {
	return HasCode(err, ErrCodeCapabilityNotSupported)
}

// IsUnknownCallID returns true if err reports a reference to an unknown call.
func IsUnknownCallID(err error) bool {
	return HasCode(err, ErrCodeUnknownCallID)
}

// IsTooManyCalls returns true if err reports a call-count violation.
func IsTooManyCalls(err error) bool {
	return HasCode(err, ErrCodeTooManyCalls)
}

// IsCyclicOrForwardReference returns true if err reports a self or forward reference.
func IsCyclicOrForwardReference(err error) bool {
	return HasCode(err, ErrCodeCyclicOrForwardReference)
}

// IsBatchConsumed returns true if err reports a reused batch.
func IsBatchConsumed(err error) bool {
	return HasCode(err, ErrCodeBatchConsumed)
}

func formatViolations(es []error) string {
	if len(es) == 1 {
		return es[0].Error()
	}
	lines := make([]string, len(es))
	for i, e := range es {
		lines[i] = "\t* " + e.Error()
	}
	return fmt.Sprintf("batch has %d violations:\n%s", len(es), strings.Join(lines, "\n"))
}
