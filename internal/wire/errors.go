package wire

import (
	"errors"
	"fmt"

	"github.com/roach88/jmap/internal/graph"
)

// ProtocolErrorCode categorizes client/server desync failures.
type ProtocolErrorCode string

const (
	// ErrCodeMalformedResponse indicates a response body whose shape does not
	// match the batch-response format, or a result that does not match its
	// method's result shape.
	ErrCodeMalformedResponse ProtocolErrorCode = "MALFORMED_RESPONSE"

	// ErrCodeOrphanResponse indicates a response entry for a call id the
	// client never sent.
	ErrCodeOrphanResponse ProtocolErrorCode = "ORPHAN_RESPONSE"
)

// ProtocolError is fatal to the batch it was found in.
type ProtocolError struct {
	Code    ProtocolErrorCode
	CallID  graph.CallID
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.CallID != "" {
		msg = fmt.Sprintf("%s: %s (call=%s)", e.Code, e.Message, e.CallID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Malformed creates a MALFORMED_RESPONSE error.
func Malformed(callID graph.CallID, message string, err error) *ProtocolError {
	return &ProtocolError{Code: ErrCodeMalformedResponse, CallID: callID, Message: message, Err: err}
}

// IsMalformedResponse returns true if err is a MALFORMED_RESPONSE error.
// Uses errors.As to handle wrapped errors.
func IsMalformedResponse(err error) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeMalformedResponse
	}
	return false
}

// IsOrphanResponse returns true if err is an ORPHAN_RESPONSE error.
func IsOrphanResponse(err error) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeOrphanResponse
	}
	return false
}
