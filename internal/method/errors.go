package method

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind is the closed set of method-level error types this client knows
// (RFC 8620 section 3.6.2 and the per-method errors of sections 5 and 8).
// Any other type string decodes to KindOther and is kept in MethodError.Type.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindServerUnavailable
	KindServerFail
	KindServerPartialFail
	KindUnknownMethod
	KindInvalidArguments
	KindInvalidResultReference
	KindForbidden
	KindAccountNotFound
	KindAccountNotSupportedByMethod
	KindAccountReadOnly
	KindRequestTooLarge
	KindStateMismatch
	KindCannotCalculateChanges
	KindAnchorNotFound
	KindUnsupportedSort
	KindUnsupportedFilter
	KindTooManyChanges
	KindFromAccountNotFound
	KindFromAccountNotSupportedByMethod
	KindRateLimit
)

var kindNames = [...]string{
	KindOther:                           "other",
	KindServerUnavailable:               "serverUnavailable",
	KindServerFail:                      "serverFail",
	KindServerPartialFail:               "serverPartialFail",
	KindUnknownMethod:                   "unknownMethod",
	KindInvalidArguments:                "invalidArguments",
	KindInvalidResultReference:          "invalidResultReference",
	KindForbidden:                       "forbidden",
	KindAccountNotFound:                 "accountNotFound",
	KindAccountNotSupportedByMethod:     "accountNotSupportedByMethod",
	KindAccountReadOnly:                 "accountReadOnly",
	KindRequestTooLarge:                 "requestTooLarge",
	KindStateMismatch:                   "stateMismatch",
	KindCannotCalculateChanges:          "cannotCalculateChanges",
	KindAnchorNotFound:                  "anchorNotFound",
	KindUnsupportedSort:                 "unsupportedSort",
	KindUnsupportedFilter:               "unsupportedFilter",
	KindTooManyChanges:                  "tooManyChanges",
	KindFromAccountNotFound:             "fromAccountNotFound",
	KindFromAccountNotSupportedByMethod: "fromAccountNotSupportedByMethod",
	KindRateLimit:                       "rateLimit",
}

var kindsByName = func() map[string]ErrorKind {
	m := make(map[string]ErrorKind, len(kindNames))
	for k, name := range kindNames {
		if ErrorKind(k) != KindOther {
			m[name] = ErrorKind(k)
		}
	}
	return m
}()

// String returns the wire name of k.
func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseErrorKind maps a wire error type to its kind. Unknown types map to
// KindOther; it never fails.
func ParseErrorKind(typ string) ErrorKind {
	if k, ok := kindsByName[typ]; ok {
		return k
	}
	return KindOther
}

// MethodError is a server-side rejection of one call. Other calls in the
// same batch are unaffected.
type MethodError struct {
	Kind        ErrorKind
	Type        string // wire type, kept verbatim for KindOther
	Description string
	Raw         json.RawMessage
}

// Error implements the error interface.
func (e *MethodError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("method error %s: %s", e.Type, e.Description)
	}
	return "method error " + e.Type
}

// Details decodes the full error object into v.
func (e *MethodError) Details(v any) error {
	return json.Unmarshal(e.Raw, v)
}

// IsKind reports whether err is a MethodError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var me *MethodError
	if errors.As(err, &me) {
		return me.Kind == kind
	}
	return false
}

// UnsupportedMethodError reports a successful result for a method this
// decoder has no decoder for. The raw result is kept for inspection.
type UnsupportedMethodError struct {
	Method string
	Raw    json.RawMessage
}

// Error implements the error interface.
func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("UNSUPPORTED_METHOD: no decoder for %s", e.Method)
}

// IsUnsupportedMethod returns true if err is an UnsupportedMethodError.
func IsUnsupportedMethod(err error) bool {
	var ue *UnsupportedMethodError
	return errors.As(err, &ue)
}

// SetError explains why one object of a /set, /copy or /import call failed
// (RFC 8620 section 5.3).
type SetError struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Properties  []string `json:"properties,omitempty"`
	ExistingID  string   `json:"existingId,omitempty"`
}

// Error implements the error interface.
func (e SetError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Description)
	}
	return e.Type
}
