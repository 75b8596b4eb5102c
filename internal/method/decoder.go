// Package method turns correlated response entries into typed results or
// typed errors.
//
// Decoding is keyed by method name. A success for a method without a decoder
// yields UnsupportedMethodError carrying the raw JSON; an error tuple yields a
// MethodError whose Kind falls back to KindOther for unknown types. Neither
// case panics.
package method

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/jmap/internal/capability"
	"github.com/roach88/jmap/internal/graph"
	"github.com/roach88/jmap/internal/mail"
	"github.com/roach88/jmap/internal/value"
	"github.com/roach88/jmap/internal/wire"
)

// DecodeFunc decodes the raw success object of one method.
type DecodeFunc func(raw json.RawMessage) (Result, error)

// Decoder maps method names to decode functions.
//
// Thread-safety: Decoder is safe for concurrent use.
type Decoder struct {
	mu    sync.RWMutex
	funcs map[string]DecodeFunc
}

// NewDecoder returns a decoder for every method reg declares whose object
// type has a known model. A nil reg means the default registry.
func NewDecoder(reg *capability.Registry) *Decoder {
	if reg == nil {
		reg = capability.Default()
	}
	d := &Decoder{funcs: make(map[string]DecodeFunc)}
	for _, m := range reg.Methods() {
		typeName, verb, ok := strings.Cut(m, "/")
		if !ok {
			continue
		}
		family, ok := families[typeName]
		if !ok {
			continue
		}
		if fn := family(verb); fn != nil {
			d.funcs[m] = fn
		}
	}
	return d
}

// Register installs or replaces the decode function for method.
func (d *Decoder) Register(method string, fn DecodeFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.funcs[method] = fn
}

// Methods returns the method names with a decoder, sorted.
func (d *Decoder) Methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.funcs))
}

// Decode maps one outcome to a typed result or a typed error.
//
// Errors: *MethodError for an error tuple, *UnsupportedMethodError for an
// unknown method, and a MALFORMED_RESPONSE *wire.ProtocolError when the
// result does not have the method's result shape.
func (d *Decoder) Decode(method string, outcome wire.Outcome) (Result, error) {
	return d.decode("", method, outcome)
}

// DecodeEntry is Decode for a correlated entry; shape errors carry its call id.
func (d *Decoder) DecodeEntry(e wire.Entry) (Result, error) {
	return d.decode(e.CallID, e.Method, e.Outcome)
}

func (d *Decoder) decode(callID graph.CallID, method string, outcome wire.Outcome) (Result, error) {
	if outcome.IsError() {
		eo := outcome.Error
		return nil, &MethodError{
			Kind:        ParseErrorKind(eo.Type),
			Type:        eo.Type,
			Description: eo.Description,
			Raw:         eo.Raw,
		}
	}

	d.mu.RLock()
	fn, ok := d.funcs[method]
	d.mu.RUnlock()
	if !ok {
		return nil, &UnsupportedMethodError{Method: method, Raw: outcome.Result}
	}

	res, err := fn(outcome.Result)
	if err != nil {
		return nil, wire.Malformed(callID, method+" result", err)
	}
	return res, nil
}

// families maps an object type name to the decoder of each of its verbs.
var families = map[string]func(verb string) DecodeFunc{
	"Core": func(verb string) DecodeFunc {
		if verb == "echo" {
			return decodeEcho
		}
		return nil
	},
	"Blob": func(verb string) DecodeFunc {
		if verb == "copy" {
			return decodeAs[BlobCopyResult]("fromAccountId", "accountId")
		}
		return nil
	},
	"SearchSnippet": func(verb string) DecodeFunc {
		if verb == "get" {
			return decodeAs[SearchSnippetResult]("accountId", "list")
		}
		return nil
	},
	"PushSubscription": standard[mail.PushSubscription],
	"Mailbox":          standard[mail.Mailbox],
	"Thread":           standard[mail.Thread],
	"Email":            standard[mail.Email],
	"Identity":         standard[mail.Identity],
	"EmailSubmission":  standard[mail.EmailSubmission],
	"VacationResponse": standard[mail.VacationResponse],
	"AddressBook":      standard[value.Object],
	"ContactCard":      standard[value.Object],
	"Calendar":         standard[value.Object],
	"CalendarEvent":    standard[value.Object],
}

// standard returns the decoder for the standard verbs over object type T.
func standard[T any](verb string) DecodeFunc {
	switch verb {
	case "get":
		return decodeAs[GetResult[T]]("state", "list")
	case "changes":
		return decodeAs[ChangesResult]("oldState", "newState")
	case "query":
		return decodeAs[QueryResult]("queryState", "ids")
	case "queryChanges":
		return decodeAs[QueryChangesResult]("oldQueryState", "newQueryState")
	case "set":
		return decodeAs[SetResult[T]]("newState")
	case "copy":
		return decodeAs[CopyResult[T]]("fromAccountId", "newState")
	case "import":
		return decodeAs[ImportResult[T]]("newState")
	case "parse":
		return decodeAs[ParseResult[T]]("accountId")
	default:
		return nil
	}
}

// decodeAs decodes into variant R after checking that every required member
// is present.
func decodeAs[R Result](required ...string) DecodeFunc {
	return func(raw json.RawMessage) (Result, error) {
		var members map[string]json.RawMessage
		if err := json.Unmarshal(raw, &members); err != nil {
			return nil, err
		}
		for _, k := range required {
			if _, ok := members[k]; !ok {
				return nil, fmt.Errorf("missing %q", k)
			}
		}

		var r R
		dec := json.NewDecoder(bytes.NewReader(raw))
		if err := dec.Decode(&r); err != nil {
			return nil, err
		}
		return r, nil
	}
}

func decodeEcho(raw json.RawMessage) (Result, error) {
	var obj value.Object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return EchoResult{Arguments: obj}, nil
}
