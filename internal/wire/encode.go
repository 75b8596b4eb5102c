// Package wire converts batches to request bodies and response bodies back
// to per-call entries.
//
// Key names and sentinels follow RFC 8620 and are fixed constants of this
// package, not negotiated per session.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/jmap/internal/graph"
	"github.com/roach88/jmap/internal/value"
)

// Wire keys of the batch request, the batch response and result references.
const (
	KeyUsing           = "using"
	KeyMethodCalls     = "methodCalls"
	KeyMethodResponses = "methodResponses"
	KeySessionState    = "sessionState"
	KeyCreatedIDs      = "createdIds"

	KeyResultOf = "resultOf"
	KeyName     = "name"
	KeyPath     = "path"

	// ErrorMethod is the method name of an error response entry.
	ErrorMethod = "error"
)

// Encode serializes batch as a request body.
//
// Output is deterministic: calls keep their batch order and argument objects
// are written with sorted keys.
func Encode(batch *graph.Batch) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"` + KeyUsing + `":`)
	using, err := json.Marshal(batch.Using())
	if err != nil {
		return nil, fmt.Errorf("encode using: %w", err)
	}
	buf.Write(using)

	buf.WriteString(`,"` + KeyMethodCalls + `":`)
	calls, err := value.Marshal(methodCalls(batch))
	if err != nil {
		return nil, fmt.Errorf("encode methodCalls: %w", err)
	}
	buf.Write(calls)

	if created := batch.CreatedIDs(); created != nil {
		buf.WriteString(`,"` + KeyCreatedIDs + `":`)
		data, err := json.Marshal(created)
		if err != nil {
			return nil, fmt.Errorf("encode createdIds: %w", err)
		}
		buf.Write(data)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// RequestValue returns the request as a Value, for fingerprinting.
func RequestValue(batch *graph.Batch) value.Object {
	obj := value.Object{
		KeyUsing:       value.Strings(batch.Using()...),
		KeyMethodCalls: methodCalls(batch),
	}
	if created := batch.CreatedIDs(); created != nil {
		obj[KeyCreatedIDs] = value.MustFrom(created)
	}
	return obj
}

func methodCalls(batch *graph.Batch) value.Array {
	calls := batch.Calls()
	out := make(value.Array, len(calls))
	for i, call := range calls {
		out[i] = value.Array{
			value.String(call.Method),
			ArgumentsValue(call.Arguments),
			value.String(call.ID),
		}
	}
	return out
}

// ArgumentsValue renders call arguments as a wire object. A reference in
// argument "ids" becomes member "#ids".
func ArgumentsValue(args graph.Arguments) value.Object {
	obj := make(value.Object, len(args))
	for name, arg := range args {
		switch a := arg.(type) {
		case graph.Literal:
			if a.Value == nil {
				obj[name] = value.Null{}
				continue
			}
			obj[name] = a.Value
		case graph.ResultReference:
			obj[graph.ReferencePrefix+name] = value.Object{
				KeyResultOf: value.String(a.SourceCall),
				KeyName:     value.String(a.ResultOf),
				KeyPath:     value.String(a.Path),
			}
		}
	}
	return obj
}

// Invocation is one [name, arguments, id] tuple.
type Invocation struct {
	Name      string
	Arguments json.RawMessage
	CallID    string
}

// MarshalJSON writes the tuple form.
func (inv Invocation) MarshalJSON() ([]byte, error) {
	args := inv.Arguments
	if args == nil {
		args = json.RawMessage(`{}`)
	}
	return json.Marshal([]any{inv.Name, args, inv.CallID})
}

// UnmarshalJSON reads the tuple form, rejecting any other arity.
func (inv *Invocation) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("invocation is not an array: %w", err)
	}
	if len(parts) != 3 {
		return fmt.Errorf("invocation has %d elements, want 3", len(parts))
	}
	name, err := tupleString(parts[0])
	if err != nil {
		return fmt.Errorf("invocation name: %w", err)
	}
	inv.Name = name
	trimmed := bytes.TrimSpace(parts[1])
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("invocation arguments are not an object")
	}
	inv.Arguments = slices.Clone(parts[1])
	id, err := tupleString(parts[2])
	if err != nil {
		return fmt.Errorf("invocation id: %w", err)
	}
	inv.CallID = id
	return nil
}

// tupleString decodes a string slot of a tuple. A JSON null is rejected.
func tupleString(raw json.RawMessage) (string, error) {
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	if s == nil {
		return "", fmt.Errorf("is null")
	}
	return *s, nil
}

// Request is a decoded request body. Servers and test doubles use it; the
// client side only encodes.
type Request struct {
	Using       []string          `json:"using"`
	MethodCalls []Invocation      `json:"methodCalls"`
	CreatedIDs  map[string]string `json:"createdIds,omitempty"`
}

// DecodeRequest parses a request body.
func DecodeRequest(body []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if req.Using == nil || req.MethodCalls == nil {
		return nil, fmt.Errorf("decode request: missing %s or %s", KeyUsing, KeyMethodCalls)
	}
	return &req, nil
}

// ResponseBody is the wire shape of a batch response, for producing one.
type ResponseBody struct {
	MethodResponses []Invocation      `json:"methodResponses"`
	SessionState    string            `json:"sessionState"`
	CreatedIDs      map[string]string `json:"createdIds,omitempty"`
}
