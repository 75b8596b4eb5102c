package graph

import (
	"maps"

	"github.com/roach88/jmap/internal/value"
)

// CallID identifies one method call within a batch.
type CallID string

// Argument is a sealed interface for method call argument values.
// Only Literal and ResultReference implement it.
type Argument interface {
	argument() // Sealed
}

// Literal is a concrete JSON argument value.
type Literal struct {
	Value value.Value
}

func (Literal) argument() {}

// Lit wraps v as a Literal argument.
func Lit(v value.Value) Literal {
	return Literal{Value: v}
}

// ResultReference is a placeholder the server resolves from an earlier
// call's result. It names the call and a path; the client never
// dereferences it.
type ResultReference struct {
	SourceCall CallID
	ResultOf   string // method name of SourceCall
	Path       string // JSON pointer, "*" maps over arrays
}

func (ResultReference) argument() {}

// Arguments maps argument names to values.
type Arguments map[string]Argument

// FromObject turns every member of obj into a Literal argument.
func FromObject(obj value.Object) Arguments {
	args := make(Arguments, len(obj))
	for k, v := range obj {
		args[k] = Literal{Value: v}
	}
	return args
}

// MethodCall is one call of a batch.
type MethodCall struct {
	ID        CallID
	Method    string
	Arguments Arguments
}

// References returns the result references among the call's arguments.
func (c MethodCall) References() map[string]ResultReference {
	var refs map[string]ResultReference
	for name, arg := range c.Arguments {
		if ref, ok := arg.(ResultReference); ok {
			if refs == nil {
				refs = make(map[string]ResultReference)
			}
			refs[name] = ref
		}
	}
	return refs
}

func (c MethodCall) clone() MethodCall {
	c.Arguments = maps.Clone(c.Arguments)
	return c
}
