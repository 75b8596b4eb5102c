// Package graph builds batches of method calls whose arguments may refer to
// the not-yet-known results of earlier calls in the same batch.
//
// A Builder is bound to one session snapshot for its whole life. Every
// capability and limit check it makes reads that snapshot, so a session
// refresh that lands mid-build cannot change what the build is validated
// against.
package graph

import (
	"fmt"
	"maps"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/jmap/internal/capability"
	"github.com/roach88/jmap/internal/session"
	"github.com/roach88/jmap/internal/value"
)

// ReferencePrefix marks an argument name whose value is a result reference
// (RFC 8620 section 3.7).
const ReferencePrefix = "#"

// Builder accumulates calls for one batch.
//
// Thread-safety: a Builder is not safe for concurrent use. Independent
// builders may run concurrently against the same snapshot.
type Builder struct {
	snap     *session.Snapshot
	registry *capability.Registry
	ids      IDSource

	calls      []MethodCall
	index      map[CallID]int
	using      []string
	usingSet   map[string]struct{}
	createdIDs map[string]string
	finalized  bool
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithIDSource draws call ids from ids instead of a fresh Sequence.
func WithIDSource(ids IDSource) BuilderOption {
	return func(b *Builder) {
		b.ids = ids
	}
}

// WithRegistry resolves method ownership against reg instead of the
// default registry.
func WithRegistry(reg *capability.Registry) BuilderOption {
	return func(b *Builder) {
		b.registry = reg
	}
}

// NewBuilder starts a batch validated against snap.
// snap must not be nil.
func NewBuilder(snap *session.Snapshot, opts ...BuilderOption) *Builder {
	if snap == nil {
		panic("graph: NewBuilder with nil session snapshot")
	}
	b := &Builder{
		snap:     snap,
		registry: capability.Default(),
		index:    make(map[CallID]int),
		usingSet: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.ids == nil {
		b.ids = NewSequence()
	}
	b.declare(capability.Core)
	return b
}

// Snapshot returns the session snapshot this builder validates against.
func (b *Builder) Snapshot() *session.Snapshot {
	return b.snap
}

// Len returns the number of calls added so far.
func (b *Builder) Len() int {
	return len(b.calls)
}

// AddCall appends a call to method and returns its fresh id.
//
// The owning capability comes from the registry and must be declared by the
// session. When the capability is account scoped and args has no accountId,
// the session's primary account for that capability is filled in.
func (b *Builder) AddCall(method string, args Arguments) (CallID, error) {
	uri, ok := b.registry.CapabilityFor(method)
	if !ok {
		return "", &BuildError{
			Code:    ErrCodeCapabilityNotSupported,
			Method:  method,
			Message: fmt.Sprintf("no capability declares method %q", method),
		}
	}
	return b.AddCallUsing(method, uri, args)
}

// AddCallUsing appends a call to a method owned by capability uri. Use it for
// extension methods the registry does not declare.
func (b *Builder) AddCallUsing(method, uri string, args Arguments) (CallID, error) {
	if b.finalized {
		return "", &BuildError{Code: ErrCodeAlreadyFinalized, Method: method, Message: "builder already finalized"}
	}
	if !strings.Contains(method, "/") {
		return "", &BuildError{Code: ErrCodeInvalidArgument, Method: method, Message: fmt.Sprintf("method name %q is not Type/verb", method)}
	}
	if !b.snap.Supports(uri) {
		return "", &BuildError{
			Code:    ErrCodeCapabilityNotSupported,
			Method:  method,
			Message: fmt.Sprintf("session does not support %s required by %s", uri, method),
		}
	}

	stored := make(Arguments, len(args)+1)
	for name, arg := range args {
		if strings.HasPrefix(name, ReferencePrefix) {
			return "", &BuildError{
				Code:    ErrCodeInvalidArgument,
				Method:  method,
				Message: fmt.Sprintf("argument %q uses the reserved %q prefix", name, ReferencePrefix),
			}
		}
		switch a := arg.(type) {
		case Literal:
			stored[name] = Literal{Value: value.Clone(a.Value)}
		case ResultReference:
			stored[name] = a
		default:
			return "", &BuildError{Code: ErrCodeInvalidArgument, Method: method, Message: fmt.Sprintf("argument %q has no value", name)}
		}
	}

	if _, ok := stored["accountId"]; !ok && b.accountScoped(uri) {
		if id, ok := b.snap.PrimaryAccount(uri); ok {
			stored["accountId"] = Literal{Value: value.String(id)}
		}
	}

	id := b.ids.NextCallID()
	if _, dup := b.index[id]; dup {
		return "", &BuildError{Code: ErrCodeInvalidArgument, CallID: id, Method: method, Message: "id source reused a call id"}
	}

	b.index[id] = len(b.calls)
	b.calls = append(b.calls, MethodCall{ID: id, Method: method, Arguments: stored})
	b.declare(uri)
	return id, nil
}

// Ref returns a reference to the result of target at path.
// target must have been produced by AddCall on this builder.
func (b *Builder) Ref(target CallID, path string) (ResultReference, error) {
	i, ok := b.index[target]
	if !ok {
		return ResultReference{}, &BuildError{
			Code:    ErrCodeUnknownCallID,
			CallID:  target,
			Message: "reference target was not added to this batch",
		}
	}
	if err := value.ValidatePointer(path); err != nil {
		return ResultReference{}, &BuildError{Code: ErrCodeInvalidArgument, CallID: target, Message: err.Error()}
	}
	return ResultReference{SourceCall: target, ResultOf: b.calls[i].Method, Path: path}, nil
}

// WithCreatedIDs sends a createdIds map with the batch so creation ids from
// earlier batches can be referenced.
func (b *Builder) WithCreatedIDs(ids map[string]string) *Builder {
	b.createdIDs = maps.Clone(ids)
	return b
}

// Finalize validates the whole batch and freezes it.
//
// Every violation is reported, not just the first: call count against
// maxCallsInRequest, reference targets and positions, reference method names,
// and literal ids lists against maxObjectsInGet. On error the builder stays
// open.
func (b *Builder) Finalize() (*Batch, error) {
	if b.finalized {
		return nil, &BuildError{Code: ErrCodeAlreadyFinalized, Message: "builder already finalized"}
	}

	var result *multierror.Error
	limits := b.snap.Limits

	if limits.MaxCallsInRequest > 0 && len(b.calls) > limits.MaxCallsInRequest {
		result = multierror.Append(result, &BuildError{
			Code:    ErrCodeTooManyCalls,
			Message: fmt.Sprintf("batch has %d calls, session allows %d", len(b.calls), limits.MaxCallsInRequest),
		})
	}

	calls := make([]MethodCall, len(b.calls))
	for pos, call := range b.calls {
		call = call.clone()
		for _, name := range sortedNames(call.Arguments) {
			ref, ok := call.Arguments[name].(ResultReference)
			if !ok {
				continue
			}
			if err := b.checkReference(pos, call, name, &ref); err != nil {
				result = multierror.Append(result, err)
				continue
			}
			call.Arguments[name] = ref
		}
		if err := checkObjectCount(call, limits.MaxObjectsInGet); err != nil {
			result = multierror.Append(result, err)
		}
		calls[pos] = call
	}

	if result != nil {
		result.ErrorFormat = formatViolations
		return nil, result
	}

	b.finalized = true
	return &Batch{
		calls:      calls,
		using:      append([]string(nil), b.using...),
		createdIDs: maps.Clone(b.createdIDs),
		snap:       b.snap,
		ids:        b.ids,
	}, nil
}

// checkReference validates the reference in argument name of the call at
// pos, filling in ResultOf when a hand-built reference left it empty.
func (b *Builder) checkReference(pos int, call MethodCall, name string, ref *ResultReference) error {
	target, ok := b.index[ref.SourceCall]
	if !ok {
		return &BuildError{
			Code:    ErrCodeUnknownCallID,
			CallID:  call.ID,
			Method:  call.Method,
			Message: fmt.Sprintf("argument %q refers to unknown call %s", name, ref.SourceCall),
		}
	}
	if target >= pos {
		kind := "forward"
		if target == pos {
			kind = "self"
		}
		return &BuildError{
			Code:    ErrCodeCyclicOrForwardReference,
			CallID:  call.ID,
			Method:  call.Method,
			Message: fmt.Sprintf("argument %q is a %s reference to %s", name, kind, ref.SourceCall),
		}
	}
	if err := value.ValidatePointer(ref.Path); err != nil {
		return &BuildError{Code: ErrCodeInvalidArgument, CallID: call.ID, Method: call.Method, Message: err.Error()}
	}
	targetMethod := b.calls[target].Method
	if ref.ResultOf == "" {
		ref.ResultOf = targetMethod
	} else if ref.ResultOf != targetMethod {
		return &BuildError{
			Code:    ErrCodeInvalidArgument,
			CallID:  call.ID,
			Method:  call.Method,
			Message: fmt.Sprintf("argument %q names %s but %s is %s", name, ref.ResultOf, ref.SourceCall, targetMethod),
		}
	}
	return nil
}

func checkObjectCount(call MethodCall, limit int) error {
	if limit <= 0 || !strings.HasSuffix(call.Method, "/get") {
		return nil
	}
	lit, ok := call.Arguments["ids"].(Literal)
	if !ok {
		return nil
	}
	ids, ok := lit.Value.(value.Array)
	if !ok || len(ids) <= limit {
		return nil
	}
	return &BuildError{
		Code:    ErrCodeTooManyObjects,
		CallID:  call.ID,
		Method:  call.Method,
		Message: fmt.Sprintf("ids has %d entries, session allows %d", len(ids), limit),
	}
}

func (b *Builder) declare(uri string) {
	if _, ok := b.usingSet[uri]; ok {
		return
	}
	b.usingSet[uri] = struct{}{}
	b.using = append(b.using, uri)
}

func (b *Builder) accountScoped(uri string) bool {
	c, ok := b.registry.Lookup(uri)
	return ok && c.AccountScoped
}
