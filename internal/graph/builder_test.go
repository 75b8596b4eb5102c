package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jmap/internal/capability"
	"github.com/roach88/jmap/internal/testutil"
	"github.com/roach88/jmap/internal/value"
)

func TestBuilderInboxScenario(t *testing.T) {
	b := NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{}))

	query, err := b.AddCall("Mailbox/query", Arguments{
		"filter": Lit(value.Object{"name": value.String("Inbox")}),
	})
	require.NoError(t, err)

	ids, err := b.Ref(query, "/ids")
	require.NoError(t, err)
	assert.Equal(t, ResultReference{SourceCall: query, ResultOf: "Mailbox/query", Path: "/ids"}, ids)

	get, err := b.AddCall("Mailbox/get", Arguments{"ids": ids})
	require.NoError(t, err)

	batch, err := b.Finalize()
	require.NoError(t, err)

	assert.Equal(t, []CallID{query, get}, batch.CallIDs())
	assert.Equal(t, []string{capability.Core, capability.Mail}, batch.Using())

	calls := batch.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "Mailbox/query", calls[0].Method)
	assert.Equal(t, Lit(value.String(testutil.AccountID)), calls[0].Arguments["accountId"], "primary account filled in")
	assert.Equal(t, ids, calls[1].Arguments["ids"])
}

func TestAddCallCapabilityNotSupported(t *testing.T) {
	b := NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{Capabilities: []string{capability.Mail}}))

	_, err := b.AddCall("Identity/get", nil)
	require.Error(t, err)
	assert.True(t, IsCapabilityNotSupported(err))

	_, err = b.AddCall("Frobnicator/get", nil)
	require.Error(t, err)
	assert.True(t, IsCapabilityNotSupported(err))

	assert.Equal(t, 0, b.Len())
}

func TestAddCallUsingExtension(t *testing.T) {
	const ext = "https://example.com/apis/foo"
	b := NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{Capabilities: []string{capability.Mail, ext}}))

	_, err := b.AddCallUsing("Foo/get", ext, nil)
	require.NoError(t, err)

	batch, err := b.Finalize()
	require.NoError(t, err)
	assert.Equal(t, []string{capability.Core, ext}, batch.Using())

	call, ok := batch.Call("c0")
	require.True(t, ok)
	_, hasAccount := call.Arguments["accountId"]
	assert.False(t, hasAccount, "unknown capabilities are not account scoped")
}

func TestAddCallKeepsExplicitAccount(t *testing.T) {
	b := NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{}))

	id, err := b.AddCall("Email/get", Arguments{"accountId": Lit(value.String("shared"))})
	require.NoError(t, err)
	batch, err := b.Finalize()
	require.NoError(t, err)

	call, _ := batch.Call(id)
	assert.Equal(t, Lit(value.String("shared")), call.Arguments["accountId"])
}

func TestCoreCallsHaveNoAccount(t *testing.T) {
	b := NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{}))

	id, err := b.AddCall("Core/echo", Arguments{"hello": Lit(value.Bool(true))})
	require.NoError(t, err)
	batch, err := b.Finalize()
	require.NoError(t, err)

	call, _ := batch.Call(id)
	assert.Len(t, call.Arguments, 1)
	assert.Equal(t, []string{capability.Core}, batch.Using())
}

func TestAddCallRejectsMalformedArguments(t *testing.T) {
	b := NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{}))

	_, err := b.AddCall("Mailbox/get", Arguments{"#ids": Lit(value.Null{})})
	assert.True(t, HasCode(err, ErrCodeInvalidArgument))

	_, err = b.AddCall("Mailbox/get", Arguments{"ids": nil})
	assert.True(t, HasCode(err, ErrCodeInvalidArgument))

	_, err = b.AddCallUsing("noslash", capability.Core, nil)
	assert.True(t, HasCode(err, ErrCodeInvalidArgument))
}

func TestAddCallCopiesLiterals(t *testing.T) {
	b := NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{}))

	filter := value.Object{"role": value.String("inbox")}
	id, err := b.AddCall("Mailbox/query", Arguments{"filter": Lit(filter)})
	require.NoError(t, err)
	filter["role"] = value.String("trash")

	batch, err := b.Finalize()
	require.NoError(t, err)
	call, _ := batch.Call(id)
	assert.Equal(t, Lit(value.Object{"role": value.String("inbox")}), call.Arguments["filter"])
}

func TestRefUnknownCallID(t *testing.T) {
	snap := testutil.Snapshot(t, testutil.SessionOptions{})
	other := NewBuilder(snap)
	foreign, err := other.AddCall("Mailbox/query", nil)
	require.NoError(t, err)

	b := NewBuilder(snap)
	_, err = b.Ref(foreign, "/ids")
	require.Error(t, err)
	assert.True(t, IsUnknownCallID(err))
}

func TestRefInvalidPointer(t *testing.T) {
	b := NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{}))
	q, err := b.AddCall("Mailbox/query", nil)
	require.NoError(t, err)

	_, err = b.Ref(q, "ids")
	assert.True(t, HasCode(err, ErrCodeInvalidArgument))
}

func TestFinalizeRejectsSelfReference(t *testing.T) {
	seq := NewSequence()
	b := NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{}), WithIDSource(seq))

	// The next id is c0, so a hand-built reference to c0 on the call that
	// receives c0 points at itself.
	id, err := b.AddCall("Mailbox/get", Arguments{"ids": ResultReference{SourceCall: "c0", Path: "/ids"}})
	require.NoError(t, err)
	require.Equal(t, CallID("c0"), id)

	_, err = b.Finalize()
	require.Error(t, err)
	assert.True(t, IsCyclicOrForwardReference(err))
	assert.Contains(t, err.Error(), "self reference")
}

func TestFinalizeRejectsForwardReference(t *testing.T) {
	b := NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{}))

	_, err := b.AddCall("Mailbox/get", Arguments{"ids": ResultReference{SourceCall: "c1", Path: "/ids"}})
	require.NoError(t, err)
	_, err = b.AddCall("Mailbox/query", nil)
	require.NoError(t, err)

	_, err = b.Finalize()
	require.Error(t, err)
	assert.True(t, IsCyclicOrForwardReference(err))
	assert.Contains(t, err.Error(), "forward reference")
}

func TestFinalizeRejectsHandBuiltUnknownTarget(t *testing.T) {
	b := NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{}))
	_, err := b.AddCall("Mailbox/get", Arguments{"ids": ResultReference{SourceCall: "zz", Path: "/ids"}})
	require.NoError(t, err)

	_, err = b.Finalize()
	assert.True(t, IsUnknownCallID(err))
}

func TestFinalizeFillsAndChecksResultOf(t *testing.T) {
	b := NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{}))
	q, err := b.AddCall("Mailbox/query", nil)
	require.NoError(t, err)
	g, err := b.AddCall("Mailbox/get", Arguments{"ids": ResultReference{SourceCall: q, Path: "/ids"}})
	require.NoError(t, err)

	batch, err := b.Finalize()
	require.NoError(t, err)
	call, _ := batch.Call(g)
	assert.Equal(t, "Mailbox/query", call.Arguments["ids"].(ResultReference).ResultOf)

	b = NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{}))
	q, _ = b.AddCall("Mailbox/query", nil)
	_, err = b.AddCall("Mailbox/get", Arguments{"ids": ResultReference{SourceCall: q, ResultOf: "Email/query", Path: "/ids"}})
	require.NoError(t, err)
	_, err = b.Finalize()
	assert.True(t, HasCode(err, ErrCodeInvalidArgument))
}

func TestFinalizeTooManyCalls(t *testing.T) {
	b := NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{MaxCallsInRequest: 2}))
	for range 3 {
		_, err := b.AddCall("Core/echo", nil)
		require.NoError(t, err)
	}

	_, err := b.Finalize()
	require.Error(t, err)
	assert.True(t, IsTooManyCalls(err))
}

func TestFinalizeTooManyObjects(t *testing.T) {
	b := NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{MaxObjectsInGet: 2}))
	_, err := b.AddCall("Email/get", Arguments{"ids": Lit(value.Strings("a", "b", "c"))})
	require.NoError(t, err)
	_, err = b.AddCall("Email/query", Arguments{"ids": Lit(value.Strings("a", "b", "c"))})
	require.NoError(t, err)

	_, err = b.Finalize()
	require.Error(t, err)
	violations := Violations(err)
	require.Len(t, violations, 1, "only */get calls are limited")
	assert.Equal(t, ErrCodeTooManyObjects, violations[0].Code)
	assert.Equal(t, CallID("c0"), violations[0].CallID)
}

func TestFinalizeReportsEveryViolation(t *testing.T) {
	b := NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{MaxCallsInRequest: 1}))
	_, err := b.AddCall("Mailbox/get", Arguments{"ids": ResultReference{SourceCall: "c1", Path: "/ids"}})
	require.NoError(t, err)
	_, err = b.AddCall("Mailbox/query", nil)
	require.NoError(t, err)

	_, err = b.Finalize()
	require.Error(t, err)
	assert.True(t, IsTooManyCalls(err))
	assert.True(t, IsCyclicOrForwardReference(err))
	assert.Len(t, Violations(err), 2)
	assert.Contains(t, err.Error(), "batch has 2 violations")
}

func TestFinalizeOnce(t *testing.T) {
	b := NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{}))
	_, err := b.AddCall("Core/echo", nil)
	require.NoError(t, err)

	_, err = b.Finalize()
	require.NoError(t, err)

	_, err = b.Finalize()
	assert.True(t, HasCode(err, ErrCodeAlreadyFinalized))
	_, err = b.AddCall("Core/echo", nil)
	assert.True(t, HasCode(err, ErrCodeAlreadyFinalized))
}

func TestBuilderSnapshotIsolation(t *testing.T) {
	// A builder keeps validating against the snapshot it started with even
	// when a store is refreshed to a session that drops mail.
	st := testutil.Store(t, testutil.SessionOptions{})
	b := NewBuilder(st.Snapshot())

	_, err := st.Refresh(testutil.SessionDocument(testutil.SessionOptions{State: "s2", Capabilities: []string{}, MaxCallsInRequest: 1}))
	require.NoError(t, err)

	_, err = b.AddCall("Mailbox/query", nil)
	require.NoError(t, err)
	_, err = b.AddCall("Mailbox/get", nil)
	require.NoError(t, err)

	batch, err := b.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "s1", batch.Snapshot().State)

	_, err = NewBuilder(st.Snapshot()).AddCall("Mailbox/query", nil)
	assert.True(t, IsCapabilityNotSupported(err))
}

func TestCreatedIDsPassThrough(t *testing.T) {
	b := NewBuilder(testutil.Snapshot(t, testutil.SessionOptions{})).
		WithCreatedIDs(map[string]string{"k1": "M123"})
	_, err := b.AddCall("Core/echo", nil)
	require.NoError(t, err)

	batch, err := b.Finalize()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k1": "M123"}, batch.CreatedIDs())
}

func TestSharedSequenceAcrossBuilders(t *testing.T) {
	snap := testutil.Snapshot(t, testutil.SessionOptions{})
	seq := NewSequence()

	a, err := NewBuilder(snap, WithIDSource(seq)).AddCall("Core/echo", nil)
	require.NoError(t, err)
	b, err := NewBuilder(snap, WithIDSource(seq)).AddCall("Core/echo", nil)
	require.NoError(t, err)

	assert.Equal(t, CallID("c0"), a)
	assert.Equal(t, CallID("c1"), b)
	assert.Equal(t, int64(2), seq.Issued())
}
