package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRunInboxLookup(t *testing.T) {
	result, err := Run(loadScenario(t, "inbox_lookup"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, []string{"Mailbox/query", "Mailbox/get", "Identity/get"}, result.Methods)
	require.Len(t, result.Outcomes, 3)
	assert.Equal(t, "query", result.Outcomes[0].Label, "outcomes follow call order, not server order")
	assert.Equal(t, StatusMethodError, result.Outcomes[2].Status)
	assert.Equal(t, "forbidden", result.Outcomes[2].Kind)
	assert.Contains(t, string(result.Request), `"#ids":{"name":"Mailbox/query","path":"/ids","resultOf":"c0"}`)
}

func TestRunEchoes(t *testing.T) {
	result, err := Run(loadScenario(t, "echo_roundtrip"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.JSONEq(t, `{"n":2}`, string(result.Outcomes[1].Raw))
}

func TestRunBuildErrorSkipsTheWire(t *testing.T) {
	result, err := Run(loadScenario(t, "unsupported_capability"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "CAPABILITY_NOT_SUPPORTED", result.BatchError)
	assert.Nil(t, result.Request)
	assert.Empty(t, result.Methods)
}

func TestRunUnexpectedBatchErrorFails(t *testing.T) {
	s := loadScenario(t, "orphan_response")
	s.Assertions = []Assertion{{Type: AssertCallOK, Label: "first"}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, "ORPHAN_RESPONSE", result.BatchError)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "no outcome")
	assert.Contains(t, result.Errors[1], "batch failed with ORPHAN_RESPONSE")
}

func TestRunMalformedBody(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: malformed
description: "garbage body"
calls:
  - label: first
    method: Core/echo
response:
  body: "not json"
assertions:
  - type: batch_error
    code: MALFORMED_RESPONSE
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunTooManyCalls(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: too_many
description: "over maxCallsInRequest"
session:
  max_calls_in_request: 1
calls:
  - label: a
    method: Core/echo
  - label: b
    method: Core/echo
assertions:
  - type: batch_error
    code: TOO_MANY_CALLS
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunUnsupportedMethodIsPerCall(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: unsupported
description: "a response method the decoder has no model for"
calls:
  - label: odd
    method: Core/echo
  - label: echo
    method: Core/echo
response:
  method_responses:
    - [Example/thing, { x: 1 }, odd]
    - [Core/echo, {}, echo]
assertions:
  - type: call_ok
    label: echo
  - type: result_contains
    label: odd
    fields: { x: 1 }
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, StatusUnsupported, result.Outcomes[0].Status)
	assert.Equal(t, "Example/thing", result.Outcomes[0].Method)
}

func TestRunContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunContext(ctx, loadScenario(t, "echo_roundtrip"))
	require.Error(t, err, "the session cannot be fetched")
	assert.Contains(t, err.Error(), "connect")
}
