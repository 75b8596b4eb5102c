package harness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *Result {
	r := NewResult()
	r.Methods = []string{"Mailbox/query", "Mailbox/get"}
	r.Outcomes = []Outcome{
		{Label: "query", CallID: "c0", Method: "Mailbox/query", Status: StatusOK,
			Raw: json.RawMessage(`{"ids":["M1"],"queryState":"q1","total":1}`)},
		{Label: "boxes", CallID: "c1", Method: "error", Status: StatusMethodError, Kind: "forbidden",
			Raw: json.RawMessage(`{"type":"forbidden"}`)},
	}
	return r
}

func TestEvaluateAssertionsPass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertCallOK, Label: "query"},
		{Type: AssertMethodError, Label: "boxes", Kind: "forbidden"},
		{Type: AssertResultContains, Label: "query", Fields: map[string]any{"ids": []any{"M1"}, "total": 1}},
		{Type: AssertRequestOrder, Methods: []string{"Mailbox/query", "Mailbox/get"}},
		{Type: AssertEntryCount, Label: "boxes", Count: 1},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertionsFail(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{"call not ok", Assertion{Type: AssertCallOK, Label: "boxes"}, "Actual: method_error forbidden"},
		{"wrong kind", Assertion{Type: AssertMethodError, Label: "boxes", Kind: "serverFail"}, "boxes to fail with serverFail"},
		{"missing outcome", Assertion{Type: AssertCallOK, Label: "nope"}, "no outcome"},
		{"field mismatch", Assertion{Type: AssertResultContains, Label: "query", Fields: map[string]any{"total": 2}}, `contain {"total":2}`},
		{"array length", Assertion{Type: AssertResultContains, Label: "query", Fields: map[string]any{"ids": []any{}}}, "result_contains"},
		{"order", Assertion{Type: AssertRequestOrder, Methods: []string{"Mailbox/get"}}, "Actual: Mailbox/query, Mailbox/get"},
		{"count", Assertion{Type: AssertEntryCount, Label: "query", Count: 2}, "1 entries"},
		{"batch completed", Assertion{Type: AssertBatchError, Code: "ORPHAN_RESPONSE"}, "Actual: batch completed"},
		{"unknown type", Assertion{Type: "final_state"}, `unknown assertion type "final_state"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestAssertionErrorListsOutcomes(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{{Type: AssertCallOK, Label: "boxes"}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Assertion failed: call_ok")
	assert.Contains(t, errs[0], "[1] c0 Mailbox/query (query) ok")
	assert.Contains(t, errs[0], "[2] c1 error (boxes) method_error forbidden")
}

func TestMatchSubset(t *testing.T) {
	actual := map[string]any{
		"a": map[string]any{"b": 1.0, "c": "x"},
		"d": []any{map[string]any{"id": "M1", "role": "inbox"}},
		"e": nil,
	}
	assert.True(t, matchSubset(actual, map[string]any{"a": map[string]any{"b": 1.0}}))
	assert.True(t, matchSubset(actual, map[string]any{"d": []any{map[string]any{"role": "inbox"}}}))
	assert.True(t, matchSubset(actual, map[string]any{"e": nil}))
	assert.False(t, matchSubset(actual, map[string]any{"f": nil}), "missing key")
	assert.False(t, matchSubset(actual, map[string]any{"a": "x"}))
	assert.False(t, matchSubset(actual, map[string]any{"d": []any{}}))
}
