package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the run's outcomes to help debug the failure.
type AssertionError struct {
	Type     string    // Assertion type for categorization
	Expected string    // Human-readable expected outcome
	Actual   string    // Human-readable actual outcome
	Outcomes []Outcome // Every outcome of the run
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Outcomes) > 0 {
		fmt.Fprintf(&buf, "\nOutcomes:\n")
		for i, o := range e.Outcomes {
			fmt.Fprintf(&buf, "  [%d] %s %s (%s) %s", i+1, o.CallID, o.Method, o.Label, o.Status)
			if o.Kind != "" {
				fmt.Fprintf(&buf, " %s", o.Kind)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
//
// A batch error that no batch_error assertion expects is itself a failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	expectsBatchError := false
	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertCallOK:
			err = assertCallOK(result, assertion)
		case AssertMethodError:
			err = assertMethodError(result, assertion)
		case AssertResultContains:
			err = assertResultContains(result, assertion)
		case AssertRequestOrder:
			err = assertRequestOrder(result, assertion)
		case AssertEntryCount:
			err = assertEntryCount(result, assertion)
		case AssertBatchError:
			expectsBatchError = true
			err = assertBatchError(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if result.BatchError != "" && !expectsBatchError {
		errs = append(errs, (&AssertionError{
			Type:     "batch",
			Expected: "batch to complete",
			Actual:   "batch failed with " + result.BatchError,
		}).Error())
	}

	return errs
}

func evaluate(result *Result, assertions []Assertion) {
	for _, msg := range EvaluateAssertions(result, assertions) {
		result.AddError(msg)
	}
}

// firstOutcome returns the labelled call's first outcome.
func firstOutcome(result *Result, assertion Assertion) (Outcome, error) {
	outs := result.OutcomesFor(assertion.Label)
	if len(outs) == 0 {
		return Outcome{}, &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("an outcome for %s", assertion.Label),
			Actual:   "no outcome",
			Outcomes: result.Outcomes,
		}
	}
	return outs[0], nil
}

func assertCallOK(result *Result, assertion Assertion) error {
	o, err := firstOutcome(result, assertion)
	if err != nil {
		return err
	}
	if o.Status != StatusOK {
		return &AssertionError{
			Type:     AssertCallOK,
			Expected: fmt.Sprintf("%s to succeed", assertion.Label),
			Actual:   strings.TrimSpace(o.Status + " " + o.Kind),
			Outcomes: result.Outcomes,
		}
	}
	return nil
}

func assertMethodError(result *Result, assertion Assertion) error {
	o, err := firstOutcome(result, assertion)
	if err != nil {
		return err
	}
	if o.Status != StatusMethodError || o.Kind != assertion.Kind {
		return &AssertionError{
			Type:     AssertMethodError,
			Expected: fmt.Sprintf("%s to fail with %s", assertion.Label, assertion.Kind),
			Actual:   strings.TrimSpace(o.Status + " " + o.Kind),
			Outcomes: result.Outcomes,
		}
	}
	return nil
}

func assertResultContains(result *Result, assertion Assertion) error {
	o, err := firstOutcome(result, assertion)
	if err != nil {
		return err
	}

	var actual any
	if err := json.Unmarshal(o.Raw, &actual); err != nil {
		return fmt.Errorf("result_contains: decode %s result: %w", assertion.Label, err)
	}
	expected, err := normalize(assertion.Fields)
	if err != nil {
		return fmt.Errorf("result_contains: %w", err)
	}

	if !matchSubset(actual, expected) {
		return &AssertionError{
			Type:     AssertResultContains,
			Expected: fmt.Sprintf("%s result to contain %s", assertion.Label, compact(expected)),
			Actual:   string(o.Raw),
			Outcomes: result.Outcomes,
		}
	}
	return nil
}

func assertRequestOrder(result *Result, assertion Assertion) error {
	if !reflect.DeepEqual(result.Methods, assertion.Methods) {
		return &AssertionError{
			Type:     AssertRequestOrder,
			Expected: strings.Join(assertion.Methods, ", "),
			Actual:   strings.Join(result.Methods, ", "),
			Outcomes: result.Outcomes,
		}
	}
	return nil
}

func assertEntryCount(result *Result, assertion Assertion) error {
	count := len(result.OutcomesFor(assertion.Label))
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertEntryCount,
			Expected: fmt.Sprintf("%d entries for %s", assertion.Count, assertion.Label),
			Actual:   fmt.Sprintf("%d entries", count),
			Outcomes: result.Outcomes,
		}
	}
	return nil
}

func assertBatchError(result *Result, assertion Assertion) error {
	if result.BatchError != assertion.Code {
		actual := result.BatchError
		if actual == "" {
			actual = "batch completed"
		}
		return &AssertionError{
			Type:     AssertBatchError,
			Expected: assertion.Code,
			Actual:   actual,
			Outcomes: result.Outcomes,
		}
	}
	return nil
}

// normalize round-trips v through JSON so YAML ints compare equal to
// decoded JSON numbers.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func compact(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// matchSubset checks that actual contains everything in expected.
// Objects match when every expected key matches; extra keys in actual are
// ignored. Arrays match element-wise and must have the same length.
func matchSubset(actual, expected any) bool {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for key, want := range exp {
			got, exists := act[key]
			if !exists || !matchSubset(got, want) {
				return false
			}
		}
		return true
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !matchSubset(act[i], exp[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(actual, expected)
	}
}
