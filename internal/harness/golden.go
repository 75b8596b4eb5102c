package harness

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/jmap/internal/value"
)

// Snapshot captures what a scenario sent and what came back.
// It is serialized as canonical JSON for deterministic comparison.
type Snapshot struct {
	ScenarioName string
	BatchToken   string
	Request      []byte
	Outcomes     []Outcome
	BatchError   string
}

// Canonical renders the snapshot as canonical JSON. The request body is
// embedded as a JSON value, so its keys are sorted too.
func (s *Snapshot) Canonical() ([]byte, error) {
	outcomes := make(value.Array, len(s.Outcomes))
	for i, o := range s.Outcomes {
		obj := value.Object{
			"label":   value.String(o.Label),
			"call_id": value.String(o.CallID),
			"method":  value.String(o.Method),
			"status":  value.String(o.Status),
		}
		if o.Kind != "" {
			obj["kind"] = value.String(o.Kind)
		}
		outcomes[i] = obj
	}

	snap := value.Object{
		"scenario_name": value.String(s.ScenarioName),
		"outcomes":      outcomes,
	}
	if s.BatchToken != "" {
		snap["batch_token"] = value.String(s.BatchToken)
	}
	if s.BatchError != "" {
		snap["batch_error"] = value.String(s.BatchError)
	}
	if len(s.Request) > 0 {
		req, err := value.Decode(s.Request)
		if err != nil {
			return nil, fmt.Errorf("decode request: %w", err)
		}
		snap["request"] = req
	}
	return value.MarshalCanonical(snap)
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check assertions too.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the scenario's golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	snapshot := Snapshot{
		ScenarioName: scenario.Name,
		BatchToken:   scenario.BatchToken,
		Request:      result.Request,
		Outcomes:     result.Outcomes,
		BatchError:   result.BatchError,
	}
	data, err := snapshot.Canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
