package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenariosMatchGolden(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)
			require.Equal(t, name, scenario.Name, "golden files are named after the scenario")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshotCanonical(t *testing.T) {
	s := Snapshot{
		ScenarioName: "x",
		Request:      []byte(`{"using":["urn:ietf:params:jmap:core"],"methodCalls":[]}`),
		Outcomes: []Outcome{
			{Label: "a", CallID: "c0", Method: "error", Status: StatusMethodError, Kind: "serverFail"},
		},
	}
	data, err := s.Canonical()
	require.NoError(t, err)
	assert.Equal(t,
		`{"outcomes":[{"call_id":"c0","kind":"serverFail","label":"a","method":"error","status":"method_error"}],`+
			`"request":{"methodCalls":[],"using":["urn:ietf:params:jmap:core"]},"scenario_name":"x"}`,
		string(data))

	s.Request = []byte(`{`)
	_, err = s.Canonical()
	assert.Error(t, err)
}
