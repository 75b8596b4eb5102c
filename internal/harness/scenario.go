package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one batch exchange and what to expect from it.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// BatchToken is the fixed token the batch is logged under.
	// If empty, defaults to "test-batch-default".
	BatchToken string `yaml:"batch_token,omitempty"`

	// Session shapes the session document the server advertises.
	Session SessionSpec `yaml:"session,omitempty"`

	// Calls are added to the batch in order.
	Calls []CallStep `yaml:"calls"`

	// Response is the server's reply. If nil, the server echoes.
	Response *ResponseSpec `yaml:"response,omitempty"`

	// Assertions validate the outcome.
	Assertions []Assertion `yaml:"assertions"`
}

// SessionSpec overrides fixture session defaults.
type SessionSpec struct {
	State             string   `yaml:"state,omitempty"`
	Capabilities      []string `yaml:"capabilities,omitempty"`
	MaxCallsInRequest int      `yaml:"max_calls_in_request,omitempty"`
	MaxObjectsInGet   int      `yaml:"max_objects_in_get,omitempty"`
	MaxSizeRequest    int64    `yaml:"max_size_request,omitempty"`
}

// CallStep is one call in the batch.
type CallStep struct {
	// Label names the call for references, responses, and assertions.
	Label string `yaml:"label"`

	// Method is the method name, e.g. "Mailbox/get".
	Method string `yaml:"method"`

	// Args are literal arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// Refs are back-references keyed by argument name.
	Refs map[string]RefSpec `yaml:"refs,omitempty"`
}

// RefSpec points an argument at an earlier call's result.
type RefSpec struct {
	From string `yaml:"from"`
	Path string `yaml:"path"`
}

// ResponseSpec is a canned server reply.
type ResponseSpec struct {
	// Status is the HTTP status. Zero means 200.
	Status int `yaml:"status,omitempty"`

	// Body is sent verbatim when set; MethodResponses is ignored.
	Body string `yaml:"body,omitempty"`

	// SessionState is the response's sessionState. Empty means the
	// advertised session state.
	SessionState string `yaml:"session_state,omitempty"`

	// MethodResponses are [name, arguments, label] tuples.
	MethodResponses [][]any `yaml:"method_responses,omitempty"`
}

// Assertion validates the outcome of a run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Label is the call the assertion is about.
	Label string `yaml:"label,omitempty"`

	// Kind is the expected method error kind (method_error).
	Kind string `yaml:"kind,omitempty"`

	// Fields are expected result members (result_contains).
	// Subset match: only listed fields are validated.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Methods is the expected method order (request_order).
	Methods []string `yaml:"methods,omitempty"`

	// Count is the expected number of entries (entry_count).
	Count int `yaml:"count,omitempty"`

	// Code is the expected batch error code (batch_error).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertCallOK         = "call_ok"
	AssertMethodError    = "method_error"
	AssertResultContains = "result_contains"
	AssertRequestOrder   = "request_order"
	AssertEntryCount     = "entry_count"
	AssertBatchError     = "batch_error"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and labels are
// consistent. Reference targets are not checked here; an unknown or later
// label is a build error the run itself reports.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Calls) == 0 {
		return fmt.Errorf("calls list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	labels := make(map[string]bool, len(s.Calls))
	for i, step := range s.Calls {
		if step.Label == "" {
			return fmt.Errorf("calls[%d]: label is required", i)
		}
		if labels[step.Label] {
			return fmt.Errorf("calls[%d]: duplicate label %q", i, step.Label)
		}
		labels[step.Label] = true
		if step.Method == "" {
			return fmt.Errorf("calls[%d]: method is required", i)
		}
		for name, ref := range step.Refs {
			if ref.From == "" || ref.Path == "" {
				return fmt.Errorf("calls[%d]: ref %q needs from and path", i, name)
			}
			if _, clash := step.Args[name]; clash {
				return fmt.Errorf("calls[%d]: %q is both an arg and a ref", i, name)
			}
		}
	}

	if r := s.Response; r != nil {
		for i, inv := range r.MethodResponses {
			if len(inv) != 3 {
				return fmt.Errorf("response.method_responses[%d]: want [name, arguments, id], got %d elements", i, len(inv))
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, labels); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion, labels map[string]bool) error {
	needsLabel := func() error {
		if a.Label == "" {
			return fmt.Errorf("%s requires label", a.Type)
		}
		if !labels[a.Label] {
			return fmt.Errorf("%s: unknown label %q", a.Type, a.Label)
		}
		return nil
	}

	switch a.Type {
	case AssertCallOK:
		return needsLabel()
	case AssertMethodError:
		if a.Kind == "" {
			return fmt.Errorf("method_error requires kind")
		}
		return needsLabel()
	case AssertResultContains:
		if len(a.Fields) == 0 {
			return fmt.Errorf("result_contains requires fields")
		}
		return needsLabel()
	case AssertRequestOrder:
		if len(a.Methods) == 0 {
			return fmt.Errorf("request_order requires methods")
		}
	case AssertEntryCount:
		return needsLabel()
	case AssertBatchError:
		if a.Code == "" {
			return fmt.Errorf("batch_error requires code")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
