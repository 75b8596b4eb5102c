package harness

import "encoding/json"

// Outcome status values.
const (
	StatusOK          = "ok"
	StatusMethodError = "method_error"
	StatusUnsupported = "unsupported"
)

// Outcome is one response entry, attributed to the call that produced it.
type Outcome struct {
	Label  string          `json:"label"`
	CallID string          `json:"call_id"`
	Method string          `json:"method"`
	Status string          `json:"status"`
	Kind   string          `json:"kind,omitempty"`
	Raw    json.RawMessage `json:"-"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Request is the encoded request body, or nil if the batch never
	// reached the wire.
	Request []byte `json:"-"`

	// Methods lists the method of every sent call in order.
	Methods []string `json:"methods"`

	// Outcomes lists every response entry in call order.
	Outcomes []Outcome `json:"outcomes"`

	// BatchError is the code of the error that failed the batch, if any.
	BatchError string `json:"batch_error,omitempty"`

	// Errors contains failed assertion messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Methods:  []string{},
		Outcomes: []Outcome{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// OutcomesFor returns the outcomes of the labelled call.
func (r *Result) OutcomesFor(label string) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Label == label {
			out = append(out, o)
		}
	}
	return out
}
