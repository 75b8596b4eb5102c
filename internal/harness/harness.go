package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/roach88/jmap/internal/client"
	"github.com/roach88/jmap/internal/graph"
	"github.com/roach88/jmap/internal/method"
	"github.com/roach88/jmap/internal/testutil"
	"github.com/roach88/jmap/internal/transport"
	"github.com/roach88/jmap/internal/value"
	"github.com/roach88/jmap/internal/wire"
)

// Run executes a scenario and returns the result.
//
// Each run gets its own scripted server and client, so call ids start at c0.
// An error is returned only when the scenario cannot be run at all; a failed
// batch is recorded in Result.BatchError and checked by assertions.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	opts := testutil.SessionOptions{
		State:             scenario.Session.State,
		Capabilities:      scenario.Session.Capabilities,
		MaxCallsInRequest: scenario.Session.MaxCallsInRequest,
		MaxObjectsInGet:   scenario.Session.MaxObjectsInGet,
		MaxSizeRequest:    scenario.Session.MaxSizeRequest,
	}
	tr := testutil.NewScriptedTransport(opts)

	c, err := client.Connect(ctx, testutil.SessionURL,
		client.WithTransport(tr),
		client.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		client.WithTokenGenerator(testutil.NewFixedTokenGenerator(scenario.BatchToken)),
	)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	result := NewResult()
	labels, batch, err := build(c, scenario.Calls)
	if err != nil {
		result.BatchError = errorCode(err)
		evaluate(result, scenario.Assertions)
		return result, nil
	}
	for _, call := range batch.Calls() {
		result.Methods = append(result.Methods, call.Method)
	}

	if r := scenario.Response; r != nil {
		state := r.SessionState
		if state == "" {
			state = c.Session().State
		}
		body, err := renderResponse(r, labels, state)
		if err != nil {
			return nil, err
		}
		status := r.Status
		if status == 0 {
			status = http.StatusOK
		}
		tr.Reply(status, body)
	}

	results, err := c.Send(ctx, batch)
	if bodies := tr.APIBodies(); len(bodies) > 0 {
		result.Request = bodies[len(bodies)-1]
	}
	if err != nil {
		result.BatchError = errorCode(err)
	} else {
		ids := make(map[graph.CallID]string, len(labels))
		for label, id := range labels {
			ids[id] = label
		}
		for _, cr := range results.All() {
			result.Outcomes = append(result.Outcomes, outcome(ids[cr.CallID], cr))
		}
	}

	evaluate(result, scenario.Assertions)
	return result, nil
}

// build adds every call to a fresh batch. It returns the call id issued for
// each label.
func build(c *client.Client, steps []CallStep) (map[string]graph.CallID, *graph.Batch, error) {
	b, err := c.NewBatch()
	if err != nil {
		return nil, nil, err
	}

	labels := make(map[string]graph.CallID, len(steps))
	for i, step := range steps {
		obj, err := value.From(step.Args)
		if err != nil {
			return nil, nil, fmt.Errorf("calls[%d]: %w", i, err)
		}
		args := graph.Arguments{}
		if o, ok := obj.(value.Object); ok {
			args = graph.FromObject(o)
		}

		for name, rs := range step.Refs {
			target, ok := labels[rs.From]
			if !ok {
				// An unknown or later label still has to fail as a build
				// error, so hand the builder an id it never issued.
				target = graph.CallID(rs.From)
			}
			ref, err := b.Ref(target, rs.Path)
			if err != nil {
				return nil, nil, err
			}
			args[name] = ref
		}

		id, err := b.AddCall(step.Method, args)
		if err != nil {
			return nil, nil, err
		}
		labels[step.Label] = id
	}

	batch, err := b.Finalize()
	if err != nil {
		return nil, nil, err
	}
	return labels, batch, nil
}

// renderResponse builds the canned reply, replacing labels with call ids.
func renderResponse(r *ResponseSpec, labels map[string]graph.CallID, state string) (string, error) {
	if r.Body != "" {
		return r.Body, nil
	}
	invocations := make([][3]any, len(r.MethodResponses))
	for i, inv := range r.MethodResponses {
		name, ok := inv[0].(string)
		if !ok {
			return "", fmt.Errorf("response.method_responses[%d]: name must be a string", i)
		}
		id := fmt.Sprint(inv[2])
		if cid, ok := labels[id]; ok {
			id = string(cid)
		}
		args := inv[1]
		if args == nil {
			args = map[string]any{}
		}
		invocations[i] = [3]any{name, args, id}
	}
	return testutil.Response(state, invocations...), nil
}

func outcome(label string, cr client.CallResult) Outcome {
	o := Outcome{
		Label:  label,
		CallID: string(cr.CallID),
		Method: cr.Method,
		Status: StatusOK,
		Raw:    cr.Raw,
	}
	var me *method.MethodError
	switch {
	case errors.As(cr.Err, &me):
		o.Status = StatusMethodError
		o.Kind = me.Type
	case method.IsUnsupportedMethod(cr.Err):
		o.Status = StatusUnsupported
	}
	return o
}

// errorCode names the error that failed a batch. Build violations report
// the first violation's code.
func errorCode(err error) string {
	if v := graph.Violations(err); len(v) > 0 {
		return string(v[0].Code)
	}
	var pe *wire.ProtocolError
	if errors.As(err, &pe) {
		return string(pe.Code)
	}
	if transport.IsStatusError(err) {
		return "TRANSPORT_STATUS"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "CANCELLED"
	}
	return "ERROR"
}
