package client

import "fmt"

// Phase is the stage a batch has reached inside Send.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseBatchBuilding
	PhaseAwaitingResponse
	PhaseCorrelating
	PhaseDecoding
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseIdle:             "idle",
	PhaseBatchBuilding:    "batch_building",
	PhaseAwaitingResponse: "awaiting_response",
	PhaseCorrelating:      "correlating",
	PhaseDecoding:         "decoding",
	PhaseFailed:           "failed",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// next lists the forward transitions; any phase but Idle and Failed may
// also move to Failed.
var next = map[Phase]Phase{
	PhaseIdle:             PhaseBatchBuilding,
	PhaseBatchBuilding:    PhaseAwaitingResponse,
	PhaseAwaitingResponse: PhaseCorrelating,
	PhaseCorrelating:      PhaseDecoding,
	PhaseDecoding:         PhaseIdle,
}

// Transition is one phase change of one batch.
type Transition struct {
	Token string
	From  Phase
	To    Phase
}

// machine walks one batch through the phases, reporting each change.
type machine struct {
	token  string
	phase  Phase
	notify func(Transition)
}

func newMachine(token string, notify func(Transition)) *machine {
	return &machine{token: token, phase: PhaseIdle, notify: notify}
}

func (m *machine) advance(to Phase) {
	ok := next[m.phase] == to
	if to == PhaseFailed {
		ok = m.phase != PhaseIdle && m.phase != PhaseFailed
	}
	if !ok {
		panic(fmt.Sprintf("client: illegal phase transition %s -> %s", m.phase, to))
	}
	from := m.phase
	m.phase = to
	if m.notify != nil {
		m.notify(Transition{Token: m.token, From: from, To: to})
	}
}

// fail moves to Failed and returns err unchanged.
func (m *machine) fail(err error) error {
	m.advance(PhaseFailed)
	return err
}
