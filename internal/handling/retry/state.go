package retry

import "fmt"

// State is a step of one failure's classification.
type State int

const (
	Running State = iota
	Failed
	Reported
	Decided
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Failed:
		return "failed"
	case Reported:
		return "reported"
	case Decided:
		return "decided"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the only legal next state for each state.
// Reported is reached whether or not the sink call succeeded.
var transitions = map[State]State{
	Running:  Failed,
	Failed:   Reported,
	Reported: Decided,
}

// machine tracks a single classification. It is never shared between calls.
type machine struct {
	state  State
	action Action
}

func (m *machine) advance(to State) error {
	next, ok := transitions[m.state]
	if !ok || next != to {
		return fmt.Errorf("illegal transition %s -> %s", m.state, to)
	}
	m.state = to
	return nil
}

func (m *machine) decide(retryRequested bool) error {
	if err := m.advance(Decided); err != nil {
		return err
	}
	if retryRequested {
		m.action = Propagate
	} else {
		m.action = Suppress
	}
	return nil
}
