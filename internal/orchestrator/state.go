package orchestrator

import "fmt"

// State is the phase of one run.
type State int

const (
	Idle State = iota
	Collecting
	Snapshotting
	Auditing
	Aggregated
	Terminal
)

var stateNames = [...]string{"idle", "collecting", "snapshotting", "auditing", "aggregated", "terminal"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Every phase may end the run early; otherwise phases advance in order.
var transitions = map[State][]State{
	Idle:         {Collecting},
	Collecting:   {Snapshotting, Terminal},
	Snapshotting: {Auditing, Terminal},
	Auditing:     {Aggregated, Terminal},
	Aggregated:   {Terminal},
}

type machine struct {
	state State
	hook  func(from, to State)
}

func (m *machine) to(next State) error {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			prev := m.state
			m.state = next
			if m.hook != nil {
				m.hook(prev, next)
			}
			return nil
		}
	}
	return fmt.Errorf("illegal run transition %s -> %s", m.state, next)
}
