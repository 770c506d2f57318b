package core

import "fmt"

// State is a step of the debugger-attach handshake.
type State string

const (
	StateIdle              State = "idle"
	StateCleaningMarkers   State = "cleaning_markers"
	StateLaunching         State = "launching"
	StateWaitingSocketPath State = "waiting_socket_path"
	StateWaitingRendezvous State = "waiting_rendezvous"
	StateWritingPing       State = "writing_ping"
	StateWaitingPong       State = "waiting_pong"

	// StateSucceeded and StateFailed are terminal.
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// AllStages returns the non-terminal stages in execution order.
func AllStages() []State {
	return []State{
		StateCleaningMarkers,
		StateLaunching,
		StateWaitingSocketPath,
		StateWaitingRendezvous,
		StateWritingPing,
		StateWaitingPong,
	}
}

// Outcome is the result of a rendezvous socket handshake.
type Outcome int32

const (
	// OutcomePending means the listener has not finished yet.
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("outcome(%d)", int32(o))
	}
}
