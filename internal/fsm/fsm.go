package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle           State = "idle"
	StateConnecting     State = "connecting"
	StateActive         State = "active"
	StateStopping       State = "stopping"
	StatePostProcessing State = "post_processing"
	StateDone           State = "done"
	StateAbortedConnect State = "aborted_connect"
)

const (
	EventStart     Event = "start"
	EventConnected Event = "connected"
	EventAbort     Event = "abort"
	EventStop      Event = "stop"
	EventReleased  Event = "released"
	EventFinish    Event = "finish"
)

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateConnecting, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateConnecting:
		switch event {
		case EventConnected:
			return StateActive, nil
		case EventAbort:
			return StateAbortedConnect, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateActive:
		switch event {
		case EventStop:
			return StateStopping, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStopping:
		switch event {
		case EventReleased:
			return StatePostProcessing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StatePostProcessing:
		switch event {
		case EventFinish:
			return StateDone, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateDone, StateAbortedConnect:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
