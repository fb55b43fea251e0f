// Package submit drives one form instance from idle through validation and
// the create call to success or failure.
package submit

import "fmt"

type Status int

const (
	StatusIdle Status = iota
	StatusValidating
	StatusInFlight
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusValidating:
		return "validating"
	case StatusInFlight:
		return "inFlight"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether s is a display state that permits a new attempt.
func (s Status) Terminal() bool { return s == StatusSucceeded || s == StatusFailed }

type Event int

const (
	EventSubmit Event = iota
	EventValid
	EventInvalid
	EventAccepted
	EventRejected
	EventReset
)

func (e Event) String() string {
	switch e {
	case EventSubmit:
		return "submit"
	case EventValid:
		return "valid"
	case EventInvalid:
		return "invalid"
	case EventAccepted:
		return "accepted"
	case EventRejected:
		return "rejected"
	case EventReset:
		return "reset"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

var transitions = map[Status]map[Event]Status{
	StatusIdle: {
		EventSubmit: StatusValidating,
	},
	StatusValidating: {
		EventValid:   StatusInFlight,
		EventInvalid: StatusFailed,
	},
	StatusInFlight: {
		EventAccepted: StatusSucceeded,
		EventRejected: StatusFailed,
	},
	StatusSucceeded: {
		EventSubmit: StatusValidating,
		EventReset:  StatusIdle,
	},
	StatusFailed: {
		EventSubmit: StatusValidating,
		EventReset:  StatusIdle,
	},
}

// Transition returns the next status, or (from, false) when ev is not
// allowed in from. Submit while inFlight is never allowed.
func Transition(from Status, ev Event) (Status, bool) {
	next, ok := transitions[from][ev]
	if !ok {
		return from, false
	}
	return next, true
}

// State is the observable SubmissionAttempt.
type State struct {
	Status Status
	// Message is the text shown for the last terminal state.
	Message string
	// Field names the violated field after a local validation failure.
	Field string
}
