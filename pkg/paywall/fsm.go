// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package paywall

import (
	"errors"
	"fmt"
)

var ErrIllegalTransition = errors.New("illegal transition")

// State of the unlock flow
type State int

const (
	StateList State = iota
	StateAd
	StatePayment
	StateContent
	StateError
)

func (s State) String() string {
	switch s {
	case StateList:
		return "list"
	case StateAd:
		return "ad"
	case StatePayment:
		return "payment"
	case StateContent:
		return "content"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event drives a transition
type Event int

const (
	EventSelectFree Event = iota
	EventSelectPaid
	EventAdComplete
	EventPaid
	EventFail
	EventBack
)

func (e Event) String() string {
	switch e {
	case EventSelectFree:
		return "select_free"
	case EventSelectPaid:
		return "select_paid"
	case EventAdComplete:
		return "ad_complete"
	case EventPaid:
		return "paid"
	case EventFail:
		return "fail"
	case EventBack:
		return "back"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

var transitions = map[State]map[Event]State{
	StateList: {
		EventSelectFree: StateContent,
		EventSelectPaid: StateAd,
		EventFail:       StateError,
	},
	StateAd: {
		EventAdComplete: StatePayment,
		EventFail:       StateError,
	},
	StatePayment: {
		EventPaid: StateContent,
		EventFail: StateError,
	},
	StateContent: {
		EventBack: StateList,
	},
	StateError: {
		EventBack: StateList,
	},
}

// Transition returns the state ev leads to from s
func Transition(s State, ev Event) (State, error) {
	if next, ok := transitions[s][ev]; ok {
		return next, nil
	}
	return s, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev, s)
}

// PayStatus is the step a payment is at
type PayStatus int

const (
	PayIdle PayStatus = iota
	PayConnecting
	PaySwitching
	PaySigning
	PayProcessing
)

func (p PayStatus) String() string {
	switch p {
	case PayIdle:
		return "idle"
	case PayConnecting:
		return "connecting"
	case PaySwitching:
		return "switching"
	case PaySigning:
		return "signing"
	case PayProcessing:
		return "processing"
	default:
		return fmt.Sprintf("pay(%d)", int(p))
	}
}

// PaymentError is a payment failure the user can retry. Reason is the
// server's stated reason when it gave one.
type PaymentError struct {
	Step   string
	Reason string
	Err    error
}

func (e *PaymentError) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("payment %s failed: %s: %v", e.Step, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("payment %s failed: %s", e.Step, e.Reason)
	default:
		return fmt.Sprintf("payment %s failed: %v", e.Step, e.Err)
	}
}

func (e *PaymentError) Unwrap() error { return e.Err }
