package checkout

import (
	"fmt"
	"slices"
	"time"
)

// State is a step of a checkout attempt.
type State int

const (
	Idle State = iota
	CreatingGatewayOrder
	AwaitingUserPayment
	VerifyingPayment
	Completed
	Failed
	Cancelled
)

var stateNames = [...]string{
	Idle:                 "idle",
	CreatingGatewayOrder: "creating_gateway_order",
	AwaitingUserPayment:  "awaiting_user_payment",
	VerifyingPayment:     "verifying_payment",
	Completed:            "completed",
	Failed:               "failed",
	Cancelled:            "cancelled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// IsTerminal reports whether s ends an attempt.
func (s State) IsTerminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// transitions lists the allowed moves. A failed gateway order creation returns
// to Idle so that terminal states are only reached once the user has seen the
// checkout UI. Terminal states reset to Idle for the next attempt.
var transitions = map[State][]State{
	Idle:                 {CreatingGatewayOrder},
	CreatingGatewayOrder: {AwaitingUserPayment, Idle},
	AwaitingUserPayment:  {VerifyingPayment, Cancelled, Failed},
	VerifyingPayment:     {Completed, Failed},
	Completed:            {Idle},
	Failed:               {Idle},
	Cancelled:            {Idle},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Transition is reported to the observer on every state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// TransitionError reports a move outside the transition table.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("checkout cannot move from %s to %s", e.From, e.To)
}
