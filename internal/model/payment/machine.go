package payment

import (
	"fmt"

	"github.com/zhouzirui/xrp-pay/backend/internal/apperr"
)

// ErrInvalidTransition is returned when an event does not apply to the flow.
var ErrInvalidTransition = apperr.New(apperr.KindInvalidTransition, "invalid payment transition")

// Channel names how a signing confirmation reached the gateway.
type Channel string

const (
	ChannelCallback Channel = "callback"
	ChannelWebhook  Channel = "webhook"
)

// EventKind enumerates the inputs the state machine understands.
type EventKind string

const (
	EventSigned           EventKind = "signed"
	EventDeclined         EventKind = "declined"
	EventSettled          EventKind = "settled"
	EventSettlementFailed EventKind = "settlement_failed"
	EventExpired          EventKind = "expired"
)

// Event is one input to Apply.
type Event struct {
	Kind    EventKind
	Leg     Role
	Channel Channel
}

// Effect is the side effect the caller must perform after persisting a decision.
type Effect string

const (
	EffectNone         Effect = ""
	EffectRedirectNext Effect = "redirect_next"
	EffectSettle       Effect = "settle"
	EffectRemove       Effect = "remove"
)

// Flow is the pair-level state the machine works on. Both legs of a pair
// share Status; FeeSigned and UserSigned record which legs have confirmed.
type Flow struct {
	Status     Status
	Paired     bool
	FeeSigned  bool
	UserSigned bool
}

// Decision is the outcome of applying one event.
type Decision struct {
	Flow      Flow
	Path      []Status
	Effect    Effect
	Duplicate bool
}

// Changed reports whether the decision moved the flow to a new status.
func (d Decision) Changed() bool {
	return len(d.Path) > 0
}

var transitions = map[Status][]Status{
	StatusWaitingFee:  {StatusFeeSigned, StatusFailed},
	StatusFeeSigned:   {StatusUserSigned, StatusSigned, StatusFailed},
	StatusWaitingUser: {StatusUserSigned, StatusSigned, StatusFailed},
	StatusUserSigned:  {StatusCompleted, StatusFailed},
	StatusSigned:      {StatusCompleted, StatusFailed},
}

// CanTransition reports whether the table allows a single step from one
// status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InitialStatus returns the status a new flow starts in.
func InitialStatus(paired bool) Status {
	if paired {
		return StatusWaitingFee
	}
	return StatusWaitingUser
}

// Apply computes the next flow state for ev. It never mutates its input and
// performs no I/O; callers persist Decision.Flow and then run Decision.Effect.
func Apply(f Flow, ev Event) (Decision, error) {
	switch ev.Kind {
	case EventSigned:
		return applySigned(f, ev)
	case EventDeclined, EventExpired:
		if f.Status.Terminal() || f.Status.PendingSettlement() {
			return Decision{Flow: f, Duplicate: true}, nil
		}
		return step(f, StatusFailed, EffectRemove)
	case EventSettled, EventSettlementFailed:
		if !f.Status.PendingSettlement() {
			return Decision{Flow: f}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev.Kind, f.Status)
		}
		to := StatusCompleted
		if ev.Kind == EventSettlementFailed {
			to = StatusFailed
		}
		return step(f, to, EffectRemove)
	default:
		return Decision{Flow: f}, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev.Kind)
	}
}

func applySigned(f Flow, ev Event) (Decision, error) {
	if f.Status.Terminal() || f.Status.PendingSettlement() {
		return Decision{Flow: f, Duplicate: true}, nil
	}

	leg := ev.Leg
	if leg == "" {
		leg = RoleUser
	}
	if leg == RoleFee && !f.Paired {
		return Decision{Flow: f}, fmt.Errorf("%w: fee leg on single-leg flow", ErrInvalidTransition)
	}

	next := f
	var seen bool
	switch leg {
	case RoleFee:
		seen, next.FeeSigned = next.FeeSigned, true
	case RoleUser:
		seen, next.UserSigned = next.UserSigned, true
	default:
		return Decision{Flow: f}, fmt.Errorf("%w: unknown leg %q", ErrInvalidTransition, leg)
	}

	// Walk one table step at a time so an early user-leg confirmation is
	// folded in once the fee leg catches up.
	var path []Status
	for {
		to, ok := signedStep(next, ev.Channel)
		if !ok {
			break
		}
		if !CanTransition(next.Status, to) {
			return Decision{Flow: f}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, next.Status, to)
		}
		next.Status = to
		path = append(path, to)
	}

	d := Decision{Flow: next, Path: path, Duplicate: seen && len(path) == 0}
	switch {
	case next.Status.PendingSettlement():
		d.Effect = EffectSettle
	case next.Status == StatusFeeSigned && leg == RoleFee:
		d.Effect = EffectRedirectNext
	}
	return d, nil
}

func signedStep(f Flow, ch Channel) (Status, bool) {
	switch f.Status {
	case StatusWaitingFee:
		if f.FeeSigned {
			return StatusFeeSigned, true
		}
	case StatusFeeSigned, StatusWaitingUser:
		if f.UserSigned && (f.FeeSigned || !f.Paired) {
			if ch == ChannelWebhook {
				return StatusSigned, true
			}
			return StatusUserSigned, true
		}
	}
	return "", false
}

func step(f Flow, to Status, effect Effect) (Decision, error) {
	if !CanTransition(f.Status, to) {
		return Decision{Flow: f}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.Status, to)
	}
	next := f
	next.Status = to
	return Decision{Flow: next, Path: []Status{to}, Effect: effect}, nil
}
