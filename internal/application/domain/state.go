package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidStateTransition = errors.New("invalid_state_transition")

// InvalidStateTransitionError names the state an application or member was
// in and the state the rejected event would have led to.
type InvalidStateTransitionError struct {
	Subject   string
	Current   string
	Attempted string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid_state_transition: %s cannot move from %s to %s", e.Subject, e.Current, e.Attempted)
}

func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

var eventTargets = map[Event]Status{
	EventQuote:             StatusQuoted,
	EventSubmit:            StatusSubmitted,
	EventStartUnderwriting: StatusUnderwriting,
	EventApprove:           StatusApproved,
	EventDecline:           StatusDeclined,
	EventRefer:             StatusReferred,
	EventAccept:            StatusAccepted,
	EventConvert:           StatusConverted,
	EventCancel:            StatusCancelled,
	EventExpire:            StatusExpired,
}

var eventSources = map[Event][]Status{
	EventQuote:             {StatusDraft, StatusQuoted},
	EventSubmit:            {StatusQuoted},
	EventStartUnderwriting: {StatusSubmitted, StatusReferred},
	EventApprove:           {StatusUnderwriting},
	EventDecline:           {StatusUnderwriting},
	EventRefer:             {StatusUnderwriting},
	EventAccept:            {StatusApproved},
	EventConvert:           {StatusAccepted},
}

// Target is the state an event leads to.
func (e Event) Target() (Status, bool) {
	status, ok := eventTargets[e]
	return status, ok
}

func (e Event) Valid() bool {
	_, ok := eventTargets[e]
	return ok
}

// RequiresReason reports whether the event must carry a free-text reason.
func (e Event) RequiresReason() bool {
	return e == EventDecline || e == EventRefer || e == EventCancel
}

// Terminal states accept no further events.
func (s Status) Terminal() bool {
	return s == StatusConverted || s == StatusExpired || s == StatusCancelled
}

// Next resolves event against the current state. Cancel and expire are
// accepted from every state that is not terminal.
func Next(current Status, event Event) (Status, error) {
	target, ok := event.Target()
	if !ok {
		return "", ErrInvalidEvent
	}
	invalid := &InvalidStateTransitionError{
		Subject:   "application",
		Current:   string(current),
		Attempted: string(target),
	}
	if current.Terminal() {
		return "", invalid
	}
	if event == EventCancel || event == EventExpire {
		return target, nil
	}
	for _, source := range eventSources[event] {
		if source == current {
			return target, nil
		}
	}
	return "", invalid
}

var memberMoves = map[MemberStatus][]MemberStatus{
	MemberPending:    {MemberInProgress},
	MemberInProgress: {MemberApproved, MemberDeclined, MemberReferred, MemberTerms},
	MemberReferred:   {MemberInProgress},
}

func (s MemberStatus) Valid() bool {
	switch s {
	case MemberPending, MemberInProgress, MemberApproved, MemberDeclined, MemberReferred, MemberTerms:
		return true
	default:
		return false
	}
}

// Cleared reports whether the member is priced in the final premium.
func (s MemberStatus) Cleared() bool {
	return s == MemberApproved || s == MemberTerms
}

// NextMember validates a member underwriting decision.
func NextMember(current, target MemberStatus) error {
	for _, allowed := range memberMoves[current] {
		if allowed == target {
			return nil
		}
	}
	return &InvalidStateTransitionError{
		Subject:   "member",
		Current:   string(current),
		Attempted: string(target),
	}
}
