package domain

import (
	"fmt"
	"time"

	internal_errors "github.com/counsel-dev/counsel/internal/errors"
)

// Lifecycle: Pending -> Assigned -> InProgress -> Answered -> Closed, plus
// moderator ForceClose from any non-terminal state. Closed is terminal.
// Follow-ups after Answered never reopen the thread.

// CanPost reports whether user may append messages to q. Posting is limited
// to the asker, the assigned responder and moderation roles. While a public
// question is still pending, any responder counts as a potential participant
// (the claim window); their messages are then filtered by the transition
// guard instead.
func (q *Question) CanPost(user User) bool {
	if user.Role.Moderates() {
		return true
	}
	if user.Id == q.AskerId {
		return true
	}
	if q.AssignedResponder(user.Id) {
		return true
	}
	if q.Status == StatusPending && q.IsPublic && user.Role == RoleResponder {
		return true
	}
	return false
}

// CanView is wider than CanPost: responders may read public threads they
// have not claimed.
func (q *Question) CanView(user User) bool {
	if q.CanPost(user) {
		return true
	}
	return q.IsPublic && user.Role == RoleResponder
}

// NextStatus decides the transition implied by appending a message of the
// given kind, or rejects it. A nil StatusChange means append without a
// transition. Callers check CanPost first; this guard assumes the sender is
// a participant.
func (q *Question) NextStatus(sender User, kind MessageKind, now time.Time) (*StatusChange, error) {
	if !kind.Valid() {
		return nil, &internal_errors.ValidationError{Message: fmt.Sprintf("unknown message kind %q", kind)}
	}
	if q.Status.Terminal() {
		return nil, internal_errors.ErrThreadClosed
	}

	// Question-kind messages belong to the asker, answers to the assigned
	// responder, regardless of state.
	if kind == MsgQuestion && sender.Id != q.AskerId {
		return nil, fmt.Errorf("%w: only the asker may add question details", internal_errors.ErrInvalidTransition)
	}
	if kind == MsgAnswer && !q.AssignedResponder(sender.Id) {
		return nil, fmt.Errorf("%w: only the assigned responder may answer", internal_errors.ErrInvalidTransition)
	}

	responder := q.AssignedResponder(sender.Id)

	switch q.Status {
	case StatusPending:
		// Nothing moves until a responder is assigned. The asker may still
		// add detail; moderators may annotate.
		if sender.Id == q.AskerId && kind == MsgQuestion {
			return nil, nil
		}
		if sender.Role.Moderates() && kind == MsgClarification {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s message not allowed while the question is pending", internal_errors.ErrInvalidTransition, kind)

	case StatusAssigned:
		if responder {
			if kind == MsgFollowUp {
				return nil, fmt.Errorf("%w: responder cannot open with a follow-up", internal_errors.ErrInvalidTransition)
			}
			if kind == MsgAnswer {
				// First responder message of kind answer satisfies both the
				// Assigned->InProgress and InProgress->Answered guards in one
				// call.
				answeredAt := now
				return &StatusChange{From: StatusAssigned, To: StatusAnswered, AnsweredAt: &answeredAt}, nil
			}
			return &StatusChange{From: StatusAssigned, To: StatusInProgress}, nil
		}
		return nil, q.plainAppend(sender, kind)

	case StatusInProgress:
		if responder {
			if kind == MsgAnswer {
				answeredAt := now
				return &StatusChange{From: StatusInProgress, To: StatusAnswered, AnsweredAt: &answeredAt}, nil
			}
			return nil, nil
		}
		return nil, q.plainAppend(sender, kind)

	case StatusAnswered:
		// Follow-ups and further answers do not reopen the thread.
		if responder {
			return nil, nil
		}
		return nil, q.plainAppend(sender, kind)
	}

	return nil, fmt.Errorf("%w: unknown status %q", internal_errors.ErrInvalidTransition, q.Status)
}

// plainAppend validates a non-transitioning append by the asker or a
// moderator. Returns nil when the append is allowed.
func (q *Question) plainAppend(sender User, kind MessageKind) error {
	if sender.Id == q.AskerId {
		switch kind {
		case MsgQuestion, MsgFollowUp, MsgClarification:
			return nil
		}
		return fmt.Errorf("%w: asker cannot send a %s message", internal_errors.ErrInvalidTransition, kind)
	}
	if sender.Role.Moderates() && kind == MsgClarification {
		return nil
	}
	return fmt.Errorf("%w: %s message not allowed for this sender in status %s", internal_errors.ErrInvalidTransition, kind, q.Status)
}

// CanAssign validates an AssignResponder call. The store still applies the
// update conditionally, so two racing assignments cannot both win.
func (q *Question) CanAssign(responderId UserId, caller User) error {
	if q.Status.Terminal() {
		return internal_errors.ErrThreadClosed
	}
	switch caller.Role {
	case RoleModerator, RoleAdmin:
		if q.Status != StatusPending && q.Status != StatusAssigned {
			return fmt.Errorf("%w: can only (re)assign while pending or assigned", internal_errors.ErrInvalidTransition)
		}
		return nil
	case RoleResponder:
		if caller.Id != responderId {
			return fmt.Errorf("%w: responders may only claim questions for themselves", internal_errors.ErrNotAuthorized)
		}
		if !q.IsPublic {
			return fmt.Errorf("%w: question is not open for claims", internal_errors.ErrNotAuthorized)
		}
		if q.Status != StatusPending || q.AssignedTo != nil {
			return fmt.Errorf("%w: question is already assigned", internal_errors.ErrInvalidTransition)
		}
		return nil
	}
	return fmt.Errorf("%w: role %s cannot assign responders", internal_errors.ErrNotAuthorized, caller.Role)
}

// CloseChange validates a ForceClose and builds its StatusChange. The
// closure timestamp doubles as answered_at when the thread was never
// answered, keeping the answered_at <=> Answered|Closed invariant.
func (q *Question) CloseChange(caller User, now time.Time) (*StatusChange, error) {
	if !caller.Role.Moderates() {
		return nil, fmt.Errorf("%w: only moderators may close a thread", internal_errors.ErrNotAuthorized)
	}
	if q.Status.Terminal() {
		return nil, internal_errors.ErrThreadClosed
	}
	change := &StatusChange{From: q.Status, To: StatusClosed}
	if q.AnsweredAt == nil {
		closedAt := now
		change.AnsweredAt = &closedAt
	}
	return change, nil
}

// CheckInvariants verifies the structural invariants of a question. Used in
// tests and as a storage-round-trip sanity check.
func (q *Question) CheckInvariants() error {
	if q.Status == StatusPending && q.AssignedTo != nil {
		return fmt.Errorf("pending question %d has an assigned responder", q.Id)
	}
	if q.Status != StatusPending && q.AssignedTo == nil && q.Status != StatusClosed {
		return fmt.Errorf("question %d in status %s has no assigned responder", q.Id, q.Status)
	}
	answered := q.Status == StatusAnswered || q.Status == StatusClosed
	if answered && q.AnsweredAt == nil {
		return fmt.Errorf("question %d in status %s has no answered_at", q.Id, q.Status)
	}
	if !answered && q.AnsweredAt != nil {
		return fmt.Errorf("question %d in status %s has answered_at set", q.Id, q.Status)
	}
	return nil
}
