package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotPending is returned when deciding an entry that was already decided
	ErrNotPending = errors.New("log is not pending")
	// ErrNotRejected is returned when archiving an entry that is not rejected
	ErrNotRejected = errors.New("only rejected logs can be archived")
	// ErrForbidden is returned when the caller lacks the approver permission
	ErrForbidden = errors.New("caller may not decide logs")
	// ErrNotFound is returned when no entry matches id and type
	ErrNotFound = errors.New("log not found")
)

// Decision is an approver's verdict
type Decision string

// Decisions
const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Target maps a decision to the status it produces
func (d Decision) Target() (Status, error) {
	switch d {
	case DecisionApprove:
		return StatusApproved, nil
	case DecisionReject:
		return StatusRejected, nil
	}
	return "", invalid("decision", fmt.Sprintf("unknown decision %q", string(d)))
}

// CanTransition reports whether from -> to is a legal workflow step.
// Approved is final; rejected entries may only be archived.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected
	case StatusRejected:
		return to == StatusArchived
	}
	return false
}

// CheckDecision returns the error a decision on e would hit, or nil
func CheckDecision(e *Entry, d Decision) error {
	target, err := d.Target()
	if err != nil {
		return err
	}
	if !CanTransition(e.Status, target) {
		return fmt.Errorf("%w: status is %s", ErrNotPending, e.Status)
	}
	return nil
}

// CheckArchive returns the error archiving e would hit, or nil
func CheckArchive(e *Entry) error {
	if !CanTransition(e.Status, StatusArchived) {
		return fmt.Errorf("%w: status is %s", ErrNotRejected, e.Status)
	}
	return nil
}
