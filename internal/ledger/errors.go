// Package ledger implements the per-gig role ledger: pure capacity and
// membership math with no I/O.  Every other component mutates role state
// exclusively through Apply so that no fractional write can escape the
// invariant checks.
package ledger

import (
	"errors"
	"fmt"
)

// ErrInvariantViolation is the base class for every refusal the ledger can
// produce.  Callers match specific reasons with errors.Is against the
// sentinels below; all of them wrap this one.
var ErrInvariantViolation = errors.New("invariant violation")

var (
	// ErrRoleOutOfRange is returned when a role index does not exist.
	ErrRoleOutOfRange = fmt.Errorf("%w: role index out of range", ErrInvariantViolation)
	// ErrRoleFull is returned when a booking would exceed max slots.
	ErrRoleFull = fmt.Errorf("%w: role is fully booked", ErrInvariantViolation)
	// ErrRoleLocked is returned when applying to a locked role.
	ErrRoleLocked = fmt.Errorf("%w: role is locked for new applications", ErrInvariantViolation)
	// ErrApplicantCapReached is returned when the applicant queue is at its cap.
	ErrApplicantCapReached = fmt.Errorf("%w: applicant cap reached", ErrInvariantViolation)
	// ErrAlreadyApplied is returned when the user is already in the applicant queue.
	ErrAlreadyApplied = fmt.Errorf("%w: user already applied to this role", ErrInvariantViolation)
	// ErrAlreadyBooked is returned when the user is already booked into the role.
	ErrAlreadyBooked = fmt.Errorf("%w: user already booked for this role", ErrInvariantViolation)
	// ErrNotAssociated is returned when the user is in neither membership list.
	ErrNotAssociated = fmt.Errorf("%w: user has no association with this role", ErrInvariantViolation)
	// ErrDuplicateMember is returned when a mutation would put a user in both lists.
	ErrDuplicateMember = fmt.Errorf("%w: user cannot be applicant and booked at once", ErrInvariantViolation)
	// ErrNegativeSlots is returned when a mutation would drive filled slots below zero.
	ErrNegativeSlots = fmt.Errorf("%w: filled slots cannot go negative", ErrInvariantViolation)
)
