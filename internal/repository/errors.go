// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrForbidden indicates that the current user is not
// authorized to perform an operation on a resource owned by someone
// else, while ErrSealed signals that a gig's role structure can no
// longer be edited because every role is at capacity.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an operation cannot proceed because of
// conflicting state. Handlers should translate this into an HTTP 409
// response.
var ErrConflict = errors.New("conflict")

// ErrGigNotFound is returned when no gig exists with the requested id.
var ErrGigNotFound = errors.New("gig not found")

// ErrRoleNotFound is returned when a gig has no role at the requested
// position.
var ErrRoleNotFound = errors.New("band role not found")

// ErrNotBandGig is returned when a band-only operation targets a gig
// that does not run in band-role mode.
var ErrNotBandGig = errors.New("gig is not a band gig")

// ErrSealed is returned when role edits are attempted after every role
// reached capacity. Unbooking remains allowed and unseals the gig.
var ErrSealed = errors.New("gig is fully booked; role edits are disabled")

// ErrChatExists is returned when crew chat creation hits a gig that
// already holds a conversation reference.
var ErrChatExists = errors.New("crew chat already exists")

// ErrChatMissing is returned by chat membership and settings operations
// when the gig has no conversation yet.
var ErrChatMissing = errors.New("crew chat has not been created")

// ErrCannotRemoveCreator is returned when a chat membership operation
// attempts to remove the gig owner from the crew conversation.
var ErrCannotRemoveCreator = errors.New("gig creator cannot be removed from the crew chat")
