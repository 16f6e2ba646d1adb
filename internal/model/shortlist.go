package model

import "time"

// ShortlistEntry is one row of a client's triage list for a gig.  The
// shortlist is independent of role capacity: a shortlisted musician still
// occupies an applicant slot if they applied, and must go through the
// booking engine to claim a slot.
//
// Fields:
//  ID            – primary key identifier.
//  GigID         – owning gig.
//  UserID        – shortlisted musician.
//  RolePosition  – optional role index for disambiguation (nullable).
//  Notes         – optional client note (nullable).
//  ShortlistedAt – when the entry was added.
type ShortlistEntry struct {
	ID            uint64    // gig_shortlist.id
	GigID         uint64    // gig_shortlist.gig_id
	UserID        uint64    // gig_shortlist.user_id
	RolePosition  *int      // gig_shortlist.role_position (nullable)
	Notes         *string   // gig_shortlist.notes (nullable)
	ShortlistedAt time.Time // gig_shortlist.created_at
}
