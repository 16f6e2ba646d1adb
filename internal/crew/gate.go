// Package crew decides when a gig's crew is complete and what the crew
// conversation should look like.  It is pure: handlers feed it the gig and
// its ledger, it returns verdicts.  The external messaging collaborator is
// only contacted after this package says formation may proceed.
package crew

import (
	"github.com/gighall/crewbook/internal/ledger"
	"github.com/gighall/crewbook/internal/model"
)

// Eligibility reasons returned by Evaluate.  Handlers surface these as the
// machine-readable reason string; there is deliberately no generic case.
const (
	ReasonNotOwner      = "NotOwner"
	ReasonNotBandGig    = "NotBandGig"
	ReasonAlreadyExists = "AlreadyExists"
	ReasonRolesUnfilled = "RolesUnfilled"
	ReasonNoBookings    = "NoBookings"
)

// Eligibility is the structured verdict of the crew formation precondition
// check.  UnfilledRoles is only populated for ReasonRolesUnfilled.
type Eligibility struct {
	CanCreate     bool     `json:"can_create"`
	Reason        string   `json:"reason,omitempty"`
	UnfilledRoles []string `json:"unfilled_roles,omitempty"`
}

// Evaluate runs the read-only precondition check for crew formation: the
// actor must own the gig, the gig must be in band mode with no existing
// conversation, every role must be at capacity and at least one booked
// member must exist.
func Evaluate(g *model.Gig, l *ledger.Ledger, actorID uint64) Eligibility {
	if !g.Owner(actorID) {
		return Eligibility{Reason: ReasonNotOwner}
	}
	if !g.IsClientBand {
		return Eligibility{Reason: ReasonNotBandGig}
	}
	if g.HasChat() {
		return Eligibility{Reason: ReasonAlreadyExists}
	}
	if unfilled := l.UnfilledRoles(); len(unfilled) > 0 {
		return Eligibility{Reason: ReasonRolesUnfilled, UnfilledRoles: unfilled}
	}
	if !l.HasBookings() {
		return Eligibility{Reason: ReasonNoBookings}
	}
	return Eligibility{CanCreate: true}
}

// Participants computes the conversation participant set for a gig: the
// owner plus every booked member across all roles, deduplicated, owner
// first.
func Participants(g *model.Gig, l *ledger.Ledger) []uint64 {
	ids := []uint64{g.PostedBy}
	for _, id := range l.BookedUserIDs() {
		if id != g.PostedBy {
			ids = append(ids, id)
		}
	}
	return ids
}

// NormalizeClientRole maps arbitrary input to a valid client role,
// defaulting to admin for the gig owner.
func NormalizeClientRole(raw string) string {
	if raw == model.ChatRoleMember {
		return model.ChatRoleMember
	}
	return model.ChatRoleAdmin
}
