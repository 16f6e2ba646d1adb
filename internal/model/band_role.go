package model

import "time"

// Member status values for band_role_members rows.
const (
	MemberApplicant = "APPLICANT" // candidate waiting in the applicant queue
	MemberBooked    = "BOOKED"    // confirmed into a slot, counted against capacity
)

// BandRole is one named position within a band-mode gig, e.g. "Lead
// Guitar" with two slots.  Capacity is tracked redundantly: FilledSlots
// must always equal the number of BOOKED members for the role.
//
// Fields:
//  ID               – primary key identifier.
//  GigID            – owning gig.
//  Position         – zero-based index inside the gig's role list.
//  Name             – role label shown to musicians.
//  MaxSlots         – slot capacity, always >= 1.
//  FilledSlots      – count of booked members; equals len(booked members).
//  MaxApplicants    – soft cap on the applicant queue.
//  IsLocked         – stops new applications when true.
//  PriceCents       – listed per-role compensation.
//  Currency         – ISO currency code for PriceCents.
//  Negotiable       – whether the listed price is negotiable.
//  BookedPriceCents – final agreed price once a booking lands (nullable).
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type BandRole struct {
	ID               uint64    // band_roles.id
	GigID            uint64    // band_roles.gig_id
	Position         int       // band_roles.position
	Name             string    // band_roles.name
	MaxSlots         int       // band_roles.max_slots
	FilledSlots      int       // band_roles.filled_slots
	MaxApplicants    int       // band_roles.max_applicants
	IsLocked         bool      // band_roles.is_locked
	PriceCents       uint32    // band_roles.price_cents
	Currency         string    // band_roles.currency
	Negotiable       bool      // band_roles.negotiable
	BookedPriceCents *uint32   // band_roles.booked_price_cents (nullable)
	CreatedAt        time.Time // band_roles.created_at
	UpdatedAt        time.Time // band_roles.updated_at
}

// RoleMember is one membership row linking a user to a role either as an
// applicant or as a booked member.  BOOKED rows keep insertion order so
// the earliest-booked occupant can be identified for replacement.
//
// Fields:
//  ID        – primary key identifier; ordering key within a status.
//  GigID     – owning gig (denormalized for per-gig queries).
//  RoleID    – the band role this membership belongs to.
//  UserID    – the musician.
//  Status    – APPLICANT or BOOKED.
//  Notes     – optional note supplied when applying (nullable).
//  CreatedAt – when the membership row was inserted.
type RoleMember struct {
	ID        uint64    // band_role_members.id
	GigID     uint64    // band_role_members.gig_id
	RoleID    uint64    // band_role_members.role_id
	UserID    uint64    // band_role_members.user_id
	Status    string    // band_role_members.status
	Notes     *string   // band_role_members.notes (nullable)
	CreatedAt time.Time // band_role_members.created_at
}
