package model

import "time"

// Gig is a postable engagement created by a client.  When IsClientBand is
// set the gig recruits a full band through its band roles; otherwise it is
// a regular single-musician gig booked at the gig level.
//
// Fields:
//  ID            – primary key identifier.
//  PostedBy      – owning client; immutable after creation.
//  Title         – short gig title shown in listings.
//  Description   – free-form description.
//  IsClientBand  – true when the gig runs in band-role mode.
//  IsTaken       – true once every role is at capacity (sealed).
//  IsPending     – true while recruitment is still open.
//  IsActive      – true for gigs visible in browse listings.
//  BookedBy      – gig-level booking for non-band sources (nullable).
//  Version       – optimistic concurrency stamp, bumped on every write.
//  Chat          – crew chat reference and governance, nil before formation.
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last update timestamp.
type Gig struct {
	ID           uint64     // gigs.id
	PostedBy     uint64     // gigs.posted_by
	Title        string     // gigs.title
	Description  string     // gigs.description
	IsClientBand bool       // gigs.is_client_band
	IsTaken      bool       // gigs.is_taken
	IsPending    bool       // gigs.is_pending
	IsActive     bool       // gigs.is_active
	BookedBy     *uint64    // gigs.booked_by (nullable)
	Version      uint64     // gigs.version
	Chat         *CrewChat  // gigs.chat_* columns, nil when no chat exists
	CreatedAt    time.Time  // gigs.created_at
	UpdatedAt    time.Time  // gigs.updated_at
}

// Owner reports whether the given user posted the gig.
func (g *Gig) Owner(userID uint64) bool { return g.PostedBy == userID }

// HasChat reports whether a crew conversation has already been created.
func (g *Gig) HasChat() bool { return g.Chat != nil && g.Chat.ConversationID != "" }
