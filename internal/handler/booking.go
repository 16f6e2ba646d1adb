package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/gighall/crewbook/internal/ledger"
	"github.com/gighall/crewbook/internal/messaging"
	"github.com/gighall/crewbook/internal/model"
	"github.com/gighall/crewbook/internal/queue"
	"github.com/gighall/crewbook/internal/repository"
	"github.com/gighall/crewbook/internal/service"
)

// Booking sources accepted by the generic dispatch endpoint.
const (
	SourceRegular   = "regular"
	SourceBandRole  = "band-role"
	SourceFullBand  = "full-band"
	SourceShortlist = "shortlisted"
)

// BookingHandler serves the booking engine: book with optional incumbent
// replacement, unbook, and the generic source dispatch.  All writes hold
// the gig row lock for the whole transaction, which is what makes the
// second of two concurrent bookers re-validate capacity and fail RoleFull.
type BookingHandler struct {
	Gigs    *repository.GigRepo
	Roles   *repository.BandRoleRepo
	History *repository.HistoryRepo
	Users   *repository.UserRepo
	Fanout  *service.Fanout
	Chat    *messaging.Client // nil when no messaging service is configured
	Log     *zap.Logger
}

// NewBookingHandler constructs a BookingHandler.  Chat may be nil.
func NewBookingHandler(gigs *repository.GigRepo, roles *repository.BandRoleRepo, history *repository.HistoryRepo, users *repository.UserRepo, fanout *service.Fanout, chat *messaging.Client, log *zap.Logger) *BookingHandler {
	if gigs == nil || roles == nil || history == nil || users == nil || fanout == nil || log == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{Gigs: gigs, Roles: roles, History: history, Users: users, Fanout: fanout, Chat: chat, Log: log}
}

type bookReq struct {
	UserID          uint64  `json:"user_id" validate:"required,min=1"`
	PriceCents      *uint32 `json:"price_cents"`
	ReplaceExisting bool    `json:"replace_existing"`
	Notes           *string `json:"notes" validate:"omitempty,max=1000"`
}

// Book handles POST /v1/gigs/:id/roles/:idx/bookings.  Owner-only.
func (h *BookingHandler) Book(c echo.Context) error {
	actorID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	gigID, err := pathID(c, "id")
	if err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", err.Error())
	}
	roleIdx, err := pathIndex(c, "idx")
	if err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", err.Error())
	}
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	return h.bookRole(c, actorID, gigID, roleIdx, req)
}

// bookRole is the role-aware booking transaction shared by Book and the
// band-role branch of BookMusician.
func (h *BookingHandler) bookRole(c echo.Context, actorID, gigID uint64, roleIdx int, req bookReq) error {
	ctx := c.Request().Context()
	tx, err := h.Gigs.DB().BeginTx(ctx, nil)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "failed to start transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	agg, err := h.Gigs.LoadForUpdateTx(ctx, tx, gigID)
	if err != nil {
		return repoFailure(c, err, "load gig failed")
	}
	if !agg.Gig.Owner(actorID) {
		return repoFailure(c, repository.ErrForbidden, "")
	}
	if !agg.Gig.IsClientBand {
		return repoFailure(c, repository.ErrNotBandGig, "")
	}
	role, err := agg.Role(roleIdx)
	if err != nil {
		return repoFailure(c, err, "")
	}
	lr, err := agg.Ledger.Role(roleIdx)
	if err != nil {
		return ledgerFailure(c, err)
	}
	if lr.HasBooked(req.UserID) {
		return ledgerFailure(c, ledger.ErrAlreadyBooked)
	}
	hadApplied := lr.HasApplicant(req.UserID)

	// Replacement: evict the incumbent first so the slot frees up inside
	// the same transaction.
	var evictedID uint64
	evicted := false
	if req.ReplaceExisting && lr.IsFull() {
		incumbent, ok := lr.Incumbent()
		if !ok {
			return ledgerFailure(c, ledger.ErrRoleFull)
		}
		if err := agg.Ledger.Apply(roleIdx, ledger.Unbook{UserID: incumbent}); err != nil {
			return ledgerFailure(c, err)
		}
		if err := h.Roles.DeleteMemberTx(ctx, tx, role.ID, incumbent); err != nil {
			return failure(c, http.StatusInternalServerError, "Internal", "evict incumbent failed")
		}
		evictEntry := roleHistoryEntry(agg.Gig, role, model.HistoryCancelled, actorID, incumbent, model.RoleMusician, nil,
			repository.Metadata(map[string]interface{}{
				"isReplacement": true,
				"replacedBy":    req.UserID,
			}))
		if err := h.History.AppendTx(ctx, tx, evictEntry); err != nil {
			return failure(c, http.StatusInternalServerError, "Internal", "history append failed")
		}
		evictedID = incumbent
		evicted = true
	}

	if err := agg.Ledger.Apply(roleIdx, ledger.Book{UserID: req.UserID, PriceCents: req.PriceCents}); err != nil {
		return ledgerFailure(c, err)
	}
	if hadApplied {
		if err := h.Roles.PromoteMemberTx(ctx, tx, gigID, role.ID, req.UserID); err != nil {
			return failure(c, http.StatusInternalServerError, "Internal", "promote member failed")
		}
	} else {
		if err := h.Roles.InsertMemberTx(ctx, tx, gigID, role.ID, req.UserID, model.MemberBooked, nil); err != nil {
			return failure(c, http.StatusInternalServerError, "Internal", "insert booking failed")
		}
	}
	lr, _ = agg.Ledger.Role(roleIdx)
	if err := h.Roles.SaveCountersTx(ctx, tx, role.ID, lr.FilledSlots, lr.BookedPriceCents); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "save counters failed")
	}

	sealed := agg.Ledger.Sealed()
	if sealed && !agg.Gig.IsTaken {
		if err := h.Gigs.SetStatusTx(ctx, tx, gigID, true, false, true); err != nil {
			return failure(c, http.StatusInternalServerError, "Internal", "seal failed")
		}
	}

	version, err := h.Gigs.BumpVersionTx(ctx, tx, gigID)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "version bump failed")
	}
	agreed := role.PriceCents
	if req.PriceCents != nil {
		agreed = *req.PriceCents
	}
	entry := roleHistoryEntry(agg.Gig, role, model.HistoryBooked, actorID, req.UserID, model.RoleMusician, req.Notes,
		repository.Metadata(map[string]interface{}{
			"proposedPrice": role.PriceCents,
			"agreedPrice":   agreed,
			"currency":      role.Currency,
			"hadApplied":    hadApplied,
			"version":       version,
		}))
	if err := h.History.AppendTx(ctx, tx, entry); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "history append failed")
	}
	if err := tx.Commit(); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "failed to commit transaction")
	}
	committed = true

	if evicted {
		h.Fanout.Notify(evictedID, queue.NotifyRemovedFromBand, "Removed from band",
			fmt.Sprintf("You were replaced on %s", role.Name),
			"", map[string]interface{}{"gig_id": gigID, "role_index": roleIdx, "replaced_by": req.UserID})
		h.Fanout.RecomputeTrust(evictedID, gigID, "replacement_eviction")
		h.syncChatMembership(agg.Gig, evictedID, false)
	}
	h.Fanout.Notify(req.UserID, queue.NotifyBooked, "You've been booked",
		fmt.Sprintf("You were booked for %s on %q", role.Name, agg.Gig.Title),
		"", map[string]interface{}{"gig_id": gigID, "role_index": roleIdx, "agreed_price": agreed})
	h.Fanout.Notify(actorID, queue.NotifyBookingConfirmed, "Booking confirmed",
		fmt.Sprintf("%s is booked for %s", h.displayName(req.UserID), role.Name),
		"", map[string]interface{}{"gig_id": gigID, "role_index": roleIdx, "user_id": req.UserID})
	if sealed {
		h.Fanout.Notify(actorID, queue.NotifyCrewComplete, "Crew complete",
			"Every role is filled; you can now create the crew chat",
			"", map[string]interface{}{"gig_id": gigID})
	}
	h.Fanout.RecomputeTrust(req.UserID, gigID, "booked")
	h.Fanout.RecomputeTrust(actorID, gigID, "booked")
	h.syncChatMembership(agg.Gig, req.UserID, true)

	return c.JSON(http.StatusCreated, echo.Map{
		"booked":       true,
		"sealed":       sealed,
		"agreed_price": agreed,
		"version":      version,
	})
}

// Unbook handles DELETE /v1/gigs/:id/roles/:idx/bookings/:userID.  The
// member returns to the applicant queue and the gig unseals.
func (h *BookingHandler) Unbook(c echo.Context) error {
	actorID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	gigID, err := pathID(c, "id")
	if err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", err.Error())
	}
	roleIdx, err := pathIndex(c, "idx")
	if err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", err.Error())
	}
	targetID, err := pathID(c, "userID")
	if err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", err.Error())
	}

	ctx := c.Request().Context()
	tx, err := h.Gigs.DB().BeginTx(ctx, nil)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "failed to start transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	agg, err := h.Gigs.LoadForUpdateTx(ctx, tx, gigID)
	if err != nil {
		return repoFailure(c, err, "load gig failed")
	}
	if !agg.Gig.Owner(actorID) {
		return repoFailure(c, repository.ErrForbidden, "")
	}
	if !agg.Gig.IsClientBand {
		return repoFailure(c, repository.ErrNotBandGig, "")
	}
	role, err := agg.Role(roleIdx)
	if err != nil {
		return repoFailure(c, err, "")
	}
	if err := agg.Ledger.Apply(roleIdx, ledger.Unbook{UserID: targetID, BackToApplicants: true}); err != nil {
		return ledgerFailure(c, err)
	}
	if err := h.Roles.DemoteMemberTx(ctx, tx, gigID, role.ID, targetID); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "demote member failed")
	}
	lr, _ := agg.Ledger.Role(roleIdx)
	bookedPrice := role.BookedPriceCents
	if lr.FilledSlots == 0 {
		bookedPrice = nil
	}
	if err := h.Roles.SaveCountersTx(ctx, tx, role.ID, lr.FilledSlots, bookedPrice); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "save counters failed")
	}
	if err := h.Gigs.SetStatusTx(ctx, tx, gigID, false, false, true); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "unseal failed")
	}

	version, err := h.Gigs.BumpVersionTx(ctx, tx, gigID)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "version bump failed")
	}
	entry := roleHistoryEntry(agg.Gig, role, model.HistoryCancelled, actorID, targetID, model.RoleMusician, nil,
		repository.Metadata(map[string]interface{}{
			"movedBackToApplicants": true,
			"version":               version,
		}))
	if err := h.History.AppendTx(ctx, tx, entry); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "history append failed")
	}
	if err := tx.Commit(); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "failed to commit transaction")
	}
	committed = true

	h.Fanout.Notify(targetID, queue.NotifyUnbooked, "Booking cancelled",
		fmt.Sprintf("Your booking for %s was cancelled; you are back in the applicant queue", role.Name),
		"", map[string]interface{}{"gig_id": gigID, "role_index": roleIdx})
	h.Fanout.Notify(actorID, queue.NotifySlotOpened, "Slot opened",
		fmt.Sprintf("%s is open again (%d slot(s) available)", role.Name, lr.AvailableSlots()),
		"", map[string]interface{}{"gig_id": gigID, "role_index": roleIdx})
	h.Fanout.RecomputeTrust(targetID, gigID, "unbooked")
	h.Fanout.RecomputeTrust(actorID, gigID, "unbooked")
	h.syncChatMembership(agg.Gig, targetID, false)

	return c.JSON(http.StatusOK, echo.Map{"unbooked": true, "version": version})
}

type bookMusicianReq struct {
	UserID          uint64  `json:"user_id" validate:"required,min=1"`
	Source          string  `json:"source" validate:"required,oneof=regular band-role full-band shortlisted"`
	RoleIndex       *int    `json:"role_index" validate:"omitempty,min=0"`
	PriceCents      *uint32 `json:"price_cents"`
	ReplaceExisting bool    `json:"replace_existing"`
	Notes           *string `json:"notes" validate:"omitempty,max=1000"`
}

// BookMusician handles POST /v1/gigs/:id/bookings, the generic dispatch.
// The band-role source delegates to the role-aware engine; the other
// sources book the gig as a whole via booked_by, with no capacity ledger.
func (h *BookingHandler) BookMusician(c echo.Context) error {
	actorID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	gigID, err := pathID(c, "id")
	if err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", err.Error())
	}
	var req bookMusicianReq
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if req.Source == SourceBandRole {
		if req.RoleIndex == nil {
			return failure(c, http.StatusBadRequest, "InvalidBody", "role_index required for band-role source")
		}
		return h.bookRole(c, actorID, gigID, *req.RoleIndex, bookReq{
			UserID:          req.UserID,
			PriceCents:      req.PriceCents,
			ReplaceExisting: req.ReplaceExisting,
			Notes:           req.Notes,
		})
	}

	ctx := c.Request().Context()
	tx, err := h.Gigs.DB().BeginTx(ctx, nil)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "failed to start transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	g, err := h.Gigs.GetForUpdateTx(ctx, tx, gigID)
	if err != nil {
		return repoFailure(c, err, "load gig failed")
	}
	if !g.Owner(actorID) {
		return repoFailure(c, repository.ErrForbidden, "")
	}
	if g.BookedBy != nil {
		if *g.BookedBy == req.UserID {
			return failure(c, http.StatusConflict, "AlreadyBooked", "user is already booked for this gig")
		}
		return failure(c, http.StatusConflict, "AlreadyExists", "gig already has a booking")
	}
	if err := h.Gigs.SetBookedByTx(ctx, tx, gigID, &req.UserID); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "set booking failed")
	}
	if err := h.Gigs.SetStatusTx(ctx, tx, gigID, true, false, true); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "status update failed")
	}
	version, err := h.Gigs.BumpVersionTx(ctx, tx, gigID)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "version bump failed")
	}
	entry := &model.HistoryEntry{
		EntryID:   repository.NewEntryID(gigID, 0, req.UserID, timeNow()),
		GigID:     gigID,
		UserID:    req.UserID,
		UserRole:  model.RoleMusician,
		Status:    model.HistoryBooked,
		GigType:   model.GigTypeRegular,
		ActionBy:  actorID,
		ActionFor: req.UserID,
		Notes:     req.Notes,
		Metadata: repository.Metadata(map[string]interface{}{
			"source":  req.Source,
			"version": version,
		}),
	}
	if err := h.History.AppendTx(ctx, tx, entry); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "history append failed")
	}
	if err := tx.Commit(); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "failed to commit transaction")
	}
	committed = true

	h.Fanout.Notify(req.UserID, queue.NotifyBooked, "You've been booked",
		fmt.Sprintf("You were booked for %q", g.Title),
		"", map[string]interface{}{"gig_id": gigID, "source": req.Source})
	h.Fanout.Notify(actorID, queue.NotifyBookingConfirmed, "Booking confirmed",
		fmt.Sprintf("%s is booked for %q", h.displayName(req.UserID), g.Title),
		"", map[string]interface{}{"gig_id": gigID, "user_id": req.UserID})
	h.Fanout.RecomputeTrust(req.UserID, gigID, "booked")
	h.Fanout.RecomputeTrust(actorID, gigID, "booked")

	return c.JSON(http.StatusCreated, echo.Map{"booked": true, "version": version})
}

func (h *BookingHandler) displayName(userID uint64) string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dir, err := h.Users.Directory(ctx, []uint64{userID})
	if err != nil {
		return "A musician"
	}
	if e, ok := dir[userID]; ok && e.DisplayName != "" {
		return e.DisplayName
	}
	return "A musician"
}

// syncChatMembership keeps the crew conversation's participants in step
// with post-formation bookings and removals.  Best-effort only.
func (h *BookingHandler) syncChatMembership(g *model.Gig, userID uint64, add bool) {
	if h.Chat == nil || !g.HasChat() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var err error
		if add {
			err = h.Chat.AddParticipant(ctx, g.Chat.ConversationID, userID)
		} else {
			err = h.Chat.RemoveParticipant(ctx, g.Chat.ConversationID, userID)
		}
		if err != nil {
			h.Log.Warn("crew chat membership sync failed",
				zap.Uint64("gig_id", g.ID), zap.Uint64("user_id", userID), zap.Error(err))
		}
	}()
}
