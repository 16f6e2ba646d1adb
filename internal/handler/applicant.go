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

// ApplicantHandler serves the applicant queue operations: apply, withdraw
// and owner-initiated removal.  Every write runs one transaction against
// the locked gig row; the in-memory ledger validates the transition before
// any row is touched.
type ApplicantHandler struct {
	Gigs    *repository.GigRepo
	Roles   *repository.BandRoleRepo
	History *repository.HistoryRepo
	Users   *repository.UserRepo
	Fanout  *service.Fanout
	Chat    *messaging.Client // nil when no messaging service is configured
	Log     *zap.Logger
}

// NewApplicantHandler constructs an ApplicantHandler.  Chat may be nil.
func NewApplicantHandler(gigs *repository.GigRepo, roles *repository.BandRoleRepo, history *repository.HistoryRepo, users *repository.UserRepo, fanout *service.Fanout, chat *messaging.Client, log *zap.Logger) *ApplicantHandler {
	if gigs == nil || roles == nil || history == nil || users == nil || fanout == nil || log == nil {
		panic("nil dependency passed to NewApplicantHandler")
	}
	return &ApplicantHandler{Gigs: gigs, Roles: roles, History: history, Users: users, Fanout: fanout, Chat: chat, Log: log}
}

type applyReq struct {
	Notes *string `json:"notes" validate:"omitempty,max=1000"`
}

// Apply handles POST /v1/gigs/:id/roles/:idx/applications.  Musician-only.
func (h *ApplicantHandler) Apply(c echo.Context) error {
	userID, err := getUserID(c)
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
	var req applyReq
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
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
	if !agg.Gig.IsClientBand {
		return repoFailure(c, repository.ErrNotBandGig, "")
	}
	if agg.Gig.Owner(userID) {
		return failure(c, http.StatusConflict, "InvalidState", "gig owner cannot apply to own gig")
	}
	role, err := agg.Role(roleIdx)
	if err != nil {
		return repoFailure(c, err, "")
	}
	if err := agg.Ledger.Apply(roleIdx, ledger.AddApplicant{UserID: userID}); err != nil {
		return ledgerFailure(c, err)
	}
	if err := h.Roles.InsertMemberTx(ctx, tx, gigID, role.ID, userID, model.MemberApplicant, req.Notes); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "insert applicant failed")
	}
	version, err := h.Gigs.BumpVersionTx(ctx, tx, gigID)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "version bump failed")
	}
	lr, _ := agg.Ledger.Role(roleIdx)
	entry := roleHistoryEntry(agg.Gig, role, model.HistoryApplied, userID, userID, userRole(c), req.Notes,
		repository.Metadata(map[string]interface{}{
			"applicant_count": len(lr.Applicants),
			"applicant_cap":   lr.ApplicantCap(),
			"version":         version,
		}))
	if err := h.History.AppendTx(ctx, tx, entry); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "history append failed")
	}
	if err := tx.Commit(); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "failed to commit transaction")
	}
	committed = true

	h.Fanout.Notify(agg.Gig.PostedBy, queue.NotifyNewApplicant, "New applicant",
		fmt.Sprintf("%s applied for %s (%d/%d applicants)",
			h.displayName(userID), role.Name, len(lr.Applicants), lr.ApplicantCap()),
		"", map[string]interface{}{"gig_id": gigID, "role_index": roleIdx, "user_id": userID})

	return c.JSON(http.StatusCreated, echo.Map{
		"applied":         true,
		"applicant_count": len(lr.Applicants),
		"version":         version,
	})
}

// Withdraw handles DELETE /v1/gigs/:id/roles/:idx/applications.  Covers
// both the plain applicant case and the booked case; withdrawing a booked
// member frees the slot and unseals the gig.
func (h *ApplicantHandler) Withdraw(c echo.Context) error {
	userID, err := getUserID(c)
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
	wasBooked := lr.HasBooked(userID)

	if wasBooked {
		if err := agg.Ledger.Apply(roleIdx, ledger.Unbook{UserID: userID}); err != nil {
			return ledgerFailure(c, err)
		}
	} else {
		if err := agg.Ledger.Apply(roleIdx, ledger.RemoveApplicant{UserID: userID}); err != nil {
			return ledgerFailure(c, err)
		}
	}
	if err := h.Roles.DeleteMemberTx(ctx, tx, role.ID, userID); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "remove membership failed")
	}

	lr, _ = agg.Ledger.Role(roleIdx)
	if wasBooked {
		bookedPrice := role.BookedPriceCents
		if lr.FilledSlots == 0 {
			bookedPrice = nil
		}
		if err := h.Roles.SaveCountersTx(ctx, tx, role.ID, lr.FilledSlots, bookedPrice); err != nil {
			return failure(c, http.StatusInternalServerError, "Internal", "save counters failed")
		}
		// A freed slot always reopens recruitment.
		if err := h.Gigs.SetStatusTx(ctx, tx, gigID, false, false, true); err != nil {
			return failure(c, http.StatusInternalServerError, "Internal", "unseal failed")
		}
	}

	version, err := h.Gigs.BumpVersionTx(ctx, tx, gigID)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "version bump failed")
	}
	entry := roleHistoryEntry(agg.Gig, role, model.HistoryCancelled, userID, userID, userRole(c), nil,
		repository.Metadata(map[string]interface{}{
			"wasBooked": wasBooked,
			"openSlots": lr.AvailableSlots(),
			"version":   version,
		}))
	if err := h.History.AppendTx(ctx, tx, entry); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "history append failed")
	}
	if err := tx.Commit(); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "failed to commit transaction")
	}
	committed = true

	if wasBooked {
		h.Fanout.Notify(agg.Gig.PostedBy, queue.NotifySlotOpened, "Booking withdrawn",
			fmt.Sprintf("%s withdrew from %s; %d slot(s) now open",
				h.displayName(userID), role.Name, lr.AvailableSlots()),
			"", map[string]interface{}{"gig_id": gigID, "role_index": roleIdx, "user_id": userID})
		h.Fanout.RecomputeTrust(userID, gigID, "withdraw_booked")
		h.syncChatRemove(agg.Gig, userID)
	} else {
		h.Fanout.Notify(agg.Gig.PostedBy, queue.NotifyApplicantLeft, "Applicant withdrew",
			fmt.Sprintf("%s removed their interest in %s", h.displayName(userID), role.Name),
			"", map[string]interface{}{"gig_id": gigID, "role_index": roleIdx, "user_id": userID})
	}

	return c.JSON(http.StatusOK, echo.Map{"withdrawn": true, "was_booked": wasBooked, "version": version})
}

// RemoveApplicant handles DELETE /v1/gigs/:id/roles/:idx/applicants/:userID.
// Owner-initiated rejection of a pending applicant; booked members must go
// through the booking engine instead.
func (h *ApplicantHandler) RemoveApplicant(c echo.Context) error {
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
	if err := agg.Ledger.Apply(roleIdx, ledger.RemoveApplicant{UserID: targetID}); err != nil {
		return ledgerFailure(c, err)
	}
	if err := h.Roles.DeleteMemberTx(ctx, tx, role.ID, targetID); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "remove membership failed")
	}
	version, err := h.Gigs.BumpVersionTx(ctx, tx, gigID)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "version bump failed")
	}
	entry := roleHistoryEntry(agg.Gig, role, model.HistoryRejected, actorID, targetID, model.RoleMusician, nil,
		repository.Metadata(map[string]interface{}{"version": version}))
	if err := h.History.AppendTx(ctx, tx, entry); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "history append failed")
	}
	if err := tx.Commit(); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "failed to commit transaction")
	}
	committed = true

	h.Fanout.Notify(targetID, queue.NotifyApplicantRemoved, "Application not selected",
		fmt.Sprintf("Your application for %s was not selected", role.Name),
		"", map[string]interface{}{"gig_id": gigID, "role_index": roleIdx})

	return c.JSON(http.StatusOK, echo.Map{"removed": true, "version": version})
}

// displayName resolves a user's public name for notification text, falling
// back to a neutral label when the directory read fails.
func (h *ApplicantHandler) displayName(userID uint64) string {
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

// syncChatRemove drops a user from the crew conversation after a booked
// member leaves post-formation.  Failures never reach the caller.
func (h *ApplicantHandler) syncChatRemove(g *model.Gig, userID uint64) {
	if h.Chat == nil || !g.HasChat() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Chat.RemoveParticipant(ctx, g.Chat.ConversationID, userID); err != nil {
			h.Log.Warn("crew chat membership sync failed",
				zap.Uint64("gig_id", g.ID), zap.Uint64("user_id", userID), zap.Error(err))
		}
	}()
}
