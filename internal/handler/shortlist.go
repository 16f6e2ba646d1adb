package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gighall/crewbook/internal/model"
	"github.com/gighall/crewbook/internal/queue"
	"github.com/gighall/crewbook/internal/repository"
	"github.com/gighall/crewbook/internal/service"
)

// ShortlistHandler serves the client's triage list and the generic
// interest pool.  Shortlisting never touches role capacity; a shortlisted
// musician still has to go through the booking engine to claim a slot.
type ShortlistHandler struct {
	Gigs      *repository.GigRepo
	Shortlist *repository.ShortlistRepo
	History   *repository.HistoryRepo
	Fanout    *service.Fanout
}

// NewShortlistHandler constructs a ShortlistHandler.
func NewShortlistHandler(gigs *repository.GigRepo, shortlist *repository.ShortlistRepo, history *repository.HistoryRepo, fanout *service.Fanout) *ShortlistHandler {
	if gigs == nil || shortlist == nil || history == nil || fanout == nil {
		panic("nil dependency passed to NewShortlistHandler")
	}
	return &ShortlistHandler{Gigs: gigs, Shortlist: shortlist, History: history, Fanout: fanout}
}

type shortlistReq struct {
	UserID       uint64  `json:"user_id" validate:"required,min=1"`
	RolePosition *int    `json:"role_position" validate:"omitempty,min=0"`
	Notes        *string `json:"notes" validate:"omitempty,max=1000"`
}

// Add handles POST /v1/gigs/:id/shortlist.  Idempotent upsert keyed by
// user; the user also leaves the generic interest pool.  The audit entry
// is appended only when a new row was created, so repeating the call does
// not grow the history.
func (h *ShortlistHandler) Add(c echo.Context) error {
	actorID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	gigID, err := pathID(c, "id")
	if err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", err.Error())
	}
	var req shortlistReq
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

	g, err := h.Gigs.GetForUpdateTx(ctx, tx, gigID)
	if err != nil {
		return repoFailure(c, err, "load gig failed")
	}
	if !g.Owner(actorID) {
		return repoFailure(c, repository.ErrForbidden, "")
	}
	created, err := h.Shortlist.UpsertTx(ctx, tx, gigID, req.UserID, req.RolePosition, req.Notes)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "shortlist upsert failed")
	}
	if err := h.Shortlist.RemoveInterestTx(ctx, tx, gigID, req.UserID); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "interest cleanup failed")
	}
	version := g.Version
	if created {
		version, err = h.Gigs.BumpVersionTx(ctx, tx, gigID)
		if err != nil {
			return failure(c, http.StatusInternalServerError, "Internal", "version bump failed")
		}
		roleIdx := 0
		if req.RolePosition != nil {
			roleIdx = *req.RolePosition
		}
		entry := &model.HistoryEntry{
			EntryID:       repository.NewEntryID(gigID, roleIdx, req.UserID, timeNow()),
			GigID:         gigID,
			UserID:        req.UserID,
			UserRole:      model.RoleMusician,
			BandRoleIndex: req.RolePosition,
			Status:        model.HistoryShortlisted,
			GigType:       gigType(g),
			ActionBy:      actorID,
			ActionFor:     req.UserID,
			Notes:         req.Notes,
			Metadata:      repository.Metadata(map[string]interface{}{"version": version}),
		}
		if err := h.History.AppendTx(ctx, tx, entry); err != nil {
			return failure(c, http.StatusInternalServerError, "Internal", "history append failed")
		}
	}
	if err := tx.Commit(); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "failed to commit transaction")
	}
	committed = true

	if created {
		h.Fanout.Notify(req.UserID, queue.NotifyShortlisted, "You've been shortlisted",
			fmt.Sprintf("You were shortlisted for %q", g.Title),
			"", map[string]interface{}{"gig_id": gigID})
	}
	return c.JSON(http.StatusOK, echo.Map{"shortlisted": true, "created": created})
}

// Remove handles DELETE /v1/gigs/:id/shortlist/:userID.  Idempotent; a
// missing entry is still a successful delete.
func (h *ShortlistHandler) Remove(c echo.Context) error {
	actorID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	gigID, err := pathID(c, "id")
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

	g, err := h.Gigs.GetForUpdateTx(ctx, tx, gigID)
	if err != nil {
		return repoFailure(c, err, "load gig failed")
	}
	if !g.Owner(actorID) {
		return repoFailure(c, repository.ErrForbidden, "")
	}
	existed, err := h.Shortlist.DeleteTx(ctx, tx, gigID, targetID)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "shortlist delete failed")
	}
	if existed {
		version, err := h.Gigs.BumpVersionTx(ctx, tx, gigID)
		if err != nil {
			return failure(c, http.StatusInternalServerError, "Internal", "version bump failed")
		}
		entry := &model.HistoryEntry{
			EntryID:   repository.NewEntryID(gigID, 0, targetID, timeNow()),
			GigID:     gigID,
			UserID:    targetID,
			UserRole:  model.RoleMusician,
			Status:    model.HistoryRejected,
			GigType:   gigType(g),
			ActionBy:  actorID,
			ActionFor: targetID,
			Metadata:  repository.Metadata(map[string]interface{}{"shortlist": "removed", "version": version}),
		}
		if err := h.History.AppendTx(ctx, tx, entry); err != nil {
			return failure(c, http.StatusInternalServerError, "Internal", "history append failed")
		}
	}
	if err := tx.Commit(); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "failed to commit transaction")
	}
	committed = true
	return c.JSON(http.StatusOK, echo.Map{"removed": existed})
}

// List handles GET /v1/gigs/:id/shortlist.  Owner-only.
func (h *ShortlistHandler) List(c echo.Context) error {
	actorID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	gigID, err := pathID(c, "id")
	if err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", err.Error())
	}
	ctx := c.Request().Context()
	g, err := h.Gigs.GetByID(ctx, gigID)
	if err != nil {
		return repoFailure(c, err, "load gig failed")
	}
	if !g.Owner(actorID) {
		return repoFailure(c, repository.ErrForbidden, "")
	}
	entries, err := h.Shortlist.ListByGig(ctx, gigID)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "load shortlist failed")
	}
	items := make([]echo.Map, 0, len(entries))
	for _, e := range entries {
		item := echo.Map{
			"user_id":        e.UserID,
			"shortlisted_at": e.ShortlistedAt,
		}
		if e.RolePosition != nil {
			item["role_position"] = *e.RolePosition
		}
		if e.Notes != nil {
			item["notes"] = *e.Notes
		}
		items = append(items, item)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// RegisterInterest handles POST /v1/gigs/:id/interest, where a musician joins
// the generic pool without targeting a role.  Duplicate interest is a
// no-op.
func (h *ShortlistHandler) RegisterInterest(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	gigID, err := pathID(c, "id")
	if err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", err.Error())
	}
	ctx := c.Request().Context()
	g, err := h.Gigs.GetByID(ctx, gigID)
	if err != nil {
		return repoFailure(c, err, "load gig failed")
	}
	if g.Owner(userID) {
		return failure(c, http.StatusConflict, "InvalidState", "gig owner cannot register interest")
	}
	if err := h.Shortlist.AddInterest(ctx, gigID, userID); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "register interest failed")
	}
	h.Fanout.Notify(g.PostedBy, queue.NotifyNewApplicant, "New interest",
		"A musician registered interest in your gig",
		"", map[string]interface{}{"gig_id": gigID, "user_id": userID})
	return c.JSON(http.StatusOK, echo.Map{"interested": true})
}

// gigType maps the band-mode flag onto the history gig_type enum.
func gigType(g *model.Gig) string {
	if g.IsClientBand {
		return model.GigTypeBand
	}
	return model.GigTypeRegular
}
