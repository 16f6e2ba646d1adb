package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/gighall/crewbook/internal/model"
	"github.com/gighall/crewbook/internal/repository"
	"github.com/gighall/crewbook/internal/service"
)

// GigHandler serves gig CRUD, role editing and the audit trail read.
type GigHandler struct {
	Gigs    *repository.GigRepo
	Roles   *repository.BandRoleRepo
	History *repository.HistoryRepo
	Fanout  *service.Fanout
}

// NewGigHandler constructs a GigHandler and panics if any dependency is nil.
func NewGigHandler(gigs *repository.GigRepo, roles *repository.BandRoleRepo, history *repository.HistoryRepo, fanout *service.Fanout) *GigHandler {
	if gigs == nil || roles == nil || history == nil || fanout == nil {
		panic("nil dependency passed to NewGigHandler")
	}
	return &GigHandler{Gigs: gigs, Roles: roles, History: history, Fanout: fanout}
}

type createRoleReq struct {
	Name          string `json:"name" validate:"required,min=1,max=100"`
	MaxSlots      int    `json:"max_slots" validate:"required,min=1,max=50"`
	MaxApplicants int    `json:"max_applicants" validate:"omitempty,min=1,max=500"`
	PriceCents    uint32 `json:"price_cents"`
	Currency      string `json:"currency" validate:"omitempty,len=3"`
	Negotiable    bool   `json:"negotiable"`
}

type createGigReq struct {
	Title        string          `json:"title" validate:"required,min=1,max=200"`
	Description  string          `json:"description" validate:"max=5000"`
	IsClientBand bool            `json:"is_client_band"`
	Roles        []createRoleReq `json:"roles" validate:"dive"`
}

// Create handles POST /v1/gigs.  Band gigs must declare at least one role;
// roles are stored in request order, which fixes their index for every
// later operation.
func (h *GigHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createGigReq
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.IsClientBand && len(req.Roles) == 0 {
		return failure(c, http.StatusBadRequest, "InvalidBody", "band gig requires at least one role")
	}
	if !req.IsClientBand && len(req.Roles) > 0 {
		return failure(c, http.StatusBadRequest, "InvalidBody", "roles are only valid on band gigs")
	}

	roles := make([]model.BandRole, 0, len(req.Roles))
	for _, rr := range req.Roles {
		currency := strings.ToUpper(strings.TrimSpace(rr.Currency))
		if currency == "" {
			currency = "USD"
		}
		roles = append(roles, model.BandRole{
			Name:          strings.TrimSpace(rr.Name),
			MaxSlots:      rr.MaxSlots,
			MaxApplicants: rr.MaxApplicants,
			PriceCents:    rr.PriceCents,
			Currency:      currency,
			Negotiable:    rr.Negotiable,
		})
	}

	ctx := c.Request().Context()
	g := &model.Gig{
		PostedBy:     userID,
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		IsClientBand: req.IsClientBand,
	}
	gigID, err := h.Gigs.Create(ctx, g, roles)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "create gig failed")
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": gigID})
}

// Get handles GET /v1/gigs/:id, the gig with its role projections.
func (h *GigHandler) Get(c echo.Context) error {
	gigID, err := pathID(c, "id")
	if err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", err.Error())
	}
	ctx := c.Request().Context()
	g, err := h.Gigs.GetByID(ctx, gigID)
	if err != nil {
		return repoFailure(c, err, "load gig failed")
	}
	views, err := h.Roles.ViewsByGig(ctx, gigID)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "load roles failed")
	}
	resp := echo.Map{
		"id":             g.ID,
		"posted_by":      g.PostedBy,
		"title":          g.Title,
		"description":    g.Description,
		"is_client_band": g.IsClientBand,
		"is_taken":       g.IsTaken,
		"is_pending":     g.IsPending,
		"is_active":      g.IsActive,
		"version":        g.Version,
		"roles":          views,
		"created_at":     g.CreatedAt,
	}
	if g.BookedBy != nil {
		resp["booked_by"] = *g.BookedBy
	}
	if g.HasChat() {
		resp["chat"] = echo.Map{
			"conversation_id": g.Chat.ConversationID,
			"client_role":     g.Chat.ClientRole,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// List handles GET /v1/gigs, the public browse listing, served through
// the response cache.
func (h *GigHandler) List(c echo.Context) error {
	limit := 0
	if s := c.QueryParam("limit"); s != "" {
		limit, _ = strconv.Atoi(s)
	}
	items, err := h.Gigs.List(c.Request().Context(), limit)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "load gigs failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

type roleEditReq struct {
	Name          *string `json:"name" validate:"omitempty,min=1,max=100"`
	MaxSlots      *int    `json:"max_slots" validate:"omitempty,min=1,max=50"`
	MaxApplicants *int    `json:"max_applicants" validate:"omitempty,min=1,max=500"`
	IsLocked      *bool   `json:"is_locked"`
	PriceCents    *uint32 `json:"price_cents"`
	Currency      *string `json:"currency" validate:"omitempty,len=3"`
	Negotiable    *bool   `json:"negotiable"`
}

// UpdateRole handles PATCH /v1/gigs/:id/roles/:idx.  Owner-only.  Edits
// are rejected once the ledger is sealed; unbooking first is the way to
// reopen a fully booked gig.
func (h *GigHandler) UpdateRole(c echo.Context) error {
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
	var req roleEditReq
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
	if !agg.Gig.Owner(userID) {
		return repoFailure(c, repository.ErrForbidden, "")
	}
	if !agg.Gig.IsClientBand {
		return repoFailure(c, repository.ErrNotBandGig, "")
	}
	if agg.Ledger.Sealed() {
		return repoFailure(c, repository.ErrSealed, "")
	}
	role, err := agg.Role(roleIdx)
	if err != nil {
		return repoFailure(c, err, "")
	}
	lr, err := agg.Ledger.Role(roleIdx)
	if err != nil {
		return ledgerFailure(c, err)
	}
	// Shrinking below current occupancy would break the capacity invariant.
	if req.MaxSlots != nil && *req.MaxSlots < lr.FilledSlots {
		return failure(c, http.StatusConflict, "InvariantViolation",
			"max_slots cannot be lower than filled_slots")
	}
	if req.MaxApplicants != nil && *req.MaxApplicants < len(lr.Applicants) {
		return failure(c, http.StatusConflict, "InvariantViolation",
			"max_applicants cannot be lower than the current applicant count")
	}

	edit := repository.RoleEdit{
		Name:          req.Name,
		MaxSlots:      req.MaxSlots,
		MaxApplicants: req.MaxApplicants,
		IsLocked:      req.IsLocked,
		PriceCents:    req.PriceCents,
		Negotiable:    req.Negotiable,
	}
	if req.Currency != nil {
		cur := strings.ToUpper(strings.TrimSpace(*req.Currency))
		edit.Currency = &cur
	}
	if err := h.Roles.UpdateRoleTx(ctx, tx, role.ID, edit); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "update role failed")
	}

	version, err := h.Gigs.BumpVersionTx(ctx, tx, gigID)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "version bump failed")
	}
	entry := roleHistoryEntry(agg.Gig, role, model.HistoryUpdated, userID, userID, userRole(c), nil,
		repository.Metadata(map[string]interface{}{"edit": "role", "version": version}))
	if err := h.History.AppendTx(ctx, tx, entry); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "history append failed")
	}
	if err := tx.Commit(); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "failed to commit transaction")
	}
	committed = true
	return c.JSON(http.StatusOK, echo.Map{"version": version})
}

// GetHistory handles GET /v1/gigs/:id/history.  Owner-only audit read.
func (h *GigHandler) GetHistory(c echo.Context) error {
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
	if !g.Owner(userID) {
		return repoFailure(c, repository.ErrForbidden, "")
	}
	limit := 0
	if s := c.QueryParam("limit"); s != "" {
		limit, _ = strconv.Atoi(s)
	}
	items, err := h.History.ListByGig(ctx, gigID, limit)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "load history failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// roleHistoryEntry builds a band-mode history entry for one role-scoped
// transition.
func roleHistoryEntry(g *model.Gig, role *model.BandRole, status string, actionBy, actionFor uint64, actorRole string, notes *string, metadata []byte) *model.HistoryEntry {
	idx := role.Position
	name := role.Name
	return &model.HistoryEntry{
		EntryID:       repository.NewEntryID(g.ID, idx, actionFor, timeNow()),
		GigID:         g.ID,
		UserID:        actionFor,
		UserRole:      actorRole,
		BandRole:      &name,
		BandRoleIndex: &idx,
		Status:        status,
		GigType:       model.GigTypeBand,
		ActionBy:      actionBy,
		ActionFor:     actionFor,
		Notes:         notes,
		Metadata:      metadata,
	}
}
