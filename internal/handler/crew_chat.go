package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/gighall/crewbook/internal/crew"
	"github.com/gighall/crewbook/internal/messaging"
	"github.com/gighall/crewbook/internal/model"
	"github.com/gighall/crewbook/internal/queue"
	"github.com/gighall/crewbook/internal/repository"
	"github.com/gighall/crewbook/internal/service"
)

// CrewChatHandler serves the crew formation gate: the eligibility check,
// the combined seal-and-create transition, membership maintenance and the
// chat reads.  The messaging collaborator owns the conversation itself;
// the gig only keeps a weak reference plus governance settings.
type CrewChatHandler struct {
	Gigs    *repository.GigRepo
	History *repository.HistoryRepo
	Fanout  *service.Fanout
	Chat    *messaging.Client // nil when no messaging service is configured
	Log     *zap.Logger
}

// NewCrewChatHandler constructs a CrewChatHandler.  Chat may be nil, in
// which case formation reports the messaging service as unavailable.
func NewCrewChatHandler(gigs *repository.GigRepo, history *repository.HistoryRepo, fanout *service.Fanout, chat *messaging.Client, log *zap.Logger) *CrewChatHandler {
	if gigs == nil || history == nil || fanout == nil || log == nil {
		panic("nil dependency passed to NewCrewChatHandler")
	}
	return &CrewChatHandler{Gigs: gigs, History: history, Fanout: fanout, Chat: chat, Log: log}
}

// Eligibility handles GET /v1/gigs/:id/crew-chat/eligibility, the
// read-only precondition check, returning a structured verdict.
func (h *CrewChatHandler) Eligibility(c echo.Context) error {
	actorID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	gigID, err := pathID(c, "id")
	if err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", err.Error())
	}
	agg, err := h.Gigs.Load(c.Request().Context(), gigID)
	if err != nil {
		return repoFailure(c, err, "load gig failed")
	}
	return c.JSON(http.StatusOK, crew.Evaluate(agg.Gig, agg.Ledger, actorID))
}

type createChatReq struct {
	ClientRole string `json:"client_role" validate:"omitempty,oneof=admin member"`
}

// Create handles POST /v1/gigs/:id/crew-chat, the crew-sealing
// transition.  A second call with an existing conversation is the
// idempotent re-entry: it only rewrites governance settings and never
// creates another conversation.
func (h *CrewChatHandler) Create(c echo.Context) error {
	actorID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	gigID, err := pathID(c, "id")
	if err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", err.Error())
	}
	var req createChatReq
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	clientRole := crew.NormalizeClientRole(req.ClientRole)
	perms := model.DefaultChatPermissions(clientRole)

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

	// Idempotent re-entry: the conversation exists, only settings change.
	if agg.Gig.HasChat() {
		if err := h.Gigs.UpdateChatSettingsTx(ctx, tx, gigID, clientRole, perms); err != nil {
			return failure(c, http.StatusInternalServerError, "Internal", "update settings failed")
		}
		version, err := h.Gigs.BumpVersionTx(ctx, tx, gigID)
		if err != nil {
			return failure(c, http.StatusInternalServerError, "Internal", "version bump failed")
		}
		entry := &model.HistoryEntry{
			EntryID:   repository.NewEntryID(gigID, 0, actorID, timeNow()),
			GigID:     gigID,
			UserID:    actorID,
			UserRole:  model.RoleClient,
			Status:    model.HistoryUpdated,
			GigType:   model.GigTypeBand,
			ActionBy:  actorID,
			ActionFor: actorID,
			Metadata: repository.Metadata(map[string]interface{}{
				"edit":        "crew_chat_settings",
				"client_role": clientRole,
				"version":     version,
			}),
		}
		if err := h.History.AppendTx(ctx, tx, entry); err != nil {
			return failure(c, http.StatusInternalServerError, "Internal", "history append failed")
		}
		if err := tx.Commit(); err != nil {
			return failure(c, http.StatusInternalServerError, "Internal", "failed to commit transaction")
		}
		committed = true
		return c.JSON(http.StatusOK, echo.Map{
			"conversation_id": agg.Gig.Chat.ConversationID,
			"client_role":     clientRole,
			"created":         false,
			"version":         version,
		})
	}

	verdict := crew.Evaluate(agg.Gig, agg.Ledger, actorID)
	if !verdict.CanCreate {
		return c.JSON(http.StatusConflict, verdict)
	}
	if h.Chat == nil {
		return failure(c, http.StatusServiceUnavailable, "Unavailable", "messaging service is not configured")
	}

	if !agg.Gig.IsTaken {
		if err := h.Gigs.SetStatusTx(ctx, tx, gigID, true, false, true); err != nil {
			return failure(c, http.StatusInternalServerError, "Internal", "seal failed")
		}
	}

	participants := crew.Participants(agg.Gig, agg.Ledger)
	conversationID, err := h.Chat.CreateGroupConversation(ctx, participants, agg.Gig.Title)
	if err != nil {
		// The transaction rolls back, so a failed conversation leaves the
		// gig unsealed in storage and formation can be retried.
		h.Log.Error("crew conversation creation failed",
			zap.Uint64("gig_id", gigID), zap.Error(err))
		return failure(c, http.StatusBadGateway, "Unavailable", "messaging service rejected conversation creation")
	}

	chat := &model.CrewChat{
		ConversationID: conversationID,
		ClientRole:     clientRole,
		Permissions:    perms,
		CreatedAt:      timeNow(),
	}
	if err := h.Gigs.SetChatTx(ctx, tx, gigID, chat); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "store chat reference failed")
	}
	version, err := h.Gigs.BumpVersionTx(ctx, tx, gigID)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "version bump failed")
	}
	entry := &model.HistoryEntry{
		EntryID:   repository.NewEntryID(gigID, 0, actorID, timeNow()),
		GigID:     gigID,
		UserID:    actorID,
		UserRole:  model.RoleClient,
		Status:    model.HistoryConfirmed,
		GigType:   model.GigTypeBand,
		ActionBy:  actorID,
		ActionFor: actorID,
		Metadata: repository.Metadata(map[string]interface{}{
			"conversation_id": conversationID,
			"client_role":     clientRole,
			"participants":    participants,
			"version":         version,
		}),
	}
	if err := h.History.AppendTx(ctx, tx, entry); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "history append failed")
	}
	if err := tx.Commit(); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "failed to commit transaction")
	}
	committed = true

	go func() {
		bg, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Chat.PostSystemMessage(bg, conversationID,
			fmt.Sprintf("Crew formed for %q. Welcome aboard!", agg.Gig.Title)); err != nil {
			h.Log.Warn("crew system message failed",
				zap.Uint64("gig_id", gigID), zap.Error(err))
		}
	}()
	for _, uid := range participants {
		if uid == actorID {
			continue
		}
		h.Fanout.Notify(uid, queue.NotifyCrewChatCreated, "Crew chat created",
			fmt.Sprintf("The crew for %q is complete; a group chat has been created", agg.Gig.Title),
			"", map[string]interface{}{"gig_id": gigID, "conversation_id": conversationID})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"conversation_id": conversationID,
		"client_role":     clientRole,
		"participants":    participants,
		"created":         true,
		"version":         version,
	})
}

type chatMemberReq struct {
	UserID uint64 `json:"user_id" validate:"required,min=1"`
}

// AddMember handles POST /v1/gigs/:id/crew-chat/members.
func (h *CrewChatHandler) AddMember(c echo.Context) error {
	actorID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	gigID, err := pathID(c, "id")
	if err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", err.Error())
	}
	var req chatMemberReq
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	g, err := h.Gigs.GetByID(ctx, gigID)
	if err != nil {
		return repoFailure(c, err, "load gig failed")
	}
	if !g.Owner(actorID) {
		return repoFailure(c, repository.ErrForbidden, "")
	}
	if !g.HasChat() {
		return repoFailure(c, repository.ErrChatMissing, "")
	}
	if h.Chat == nil {
		return failure(c, http.StatusServiceUnavailable, "Unavailable", "messaging service is not configured")
	}
	if err := h.Chat.AddParticipant(ctx, g.Chat.ConversationID, req.UserID); err != nil {
		return failure(c, http.StatusBadGateway, "Unavailable", "messaging service rejected the membership change")
	}
	return c.JSON(http.StatusOK, echo.Map{"added": true})
}

// RemoveMember handles DELETE /v1/gigs/:id/crew-chat/members/:userID.
// The gig creator can never be removed from their own crew chat.
func (h *CrewChatHandler) RemoveMember(c echo.Context) error {
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
	g, err := h.Gigs.GetByID(ctx, gigID)
	if err != nil {
		return repoFailure(c, err, "load gig failed")
	}
	if !g.Owner(actorID) {
		return repoFailure(c, repository.ErrForbidden, "")
	}
	if !g.HasChat() {
		return repoFailure(c, repository.ErrChatMissing, "")
	}
	if targetID == g.PostedBy {
		return repoFailure(c, repository.ErrCannotRemoveCreator, "")
	}
	if h.Chat == nil {
		return failure(c, http.StatusServiceUnavailable, "Unavailable", "messaging service is not configured")
	}
	if err := h.Chat.RemoveParticipant(ctx, g.Chat.ConversationID, targetID); err != nil {
		return failure(c, http.StatusBadGateway, "Unavailable", "messaging service rejected the membership change")
	}
	return c.JSON(http.StatusOK, echo.Map{"removed": true})
}

type chatSettingsReq struct {
	ClientRole  string                 `json:"client_role" validate:"omitempty,oneof=admin member"`
	Permissions *model.ChatPermissions `json:"permissions"`
}

// UpdateSettings handles PATCH /v1/gigs/:id/crew-chat/settings.  With no
// explicit permissions the matrix is re-derived from the client role.
func (h *CrewChatHandler) UpdateSettings(c echo.Context) error {
	actorID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	gigID, err := pathID(c, "id")
	if err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", err.Error())
	}
	var req chatSettingsReq
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
	if !g.HasChat() {
		return repoFailure(c, repository.ErrChatMissing, "")
	}
	clientRole := g.Chat.ClientRole
	if req.ClientRole != "" {
		clientRole = crew.NormalizeClientRole(req.ClientRole)
	}
	perms := model.DefaultChatPermissions(clientRole)
	if req.Permissions != nil {
		perms = *req.Permissions
	}
	if err := h.Gigs.UpdateChatSettingsTx(ctx, tx, gigID, clientRole, perms); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "update settings failed")
	}
	version, err := h.Gigs.BumpVersionTx(ctx, tx, gigID)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "version bump failed")
	}
	entry := &model.HistoryEntry{
		EntryID:   repository.NewEntryID(gigID, 0, actorID, timeNow()),
		GigID:     gigID,
		UserID:    actorID,
		UserRole:  model.RoleClient,
		Status:    model.HistoryUpdated,
		GigType:   gigType(g),
		ActionBy:  actorID,
		ActionFor: actorID,
		Metadata: repository.Metadata(map[string]interface{}{
			"edit":        "crew_chat_settings",
			"client_role": clientRole,
			"version":     version,
		}),
	}
	if err := h.History.AppendTx(ctx, tx, entry); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "history append failed")
	}
	if err := tx.Commit(); err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "failed to commit transaction")
	}
	committed = true

	return c.JSON(http.StatusOK, echo.Map{
		"client_role": clientRole,
		"permissions": perms,
		"version":     version,
	})
}

// Get handles GET /v1/gigs/:id/crew-chat.  Visible to the owner and every
// booked crew member.
func (h *CrewChatHandler) Get(c echo.Context) error {
	actorID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	gigID, err := pathID(c, "id")
	if err != nil {
		return failure(c, http.StatusBadRequest, "InvalidBody", err.Error())
	}
	agg, err := h.Gigs.Load(c.Request().Context(), gigID)
	if err != nil {
		return repoFailure(c, err, "load gig failed")
	}
	if !agg.Gig.HasChat() {
		return repoFailure(c, repository.ErrChatMissing, "")
	}
	participant := false
	for _, uid := range crew.Participants(agg.Gig, agg.Ledger) {
		if uid == actorID {
			participant = true
			break
		}
	}
	if !participant {
		return repoFailure(c, repository.ErrForbidden, "")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"conversation_id": agg.Gig.Chat.ConversationID,
		"client_role":     agg.Gig.Chat.ClientRole,
		"permissions":     agg.Gig.Chat.Permissions,
		"created_at":      agg.Gig.Chat.CreatedAt,
		"participants":    crew.Participants(agg.Gig, agg.Ledger),
	})
}

// ListMine handles GET /v1/me/crew-chats.
func (h *CrewChatHandler) ListMine(c echo.Context) error {
	actorID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	refs, err := h.Gigs.ListWithChatByUser(c.Request().Context(), actorID)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "load crew chats failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"items": refs})
}
