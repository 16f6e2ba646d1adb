package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/gighall/crewbook/internal/repository"
)

// NotificationHandler exposes the delivered-notification inbox.
type NotificationHandler struct {
	Notifications *repository.NotificationRepo
}

// NewNotificationHandler returns a NotificationHandler.
func NewNotificationHandler(n *repository.NotificationRepo) *NotificationHandler {
	if n == nil {
		panic("nil repository passed to NewNotificationHandler")
	}
	return &NotificationHandler{Notifications: n}
}

// ListMine handles GET /v1/me/notifications.
func (h *NotificationHandler) ListMine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	items, err := h.Notifications.ListByUser(c.Request().Context(), userID, limit)
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Internal", "load notifications failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
