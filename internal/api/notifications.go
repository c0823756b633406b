package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/yardline/internal/notifications"
)

// NotificationService is the slice of the notification ledger the HTTP
// layer calls into.
type NotificationService interface {
	List(ctx context.Context, recipientID string, limit int) ([]*notifications.Notification, error)
	CountsFor(ctx context.Context, recipientID string) (*notifications.Counts, error)
	MarkRead(ctx context.Context, id int64, actingUserID string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

// NotificationsHandler handles notification endpoints.
type NotificationsHandler struct {
	service NotificationService
}

// NewNotificationsHandler creates a new notifications handler.
func NewNotificationsHandler(service NotificationService) *NotificationsHandler {
	return &NotificationsHandler{service: service}
}

// List handles GET /api/v1/notifications, newest first.
func (h *NotificationsHandler) List(c echo.Context) error {
	limit := 50
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	items, err := h.service.List(c.Request().Context(), UserID(c), limit)
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"notifications": items,
		"meta": map[string]interface{}{
			"count": len(items),
			"limit": limit,
		},
	})
}

// Counts handles GET /api/v1/notifications/counts.
func (h *NotificationsHandler) Counts(c echo.Context) error {
	counts, err := h.service.CountsFor(c.Request().Context(), UserID(c))
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, counts)
}

// MarkRead handles POST /api/v1/notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID")
	}

	if err := h.service.MarkRead(c.Request().Context(), id, UserID(c)); err != nil {
		return domainError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

// MarkAllRead handles POST /api/v1/notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(c echo.Context) error {
	affected, err := h.service.MarkAllRead(c.Request().Context(), UserID(c))
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"marked": affected,
	})
}
