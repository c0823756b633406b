package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/yardline/internal/market"
	"github.com/yardline/internal/messaging"
	apperrors "github.com/yardline/pkg/errors"
)

// MessagingService is the slice of the messaging core the HTTP layer
// calls into.
type MessagingService interface {
	SendMessage(ctx context.Context, ref market.SubjectRef, senderID, counterpartID, content string) (*messaging.Message, error)
	AppendToConversation(ctx context.Context, conversationID int64, senderID, content string) (*messaging.Message, error)
	ListMessages(ctx context.Context, conversationID int64, actingUserID string) ([]*messaging.Message, error)
	MarkMessageRead(ctx context.Context, messageID int64, actingUserID string) error
	UnreadCount(ctx context.Context, userID string, conversationID int64) (int, error)
	Summaries(ctx context.Context, userID string) ([]*messaging.ConversationSummary, error)
}

// MessagesHandler handles conversation and message endpoints.
type MessagesHandler struct {
	service MessagingService
}

// NewMessagesHandler creates a new messages handler.
func NewMessagesHandler(service MessagingService) *MessagesHandler {
	return &MessagesHandler{service: service}
}

// SendMessageRequest is the payload for starting or continuing a
// conversation about a subject.
type SendMessageRequest struct {
	To      string `json:"to,omitempty"`
	Content string `json:"content"`
}

// SendMessage handles POST /api/v1/subjects/:kind/:id/messages.
// When "to" is omitted the message goes to the subject's owner.
func (h *MessagesHandler) SendMessage(c echo.Context) error {
	kind := market.SubjectKind(c.Param("kind"))
	if !kind.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown subject kind")
	}

	subjectID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid subject ID")
	}

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	ref := market.SubjectRef{Kind: kind, ID: subjectID}
	msg, err := h.service.SendMessage(c.Request().Context(), ref, UserID(c), req.To, req.Content)
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusCreated, msg)
}

// AppendMessage handles POST /api/v1/conversations/:id/messages for
// replies into an existing conversation.
func (h *MessagesHandler) AppendMessage(c echo.Context) error {
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid conversation ID")
	}

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	msg, err := h.service.AppendToConversation(c.Request().Context(), conversationID, UserID(c), req.Content)
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusCreated, msg)
}

// ListConversations handles GET /api/v1/conversations: the caller's
// inbox, newest activity first.
func (h *MessagesHandler) ListConversations(c echo.Context) error {
	summaries, err := h.service.Summaries(c.Request().Context(), UserID(c))
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversations": summaries,
		"meta": map[string]interface{}{
			"count": len(summaries),
		},
	})
}

// ListMessages handles GET /api/v1/conversations/:id/messages.
func (h *MessagesHandler) ListMessages(c echo.Context) error {
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid conversation ID")
	}

	messages, err := h.service.ListMessages(c.Request().Context(), conversationID, UserID(c))
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
		"meta": map[string]interface{}{
			"conversationId": conversationID,
			"count":          len(messages),
		},
	})
}

// MarkRead handles POST /api/v1/messages/:id/read.
func (h *MessagesHandler) MarkRead(c echo.Context) error {
	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid message ID")
	}

	if err := h.service.MarkMessageRead(c.Request().Context(), messageID, UserID(c)); err != nil {
		return domainError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

// UnreadCount handles GET /api/v1/conversations/unread-count with an
// optional conversation_id query parameter to scope the count.
func (h *MessagesHandler) UnreadCount(c echo.Context) error {
	var conversationID int64
	if raw := c.QueryParam("conversation_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid conversation ID")
		}
		conversationID = parsed
	}

	count, err := h.service.UnreadCount(c.Request().Context(), UserID(c), conversationID)
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"unread": count,
	})
}

// domainError translates the core's error taxonomy into HTTP rejections
// so a client can tell "not your conversation" from "conversation
// doesn't exist".
func domainError(err error) error {
	var app *apperrors.AppError
	if !errors.As(err, &app) {
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	switch app.Code {
	case apperrors.CodeNotFound:
		return echo.NewHTTPError(http.StatusNotFound, app.Message)
	case apperrors.CodeInvalidArgument:
		return echo.NewHTTPError(http.StatusBadRequest, app.Message)
	case apperrors.CodePermissionDenied:
		return echo.NewHTTPError(http.StatusForbidden, app.Message)
	case apperrors.CodeUnauthenticated:
		return echo.NewHTTPError(http.StatusUnauthorized, app.Message)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
}
