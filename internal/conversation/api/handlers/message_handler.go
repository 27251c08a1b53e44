package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"conversation_sync_service/internal/conversation/app"
	"conversation_sync_service/internal/conversation/domain"
	"conversation_sync_service/internal/conversation/repository"
	"conversation_sync_service/pkg/middlewares"
)

// MessageHandler REST surface for messages, unread counts and share links
type MessageHandler struct {
	MsgUC       *app.MessageUseCase
	ShareUC     *app.ShareUseCase
	ArchiveRepo repository.ArchiveRepository
}

type sendMessageRequest struct {
	Content     string           `json:"content"`
	MessageType string           `json:"message_type"`
	Metadata    *domain.Metadata `json:"metadata"`
	// AsOrganization send on behalf of the viewer's organization
	AsOrganization bool `json:"as_organization"`
}

// SendMessage post a message into a conversation
func (h *MessageHandler) SendMessage(c *fiber.Ctx) error {
	userID := c.Locals(middlewares.TokenUserID).(string)

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	messageType := domain.MessageType(req.MessageType)
	if req.MessageType == "" {
		messageType = domain.MessageText
	}
	metadata := domain.Metadata{}
	if req.Metadata != nil {
		metadata = *req.Metadata
	}

	conversationID := c.Params("id")
	var msg *domain.Message
	var err error
	if req.AsOrganization {
		orgID, ok := c.Locals(middlewares.TokenOrgID).(string)
		if !ok || orgID == "" {
			return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "no organization in token"})
		}
		msg, err = h.MsgUC.SendOrganizationMessage(c.Context(), conversationID, orgID, req.Content, messageType, metadata)
	} else {
		msg, err = h.MsgUC.SendMessage(c.Context(), conversationID, userID, req.Content, messageType, metadata)
	}
	if err != nil {
		return statusError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(msg)
}

// GetMessages one page of messages, newest first. Paging uses the
// before_date/before_seq cursor of the last row of the previous page.
func (h *MessageHandler) GetMessages(c *fiber.Ctx) error {
	filter := domain.MessageFilter{
		ConversationID: c.Params("id"),
		Limit:          c.QueryInt("limit", 50),
	}

	if raw := c.Query("before_date"); raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid before_date"})
		}
		filter.BeforeDate = &at

		seq, err := strconv.ParseInt(c.Query("before_seq", "0"), 10, 64)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid before_seq"})
		}
		filter.BeforeSeq = &seq
	}
	if raw := c.Query("after_date"); raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid after_date"})
		}
		filter.AfterDate = &at
	}

	rows, err := h.MsgUC.GetMessages(c.Context(), filter)
	if err != nil {
		return statusError(c, err)
	}
	return c.JSON(fiber.Map{"messages": rows})
}

type editMessageRequest struct {
	Content string `json:"content"`
}

// EditMessage sender-only content edit
func (h *MessageHandler) EditMessage(c *fiber.Ctx) error {
	userID := c.Locals(middlewares.TokenUserID).(string)

	var req editMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	msg, err := h.MsgUC.EditMessage(c.Context(), c.Params("id"), userID, req.Content)
	if err != nil {
		return statusError(c, err)
	}
	return c.JSON(msg)
}

// DeleteMessage sender-only soft delete
func (h *MessageHandler) DeleteMessage(c *fiber.Ctx) error {
	userID := c.Locals(middlewares.TokenUserID).(string)

	if _, err := h.MsgUC.DeleteMessage(c.Context(), c.Params("id"), userID); err != nil {
		return statusError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// GetUnreadCount aggregate unread counts for the viewer
func (h *MessageHandler) GetUnreadCount(c *fiber.Ctx) error {
	userID := c.Locals(middlewares.TokenUserID).(string)

	count, err := h.MsgUC.GetUnreadCount(c.Context(), userID)
	if err != nil {
		return statusError(c, err)
	}
	return c.JSON(count)
}

// GetArchivedCount how many messages of a conversation the retention sweep
// has moved to cold storage
func (h *MessageHandler) GetArchivedCount(c *fiber.Ctx) error {
	count, err := h.ArchiveRepo.CountForConversation(c.Context(), c.Params("id"))
	if err != nil {
		return statusError(c, err)
	}
	return c.JSON(fiber.Map{"archived": count})
}

// GetShareLink presigned download link for a resource-share message
func (h *MessageHandler) GetShareLink(c *fiber.Ctx) error {
	userID := c.Locals(middlewares.TokenUserID).(string)

	url, err := h.ShareUC.ResolveShareLink(c.Context(), c.Params("id"), userID)
	if err != nil {
		return statusError(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}
