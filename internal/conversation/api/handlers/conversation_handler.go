package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"conversation_sync_service/internal/conversation/app"
	"conversation_sync_service/internal/conversation/domain"
	"conversation_sync_service/pkg/middlewares"
)

// ConversationHandler REST surface for conversations and participants
type ConversationHandler struct {
	ConvUC *app.ConversationUseCase
}

type createConversationRequest struct {
	IsGroup        bool     `json:"is_group"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	OrganizationID *string  `json:"organization_id"`
	AutoDeleteDays *int     `json:"auto_delete_days"`
	MemberIDs      []string `json:"member_ids"`
	// PeerID direct-conversation target; used when IsGroup is false
	PeerID string `json:"peer_id"`
}

// CreateConversation create a group, or find-or-create the direct
// conversation with peer_id
func (h *ConversationHandler) CreateConversation(c *fiber.Ctx) error {
	userID := c.Locals(middlewares.TokenUserID).(string)

	var req createConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	if !req.IsGroup {
		if req.PeerID == "" {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "peer_id is required"})
		}
		conv, err := h.ConvUC.FindOrCreateDirect(c.Context(), userID, req.PeerID)
		if err != nil {
			return statusError(c, err)
		}
		return c.JSON(conv)
	}

	conv, err := h.ConvUC.CreateGroup(c.Context(), req.Name, req.Description,
		req.OrganizationID, req.AutoDeleteDays, userID, req.MemberIDs)
	if err != nil {
		return statusError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(conv)
}

// ListConversations the viewer's conversation list with participants, last
// message and unread counts
func (h *ConversationHandler) ListConversations(c *fiber.Ctx) error {
	userID := c.Locals(middlewares.TokenUserID).(string)

	var organizationID *string
	if orgID, ok := c.Locals(middlewares.TokenOrgID).(string); ok && orgID != "" {
		organizationID = &orgID
	}

	rows, err := h.ConvUC.ListConversations(c.Context(), userID, organizationID)
	if err != nil {
		return statusError(c, err)
	}
	return c.JSON(fiber.Map{"conversations": rows})
}

type updateGroupRequest struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	AutoDeleteDays *int    `json:"auto_delete_days"`
}

// UpdateGroup admin-only group metadata update
func (h *ConversationHandler) UpdateGroup(c *fiber.Ctx) error {
	userID := c.Locals(middlewares.TokenUserID).(string)

	var req updateGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	conv, err := h.ConvUC.UpdateGroup(c.Context(), c.Params("id"), userID, domain.GroupUpdate{
		Name:           req.Name,
		Description:    req.Description,
		AutoDeleteDays: req.AutoDeleteDays,
	})
	if err != nil {
		return statusError(c, err)
	}
	return c.JSON(conv)
}

// ListParticipants active participants of a conversation
func (h *ConversationHandler) ListParticipants(c *fiber.Ctx) error {
	rows, err := h.ConvUC.ListParticipants(c.Context(), c.Params("id"))
	if err != nil {
		return statusError(c, err)
	}
	return c.JSON(fiber.Map{"participants": rows})
}

type addParticipantRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// AddParticipant admin-only membership add
func (h *ConversationHandler) AddParticipant(c *fiber.Ctx) error {
	actorID := c.Locals(middlewares.TokenUserID).(string)

	var req addParticipantRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	role := domain.ParticipantRole(req.Role)
	if req.Role == "" {
		role = domain.RoleMember
	}

	p, err := h.ConvUC.AddParticipant(c.Context(), c.Params("id"), actorID, req.UserID, role)
	if err != nil {
		return statusError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(p)
}

// RemoveParticipant admin-only membership removal; history attribution is
// preserved
func (h *ConversationHandler) RemoveParticipant(c *fiber.Ctx) error {
	actorID := c.Locals(middlewares.TokenUserID).(string)

	if err := h.ConvUC.RemoveParticipant(c.Context(), c.Params("id"), actorID, c.Params("userID")); err != nil {
		return statusError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// LeaveConversation the viewer leaves the conversation
func (h *ConversationHandler) LeaveConversation(c *fiber.Ctx) error {
	userID := c.Locals(middlewares.TokenUserID).(string)

	if err := h.ConvUC.LeaveConversation(c.Context(), c.Params("id"), userID); err != nil {
		return statusError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// MarkRead advance the viewer's read watermark to now
func (h *ConversationHandler) MarkRead(c *fiber.Ctx) error {
	userID := c.Locals(middlewares.TokenUserID).(string)

	if err := h.ConvUC.MarkRead(c.Context(), c.Params("id"), userID, time.Now().UTC()); err != nil {
		return statusError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// statusError map use-case errors onto HTTP statuses
func statusError(c *fiber.Ctx, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, app.ErrConversationNotFound),
		errors.Is(err, app.ErrShareNotFound):
		status = http.StatusNotFound
	case errors.Is(err, app.ErrNotParticipant),
		errors.Is(err, app.ErrNotAdmin),
		errors.Is(err, app.ErrNotSender):
		status = http.StatusForbidden
	case errors.Is(err, app.ErrNotGroup),
		errors.Is(err, app.ErrAlreadyParticipant),
		errors.Is(err, app.ErrEmptyContent),
		errors.Is(err, app.ErrBadMetadata):
		status = http.StatusBadRequest
	case errors.Is(err, app.ErrShareExpired):
		status = http.StatusGone
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
