package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"conversation_sync_service/internal/conversation/domain"
	"conversation_sync_service/internal/conversation/repository"
	"conversation_sync_service/pkg/middlewares"
)

// ProfileHandler directory of user and organization display profiles; the
// conversation reads join against it for sender attribution.
type ProfileHandler struct {
	ProfileRepo repository.ProfileRepository
}

type upsertProfileRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	AvatarURL string `json:"avatar_url"`
}

// UpsertProfile create or refresh the viewer's display profile
func (h *ProfileHandler) UpsertProfile(c *fiber.Ctx) error {
	userID := c.Locals(middlewares.TokenUserID).(string)

	var req upsertProfileRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	profile := &domain.UserProfile{
		UserID:    userID,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		AvatarURL: req.AvatarURL,
	}
	if err := h.ProfileRepo.UpsertUser(profile); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(profile)
}

// GetProfile one user's display profile
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	profile, err := h.ProfileRepo.GetUser(c.Params("userID"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "profile not found"})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(profile)
}

type upsertOrganizationRequest struct {
	Name    string `json:"name"`
	LogoURL string `json:"logo_url"`
}

// UpsertOrganizationProfile create or refresh the viewer's organization
// profile
func (h *ProfileHandler) UpsertOrganizationProfile(c *fiber.Ctx) error {
	orgID, ok := c.Locals(middlewares.TokenOrgID).(string)
	if !ok || orgID == "" {
		return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "no organization in token"})
	}

	var req upsertOrganizationRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	profile := &domain.OrganizationProfile{
		OrgID:   orgID,
		Name:    req.Name,
		LogoURL: req.LogoURL,
	}
	if err := h.ProfileRepo.UpsertOrganization(profile); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(profile)
}

// GetOrganizationProfile one organization's display profile
func (h *ProfileHandler) GetOrganizationProfile(c *fiber.Ctx) error {
	profile, err := h.ProfileRepo.GetOrganization(c.Params("orgID"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "profile not found"})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(profile)
}
