package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/warmpath/backend/internal/middleware/session"
	"github.com/warmpath/backend/internal/network"
	"github.com/warmpath/backend/internal/storage/models"
	"github.com/warmpath/backend/pkg/logger"
)

type ContactsHandler struct {
	network *network.Service
}

func NewContactsHandler(svc *network.Service) *ContactsHandler {
	return &ContactsHandler{network: svc}
}

func (h *ContactsHandler) List(c *fiber.Ctx) error {
	list, err := h.network.ListContacts(c.UserContext(), session.UserID(c), c.Query("q"))
	if err != nil {
		logger.Error("Failed to list contacts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list contacts",
		})
	}
	if list == nil {
		list = []models.Contact{}
	}
	return c.JSON(fiber.Map{
		"contacts": list,
	})
}

func (h *ContactsHandler) Create(c *fiber.Ctx) error {
	var req network.NewContact
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	contact, err := h.network.CreateContact(c.UserContext(), session.UserID(c), req)
	switch {
	case errors.Is(err, network.ErrNameRequired):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": network.ErrNameRequired.Error()})
	case errors.Is(err, network.ErrInvalidStrength):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": network.ErrInvalidStrength.Error()})
	case err != nil:
		logger.Error("Failed to create contact", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create contact",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(contact)
}

func (h *ContactsHandler) Delete(c *fiber.Ctx) error {
	err := h.network.DeleteContact(c.UserContext(), session.UserID(c), c.Params("id"))
	if errors.Is(err, network.ErrContactNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": network.ErrContactNotFound.Error(),
		})
	}
	if err != nil {
		logger.Error("Failed to delete contact", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete contact",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
