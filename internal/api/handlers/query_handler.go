package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/warmpath/backend/internal/contacts"
	"github.com/warmpath/backend/internal/middleware/session"
	"github.com/warmpath/backend/internal/middleware/validation"
	"github.com/warmpath/backend/internal/network"
	"github.com/warmpath/backend/pkg/logger"
)

type QueryHandler struct {
	network *network.Service
}

func NewQueryHandler(svc *network.Service) *QueryHandler {
	return &QueryHandler{network: svc}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	filters, ok := validation.Filters(c)
	if !ok {
		logger.Error("Query route mounted without filter validation")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"results": []contacts.ScoredContact{},
			"error":   "Failed to process query",
		})
	}

	results, err := h.network.Query(c.UserContext(), session.UserID(c), filters)
	if errors.Is(err, network.ErrEmptyFilters) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"results": []contacts.ScoredContact{},
			"error":   network.ErrEmptyFilters.Error(),
		})
	}
	if err != nil {
		logger.Error("Failed to process query", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"results": []contacts.ScoredContact{},
			"error":   "Failed to process query",
		})
	}

	return c.JSON(fiber.Map{
		"results": results,
	})
}
