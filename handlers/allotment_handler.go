package handlers

import (
	"strings"

	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/fenilmodi00/ipo-allotment/services"
	"github.com/gofiber/fiber/v2"
)

type AllotmentHandler struct {
	Service *services.AllotmentService
}

func NewAllotmentHandler(service *services.AllotmentService) *AllotmentHandler {
	return &AllotmentHandler{Service: service}
}

// normalizePAN trims and upper-cases user input; validation happens in the service
func normalizePAN(pan string) string {
	return strings.ToUpper(strings.TrimSpace(pan))
}

// CheckAllotment resolves the allotment outcome for one IPO and PAN.
// Business outcomes are always 200; only malformed requests are rejected.
func (h *AllotmentHandler) CheckAllotment(c *fiber.Ctx) error {
	var req models.AllotmentCheckParams
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	req.IPOID = strings.TrimSpace(req.IPOID)
	if req.IPOID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "ipo_id is required",
		})
	}
	req.PAN = normalizePAN(req.PAN)
	req.ApplicationNumber = strings.TrimSpace(req.ApplicationNumber)

	result := h.Service.CheckAllotment(c.UserContext(), req)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
		"message": h.Service.GetStatusMessage(result),
	})
}

// GetHistory returns the recorded checks for a PAN. The PAN travels in the body
// so it never appears in URLs or access logs.
func (h *AllotmentHandler) GetHistory(c *fiber.Ctx) error {
	var req struct {
		PAN string `json:"pan"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	pan := normalizePAN(req.PAN)
	if !services.IsValidPAN(pan) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid PAN format",
		})
	}

	history := h.Service.GetHistory(c.UserContext(), pan)
	return c.JSON(fiber.Map{
		"success": true,
		"data":    history,
		"count":   len(history),
	})
}
