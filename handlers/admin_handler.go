package handlers

import (
	"strings"
	"time"

	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/fenilmodi00/ipo-allotment/services"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type AdminHandler struct {
	Master     *services.IPOMasterService
	Automation *services.AutomationService
	Allotments *services.AllotmentService
	Registrars *services.RegistrarService
}

func NewAdminHandler(master *services.IPOMasterService, automation *services.AutomationService, allotments *services.AllotmentService, registrars *services.RegistrarService) *AdminHandler {
	return &AdminHandler{
		Master:     master,
		Automation: automation,
		Allotments: allotments,
		Registrars: registrars,
	}
}

// TriggerSync runs the discovery poller and returns its report
func (h *AdminHandler) TriggerSync(c *fiber.Ctx) error {
	logrus.Info("Manual allotment sync triggered via admin endpoint")

	startTime := time.Now()
	report := h.Automation.SyncAllotmentStatuses(c.UserContext())

	status := fiber.StatusOK
	if report.Skipped {
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(fiber.Map{
		"success":  !report.Skipped,
		"data":     report,
		"duration": time.Since(startTime).String(),
	})
}

// UpdateIPOStatus moves an IPO's publication state forward
func (h *AdminHandler) UpdateIPOStatus(c *fiber.Ctx) error {
	var req struct {
		Status models.PublicationStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	req.Status = models.PublicationStatus(strings.ToUpper(string(req.Status)))
	if !req.Status.IsValid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "status must be one of UPCOMING, PENDING, PUBLISHED",
		})
	}

	id := c.Params("id")
	if !h.Master.UpdateAllotmentStatus(id, req.Status) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "IPO not found",
		})
	}

	ipo, _ := h.Master.GetIPO(id)
	return c.JSON(fiber.Map{
		"success": true,
		"data":    ipo,
	})
}

// RegisterIPO manually adds a published IPO, resolving its registrar from free text
func (h *AdminHandler) RegisterIPO(c *fiber.Ctx) error {
	var req struct {
		Name         string `json:"name"`
		Registrar    string `json:"registrar"`
		RegistrarURL string `json:"registrar_url"`
		CompanyCode  string `json:"company_code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Registrar) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "name and registrar are required",
		})
	}

	info := h.Registrars.Identify(req.Registrar)
	if req.RegistrarURL == "" {
		req.RegistrarURL = info.URL
	}

	entry, created := h.Master.RegisterIPOWithCode(req.Name, info.Type, req.RegistrarURL, req.CompanyCode)
	if !created {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"error":   "IPO already exists",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":   true,
		"data":      entry,
		"registrar": info,
	})
}

func (h *AdminHandler) ClearHistory(c *fiber.Ctx) error {
	if err := h.Allotments.ClearHistory(c.UserContext()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Allotment history cleared",
	})
}

// GetMetrics returns service counters and the last sync report
func (h *AdminHandler) GetMetrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"allotments":  h.Allotments.Metrics().GetSnapshot(),
			"automation":  h.Automation.Metrics().GetSnapshot(),
			"cache_size":  h.Allotments.Cache().Size(),
			"sync_active": h.Automation.IsRunning(),
			"last_sync":   h.Automation.LastReport(),
		},
	})
}
