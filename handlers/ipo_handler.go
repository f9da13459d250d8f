package handlers

import (
	"strings"

	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/fenilmodi00/ipo-allotment/services"
	"github.com/gofiber/fiber/v2"
)

type IPOHandler struct {
	Master     *services.IPOMasterService
	Registrars *services.RegistrarService
	Factory    *services.RegistrarFactory
}

func NewIPOHandler(master *services.IPOMasterService, registrars *services.RegistrarService, factory *services.RegistrarFactory) *IPOHandler {
	return &IPOHandler{
		Master:     master,
		Registrars: registrars,
		Factory:    factory,
	}
}

// GetIPOs lists the master directory, optionally filtered by ?registrar= and ?status=
func (h *IPOHandler) GetIPOs(c *fiber.Ctx) error {
	registrar := models.RegistrarType(strings.ToLower(c.Query("registrar")))
	status := models.PublicationStatus(strings.ToUpper(c.Query("status")))

	if status != "" && !status.IsValid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid status filter",
		})
	}

	var ipos []models.IPOMasterEntry
	switch {
	case registrar != "":
		ipos = h.Master.GetIPOsByRegistrar(registrar, status)
	case status != "":
		for _, entry := range h.Master.GetAllIPOs() {
			if entry.AllotmentStatus == status {
				ipos = append(ipos, entry)
			}
		}
	default:
		ipos = h.Master.GetAllIPOs()
	}

	if ipos == nil {
		ipos = []models.IPOMasterEntry{}
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    ipos,
		"count":   len(ipos),
	})
}

func (h *IPOHandler) GetPublishedAllotments(c *fiber.Ctx) error {
	ipos := h.Master.GetPublishedAllotments()
	return c.JSON(fiber.Map{
		"success": true,
		"data":    ipos,
		"count":   len(ipos),
	})
}

func (h *IPOHandler) GetIPOByID(c *fiber.Ctx) error {
	ipo, found := h.Master.GetIPO(c.Params("id"))
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "IPO not found",
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    ipo,
	})
}

// GetRegistrars lists registrars with an adapter, with display names and portal URLs
func (h *IPOHandler) GetRegistrars(c *fiber.Ctx) error {
	supported := h.Factory.SupportedRegistrars()
	registrars := make([]models.RegistrarInfo, 0, len(supported))
	for _, registrar := range supported {
		registrars = append(registrars, h.Registrars.Info(registrar))
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    registrars,
	})
}

func (h *IPOHandler) IdentifyRegistrar(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "name query parameter is required",
		})
	}

	info := h.Registrars.Identify(name)
	return c.JSON(fiber.Map{
		"success":   true,
		"data":      info,
		"supported": h.Factory.IsSupported(info.Type),
	})
}
