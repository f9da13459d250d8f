package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// Router groups the handlers mounted on the HTTP API
type Router struct {
	Allotments *AllotmentHandler
	IPOs       *IPOHandler
	Admin      *AdminHandler
	Health     *HealthHandler
	AdminToken string
}

// Register mounts every route on app
func (r *Router) Register(app *fiber.App) {
	app.Get("/health", r.Health.Health)

	api := app.Group("/api/v1")

	// Allotment Routes
	api.Post("/allotment/check", r.Allotments.CheckAllotment)
	api.Post("/allotment/history", r.Allotments.GetHistory)

	// IPO Routes
	api.Get("/ipos", r.IPOs.GetIPOs)
	api.Get("/ipos/published", r.IPOs.GetPublishedAllotments)
	api.Get("/ipos/:id", r.IPOs.GetIPOByID)

	// Registrar Routes
	api.Get("/registrars", r.IPOs.GetRegistrars)
	api.Get("/registrars/identify", r.IPOs.IdentifyRegistrar)

	// Admin Routes
	admin := api.Group("/admin", AdminAuth(r.AdminToken))
	admin.Post("/sync", r.Admin.TriggerSync)
	admin.Put("/ipos/:id/status", r.Admin.UpdateIPOStatus)
	admin.Post("/ipos", r.Admin.RegisterIPO)
	admin.Delete("/history", r.Admin.ClearHistory)
	admin.Get("/metrics", r.Admin.GetMetrics)
}
