package router

import (
	"github.com/deppfellow/erp-crud/internal/handler"
	"github.com/deppfellow/erp-crud/internal/middleware"
	"github.com/labstack/echo/v4"
)

// registerSystemRoutes registers endpoints that sit outside the CRUD API:
// health, build info, the live update stream and the OpenAPI docs.
// The stream carries row data, so it sits behind the same auth as /crud.
func registerSystemRoutes(r *echo.Echo, h *handler.Handlers, m *middleware.Middlewares, requireAuth bool) {
	r.GET("/status", h.Health.CheckHealth)
	r.GET("/api/version", h.Version.GetVersion)

	// Server-sent events for every successful write.
	dashboard := r.Group("/api/dashboard")
	if requireAuth {
		dashboard.Use(m.Auth.RequireAuth)
	}
	dashboard.GET("/stream", h.Dashboard.Stream)

	// openapi.json and openapi.html live under ./static.
	r.Static("/static", "static")
	r.GET("/docs", h.OpenAPI.ServeOpenAPIUI)
}
