package router

import (
	"net/http"

	"github.com/deppfellow/erp-crud/internal/handler"
	"github.com/deppfellow/erp-crud/internal/middleware"
	"github.com/labstack/echo/v4"
)

// registerCrudRoutes mounts the generic table API under /crud. Auth is
// required only when a Clerk key is configured.
func registerCrudRoutes(v1 *echo.Group, h *handler.Handlers, m *middleware.Middlewares, requireAuth bool) {
	crud := v1.Group("/crud", m.RateLimit.Limit())
	if requireAuth {
		crud.Use(m.Auth.RequireAuth)
	}

	c := h.Crud

	crud.GET("", handler.Handle(c.Handler, c.Tables, http.StatusOK,
		func() *handler.TablesRequest { return &handler.TablesRequest{} }))

	crud.GET("/:table", handler.Handle(c.Handler, c.List, http.StatusOK,
		func() *handler.ListRequest { return &handler.ListRequest{} }))

	crud.POST("/:table", handler.Handle(c.Handler, c.Create, http.StatusCreated,
		func() *handler.CreateRequest { return &handler.CreateRequest{} }))

	crud.GET("/:table/:id", handler.Handle(c.Handler, c.Get, http.StatusOK,
		func() *handler.RowRequest { return &handler.RowRequest{} }))

	update := handler.Handle(c.Handler, c.Update, http.StatusOK,
		func() *handler.UpdateRequest { return &handler.UpdateRequest{} })
	crud.PUT("/:table/:id", update)
	crud.PATCH("/:table/:id", update)

	crud.DELETE("/:table/:id", handler.Handle(c.Handler, c.Remove, http.StatusOK,
		func() *handler.RowRequest { return &handler.RowRequest{} }))
}
