package handler

import (
	"github.com/deppfellow/erp-crud/internal/server"
	"github.com/deppfellow/erp-crud/internal/service"
)

type Handlers struct {
	Crud      *CrudHandler
	Health    *HealthHandler
	Version   *VersionHandler
	Dashboard *DashboardHandler
	OpenAPI   *OpenAPIHandler
}

func NewHandlers(s *server.Server, services *service.Services) *Handlers {
	return &Handlers{
		Crud:      NewCrudHandler(s, services.Crud),
		Health:    NewHealthHandler(s),
		Version:   NewVersionHandler(s),
		Dashboard: NewDashboardHandler(s),
		OpenAPI:   NewOpenAPIHandler(s),
	}
}
