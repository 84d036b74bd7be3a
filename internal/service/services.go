package service

import (
	"github.com/deppfellow/erp-crud/internal/repository"
	"github.com/deppfellow/erp-crud/internal/server"
)

type Services struct {
	Auth *AuthService
	Crud *CrudService
}

// NewService wires the services. Row changes go through the job queue
// when Redis is available and straight to the hub otherwise.
func NewService(s *server.Server, repos *repository.Repositories) (*Services, error) {
	var events EventPublisher = s.Hub
	if s.Job != nil {
		events = s.Job
	}

	return &Services{
		Auth: NewAuthService(s),
		Crud: NewCrudService(repos.Crud, events, s.Logger),
	}, nil
}
