package repository

import (
	"fmt"

	"github.com/deppfellow/erp-crud/internal/crud"
	"github.com/deppfellow/erp-crud/internal/server"
)

// Repositories is the container handed to the service layer.
type Repositories struct {
	// Crud serves every allowlisted table; there is no per-table repository.
	Crud *crud.Engine
}

// NewRepositories parses the configured allowlist into a registry and
// builds the engine over the server's database.
func NewRepositories(s *server.Server) (*Repositories, error) {
	registry, err := s.Config.Crud.Registry()
	if err != nil {
		return nil, fmt.Errorf("crud allowlist: %w", err)
	}

	opts := []crud.Option{
		crud.WithLimits(s.Config.Crud.DefaultLimit, s.Config.Crud.MaxLimit),
		crud.WithLogger(s.Logger.With().Str("component", "crud").Logger()),
	}
	if obs := s.Config.Observability; obs != nil {
		opts = append(opts, crud.WithSlowThreshold(obs.Logging.SlowQueryThreshold))
	}
	engine := crud.NewEngine(registry, s.DB.Source, opts...)

	s.Logger.Info().
		Int("tables", len(registry.Tables())).
		Str("dialect", engine.Dialect().Name()).
		Msg("crud engine ready")

	return &Repositories{
		Crud: engine,
	}, nil
}
