package service

import (
	"context"
	"time"

	"github.com/deppfellow/erp-crud/internal/crud"
	"github.com/deppfellow/erp-crud/internal/lib/hub"
	"github.com/deppfellow/erp-crud/internal/row"
	"github.com/rs/zerolog"
)

// EventPublisher receives a notification after each successful write.
// *job.JobService queues it; *hub.Hub broadcasts it in-process.
type EventPublisher interface {
	Publish(ctx context.Context, ev hub.Event) error
}

// CrudService fronts the engine for the handlers. It logs every call and
// publishes row changes; a failed publish is logged and never fails the
// write that caused it.
type CrudService struct {
	engine *crud.Engine
	events EventPublisher
	logger *zerolog.Logger
}

func NewCrudService(engine *crud.Engine, events EventPublisher, logger *zerolog.Logger) *CrudService {
	return &CrudService{
		engine: engine,
		events: events,
		logger: logger,
	}
}

// Tables lists the allowlisted table names.
func (s *CrudService) Tables() []string {
	return s.engine.Registry().Tables()
}

func (s *CrudService) List(ctx context.Context, table string, page crud.Page) ([]*row.Row, error) {
	start := time.Now()
	rows, err := s.engine.List(ctx, table, page)
	event := s.log(ctx, crud.OpList, table, start, err)
	if page.Limit != nil {
		event = event.Int("limit", *page.Limit)
	}
	event.
		Int("offset", page.Offset).
		Int("count", len(rows)).
		Msg("crud list")
	return rows, err
}

func (s *CrudService) Get(ctx context.Context, table, key string, id row.Value) (*row.Row, error) {
	start := time.Now()
	r, err := s.engine.Get(ctx, table, key, id)
	s.log(ctx, crud.OpGet, table, start, err).
		Bool("found", r != nil).
		Msg("crud get")
	return r, err
}

func (s *CrudService) Create(ctx context.Context, table string, in *row.Row) (*row.Row, error) {
	start := time.Now()
	r, err := s.engine.Create(ctx, table, in)
	s.log(ctx, crud.OpCreate, table, start, err).
		Int("columns", in.Len()).
		Msg("crud create")
	if err == nil {
		s.publish(ctx, table, crud.OpCreate, r)
	}
	return r, err
}

func (s *CrudService) Update(ctx context.Context, table, key string, id row.Value, in *row.Row) (*row.Row, error) {
	start := time.Now()
	r, err := s.engine.Update(ctx, table, key, id, in)
	s.log(ctx, crud.OpUpdate, table, start, err).
		Int("columns", in.Len()).
		Bool("found", r != nil).
		Msg("crud update")
	if err == nil && r != nil {
		s.publish(ctx, table, crud.OpUpdate, r)
	}
	return r, err
}

func (s *CrudService) Remove(ctx context.Context, table, key string, id row.Value) (*row.Row, error) {
	start := time.Now()
	r, err := s.engine.Remove(ctx, table, key, id)
	s.log(ctx, crud.OpRemove, table, start, err).
		Bool("found", r != nil).
		Msg("crud remove")
	if err == nil && r != nil {
		s.publish(ctx, table, crud.OpRemove, r)
	}
	return r, err
}

// loggerFor prefers the request logger stored on ctx.
func (s *CrudService) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return s.logger
}

func (s *CrudService) log(ctx context.Context, op crud.Op, table string, start time.Time, err error) *zerolog.Event {
	l := s.loggerFor(ctx)
	var e *zerolog.Event
	if err != nil {
		e = l.Warn().Err(err)
	} else {
		e = l.Info()
	}
	return e.
		Str("operation", string(op)).
		Str("table", table).
		Dur("duration", time.Since(start))
}

func (s *CrudService) publish(ctx context.Context, table string, op crud.Op, r *row.Row) {
	if s.events == nil {
		return
	}
	if t, err := s.engine.Registry().Validate(table); err == nil {
		table = t.Name()
	}

	ev := hub.Event{
		Table:     table,
		Operation: string(op),
		Row:       r,
		At:        time.Now().UTC(),
	}
	// The write has committed; a cancelled request must not drop the
	// notification.
	if err := s.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.loggerFor(ctx).Error().
			Err(err).
			Str("operation", ev.Operation).
			Str("table", table).
			Msg("failed to publish row change")
	}
}
