// Package job runs background work on Asynq, a Redis-backed queue.
//
// The API enqueues a task after every successful write; the worker picks
// it up and broadcasts the change through the hub, keeping the broadcast
// off the request path.
package job

import (
	"context"
	"fmt"

	"github.com/deppfellow/erp-crud/internal/config"
	"github.com/deppfellow/erp-crud/internal/lib/hub"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Enqueuer is the part of *asynq.Client the service uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type JobService struct {
	Client Enqueuer
	server *asynq.Server
	hub    *hub.Hub
	logger *zerolog.Logger
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// NewJobService builds the Asynq client and worker server. Notifications
// run on the "default" queue; "critical" and "low" are kept for future
// task types.
func NewJobService(logger *zerolog.Logger, cfg *config.Config, h *hub.Hub) *JobService {
	client := asynq.NewClient(redisOpt(cfg))

	server := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			Logger:   asynqLogger{logger: logger},
			LogLevel: asynq.WarnLevel,
		},
	)

	return &JobService{
		Client: client,
		server: server,
		hub:    h,
		logger: logger,
	}
}

// Mux routes task types to their handlers.
func (j *JobService) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskRowChanged, j.handleRowChangedTask)
	return mux
}

// Start launches the worker goroutines and returns.
func (j *JobService) Start() error {
	j.logger.Info().Msg("Starting background job server")

	if err := j.server.Start(j.Mux()); err != nil {
		return fmt.Errorf("start job server: %w", err)
	}
	return nil
}

// Publish enqueues a row change notification.
func (j *JobService) Publish(ctx context.Context, ev hub.Event) error {
	task, err := NewRowChangedTask(ev)
	if err != nil {
		return err
	}

	info, err := j.Client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskRowChanged, err)
	}

	j.logger.Debug().
		Str("task_id", info.ID).
		Str("queue", info.Queue).
		Str("table", ev.Table).
		Msg("enqueued row change")
	return nil
}

func (j *JobService) Stop() {
	j.logger.Info().Msg("Stopping background job server")
	if j.server != nil {
		j.server.Shutdown()
	}
	if j.Client != nil {
		_ = j.Client.Close()
	}
}

// asynqLogger sends Asynq's own log lines through zerolog.
type asynqLogger struct {
	logger *zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
