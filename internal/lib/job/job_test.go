package job

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/deppfellow/erp-crud/internal/lib/hub"
	"github.com/deppfellow/erp-crud/internal/row"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

type recordingClient struct {
	tasks []*asynq.Task
	err   error
}

func (c *recordingClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Queue: "default", Type: task.Type()}, nil
}

func (c *recordingClient) Close() error { return nil }

func newTestService(client Enqueuer) (*JobService, *hub.Hub) {
	logger := zerolog.Nop()
	h := hub.New(nil, &logger)
	return &JobService{Client: client, hub: h, logger: &logger}, h
}

func TestNewRowChangedTask(t *testing.T) {
	t.Parallel()

	task, err := NewRowChangedTask(hub.Event{
		Table:     "student",
		Operation: "update",
		Row:       row.New().Set("student_id", row.Int(3)),
	})
	if err != nil {
		t.Fatalf("NewRowChangedTask: %v", err)
	}
	if task.Type() != TaskRowChanged {
		t.Fatalf("type = %q", task.Type())
	}

	var ev hub.Event
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if ev.Table != "student" || ev.At.IsZero() {
		t.Fatalf("payload event = %+v", ev)
	}
}

func TestPublishEnqueues(t *testing.T) {
	t.Parallel()

	client := &recordingClient{}
	j, _ := newTestService(client)
	if err := j.Publish(context.Background(), hub.Event{Table: "course", Operation: "create"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(client.tasks) != 1 || client.tasks[0].Type() != TaskRowChanged {
		t.Fatalf("tasks = %v", client.tasks)
	}

	client.err = errors.New("redis down")
	if err := j.Publish(context.Background(), hub.Event{Table: "course"}); err == nil {
		t.Fatal("expected enqueue error")
	}
}

func TestHandleRowChangedBroadcasts(t *testing.T) {
	t.Parallel()

	j, h := newTestService(&recordingClient{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := h.Subscribe(ctx)

	task, err := NewRowChangedTask(hub.Event{Table: "fees", Operation: "remove"})
	if err != nil {
		t.Fatalf("NewRowChangedTask: %v", err)
	}
	if err := j.Mux().ProcessTask(ctx, task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	select {
	case ev := <-sub:
		if ev.Table != "fees" || ev.Operation != "remove" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no broadcast")
	}
}

func TestHandleRowChangedSkipsRetryOnBadPayload(t *testing.T) {
	t.Parallel()

	j, _ := newTestService(&recordingClient{})
	err := j.handleRowChangedTask(context.Background(), asynq.NewTask(TaskRowChanged, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
}
