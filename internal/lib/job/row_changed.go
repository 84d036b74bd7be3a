package job

import (
	"encoding/json"
	"time"

	"github.com/deppfellow/erp-crud/internal/lib/hub"
	"github.com/hibiken/asynq"
)

const (
	// TaskRowChanged is the task type for post-write notifications.
	TaskRowChanged = "notify:row_changed"
)

// NewRowChangedTask wraps ev as a task. A notification that is still
// failing after three tries is not worth keeping, so retries stay low.
func NewRowChangedTask(ev hub.Event) (*asynq.Task, error) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskRowChanged,
		payload,
		asynq.MaxRetry(3),
		asynq.Queue("default"),
		asynq.Timeout(10*time.Second),
	), nil
}
