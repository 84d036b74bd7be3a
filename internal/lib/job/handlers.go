package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/deppfellow/erp-crud/internal/lib/hub"
)

// handleRowChangedTask decodes the event and broadcasts it. Returning an
// error makes Asynq retry; a payload that does not decode never will, so
// it is skipped.
func (j *JobService) handleRowChangedTask(ctx context.Context, t *asynq.Task) error {
	var ev hub.Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return fmt.Errorf("decode row change payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := j.hub.Publish(ctx, ev); err != nil {
		j.logger.Error().
			Err(err).
			Str("table", ev.Table).
			Str("operation", ev.Operation).
			Msg("Failed to broadcast row change")
		return err
	}

	j.logger.Debug().
		Str("table", ev.Table).
		Str("operation", ev.Operation).
		Msg("Broadcast row change")
	return nil
}
