package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/deppfellow/erp-crud/internal/middleware"
	"github.com/deppfellow/erp-crud/internal/server"
	"github.com/labstack/echo/v4"
)

const heartbeatInterval = 15 * time.Second

// DashboardHandler streams row changes to browsers over server-sent
// events.
type DashboardHandler struct {
	Handler
}

func NewDashboardHandler(s *server.Server) *DashboardHandler {
	return &DashboardHandler{
		Handler: NewHandler(s),
	}
}

// Stream serves GET /api/dashboard/stream[?table=a,b]. Each change is an
// event named "row_changed" whose data is the JSON event. A comment line
// is sent every heartbeatInterval to keep proxies from closing the stream.
func (h *DashboardHandler) Stream(c echo.Context) error {
	logger := middleware.GetLogger(c)

	tables := make(map[string]bool)
	for _, t := range strings.Split(c.QueryParam("table"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tables[strings.ToLower(t)] = true
		}
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")

	// The server's WriteTimeout would otherwise end the stream.
	_ = http.NewResponseController(res).SetWriteDeadline(time.Time{})

	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	events := h.server.Hub.Subscribe(ctx)
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	logger.Info().Int("tables", len(tables)).Msg("dashboard stream opened")
	defer logger.Info().Msg("dashboard stream closed")

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if len(tables) > 0 && !tables[strings.ToLower(ev.Table)] {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Error().Err(err).Str("table", ev.Table).Msg("failed to encode event")
				continue
			}
			if _, err := fmt.Fprintf(res, "event: row_changed\ndata: %s\n\n", data); err != nil {
				return nil
			}
			res.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
