package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ideabank/internal/run"
)

// handleRunEvents streams a run's progress via Server-Sent Events.
// The stream replays from the run's first event, so a consumer that
// connects mid-run still sees the full ordered history. The connection
// stays open until the run reaches a terminal phase or the client
// disconnects.
//
// Example:
//
//	GET /api/v1/runs/{id}/events
//
//	event: phase
//	data: {"type":"phase","phase":"searching",...}
//
//	event: stat
//	data: {"type":"stat","key":"fragmentsFound","value":14,...}
//
//	event: complete
//	data: {"type":"complete","stats":{...}}
func (s *Server) handleRunEvents(c echo.Context) error {
	id := c.Param("id")

	events, detach, ok := s.registry.Attach(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	defer detach()

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	c.Response().WriteHeader(http.StatusOK)

	heartbeat := s.config.SSEHeartbeat
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case e, open := <-events:
			if !open {
				return nil
			}
			if err := writeSSE(c, e); err != nil {
				return err
			}

		case <-ticker.C:
			if err := writeComment(c, "heartbeat"); err != nil {
				return err
			}

		case <-c.Request().Context().Done():
			s.logger.Debug(c.Request().Context(), "sse client disconnected", zap.String("run_id", id))
			return nil
		}
	}
}

func writeSSE(c echo.Context, e run.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("event: " + string(e.Type) + "\n")); err != nil {
		return err
	}
	if _, err := c.Response().Write(append(append([]byte("data: "), data...), '\n', '\n')); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

func writeComment(c echo.Context, comment string) error {
	if _, err := c.Response().Write([]byte(": " + comment + "\n\n")); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}
