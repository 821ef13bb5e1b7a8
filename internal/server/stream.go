package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/slidesmith/slidesmith/internal/events"
	"github.com/slidesmith/slidesmith/internal/state"
)

const (
	streamTick     = 250 * time.Millisecond
	streamIdleMax  = 40 // idle ticks before the stream closes itself
	streamMimeType = "text/event-stream"
)

// streamEvents pushes run events via Server-Sent Events. Idle ticks produce
// heartbeats; a stream with no fresh events for streamIdleMax ticks closes
// with a final stream_closed event. once=true emits a single heartbeat and
// closes immediately, which keeps polling clients and tests cheap.
func (h *RunsHandler) streamEvents(c echo.Context) error {
	runID, err := parseRunID(c)
	if err != nil {
		return err
	}
	if !h.events.Known(runID) {
		if _, ok, serr := h.store.GetRunDetails(c.Request().Context(), runID); serr != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, serr.Error())
		} else if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, streamMimeType)
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	send := func(ev events.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	synthetic := func(eventType string) events.Event {
		return events.Event{RunID: runID, Type: eventType, TS: state.NowISO()}
	}

	cursor := c.QueryParam("since_ts")
	flush := func() (int, error) {
		list := h.events.List(runID, cursor)
		for _, ev := range list {
			if err := send(ev); err != nil {
				return 0, err
			}
			cursor = ev.TS
		}
		return len(list), nil
	}

	if _, err := flush(); err != nil {
		return nil
	}
	if c.QueryParam("once") == "true" {
		_ = send(synthetic(events.TypeHeartbeat))
		return nil
	}

	ctx := c.Request().Context()
	ticker := time.NewTicker(streamTick)
	defer ticker.Stop()

	idle := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := flush()
			if err != nil {
				return nil
			}
			if n > 0 {
				idle = 0
				continue
			}
			idle++
			if err := send(synthetic(events.TypeHeartbeat)); err != nil {
				return nil
			}
			if idle >= streamIdleMax {
				_ = send(synthetic(events.TypeStreamClosed))
				h.logger.Printf("stream for run %d closed after %d idle ticks", runID, idle)
				return nil
			}
		}
	}
}
