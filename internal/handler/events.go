package handler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/net/websocket"

	"github.com/clubrun/run-attendance/internal/bus"
	"github.com/clubrun/run-attendance/internal/repository"
	"github.com/clubrun/run-attendance/internal/service"
)

const (
	// pingInterval is how often the server probes the client. Clients
	// answer with any frame; the payload is ignored.
	pingInterval = 25 * time.Second
	// idleTimeout closes connections that answered nothing for this
	// long. Two missed pings and a margin.
	idleTimeout = 60 * time.Second
	// sendTimeout bounds each write so one wedged client cannot hold
	// the delivery goroutine.
	sendTimeout = 2 * time.Second
)

// EventsHandler upgrades dashboard connections to websockets and
// forwards tally and invalidation events. Each connection gets its own
// bus subscription per topic;
// its backlog discipline (bounded, drop-oldest) lives in the bus, so a
// slow dashboard only ever hurts itself.
type EventsHandler struct {
	events     bus.Bus
	calendar   *service.CalendarManager
	attendance *repository.AttendanceRepo
}

// NewEventsHandler returns an EventsHandler.
func NewEventsHandler(events bus.Bus, calendar *service.CalendarManager, attendance *repository.AttendanceRepo) *EventsHandler {
	return &EventsHandler{events: events, calendar: calendar, attendance: attendance}
}

type pingFrame struct {
	Type string `json:"type"`
}

// Serve handles GET /events.
func (h *EventsHandler) Serve(c echo.Context) error {
	websocket.Handler(func(ws *websocket.Conn) {
		h.run(c.Request().Context(), ws)
	}).ServeHTTP(c.Response(), c.Request())
	return nil
}

func (h *EventsHandler) run(ctx context.Context, ws *websocket.Conn) {
	defer ws.Close()

	if err := h.sendSnapshot(ctx, ws); err != nil {
		return
	}

	sub := h.events.Subscribe(bus.TopicTally)
	defer h.events.Unsubscribe(sub)
	inval := h.events.Subscribe(bus.TopicInvalidate)
	defer h.events.Unsubscribe(inval)

	var lastSeen atomic.Int64
	lastSeen.Store(time.Now().UnixNano())

	// Reader drains client frames purely to observe liveness; the
	// protocol is server-to-client. A read error ends the connection.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		var discard string
		for {
			if err := websocket.Message.Receive(ws, &discard); err != nil {
				return
			}
			lastSeen.Store(time.Now().UnixNano())
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := send(ws, ev); err != nil {
				return
			}
		case ev, ok := <-inval.C:
			if !ok {
				return
			}
			if err := send(ws, ev); err != nil {
				return
			}
		case <-ticker.C:
			if time.Since(time.Unix(0, lastSeen.Load())) > idleTimeout {
				return
			}
			if err := send(ws, pingFrame{Type: "ping"}); err != nil {
				return
			}
		case <-readerDone:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sendSnapshot pushes the current state so a freshly connected
// dashboard renders immediately instead of waiting for the next
// registration.
func (h *EventsHandler) sendSnapshot(ctx context.Context, ws *websocket.Conn) error {
	snap := bus.Event{Type: bus.TypeSnapshot}
	run, err := h.calendar.ActiveRunToday(ctx)
	if err == nil && run != nil {
		count, cerr := h.attendance.CountForRun(ctx, run.ID)
		if cerr == nil {
			snap.RunID = run.ID
			snap.SessionCode = run.SessionCode
			snap.Count = count
		}
	}
	return send(ws, snap)
}

func send(ws *websocket.Conn, v any) error {
	_ = ws.SetWriteDeadline(time.Now().Add(sendTimeout))
	return websocket.JSON.Send(ws, v)
}
