package transport

import (
	"fmt"
	"net/http"
	"time"

	"storefront-admin/internal/broadcast"

	"go.uber.org/zap"
)

// streamedEvents are forwarded to connected admin consoles
var streamedEvents = []string{
	broadcast.EventProductsUpdated,
	broadcast.EventCategoryImagesUpdated,
	broadcast.EventSubcategoriesUpdated,
	broadcast.EventCouponsUpdated,
	broadcast.EventSyncTrigger,
}

// EventsHandler streams broadcast events to a console as server-sent events
type EventsHandler struct {
	bus       *broadcast.Channel
	heartbeat time.Duration
	logger    *zap.Logger
}

func NewEventsHandler(bus *broadcast.Channel, heartbeat time.Duration, logger *zap.Logger) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &EventsHandler{bus: bus, heartbeat: heartbeat, logger: logger}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// the server write timeout would cut the stream
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("Could not clear write deadline", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("Event stream not supported by response writer", zap.Error(err))
		return
	}

	events := make(chan broadcast.Event, 32)
	for _, name := range streamedEvents {
		unsubscribe := h.bus.Subscribe(name, func(e broadcast.Event) {
			select {
			case events <- e:
			default:
				h.logger.Debug("Dropping event for slow console", zap.String("event", e.Name))
			}
		})
		defer unsubscribe()
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case e := <-events:
			data := e.Payload
			if len(data) == 0 {
				data = []byte("null")
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Name, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
