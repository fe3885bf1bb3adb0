package events

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// StreamHandler streams bus events to an HTTP client as Server-Sent Events.
type StreamHandler struct {
	bus               *Bus
	logger            *slog.Logger
	heartbeatInterval time.Duration
}

// NewStreamHandler creates a handler streaming every event type.
func NewStreamHandler(bus *Bus, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{bus: bus, logger: logger, heartbeatInterval: 30 * time.Second}
}

// ServeHTTP holds the connection open and writes events until the client goes away.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("failed to flush headers", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sub, err := h.bus.Subscribe(EventSyncStarted, EventSyncCompleted, EventDownloadProgress,
		EventOwnerChanged, EventConnectivityChanged)
	if err != nil {
		h.logger.Error("failed to subscribe stream client", slog.String("error", err.Error()))
		return
	}
	defer h.bus.Unsubscribe(sub.ID)

	log := h.logger.With(slog.String("subscriber_id", sub.ID))

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if err := h.send(w, rc, event); err != nil {
				log.Debug("stream client gone during send")
				return
			}

		case <-heartbeat.C:
			if err := h.send(w, rc, NewHeartbeatEvent()); err != nil {
				log.Debug("stream client gone during heartbeat")
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (h *StreamHandler) send(w http.ResponseWriter, rc *http.ResponseController, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}

	// Not every ResponseWriter supports deadlines.
	if err := rc.SetWriteDeadline(time.Now().Add(60 * time.Second)); err != nil {
		h.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}
	return nil
}
