package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-sync/internal/events"
	"github.com/listenupapp/listenup-sync/internal/logger"
)

// EventBusHandle wraps the event bus with its context for lifecycle management.
type EventBusHandle struct {
	*events.Bus
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *EventBusHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Bus.Shutdown(ctx)
	h.cancel()
	return err
}

// ProvideEventBus provides the in-process event bus.
func ProvideEventBus(i do.Injector) (*EventBusHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	bus := events.NewBus(log.Component("events"))

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go bus.Start(ctx)

	log.Info("Event bus started")

	return &EventBusHandle{Bus: bus, cancel: cancel}, nil
}

// ProvideStreamHandler provides the server-sent events handler over the bus.
func ProvideStreamHandler(i do.Injector) (*events.StreamHandler, error) {
	log := do.MustInvoke[*logger.Logger](i)
	bus := do.MustInvoke[*EventBusHandle](i)
	return events.NewStreamHandler(bus.Bus, log.Component("stream")), nil
}
