package app

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/chainbazaar/escrowd/internal/domain"
	"github.com/chainbazaar/escrowd/internal/server/ws"
)

// listingChannel is the event bus channel carrying listing events. The
// websocket hub subscribes to the same channel.
const listingChannel = "ch:listing"

// busSink publishes listing events to the Redis event bus so other processes
// (and the websocket hub) can observe them.
type busSink struct {
	bus    domain.EventBus
	logger *slog.Logger
}

func newBusSink(bus domain.EventBus, logger *slog.Logger) *busSink {
	return &busSink{bus: bus, logger: logger}
}

func (s *busSink) Emit(ctx context.Context, ev domain.Event) {
	data, err := json.Marshal(ev.WirePayload())
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, listingChannel, data); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()),
		)
	}
}

// hubSink feeds the websocket hub directly, for deployments without Redis.
type hubSink struct {
	hub *ws.Hub
}

func newHubSink(hub *ws.Hub) *hubSink {
	return &hubSink{hub: hub}
}

func (s *hubSink) Emit(_ context.Context, ev domain.Event) {
	data, err := json.Marshal(ev.WirePayload())
	if err != nil {
		return
	}
	s.hub.Broadcast(data)
}

// Compile-time interface checks.
var (
	_ domain.Sink = (*busSink)(nil)
	_ domain.Sink = (*hubSink)(nil)
)
