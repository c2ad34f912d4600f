package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Nishal77/QueueManagement-sub000/internal/platform/websocket"
)

// Broadcaster publishes an event to the subscribers of its topic.
type Broadcaster interface {
	Publish(ctx context.Context, event websocket.Event) error
}

// Dispatcher fans one payload out to several topics.
type Dispatcher struct {
	hub    Broadcaster
	logger zerolog.Logger
}

func NewDispatcher(hub Broadcaster, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{hub: hub, logger: logger.With().Str("component", "dispatcher").Logger()}
}

// Notify marshals payload once and publishes it to every topic. Every topic
// is attempted; the returned error joins the individual failures.
func (d *Dispatcher) Notify(ctx context.Context, eventType string, payload interface{}, topics ...string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	var errs []error
	for _, topic := range topics {
		if err := d.hub.Publish(ctx, websocket.Event{Type: eventType, Topic: topic, Data: data}); err != nil {
			d.logger.Warn().Err(err).Str("topic", topic).Str("type", eventType).Msg("publish failed")
			errs = append(errs, fmt.Errorf("%s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}
