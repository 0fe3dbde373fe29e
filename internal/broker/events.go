package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"checkout-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	orders    *Producer
	reconcile *Producer
}

// NewEventPublisher creates a new event publisher. Order lifecycle events
// and reconciliation events go to separate topics.
func NewEventPublisher(orders, reconcile *Producer) *EventPublisher {
	return &EventPublisher{orders: orders, reconcile: reconcile}
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.orders.PublishEvent(ctx, key, event)
}

// PublishOrderShipped publishes OrderShipped event
func (ep *EventPublisher) PublishOrderShipped(ctx context.Context, event *models.OrderShippedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.orders.PublishEvent(ctx, key, event)
}

// PublishOrderDelivered publishes OrderDelivered event
func (ep *EventPublisher) PublishOrderDelivered(ctx context.Context, event *models.OrderDeliveredEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.orders.PublishEvent(ctx, key, event)
}

// PublishReconcileOrder publishes a retryable order draft for a capture
// whose local persistence failed.
func (ep *EventPublisher) PublishReconcileOrder(ctx context.Context, event *models.ReconcileOrderEvent) error {
	key := fmt.Sprintf("capture-%s", event.GatewayCaptureID)
	return ep.reconcile.PublishEvent(ctx, key, event)
}

// PublishReconcileAlert publishes an operator alert for a capture with no
// session to rebuild an order from.
func (ep *EventPublisher) PublishReconcileAlert(ctx context.Context, event *models.ReconcileAlertEvent) error {
	key := fmt.Sprintf("capture-%s", event.GatewayCaptureID)
	return ep.reconcile.PublishEvent(ctx, key, event)
}

// EventHandler routes reconciliation messages to registered handlers
type EventHandler struct {
	onReconcileOrder func(context.Context, *models.ReconcileOrderEvent) error
	onReconcileAlert func(context.Context, *models.ReconcileAlertEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnReconcileOrder registers a handler for ReconcileOrder events
func (eh *EventHandler) OnReconcileOrder(handler func(context.Context, *models.ReconcileOrderEvent) error) {
	eh.onReconcileOrder = handler
}

// OnReconcileAlert registers a handler for ReconcileAlert events
func (eh *EventHandler) OnReconcileAlert(handler func(context.Context, *models.ReconcileAlertEvent) error) {
	eh.onReconcileAlert = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeReconcileOrder:
		if eh.onReconcileOrder != nil {
			var event models.ReconcileOrderEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReconcileOrder event: %w", err)
			}
			return eh.onReconcileOrder(ctx, &event)
		}

	case models.EventTypeReconcileAlert:
		if eh.onReconcileAlert != nil {
			var event models.ReconcileAlertEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReconcileAlert event: %w", err)
			}
			return eh.onReconcileAlert(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
