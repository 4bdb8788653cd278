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
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderPlaced publishes OrderPlaced event
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	key := fmt.Sprintf("order-%s", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPaymentStatusChanged publishes PaymentStatusChanged event
func (ep *EventPublisher) PublishPaymentStatusChanged(ctx context.Context, event *models.PaymentStatusChangedEvent) error {
	key := fmt.Sprintf("order-%s", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPaymentRefunded publishes PaymentRefunded event
func (ep *EventPublisher) PublishPaymentRefunded(ctx context.Context, event *models.PaymentRefundedEvent) error {
	key := fmt.Sprintf("order-%s", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// GatewayEventHandler routes inbound payment-gateway callbacks.
type GatewayEventHandler struct {
	onConfirmed func(context.Context, *models.GatewayPaymentEvent) error
	onDeclined  func(context.Context, *models.GatewayPaymentEvent) error
}

// NewGatewayEventHandler creates a new gateway event handler
func NewGatewayEventHandler() *GatewayEventHandler {
	return &GatewayEventHandler{}
}

// OnConfirmed registers a handler for PAYMENT_CONFIRMED callbacks
func (eh *GatewayEventHandler) OnConfirmed(handler func(context.Context, *models.GatewayPaymentEvent) error) {
	eh.onConfirmed = handler
}

// OnDeclined registers a handler for PAYMENT_DECLINED callbacks
func (eh *GatewayEventHandler) OnDeclined(handler func(context.Context, *models.GatewayPaymentEvent) error) {
	eh.onDeclined = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *GatewayEventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var event models.GatewayPaymentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal gateway event: %w", err)
	}

	log.Printf("Handling gateway event: type=%s, id=%s", event.EventType, event.EventID)

	switch event.EventType {
	case models.EventTypeGatewayConfirmed:
		if eh.onConfirmed != nil {
			return eh.onConfirmed(ctx, &event)
		}
	case models.EventTypeGatewayDeclined:
		if eh.onDeclined != nil {
			return eh.onDeclined(ctx, &event)
		}
	default:
		log.Printf("Unhandled gateway event type: %s", event.EventType)
	}

	return nil
}
