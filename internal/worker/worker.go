package worker

import (
	"context"
	"log"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/payment"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GatewayWorker consumes payment-gateway callback events and applies them
// through the payment coordinator, so deployments that confirm prepaid
// payments asynchronously converge on the gateway's verdict.
type GatewayWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.GatewayEventHandler
}

// NewGatewayWorker creates a new gateway worker
func NewGatewayWorker(consumer *broker.Consumer, coordinator *payment.Coordinator) *GatewayWorker {
	eventHandler := broker.NewGatewayEventHandler()

	eventHandler.OnConfirmed(func(ctx context.Context, event *models.GatewayPaymentEvent) error {
		id, err := primitive.ObjectIDFromHex(event.PaymentID)
		if err != nil {
			log.Printf("Ignoring gateway event with malformed payment id: %s", event.PaymentID)
			return nil
		}
		_, err = coordinator.UpdateStatus(ctx, id, &payment.UpdateStatusRequest{
			Status:        models.PaymentStatusPaid,
			TransactionID: event.TransactionID,
			Gateway:       event.Gateway,
		})
		return err
	})

	eventHandler.OnDeclined(func(ctx context.Context, event *models.GatewayPaymentEvent) error {
		id, err := primitive.ObjectIDFromHex(event.PaymentID)
		if err != nil {
			log.Printf("Ignoring gateway event with malformed payment id: %s", event.PaymentID)
			return nil
		}
		_, err = coordinator.UpdateStatus(ctx, id, &payment.UpdateStatusRequest{
			Status:        models.PaymentStatusFailed,
			Gateway:       event.Gateway,
			FailureReason: event.Reason,
		})
		return err
	})

	return &GatewayWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *GatewayWorker) Start(ctx context.Context) error {
	log.Println("Starting gateway callback worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *GatewayWorker) Stop() error {
	log.Println("Stopping gateway callback worker...")
	return w.consumer.Close()
}
