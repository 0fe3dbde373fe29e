package worker

import (
	"context"
	"log"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"
)

// ReconcileWorker consumes reconciliation events for captures whose local
// order persistence failed and retries the creation. The retry is gated on
// the capture-id dedupe check, so redelivered events are harmless.
type ReconcileWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	checkout     *service.CheckoutService
}

// NewReconcileWorker creates a new reconciliation worker
func NewReconcileWorker(consumer *broker.Consumer, checkout *service.CheckoutService) *ReconcileWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnReconcileOrder(func(ctx context.Context, event *models.ReconcileOrderEvent) error {
		if event.Order == nil {
			log.Printf("Reconcile event %s carried no order draft, skipping", event.EventID)
			return nil
		}

		if err := checkout.RecreateOrder(ctx, event.Order, event.Items); err != nil {
			util.ReconcileRetriesTotal.WithLabelValues("failed").Inc()
			// Returning the error leaves the message uncommitted for another attempt.
			return err
		}

		util.ReconcileRetriesTotal.WithLabelValues("ok").Inc()
		log.Printf("Reconciled order for capture %s", event.GatewayCaptureID)
		return nil
	})

	eventHandler.OnReconcileAlert(func(ctx context.Context, event *models.ReconcileAlertEvent) error {
		// Nothing to rebuild from; surface for operators and move on.
		log.Printf("ALERT: capture %s (gateway order %s) needs manual reconciliation: %s",
			event.GatewayCaptureID, event.GatewayOrderID, event.Reason)
		return nil
	})

	return &ReconcileWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		checkout:     checkout,
	}
}

// Start starts the worker
func (w *ReconcileWorker) Start(ctx context.Context) error {
	log.Println("Starting reconciliation worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReconcileWorker) Stop() error {
	log.Println("Stopping reconciliation worker...")
	return w.consumer.Close()
}
