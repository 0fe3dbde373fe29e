package service

import (
	"context"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
)

// OrderRepository is the durable order storage contract, implemented by
// store.Store.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	GetOrderByCaptureID(ctx context.Context, captureID string) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	UpdateOrderState(ctx context.Context, order *models.Order) error
	AppendTrackingEvent(ctx context.Context, event *models.TrackingEvent) (bool, error)
	ListTrackingEvents(ctx context.Context, orderID int64) ([]models.TrackingEvent, error)
}

// SessionStore is the ephemeral checkout session contract, implemented by
// session.Store. Get returns session.ErrNotFound on a miss.
type SessionStore interface {
	Put(ctx context.Context, gatewayOrderID string, sess *models.CheckoutSession) error
	Get(ctx context.Context, gatewayOrderID string) (*models.CheckoutSession, error)
	Delete(ctx context.Context, gatewayOrderID string) error
}

// PaymentGateway is the payment provider contract, implemented by
// gateway.Client.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount gateway.AmountBreakdown, items []models.CartItem, shipping models.Address, urls gateway.ReturnURLs) (*gateway.CreateOrderResult, error)
	CaptureOrder(ctx context.Context, gatewayOrderID string) (*gateway.CaptureResult, error)
	SubmitTracking(ctx context.Context, captureID, trackingNumber, carrier string) error
}

// EventPublisher is the outbound event contract, implemented by
// broker.EventPublisher.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderShipped(ctx context.Context, event *models.OrderShippedEvent) error
	PublishOrderDelivered(ctx context.Context, event *models.OrderDeliveredEvent) error
	PublishReconcileOrder(ctx context.Context, event *models.ReconcileOrderEvent) error
	PublishReconcileAlert(ctx context.Context, event *models.ReconcileAlertEvent) error
}
