package models

import "time"

// Event types
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderShipped   = "ORDER_SHIPPED"
	EventTypeOrderDelivered = "ORDER_DELIVERED"
	EventTypeReconcileOrder = "RECONCILE_ORDER"
	EventTypeReconcileAlert = "RECONCILE_ALERT"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order aggregate is persisted
type OrderCreatedEvent struct {
	BaseEvent
	OrderID          int64  `json:"order_id"`
	OrderNumber      string `json:"order_number"`
	GatewayCaptureID string `json:"gateway_capture_id"`
	TotalAmount      int64  `json:"total_amount"`
}

// OrderShippedEvent published when tracking is attached and the order ships
type OrderShippedEvent struct {
	BaseEvent
	OrderID        int64  `json:"order_id"`
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
}

// OrderDeliveredEvent published when the order is marked delivered
type OrderDeliveredEvent struct {
	BaseEvent
	OrderID int64 `json:"order_id"`
}

// ReconcileOrderEvent carries the full order draft for a capture whose local
// persistence failed. The reconciliation worker retries creation from it,
// gated on the capture-id dedupe check.
type ReconcileOrderEvent struct {
	BaseEvent
	GatewayOrderID   string      `json:"gateway_order_id"`
	GatewayCaptureID string      `json:"gateway_capture_id"`
	GatewayPayerID   string      `json:"gateway_payer_id"`
	Order            *Order      `json:"order"`
	Items            []OrderItem `json:"items"`
	Reason           string      `json:"reason"`
}

// ReconcileAlertEvent signals a capture with no checkout session to rebuild
// an order from. Operators resolve these out of band.
type ReconcileAlertEvent struct {
	BaseEvent
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayCaptureID string `json:"gateway_capture_id"`
	Reason           string `json:"reason"`
}
