package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/pricing"
	"checkout-service/internal/session"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidCartItem  = errors.New("cart item requires a product id, positive quantity and non-negative price")
	ErrIncompleteAddr   = errors.New("shipping address requires name, line1, city, postal code and country")
	ErrMissingReference = errors.New("direct order creation requires a gateway capture id")
)

// CheckoutService runs the two-phase checkout protocol: open a gateway
// order against a priced cart, then capture it and persist the order
// aggregate. The capture side is written so the gateway's answer always
// reaches the caller even when local reconciliation degrades.
type CheckoutService struct {
	repo     OrderRepository
	sessions SessionStore
	gateway  PaymentGateway
	events   EventPublisher
	logger   *zap.Logger

	currency  string
	returnURL string
	cancelURL string
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	repo OrderRepository,
	sessions SessionStore,
	gw PaymentGateway,
	events EventPublisher,
	currency, returnURL, cancelURL string,
) *CheckoutService {
	return &CheckoutService{
		repo:      repo,
		sessions:  sessions,
		gateway:   gw,
		events:    events,
		logger:    util.GetLogger(),
		currency:  currency,
		returnURL: returnURL,
		cancelURL: cancelURL,
	}
}

// OpenCheckoutRequest carries the cart, customer and addresses for phase one.
type OpenCheckoutRequest struct {
	Items           []models.CartItem `json:"items"`
	Customer        models.Customer   `json:"customer"`
	ShippingAddress models.Address    `json:"shipping_address"`
	BillingAddress  models.Address    `json:"billing_address"`
}

// OpenCheckoutResponse returns the gateway order id the session is keyed by
// and the link the buyer approves the payment at.
type OpenCheckoutResponse struct {
	GatewayOrderID string        `json:"gateway_order_id"`
	ApprovalLink   string        `json:"approval_link"`
	Totals         models.Totals `json:"totals"`
}

// CaptureCheckoutResponse always reflects the gateway's capture result.
// Order is nil and Warning is set when the payment stands but the local
// order could not be created; that is a reconciliation case, not a failure.
type CaptureCheckoutResponse struct {
	PaymentStatus string        `json:"payment_status"`
	CaptureID     string        `json:"capture_id"`
	Order         *models.Order `json:"order,omitempty"`
	Warning       string        `json:"warning,omitempty"`
}

// DirectOrderRequest is the guest path that bypasses the session store. The
// payment must already be captured; totals are re-derived server-side.
type DirectOrderRequest struct {
	Items            []models.CartItem `json:"items"`
	Customer         models.Customer   `json:"customer"`
	ShippingAddress  models.Address    `json:"shipping_address"`
	BillingAddress   models.Address    `json:"billing_address"`
	GatewayOrderID   string            `json:"gateway_order_id"`
	GatewayCaptureID string            `json:"gateway_capture_id"`
	GatewayPayerID   string            `json:"gateway_payer_id"`
}

// OpenCheckout prices the cart, opens a gateway order and stores the
// checkout session under the returned id. Any failure here leaves no local
// state behind and is safe to retry.
func (s *CheckoutService) OpenCheckout(ctx context.Context, req *OpenCheckoutRequest) (*OpenCheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.OpenCheckout")
	defer span.End()

	if err := validateCart(req.Items); err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("open", "validation").Inc()
		return nil, err
	}
	if err := req.Customer.Validate(); err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("open", "validation").Inc()
		return nil, err
	}
	if err := validateAddress(req.ShippingAddress); err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("open", "validation").Inc()
		return nil, err
	}

	totals := quoteTotals(req.Items)

	created, err := s.gateway.CreateOrder(ctx,
		gateway.AmountBreakdown{
			Currency: s.currency,
			Subtotal: totals.Subtotal,
			Shipping: totals.Shipping,
			Tax:      totals.Tax,
			Discount: totals.Discount,
			Total:    totals.Total,
		},
		req.Items,
		req.ShippingAddress,
		gateway.ReturnURLs{Return: s.returnURL, Cancel: s.cancelURL},
	)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("open", "gateway").Inc()
		return nil, err
	}

	sess := &models.CheckoutSession{
		GatewayOrderID:  created.OrderID,
		Items:           req.Items,
		Customer:        req.Customer,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		Totals:          totals,
		CreatedAt:       time.Now(),
	}
	if err := s.sessions.Put(ctx, created.OrderID, sess); err != nil {
		// No capture has happened; the dangling gateway order is never
		// funded and the whole open phase can be retried.
		util.CheckoutsFailedTotal.WithLabelValues("open", "session_store").Inc()
		return nil, fmt.Errorf("failed to store checkout session: %w", err)
	}

	util.CheckoutsOpenedTotal.Inc()
	s.logger.Info("Checkout opened",
		zap.String("gateway_order_id", created.OrderID),
		zap.Int64("total", totals.Total))

	return &OpenCheckoutResponse{
		GatewayOrderID: created.OrderID,
		ApprovalLink:   created.ApprovalLink,
		Totals:         totals,
	}, nil
}

// CaptureCheckout captures the gateway order and persists the order
// aggregate from the stored session. The capture call is issued exactly
// once: a gateway error is surfaced verbatim, and any problem after a
// successful capture is reported as a warning, never retried with a second
// capture.
func (s *CheckoutService) CaptureCheckout(ctx context.Context, gatewayOrderID string) (*CaptureCheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CaptureCheckout")
	defer span.End()

	capture, err := s.gateway.CaptureOrder(ctx, gatewayOrderID)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("capture", "gateway").Inc()
		return nil, err
	}

	util.CheckoutsCapturedTotal.Inc()
	resp := &CaptureCheckoutResponse{
		PaymentStatus: capture.Status,
		CaptureID:     capture.CaptureID,
	}

	// Money has moved; from here on everything degrades to a warning.
	if existing, err := s.repo.GetOrderByCaptureID(ctx, capture.CaptureID); err == nil && existing != nil {
		s.logger.Info("Capture already reconciled",
			zap.String("capture_id", capture.CaptureID),
			zap.Int64("order_id", existing.ID))
		_ = s.sessions.Delete(ctx, gatewayOrderID)
		resp.Order = existing
		return resp, nil
	}

	sess, err := s.sessions.Get(ctx, gatewayOrderID)
	if err != nil {
		reason := "session_unavailable"
		if errors.Is(err, session.ErrNotFound) {
			reason = "session_missing"
		}
		s.reconcileAlert(ctx, gatewayOrderID, capture.CaptureID, reason)
		resp.Warning = "payment captured but checkout session was not found; order pending reconciliation"
		return resp, nil
	}

	order, items := s.buildOrder(sess, gatewayOrderID, capture)
	if err := s.createOrder(ctx, order, items); err != nil {
		if existing, lookupErr := s.repo.GetOrderByCaptureID(ctx, capture.CaptureID); lookupErr == nil && existing != nil {
			// A concurrent duplicate capture request won the insert race.
			_ = s.sessions.Delete(ctx, gatewayOrderID)
			resp.Order = existing
			return resp, nil
		}
		s.reconcileOrder(ctx, gatewayOrderID, capture, order, items, err)
		resp.Warning = "payment captured but order persistence failed; order pending reconciliation"
		return resp, nil
	}

	if err := s.sessions.Delete(ctx, gatewayOrderID); err != nil {
		s.logger.Warn("Failed to delete consumed checkout session",
			zap.String("gateway_order_id", gatewayOrderID),
			zap.Error(err))
	}

	resp.Order = order
	return resp, nil
}

// CreateOrderDirect creates an order for an already-captured payment without
// a checkout session. Totals are re-derived from the priced cart; client
// submitted amounts are never trusted.
func (s *CheckoutService) CreateOrderDirect(ctx context.Context, req *DirectOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateOrderDirect")
	defer span.End()

	if err := validateCart(req.Items); err != nil {
		return nil, err
	}
	if err := req.Customer.Validate(); err != nil {
		return nil, err
	}
	if err := validateAddress(req.ShippingAddress); err != nil {
		return nil, err
	}
	if req.GatewayCaptureID == "" {
		return nil, ErrMissingReference
	}

	if existing, err := s.repo.GetOrderByCaptureID(ctx, req.GatewayCaptureID); err != nil {
		return nil, fmt.Errorf("failed to check for existing order: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	sess := &models.CheckoutSession{
		Items:           req.Items,
		Customer:        req.Customer,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		Totals:          quoteTotals(req.Items),
	}
	order, items := s.buildOrder(sess, req.GatewayOrderID, &gateway.CaptureResult{
		CaptureID: req.GatewayCaptureID,
		PayerID:   req.GatewayPayerID,
	})

	if err := s.createOrder(ctx, order, items); err != nil {
		if existing, lookupErr := s.repo.GetOrderByCaptureID(ctx, req.GatewayCaptureID); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return order, nil
}

// RecreateOrder retries a reconciliation draft, gated on the capture-id
// dedupe check. Used by the reconciliation worker.
func (s *CheckoutService) RecreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	existing, err := s.repo.GetOrderByCaptureID(ctx, order.GatewayCaptureID)
	if err != nil {
		return fmt.Errorf("failed to check for existing order: %w", err)
	}
	if existing != nil {
		return nil
	}
	return s.createOrder(ctx, order, items)
}

// buildOrder assembles the aggregate from a session snapshot and a capture
// result. An order is only ever built after a successful capture, so it is
// born CONFIRMED and PAID.
func (s *CheckoutService) buildOrder(sess *models.CheckoutSession, gatewayOrderID string, capture *gateway.CaptureResult) (*models.Order, []models.OrderItem) {
	order := &models.Order{
		OrderNumber:       newOrderNumber(),
		UserID:            sess.Customer.UserID,
		Status:            models.OrderStatusConfirmed,
		PaymentStatus:     models.PaymentStatusPaid,
		FulfillmentStatus: models.FulfillmentUnfulfilled,
		Subtotal:          sess.Totals.Subtotal,
		TaxAmount:         sess.Totals.Tax,
		ShippingAmount:    sess.Totals.Shipping,
		DiscountAmount:    sess.Totals.Discount,
		TotalAmount:       sess.Totals.Total,
		ShippingAddress:   sess.ShippingAddress,
		BillingAddress:    sess.BillingAddress,
		GatewayOrderID:    gatewayOrderID,
		GatewayCaptureID:  capture.CaptureID,
		GatewayPayerID:    capture.PayerID,
	}
	if sess.Customer.GuestEmail != "" {
		email := sess.Customer.GuestEmail
		order.GuestEmail = &email
	}

	items := make([]models.OrderItem, 0, len(sess.Items))
	for _, it := range sess.Items {
		items = append(items, models.OrderItem{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			TotalPrice: it.UnitPrice * int64(it.Quantity),
			Variants:   it.Variants,
			Snapshot:   it.Snapshot,
		})
	}
	return order, items
}

func (s *CheckoutService) createOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	if err := order.Validate(); err != nil {
		return err
	}
	if err := s.repo.CreateOrder(ctx, order, items); err != nil {
		return err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("capture_id", order.GatewayCaptureID))

	event := &models.OrderCreatedEvent{
		BaseEvent:        newBaseEvent(models.EventTypeOrderCreated),
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		GatewayCaptureID: order.GatewayCaptureID,
		TotalAmount:      order.TotalAmount,
	}
	if err := s.events.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
	return nil
}

func (s *CheckoutService) reconcileAlert(ctx context.Context, gatewayOrderID, captureID, reason string) {
	util.ReconcileWarningsTotal.WithLabelValues(reason).Inc()
	s.logger.Warn("Capture succeeded without local reconciliation",
		zap.String("gateway_order_id", gatewayOrderID),
		zap.String("capture_id", captureID),
		zap.String("reason", reason))

	event := &models.ReconcileAlertEvent{
		BaseEvent:        newBaseEvent(models.EventTypeReconcileAlert),
		GatewayOrderID:   gatewayOrderID,
		GatewayCaptureID: captureID,
		Reason:           reason,
	}
	if err := s.events.PublishReconcileAlert(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReconcileAlert event", zap.Error(err))
	}
}

func (s *CheckoutService) reconcileOrder(ctx context.Context, gatewayOrderID string, capture *gateway.CaptureResult, order *models.Order, items []models.OrderItem, cause error) {
	util.ReconcileWarningsTotal.WithLabelValues("persist_failed").Inc()
	s.logger.Error("Order persistence failed after capture",
		zap.String("gateway_order_id", gatewayOrderID),
		zap.String("capture_id", capture.CaptureID),
		zap.Error(cause))

	event := &models.ReconcileOrderEvent{
		BaseEvent:        newBaseEvent(models.EventTypeReconcileOrder),
		GatewayOrderID:   gatewayOrderID,
		GatewayCaptureID: capture.CaptureID,
		GatewayPayerID:   capture.PayerID,
		Order:            order,
		Items:            items,
		Reason:           cause.Error(),
	}
	if err := s.events.PublishReconcileOrder(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReconcileOrder event", zap.Error(err))
	}
}

func quoteTotals(items []models.CartItem) models.Totals {
	lines := make([]pricing.LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, pricing.LineItem{UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	q := pricing.Calculate(lines)
	return models.Totals{
		Subtotal: q.ItemTotal,
		Shipping: q.Shipping,
		Tax:      q.Tax,
		Discount: q.Discount,
		Total:    q.Total,
	}
}

func validateCart(items []models.CartItem) error {
	if len(items) == 0 {
		return models.ErrEmptyCart
	}
	for _, it := range items {
		if it.ProductID <= 0 || it.Quantity <= 0 || it.UnitPrice < 0 {
			return ErrInvalidCartItem
		}
	}
	return nil
}

func validateAddress(addr models.Address) error {
	if addr.Name == "" || addr.Line1 == "" || addr.City == "" || addr.PostalCode == "" || addr.Country == "" {
		return ErrIncompleteAddr
	}
	return nil
}

// newOrderNumber derives a human-facing order number from the creation time
// plus a random suffix, so sub-millisecond concurrent creation cannot
// collide.
func newOrderNumber() string {
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
