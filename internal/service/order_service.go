package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

var (
	ErrMissingCapture   = errors.New("order has no gateway capture to attach tracking to")
	ErrInvalidTracking  = errors.New("tracking number and carrier are required")
	ErrInvalidPayStatus = errors.New("invalid payment status")
	ErrInvalidFulfill   = errors.New("invalid fulfillment status")
)

// OrderService drives the order state machine: shipment tracking
// synchronization with the gateway and admin-initiated mutation. All status
// changes funnel through Order.ApplyStatus so the coupled side effects fire
// the same way at every call site.
type OrderService struct {
	repo    OrderRepository
	gateway PaymentGateway
	events  EventPublisher
	logger  *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(repo OrderRepository, gw PaymentGateway, events EventPublisher) *OrderService {
	return &OrderService{
		repo:    repo,
		gateway: gw,
		events:  events,
		logger:  util.GetLogger(),
	}
}

// OrderDetail aggregates an order with its items and shipment history.
type OrderDetail struct {
	Order    *models.Order          `json:"order"`
	Items    []models.OrderItem     `json:"items"`
	Tracking []models.TrackingEvent `json:"tracking"`
}

// GetOrder retrieves an order with its items and tracking history.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*OrderDetail, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}

	tracking, err := s.repo.ListTrackingEvents(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &OrderDetail{Order: order, Items: items, Tracking: tracking}, nil
}

// GetOrderByNumber retrieves an order by its human-facing number.
func (s *OrderService) GetOrderByNumber(ctx context.Context, orderNumber string) (*OrderDetail, error) {
	order, err := s.repo.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, order.ID)
}

// ListUserOrders retrieves all orders placed by a registered user, newest
// first.
func (s *OrderService) ListUserOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.repo.GetOrdersByUserID(ctx, userID)
}

// AddTracking submits carrier tracking to the gateway and moves the order to
// SHIPPED. Re-submitting the same tracking number is a no-op: the history
// gains no duplicate entry and shipped_at keeps its original value.
func (s *OrderService) AddTracking(ctx context.Context, orderID int64, trackingNumber, carrier string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AddTracking")
	defer span.End()

	if trackingNumber == "" || carrier == "" {
		return nil, ErrInvalidTracking
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.GatewayCaptureID == "" {
		return nil, ErrMissingCapture
	}

	if order.TrackingNumber == trackingNumber && order.FulfillmentStatus != models.FulfillmentUnfulfilled {
		s.logger.Info("Tracking already attached",
			zap.Int64("order_id", orderID),
			zap.String("tracking_number", trackingNumber))
		return order, nil
	}

	if err := s.gateway.SubmitTracking(ctx, order.GatewayCaptureID, trackingNumber, carrier); err != nil {
		return nil, fmt.Errorf("failed to submit tracking to gateway: %w", err)
	}

	order.TrackingNumber = trackingNumber
	order.Carrier = carrier
	if err := order.ApplyStatus(models.OrderStatusShipped, time.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateOrderState(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	inserted, err := s.repo.AppendTrackingEvent(ctx, &models.TrackingEvent{
		OrderID:        orderID,
		TrackingNumber: trackingNumber,
		Carrier:        carrier,
		Description:    fmt.Sprintf("Shipment registered with %s", carrier),
	})
	if err != nil {
		s.logger.Error("Failed to append tracking history", zap.Error(err))
	}

	if inserted {
		util.OrdersShippedTotal.Inc()
		event := &models.OrderShippedEvent{
			BaseEvent:      newBaseEvent(models.EventTypeOrderShipped),
			OrderID:        orderID,
			TrackingNumber: trackingNumber,
			Carrier:        carrier,
		}
		if err := s.events.PublishOrderShipped(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderShipped event", zap.Error(err))
		}
	}

	s.logger.Info("Tracking attached",
		zap.Int64("order_id", orderID),
		zap.String("tracking_number", trackingNumber),
		zap.String("carrier", carrier))
	return order, nil
}

// MarkDelivered moves a shipped order to DELIVERED. Requires a tracking
// number to already be present.
func (s *OrderService) MarkDelivered(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.MarkDelivered")
	defer span.End()

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := order.ApplyStatus(models.OrderStatusDelivered, time.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateOrderState(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	util.OrdersDeliveredTotal.Inc()
	event := &models.OrderDeliveredEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderDelivered),
		OrderID:   orderID,
	}
	if err := s.events.PublishOrderDelivered(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderDelivered event", zap.Error(err))
	}

	s.logger.Info("Order delivered", zap.Int64("order_id", orderID))
	return order, nil
}

// AdminUpdateRequest is a partial update; nil fields are left untouched.
// The HTTP layer rejects unknown fields before this is built.
type AdminUpdateRequest struct {
	Status            *string   `json:"status"`
	PaymentStatus     *string   `json:"payment_status"`
	FulfillmentStatus *string   `json:"fulfillment_status"`
	TrackingNumber    *string   `json:"tracking_number"`
	Carrier           *string   `json:"carrier"`
	Notes             *string   `json:"notes"`
	Tags              *[]string `json:"tags"`
}

// AdminUpdateOrder applies an authorized partial update. Status changes run
// through the same transition table as every other setter.
func (s *OrderService) AdminUpdateOrder(ctx context.Context, orderID int64, req *AdminUpdateRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AdminUpdateOrder")
	defer span.End()

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		util.AdminUpdatesTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	// Tracking before status, so an update carrying both can move straight
	// to SHIPPED or DELIVERED.
	if req.TrackingNumber != nil {
		order.TrackingNumber = *req.TrackingNumber
	}
	if req.Carrier != nil {
		order.Carrier = *req.Carrier
	}

	if req.PaymentStatus != nil {
		if *req.PaymentStatus != models.PaymentStatusPaid {
			util.AdminUpdatesTotal.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("%w: %q", ErrInvalidPayStatus, *req.PaymentStatus)
		}
		order.PaymentStatus = *req.PaymentStatus
	}

	if req.FulfillmentStatus != nil {
		if !models.ValidFulfillmentStatus(*req.FulfillmentStatus) {
			util.AdminUpdatesTotal.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("%w: %q", ErrInvalidFulfill, *req.FulfillmentStatus)
		}
		order.FulfillmentStatus = *req.FulfillmentStatus
	}

	if req.Status != nil {
		if err := order.ApplyStatus(*req.Status, time.Now()); err != nil {
			util.AdminUpdatesTotal.WithLabelValues("rejected").Inc()
			return nil, err
		}
	}

	if req.Notes != nil {
		order.Notes = *req.Notes
	}
	if req.Tags != nil {
		order.Tags = *req.Tags
	}

	if err := s.repo.UpdateOrderState(ctx, order); err != nil {
		util.AdminUpdatesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	util.AdminUpdatesTotal.WithLabelValues("ok").Inc()
	s.logger.Info("Admin updated order", zap.Int64("order_id", orderID))
	return order, nil
}
