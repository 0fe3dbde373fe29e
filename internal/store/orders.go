package store

import (
	"context"
	"database/sql"
	"fmt"

	"checkout-service/internal/models"
)

// CreateOrder persists the order aggregate and its items in one transaction.
// Either everything lands or nothing does; a failure on any item insert
// rolls back the order row as well.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (
			order_number, user_id, guest_email,
			status, payment_status, fulfillment_status,
			subtotal, tax_amount, shipping_amount, discount_amount, total_amount,
			shipping_address, billing_address,
			gateway_order_id, gateway_capture_id, gateway_payer_id,
			tracking_number, carrier, notes, tags
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		order.OrderNumber, order.UserID, order.GuestEmail,
		order.Status, order.PaymentStatus, order.FulfillmentStatus,
		order.Subtotal, order.TaxAmount, order.ShippingAmount, order.DiscountAmount, order.TotalAmount,
		order.ShippingAddress, order.BillingAddress,
		order.GatewayOrderID, order.GatewayCaptureID, order.GatewayPayerID,
		order.TrackingNumber, order.Carrier, order.Notes, order.Tags,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrDuplicateCapture, err)
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price, total_price, variants, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.QueryRowxContext(ctx, itemQuery,
			items[i].OrderID, items[i].ProductID, items[i].Quantity,
			items[i].UnitPrice, items[i].TotalPrice, items[i].Variants, items[i].Snapshot,
		).Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByCaptureID retrieves the order created for a gateway capture.
// Returns (nil, nil) when none exists; the capture-phase dedupe check
// depends on that distinction.
func (s *Store) GetOrderByCaptureID(ctx context.Context, captureID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE gateway_capture_id = $1", captureID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByNumber retrieves an order by its human-facing number.
func (s *Store) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_number = $1", orderNumber)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderNumber)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetOrderItems retrieves all items for an order
func (s *Store) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// UpdateOrderState persists the mutable order fields after a status
// transition or admin edit. The monetary columns and item rows are never
// touched here: they are fixed at creation.
func (s *Store) UpdateOrderState(ctx context.Context, order *models.Order) error {
	query := `
		UPDATE orders SET
			status = $1,
			payment_status = $2,
			fulfillment_status = $3,
			tracking_number = $4,
			carrier = $5,
			notes = $6,
			tags = $7,
			shipped_at = $8,
			delivered_at = $9,
			updated_at = NOW()
		WHERE id = $10`

	result, err := s.db.ExecContext(ctx, query,
		order.Status, order.PaymentStatus, order.FulfillmentStatus,
		order.TrackingNumber, order.Carrier, order.Notes, order.Tags,
		order.ShippedAt, order.DeliveredAt, order.ID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, order.ID)
	}
	return nil
}

// AppendTrackingEvent adds one entry to the order's shipment history.
// Re-submitting the same tracking number is a no-op; the bool reports
// whether a new row was written.
func (s *Store) AppendTrackingEvent(ctx context.Context, event *models.TrackingEvent) (bool, error) {
	query := `
		INSERT INTO tracking_events (order_id, tracking_number, carrier, description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id, tracking_number) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query,
		event.OrderID, event.TrackingNumber, event.Carrier, event.Description)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ListTrackingEvents retrieves the shipment history for an order.
func (s *Store) ListTrackingEvents(ctx context.Context, orderID int64) ([]models.TrackingEvent, error) {
	var events []models.TrackingEvent
	err := s.db.SelectContext(ctx, &events,
		"SELECT * FROM tracking_events WHERE order_id = $1 ORDER BY created_at", orderID)
	return events, err
}
