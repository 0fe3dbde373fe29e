package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Order lifecycle statuses
const (
	OrderStatusConfirmed  = "CONFIRMED"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusShipped    = "SHIPPED"
	OrderStatusDelivered  = "DELIVERED"
	OrderStatusCancelled  = "CANCELLED"
)

// Fulfillment statuses
const (
	FulfillmentUnfulfilled = "UNFULFILLED"
	FulfillmentShipped     = "SHIPPED"
	FulfillmentDelivered   = "DELIVERED"
)

// Payment statuses
const (
	PaymentStatusPaid = "PAID"
)

var (
	ErrInvalidStatus    = errors.New("invalid order status")
	ErrTrackingRequired = errors.New("delivery requires a tracking number")
	ErrCustomerRequired = errors.New("order requires a user id or a guest email")
	ErrEmptyCart        = errors.New("cart has no items")
	ErrTotalMismatch    = errors.New("total amount does not match its components")
)

// Address is a point-in-time snapshot embedded in the order, not a reference
// to the customer's address book.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// ProductSnapshot is the product's display data at purchase time. It is
// written once with the order item and never refreshed from the catalog.
type ProductSnapshot struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Images      []string `json:"images,omitempty"`
	Category    string   `json:"category,omitempty"`
	Price       int64    `json:"price"`
}

// VariantSelection maps a variant type (e.g. "size") to the chosen option.
type VariantSelection map[string]string

// Customer identifies who placed the order: a registered user, a guest
// email, or both.
type Customer struct {
	UserID     *int64 `json:"user_id,omitempty"`
	GuestEmail string `json:"guest_email,omitempty"`
}

// Validate ensures at least one customer reference is present.
func (c Customer) Validate() error {
	if c.UserID == nil && c.GuestEmail == "" {
		return ErrCustomerRequired
	}
	return nil
}

// CartItem is one priced line of a cart, carried through checkout into the
// order item it becomes.
type CartItem struct {
	ProductID int64            `json:"product_id"`
	Quantity  int              `json:"quantity"`
	UnitPrice int64            `json:"unit_price"`
	Variants  VariantSelection `json:"variants,omitempty"`
	Snapshot  ProductSnapshot  `json:"snapshot"`
}

// Totals is the monetary breakdown of a cart or order, in cents.
type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Tax      int64 `json:"tax"`
	Discount int64 `json:"discount"`
	Total    int64 `json:"total"`
}

// CheckoutSession is the ephemeral state between gateway order creation and
// capture, keyed by the gateway order id.
type CheckoutSession struct {
	GatewayOrderID  string     `json:"gateway_order_id"`
	Items           []CartItem `json:"items"`
	Customer        Customer   `json:"customer"`
	ShippingAddress Address    `json:"shipping_address"`
	BillingAddress  Address    `json:"billing_address"`
	Totals          Totals     `json:"totals"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Order is the durable aggregate created after a successful payment capture.
type Order struct {
	ID                int64          `db:"id" json:"id"`
	OrderNumber       string         `db:"order_number" json:"order_number"`
	UserID            *int64         `db:"user_id" json:"user_id,omitempty"`
	GuestEmail        *string        `db:"guest_email" json:"guest_email,omitempty"`
	Status            string         `db:"status" json:"status"`
	PaymentStatus     string         `db:"payment_status" json:"payment_status"`
	FulfillmentStatus string         `db:"fulfillment_status" json:"fulfillment_status"`
	Subtotal          int64          `db:"subtotal" json:"subtotal"`
	TaxAmount         int64          `db:"tax_amount" json:"tax_amount"`
	ShippingAmount    int64          `db:"shipping_amount" json:"shipping_amount"`
	DiscountAmount    int64          `db:"discount_amount" json:"discount_amount"`
	TotalAmount       int64          `db:"total_amount" json:"total_amount"`
	ShippingAddress   Address        `db:"shipping_address" json:"shipping_address"`
	BillingAddress    Address        `db:"billing_address" json:"billing_address"`
	GatewayOrderID    string         `db:"gateway_order_id" json:"gateway_order_id"`
	GatewayCaptureID  string         `db:"gateway_capture_id" json:"gateway_capture_id"`
	GatewayPayerID    string         `db:"gateway_payer_id" json:"gateway_payer_id"`
	TrackingNumber    string         `db:"tracking_number" json:"tracking_number,omitempty"`
	Carrier           string         `db:"carrier" json:"carrier,omitempty"`
	Notes             string         `db:"notes" json:"notes,omitempty"`
	Tags              pq.StringArray `db:"tags" json:"tags,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
	ShippedAt         *time.Time     `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time     `db:"delivered_at" json:"delivered_at,omitempty"`
}

// OrderItem is owned by its order and created atomically with it.
type OrderItem struct {
	ID         int64            `db:"id" json:"id"`
	OrderID    int64            `db:"order_id" json:"order_id"`
	ProductID  int64            `db:"product_id" json:"product_id"`
	Quantity   int              `db:"quantity" json:"quantity"`
	UnitPrice  int64            `db:"unit_price" json:"unit_price"`
	TotalPrice int64            `db:"total_price" json:"total_price"`
	Variants   VariantSelection `db:"variants" json:"variants,omitempty"`
	Snapshot   ProductSnapshot  `db:"snapshot" json:"snapshot"`
}

// TrackingEvent is one entry of the order's append-only shipment history.
type TrackingEvent struct {
	ID             int64     `db:"id" json:"id"`
	OrderID        int64     `db:"order_id" json:"order_id"`
	TrackingNumber string    `db:"tracking_number" json:"tracking_number"`
	Carrier        string    `db:"carrier" json:"carrier"`
	Description    string    `db:"description" json:"description,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Validate checks the creation-time invariants of the aggregate.
func (o *Order) Validate() error {
	if o.UserID == nil && (o.GuestEmail == nil || *o.GuestEmail == "") {
		return ErrCustomerRequired
	}
	if o.TotalAmount != o.Subtotal+o.TaxAmount+o.ShippingAmount-o.DiscountAmount {
		return ErrTotalMismatch
	}
	return nil
}

// ApplyStatus transitions the order to the given lifecycle status and applies
// the side effects coupled to it. Every status setter goes through here so
// the fulfillment axis and timestamps stay consistent regardless of caller.
func (o *Order) ApplyStatus(status string, now time.Time) error {
	switch status {
	case OrderStatusConfirmed, OrderStatusProcessing, OrderStatusCancelled:
	case OrderStatusShipped:
		if o.FulfillmentStatus != FulfillmentShipped {
			o.FulfillmentStatus = FulfillmentShipped
		}
		// shipped_at records the first shipment only
		if o.ShippedAt == nil {
			o.ShippedAt = &now
		}
	case OrderStatusDelivered:
		if o.TrackingNumber == "" {
			return ErrTrackingRequired
		}
		o.FulfillmentStatus = FulfillmentDelivered
		o.DeliveredAt = &now
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	o.Status = status
	return nil
}

// ValidFulfillmentStatus reports whether s is a known fulfillment status.
func ValidFulfillmentStatus(s string) bool {
	switch s {
	case FulfillmentUnfulfilled, FulfillmentShipped, FulfillmentDelivered:
		return true
	}
	return false
}

// Value implements driver.Valuer so addresses are stored as JSONB.
func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *Address) Scan(src interface{}) error {
	return scanJSON(src, a)
}

func (s ProductSnapshot) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *ProductSnapshot) Scan(src interface{}) error {
	return scanJSON(src, s)
}

func (v VariantSelection) Value() (driver.Value, error) {
	if v == nil {
		return json.Marshal(VariantSelection{})
	}
	return json.Marshal(v)
}

func (v *VariantSelection) Scan(src interface{}) error {
	return scanJSON(src, v)
}

func scanJSON(src, dst interface{}) error {
	switch data := src.(type) {
	case []byte:
		return json.Unmarshal(data, dst)
	case string:
		return json.Unmarshal([]byte(data), dst)
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
}
