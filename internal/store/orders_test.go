package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewStoreWithDB(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func draftOrder() (*models.Order, []models.OrderItem) {
	email := "ada@example.com"
	order := &models.Order{
		OrderNumber:       "ORD-1000-test",
		GuestEmail:        &email,
		Status:            models.OrderStatusConfirmed,
		PaymentStatus:     models.PaymentStatusPaid,
		FulfillmentStatus: models.FulfillmentUnfulfilled,
		Subtotal:          140_00,
		TaxAmount:         11_20,
		TotalAmount:       151_20,
		ShippingAddress:   models.Address{Name: "Ada", Line1: "1 Main St", City: "Austin", PostalCode: "78701", Country: "US"},
		BillingAddress:    models.Address{Name: "Ada", Line1: "1 Main St", City: "Austin", PostalCode: "78701", Country: "US"},
		GatewayOrderID:    "GW-ORDER-1",
		GatewayCaptureID:  "CAP-1",
	}
	items := []models.OrderItem{
		{ProductID: 7, Quantity: 2, UnitPrice: 70_00, TotalPrice: 140_00, Snapshot: models.ProductSnapshot{Name: "Kettle", Price: 70_00}},
	}
	return order, items
}

func TestCreateOrderCommitsOrderAndItems(t *testing.T) {
	store, mock := newMockStore(t)
	order, items := draftOrder()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(42, now, now))
	mock.ExpectQuery("INSERT INTO order_items").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
	mock.ExpectCommit()

	err := store.CreateOrder(context.Background(), order, items)
	require.NoError(t, err)

	assert.Equal(t, int64(42), order.ID)
	assert.Equal(t, int64(42), items[0].OrderID)
	assert.Equal(t, int64(100), items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderRollsBackWhenItemInsertFails(t *testing.T) {
	store, mock := newMockStore(t)
	order, items := draftOrder()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(42, now, now))
	mock.ExpectQuery("INSERT INTO order_items").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.CreateOrder(context.Background(), order, items)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet(), "order insert must not be committed without its items")
}

func TestCreateOrderMapsUniqueViolationToDuplicateCapture(t *testing.T) {
	store, mock := newMockStore(t)
	order, items := draftOrder()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO orders").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "orders_gateway_capture_id_key"})
	mock.ExpectRollback()

	err := store.CreateOrder(context.Background(), order, items)
	assert.ErrorIs(t, err, ErrDuplicateCapture)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByCaptureIDDistinguishesAbsence(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE gateway_capture_id").
		WillReturnError(sql.ErrNoRows)

	order, err := store.GetOrderByCaptureID(context.Background(), "CAP-404")
	require.NoError(t, err, "no order for a capture is not an error")
	assert.Nil(t, order)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetOrderByID(context.Background(), 404)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdateOrderStateNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	order, _ := draftOrder()
	order.ID = 404

	mock.ExpectExec("UPDATE orders SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateOrderState(context.Background(), order)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendTrackingEventReportsInsertion(t *testing.T) {
	store, mock := newMockStore(t)
	event := &models.TrackingEvent{OrderID: 42, TrackingNumber: "1Z999AA1", Carrier: "UPS"}

	mock.ExpectExec("INSERT INTO tracking_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	inserted, err := store.AppendTrackingEvent(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestAppendTrackingEventConflictIsNoOp(t *testing.T) {
	store, mock := newMockStore(t)
	event := &models.TrackingEvent{OrderID: 42, TrackingNumber: "1Z999AA1", Carrier: "UPS"}

	mock.ExpectExec("INSERT INTO tracking_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := store.AppendTrackingEvent(context.Background(), event)
	require.NoError(t, err)
	assert.False(t, inserted, "conflicting tracking number must not report a new row")
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain error")))
}
