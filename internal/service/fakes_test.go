package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/session"
	"checkout-service/internal/store"
)

// In-memory fakes for the service collaborators.

type fakeRepo struct {
	mu         sync.Mutex
	nextID     int64
	orders     map[int64]*models.Order
	items      map[int64][]models.OrderItem
	tracking   map[int64][]models.TrackingEvent
	failCreate error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders:   make(map[int64]*models.Order),
		items:    make(map[int64][]models.OrderItem),
		tracking: make(map[int64][]models.TrackingEvent),
	}
}

func (r *fakeRepo) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failCreate != nil {
		return r.failCreate
	}
	for _, existing := range r.orders {
		if existing.GatewayCaptureID != "" && existing.GatewayCaptureID == order.GatewayCaptureID {
			return fmt.Errorf("%w: duplicate key", store.ErrDuplicateCapture)
		}
	}

	r.nextID++
	order.ID = r.nextID
	stored := *order
	r.orders[order.ID] = &stored

	copied := make([]models.OrderItem, len(items))
	copy(copied, items)
	for i := range copied {
		copied[i].OrderID = order.ID
	}
	r.items[order.ID] = copied
	return nil
}

func (r *fakeRepo) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", store.ErrOrderNotFound, id)
	}
	clone := *order
	return &clone, nil
}

func (r *fakeRepo) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, order := range r.orders {
		if order.OrderNumber == orderNumber {
			clone := *order
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", store.ErrOrderNotFound, orderNumber)
}

func (r *fakeRepo) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var orders []models.Order
	for _, order := range r.orders {
		if order.UserID != nil && *order.UserID == userID {
			orders = append(orders, *order)
		}
	}
	return orders, nil
}

func (r *fakeRepo) GetOrderByCaptureID(ctx context.Context, captureID string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, order := range r.orders {
		if order.GatewayCaptureID == captureID {
			clone := *order
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[orderID], nil
}

func (r *fakeRepo) UpdateOrderState(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; !ok {
		return fmt.Errorf("%w: %d", store.ErrOrderNotFound, order.ID)
	}
	stored := *order
	r.orders[order.ID] = &stored
	return nil
}

func (r *fakeRepo) AppendTrackingEvent(ctx context.Context, event *models.TrackingEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.tracking[event.OrderID] {
		if existing.TrackingNumber == event.TrackingNumber {
			return false, nil
		}
	}
	r.tracking[event.OrderID] = append(r.tracking[event.OrderID], *event)
	return true, nil
}

func (r *fakeRepo) ListTrackingEvents(ctx context.Context, orderID int64) ([]models.TrackingEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracking[orderID], nil
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*models.CheckoutSession
	failPut  error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]*models.CheckoutSession)}
}

func (s *fakeSessions) Put(ctx context.Context, gatewayOrderID string, sess *models.CheckoutSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failPut != nil {
		return s.failPut
	}
	clone := *sess
	s.sessions[gatewayOrderID] = &clone
	return nil
}

func (s *fakeSessions) Get(ctx context.Context, gatewayOrderID string) (*models.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[gatewayOrderID]
	if !ok {
		return nil, session.ErrNotFound
	}
	clone := *sess
	return &clone, nil
}

func (s *fakeSessions) Delete(ctx context.Context, gatewayOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, gatewayOrderID)
	return nil
}

type fakeGateway struct {
	mu sync.Mutex

	createErr  error
	captureErr error
	trackErr   error

	nextOrderID string
	captureID   string
	payerID     string

	createCalls  int
	captureCalls int
	trackCalls   []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		nextOrderID: "GW-ORDER-1",
		captureID:   "CAP-1",
		payerID:     "PAYER-1",
	}
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amount gateway.AmountBreakdown, items []models.CartItem, shipping models.Address, urls gateway.ReturnURLs) (*gateway.CreateOrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.createCalls++
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &gateway.CreateOrderResult{
		OrderID:      g.nextOrderID,
		ApprovalLink: "https://gateway.example/approve/" + g.nextOrderID,
	}, nil
}

func (g *fakeGateway) CaptureOrder(ctx context.Context, gatewayOrderID string) (*gateway.CaptureResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.captureCalls++
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	return &gateway.CaptureResult{
		CaptureID: g.captureID,
		PayerID:   g.payerID,
		Status:    "COMPLETED",
	}, nil
}

func (g *fakeGateway) SubmitTracking(ctx context.Context, captureID, trackingNumber, carrier string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.trackErr != nil {
		return g.trackErr
	}
	g.trackCalls = append(g.trackCalls, captureID+"/"+trackingNumber)
	return nil
}

type fakeEvents struct {
	mu        sync.Mutex
	created   []*models.OrderCreatedEvent
	shipped   []*models.OrderShippedEvent
	delivered []*models.OrderDeliveredEvent
	reconcile []*models.ReconcileOrderEvent
	alerts    []*models.ReconcileAlertEvent
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{}
}

func (e *fakeEvents) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, event)
	return nil
}

func (e *fakeEvents) PublishOrderShipped(ctx context.Context, event *models.OrderShippedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shipped = append(e.shipped, event)
	return nil
}

func (e *fakeEvents) PublishOrderDelivered(ctx context.Context, event *models.OrderDeliveredEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delivered = append(e.delivered, event)
	return nil
}

func (e *fakeEvents) PublishReconcileOrder(ctx context.Context, event *models.ReconcileOrderEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reconcile = append(e.reconcile, event)
	return nil
}

func (e *fakeEvents) PublishReconcileAlert(ctx context.Context, event *models.ReconcileAlertEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts = append(e.alerts, event)
	return nil
}

var errBoom = errors.New("boom")
