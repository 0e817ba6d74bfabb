package api

import (
	"context"
	"sync"
	"time"

	"commerce-service/internal/gateway"
	"commerce-service/internal/ledger"
	"commerce-service/internal/models"
	"commerce-service/internal/store"
)

type fakeCatalog struct {
	products map[string]models.Product
}

func (f *fakeCatalog) GetProducts(_ context.Context, category string) ([]models.Product, error) {
	var out []models.Product
	for _, p := range f.products {
		if category == "" || p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetProductByID(_ context.Context, id string) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	return &p, nil
}

func (f *fakeCatalog) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	var out []models.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeCarts struct {
	mu    sync.Mutex
	carts map[string]map[string]int
}

func (f *fakeCarts) CartQuantities(_ context.Context, session string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int{}
	for k, v := range f.carts[session] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeCarts) AdjustCartItem(_ context.Context, session, productID string, delta int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.carts[session] == nil {
		f.carts[session] = map[string]int{}
	}
	f.carts[session][productID] += delta
	if f.carts[session][productID] <= 0 {
		delete(f.carts[session], productID)
		return 0, nil
	}
	return f.carts[session][productID], nil
}

func (f *fakeCarts) SetCartItem(_ context.Context, session, productID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.carts[session] == nil {
		f.carts[session] = map[string]int{}
	}
	if quantity <= 0 {
		delete(f.carts[session], productID)
		return nil
	}
	f.carts[session][productID] = quantity
	return nil
}

func (f *fakeCarts) RemoveCartItem(_ context.Context, session, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts[session], productID)
	return nil
}

func (f *fakeCarts) ClearCart(_ context.Context, session string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts, session)
	return nil
}

type fakeOrders struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func (f *fakeOrders) CreateOrder(_ context.Context, o *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *o
	f.orders[o.ID] = &cp
	return nil
}

func (f *fakeOrders) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) GetOrderByGatewayOrderID(_ context.Context, gid string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.GatewayOrderID == gid {
			cp := *o
			return &cp, nil
		}
	}
	return nil, store.ErrOrderNotFound
}

func (f *fakeOrders) ListOrders(_ context.Context, status string, _, _ int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if status == "" || o.Status == status {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrders) MarkOrderPaid(_ context.Context, id, paymentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.Status != models.OrderStatusPaymentPending {
		return false, nil
	}
	o.Status = models.OrderStatusPaymentCompleted
	o.PaymentStatus = models.PaymentStatusCompleted
	o.GatewayPaymentID = &paymentID
	return true, nil
}

func (f *fakeOrders) ApplyPaymentCaptured(_ context.Context, c models.PaymentCapture) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.GatewayOrderID == c.GatewayOrderID &&
			(o.Status == models.OrderStatusPaymentPending || o.Status == models.OrderStatusPaymentCompleted || o.Status == models.OrderStatusPaymentFailed) {
			o.Status = models.OrderStatusPendingReview
			o.PaymentStatus = models.PaymentStatusCompleted
			paidAt := c.PaidAt
			o.PaidAt = &paidAt
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeOrders) ApplyPaymentFailed(_ context.Context, p models.PaymentFailure) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.GatewayOrderID == p.GatewayOrderID && o.PaidAt == nil &&
			(o.Status == models.OrderStatusPaymentPending || o.Status == models.OrderStatusPaymentCompleted || o.Status == models.OrderStatusPaymentFailed) {
			o.Status = models.OrderStatusPaymentFailed
			o.PaymentStatus = models.PaymentStatusFailed
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeOrders) UpdateOrderStatus(_ context.Context, id string, from []string, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if o.Status == s {
			o.Status = to
			return true, nil
		}
	}
	return false, nil
}

type fakeEvents struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (f *fakeEvents) IsEventProcessed(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[id], nil
}

func (f *fakeEvents) MarkEventProcessed(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[id] = true
	return nil
}

type fakeGateway struct{}

func (fakeGateway) EnsureReady(context.Context) error { return nil }

func (fakeGateway) CreateOrder(_ context.Context, in gateway.CreateOrderRequest) (*gateway.Order, error) {
	return &gateway.Order{OrderID: "order_" + in.Receipt, KeyID: "rzp_test", Amount: in.Amount, Currency: in.Currency}, nil
}

// stalledGateway blocks until the checkout flow is cancelled
type stalledGateway struct {
	fakeGateway
	released chan struct{}
}

func (g *stalledGateway) EnsureReady(ctx context.Context) error {
	<-ctx.Done()
	close(g.released)
	return ctx.Err()
}

type nopPublisher struct{}

func (nopPublisher) PublishOrderCreated(context.Context, *models.OrderCreatedEvent) error { return nil }
func (nopPublisher) PublishOrderPaid(context.Context, *models.OrderPaidEvent) error       { return nil }
func (nopPublisher) PublishOrderPaymentFailed(context.Context, *models.OrderPaymentFailedEvent) error {
	return nil
}
func (nopPublisher) PublishOrderStatusChanged(context.Context, *models.OrderStatusChangedEvent) error {
	return nil
}
func (nopPublisher) PublishLedgerLogCreated(context.Context, *models.LedgerLogCreatedEvent) error {
	return nil
}
func (nopPublisher) PublishLedgerLogDecided(context.Context, *models.LedgerLogDecidedEvent) error {
	return nil
}

type fakeLedger struct {
	mu       sync.Mutex
	entries  map[string]*ledger.Entry
	comments []models.Comment
}

func (f *fakeLedger) CreateLog(_ context.Context, e *ledger.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.entries[e.ID] = &cp
	return nil
}

func (f *fakeLedger) GetLog(_ context.Context, id string) (*ledger.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeLedger) ListLogs(_ context.Context, _ ledger.Filter) ([]ledger.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.Entry
	for _, e := range f.entries {
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeLedger) ListApprovedLogs(_ context.Context, _, _ time.Time) ([]ledger.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.Entry
	for _, e := range f.entries {
		if e.Status == ledger.StatusApproved {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeLedger) DecideLog(_ context.Context, id string, _ ledger.LogType, status ledger.Status, by string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok || e.Status != ledger.StatusPending {
		return false, nil
	}
	e.Status, e.DecisionBy, e.DecisionAt = status, &by, &at
	return true, nil
}

func (f *fakeLedger) ArchiveLog(_ context.Context, id string, _ ledger.LogType) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok || e.Status != ledger.StatusRejected {
		return false, nil
	}
	e.Status = ledger.StatusArchived
	return true, nil
}

func (f *fakeLedger) AddComment(_ context.Context, c *models.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, *c)
	return nil
}

func (f *fakeLedger) ListComments(_ context.Context, _, parentID string) ([]models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Comment
	for _, c := range f.comments {
		if c.ParentID == parentID {
			out = append(out, c)
		}
	}
	return out, nil
}

type staticRoles map[string]string

func (s staticRoles) ResolveRole(_ context.Context, who ledger.Identity) (string, error) {
	return s[who.UserID], nil
}
