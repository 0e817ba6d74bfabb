package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"commerce-service/internal/gateway"
	"commerce-service/internal/ledger"
	"commerce-service/internal/models"
	"commerce-service/internal/store"
)

type memOrders struct {
	mu         sync.Mutex
	orders     map[string]*models.Order
	createErrs []error
	markErr    error
	creates    int
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[string]*models.Order)}
}

func (m *memOrders) CreateOrder(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := m.orders[o.ID]; ok {
		return store.ErrDuplicateOrderID
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrders) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) byGateway(gatewayOrderID string) *models.Order {
	for _, o := range m.orders {
		if o.GatewayOrderID == gatewayOrderID {
			return o
		}
	}
	return nil
}

func (m *memOrders) GetOrderByGatewayOrderID(_ context.Context, gatewayOrderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.byGateway(gatewayOrderID)
	if o == nil {
		return nil, store.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) ListOrders(_ context.Context, status string, limit, offset int) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if status == "" || o.Status == status {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memOrders) MarkOrderPaid(_ context.Context, id, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return false, m.markErr
	}
	o, ok := m.orders[id]
	if !ok || o.Status != models.OrderStatusPaymentPending || o.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	o.Status = models.OrderStatusPaymentCompleted
	o.PaymentStatus = models.PaymentStatusCompleted
	o.GatewayPaymentID = &paymentID
	return true, nil
}

func oneOf(s string, set ...string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

func (m *memOrders) ApplyPaymentCaptured(_ context.Context, c models.PaymentCapture) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.byGateway(c.GatewayOrderID)
	if o == nil || !oneOf(o.Status, models.OrderStatusPaymentPending, models.OrderStatusPaymentCompleted, models.OrderStatusPaymentFailed) {
		return false, nil
	}
	o.Status = models.OrderStatusPendingReview
	o.PaymentStatus = models.PaymentStatusCompleted
	o.GatewayPaymentID = &c.PaymentID
	o.PaymentAmount = &c.AmountMinor
	o.PaymentCurrency = &c.Currency
	o.PaymentMethod = &c.Method
	paidAt := c.PaidAt
	o.PaidAt = &paidAt
	return true, nil
}

func (m *memOrders) ApplyPaymentFailed(_ context.Context, f models.PaymentFailure) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.byGateway(f.GatewayOrderID)
	if o == nil || o.PaidAt != nil ||
		!oneOf(o.Status, models.OrderStatusPaymentPending, models.OrderStatusPaymentCompleted, models.OrderStatusPaymentFailed) {
		return false, nil
	}
	o.Status = models.OrderStatusPaymentFailed
	o.PaymentStatus = models.PaymentStatusFailed
	return true, nil
}

func (m *memOrders) UpdateOrderStatus(_ context.Context, id string, from []string, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || !oneOf(o.Status, from...) {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (m *memOrders) put(o *models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
}

type memEvents struct {
	mu   sync.Mutex
	seen map[string]string
}

func newMemEvents() *memEvents {
	return &memEvents{seen: make(map[string]string)}
}

func (m *memEvents) IsEventProcessed(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[id]
	return ok, nil
}

func (m *memEvents) MarkEventProcessed(_ context.Context, id, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[id] = eventType
	return nil
}

type memKeys struct {
	mu   sync.Mutex
	keys map[string]interface{}
}

func newMemKeys() *memKeys {
	return &memKeys{keys: make(map[string]interface{})}
}

func (m *memKeys) SetIdempotencyKey(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = value
	return nil
}

func (m *memKeys) CheckIdempotencyKey(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok, nil
}

type memProducts struct {
	products map[string]models.Product
}

func newMemProducts(ps ...models.Product) *memProducts {
	m := &memProducts{products: make(map[string]models.Product)}
	for _, p := range ps {
		m.products[p.ID] = p
	}
	return m
}

func (m *memProducts) GetProductByID(_ context.Context, id string) (*models.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	return &p, nil
}

func (m *memProducts) GetProductsByIDs(_ context.Context, ids []string) ([]models.Product, error) {
	var out []models.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type memCarts struct {
	mu    sync.Mutex
	carts map[string]map[string]int
}

func newMemCarts() *memCarts {
	return &memCarts{carts: make(map[string]map[string]int)}
}

func (m *memCarts) CartQuantities(_ context.Context, session string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int)
	for k, v := range m.carts[session] {
		out[k] = v
	}
	return out, nil
}

func (m *memCarts) AdjustCartItem(_ context.Context, session, productID string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[session]
	if c == nil {
		c = make(map[string]int)
		m.carts[session] = c
	}
	q := c[productID] + delta
	if q <= 0 {
		delete(c, productID)
		return 0, nil
	}
	c[productID] = q
	return q, nil
}

func (m *memCarts) SetCartItem(ctx context.Context, session, productID string, quantity int) error {
	if quantity <= 0 {
		return m.RemoveCartItem(ctx, session, productID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[session]
	if c == nil {
		c = make(map[string]int)
		m.carts[session] = c
	}
	c[productID] = quantity
	return nil
}

func (m *memCarts) RemoveCartItem(_ context.Context, session, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts[session], productID)
	return nil
}

func (m *memCarts) ClearCart(_ context.Context, session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, session)
	return nil
}

type memLocker struct {
	mu    sync.Mutex
	held  map[string]string
	calls int
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]string)}
}

func (m *memLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if _, ok := m.held[key]; ok {
		return "", false, nil
	}
	m.held[key] = "token"
	return "token", true, nil
}

func (m *memLocker) ReleaseLock(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	return nil
}

type fakeGateway struct {
	mu        sync.Mutex
	readyErr  error
	createErr error
	requests  []gateway.CreateOrderRequest
}

func (g *fakeGateway) EnsureReady(context.Context) error {
	return g.readyErr
}

func (g *fakeGateway) CreateOrder(_ context.Context, in gateway.CreateOrderRequest) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.requests = append(g.requests, in)
	return &gateway.Order{OrderID: "order_" + in.Receipt, KeyID: "rzp_test", Amount: in.Amount, Currency: in.Currency}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	paid   []*models.OrderPaidEvent
}

func (p *recordingPublisher) record(t string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, t)
	return nil
}

func (p *recordingPublisher) count(t string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == t {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, _ *models.OrderCreatedEvent) error {
	return p.record(models.EventTypeOrderCreated)
}

func (p *recordingPublisher) PublishOrderPaid(_ context.Context, e *models.OrderPaidEvent) error {
	p.mu.Lock()
	p.paid = append(p.paid, e)
	p.mu.Unlock()
	return p.record(models.EventTypeOrderPaid)
}

func (p *recordingPublisher) PublishOrderPaymentFailed(_ context.Context, _ *models.OrderPaymentFailedEvent) error {
	return p.record(models.EventTypeOrderPaymentFailed)
}

func (p *recordingPublisher) PublishOrderStatusChanged(_ context.Context, _ *models.OrderStatusChangedEvent) error {
	return p.record(models.EventTypeOrderStatusChanged)
}

func (p *recordingPublisher) PublishLedgerLogCreated(_ context.Context, _ *models.LedgerLogCreatedEvent) error {
	return p.record(models.EventTypeLedgerLogCreated)
}

func (p *recordingPublisher) PublishLedgerLogDecided(_ context.Context, _ *models.LedgerLogDecidedEvent) error {
	return p.record(models.EventTypeLedgerLogDecided)
}

type memLedger struct {
	mu       sync.Mutex
	entries  map[string]*ledger.Entry
	comments []models.Comment
}

func newMemLedger() *memLedger {
	return &memLedger{entries: make(map[string]*ledger.Entry)}
}

func (m *memLedger) CreateLog(_ context.Context, e *ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *memLedger) GetLog(_ context.Context, id string) (*ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memLedger) ListLogs(_ context.Context, f ledger.Filter) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Entry
	for _, e := range m.entries {
		if (f.Type == "" || e.Type == f.Type) &&
			(f.Status == "" || e.Status == f.Status) &&
			(f.CreatedBy == "" || e.CreatedBy == f.CreatedBy) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memLedger) ListApprovedLogs(_ context.Context, from, to time.Time) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := ledger.Window{From: from, To: to}
	var out []ledger.Entry
	for _, e := range m.entries {
		if e.Status == ledger.StatusApproved && w.Contains(e.CreatedAt) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memLedger) DecideLog(_ context.Context, id string, t ledger.LogType, status ledger.Status, by string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.Type != t || e.Status != ledger.StatusPending {
		return false, nil
	}
	e.Status = status
	e.DecisionBy = &by
	e.DecisionAt = &at
	return true, nil
}

func (m *memLedger) ArchiveLog(_ context.Context, id string, t ledger.LogType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.Type != t || e.Status != ledger.StatusRejected {
		return false, nil
	}
	e.Status = ledger.StatusArchived
	return true, nil
}

func (m *memLedger) AddComment(_ context.Context, c *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments = append(m.comments, *c)
	return nil
}

func (m *memLedger) ListComments(_ context.Context, parentType, parentID string) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Comment
	for _, c := range m.comments {
		if c.ParentType == parentType && c.ParentID == parentID {
			out = append(out, c)
		}
	}
	return out, nil
}

// roleTable resolves roles by user id
type roleTable map[string]string

func (r roleTable) ResolveRole(_ context.Context, who ledger.Identity) (string, error) {
	role, ok := r[who.UserID]
	if !ok {
		return "", errors.New("unknown partner")
	}
	return role, nil
}

var errBoom = errors.New("boom")
