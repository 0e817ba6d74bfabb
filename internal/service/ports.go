package service

import (
	"context"
	"time"

	"commerce-service/internal/gateway"
	"commerce-service/internal/ledger"
	"commerce-service/internal/models"
)

// ProductStore reads the catalog
type ProductStore interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error)
}

// OrderStore persists orders. Every status write is conditional and reports
// whether a row moved.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	ListOrders(ctx context.Context, status string, limit, offset int) ([]models.Order, error)
	MarkOrderPaid(ctx context.Context, id, paymentID string) (bool, error)
	ApplyPaymentCaptured(ctx context.Context, c models.PaymentCapture) (bool, error)
	ApplyPaymentFailed(ctx context.Context, f models.PaymentFailure) (bool, error)
	UpdateOrderStatus(ctx context.Context, id string, from []string, to string) (bool, error)
}

// EventStore records processed event ids
type EventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// LedgerStore persists ledger entries and comments
type LedgerStore interface {
	CreateLog(ctx context.Context, e *ledger.Entry) error
	GetLog(ctx context.Context, id string) (*ledger.Entry, error)
	ListLogs(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error)
	ListApprovedLogs(ctx context.Context, from, to time.Time) ([]ledger.Entry, error)
	DecideLog(ctx context.Context, id string, t ledger.LogType, status ledger.Status, by string, at time.Time) (bool, error)
	ArchiveLog(ctx context.Context, id string, t ledger.LogType) (bool, error)
	AddComment(ctx context.Context, c *models.Comment) error
	ListComments(ctx context.Context, parentType, parentID string) ([]models.Comment, error)
}

// CartStore persists session carts as product id -> quantity
type CartStore interface {
	CartQuantities(ctx context.Context, session string) (map[string]int, error)
	AdjustCartItem(ctx context.Context, session, productID string, delta int) (int, error)
	SetCartItem(ctx context.Context, session, productID string, quantity int) error
	RemoveCartItem(ctx context.Context, session, productID string) error
	ClearCart(ctx context.Context, session string) error
}

// Locker provides short-lived exclusive locks
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// IdempotencyKeys is a fast-path dedup cache in front of EventStore
type IdempotencyKeys interface {
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
}

// Gateway creates payment orders
type Gateway interface {
	EnsureReady(ctx context.Context) error
	CreateOrder(ctx context.Context, in gateway.CreateOrderRequest) (*gateway.Order, error)
}

// EventPublisher publishes domain events
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderPaymentFailed(ctx context.Context, event *models.OrderPaymentFailedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishLedgerLogCreated(ctx context.Context, event *models.LedgerLogCreatedEvent) error
	PublishLedgerLogDecided(ctx context.Context, event *models.LedgerLogDecidedEvent) error
}
