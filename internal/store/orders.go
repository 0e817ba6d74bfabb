package store

import (
	"context"
	"database/sql"
	"fmt"

	"commerce-service/internal/models"

	"github.com/lib/pq"
)

const ordersPkey = "orders_pkey"

// CreateOrder inserts a new order. A taken id yields ErrDuplicateOrderID so
// the caller can retry with a fresh one.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (
			id, customer_name, customer_email, customer_phone, shipping_address, pincode, notes,
			cart_items, subtotal, delivery_charge, total_amount, status, payment_status, gateway_order_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		order.ID, order.CustomerName, order.CustomerEmail, order.CustomerPhone,
		order.ShippingAddress, order.Pincode, order.Notes, order.CartItems,
		order.Subtotal, order.DeliveryCharge, order.TotalAmount,
		order.Status, order.PaymentStatus, order.GatewayOrderID,
	).Scan(&order.CreatedAt, &order.UpdatedAt)

	if isUniqueViolation(err, ordersPkey) {
		return fmt.Errorf("%w: %s", ErrDuplicateOrderID, order.ID)
	}
	return err
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByGatewayOrderID retrieves an order by the gateway's order id
func (s *Store) GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE gateway_order_id = $1", gatewayOrderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: gateway order %s", ErrOrderNotFound, gatewayOrderID)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders returns the newest orders, optionally filtered by status
func (s *Store) ListOrders(ctx context.Context, status string, limit, offset int) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, status, limit, offset)
	return orders, err
}

// MarkOrderPaid applies the client-side success callback. It only moves an
// order that is still payment_pending/pending and reports whether it did.
func (s *Store) MarkOrderPaid(ctx context.Context, id, paymentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, gateway_payment_id = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5 AND payment_status = $6`,
		id, models.OrderStatusPaymentCompleted, models.PaymentStatusCompleted, paymentID,
		models.OrderStatusPaymentPending, models.PaymentStatusPending)
	return affected(res, err)
}

// capturableStatuses are the states a payment.captured webhook may move from
var capturableStatuses = []string{
	models.OrderStatusPaymentPending,
	models.OrderStatusPaymentCompleted,
	models.OrderStatusPaymentFailed,
}

// ApplyPaymentCaptured records the gateway's capture and moves the order to
// pending_review. Operator states are never overwritten.
func (s *Store) ApplyPaymentCaptured(ctx context.Context, c models.PaymentCapture) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, gateway_payment_id = $4, payment_amount = $5,
			payment_currency = $6, payment_method = $7, paid_at = $8, webhook_payload = $9, updated_at = NOW()
		WHERE gateway_order_id = $1 AND status = ANY($10)`,
		c.GatewayOrderID, models.OrderStatusPendingReview, models.PaymentStatusCompleted,
		c.PaymentID, c.AmountMinor, c.Currency, c.Method, c.PaidAt, string(c.Payload),
		pq.Array(capturableStatuses))
	return affected(res, err)
}

// failableStatuses are the states a payment.failed webhook may move from.
// payment_completed only counts while no capture has landed (paid_at IS NULL),
// since that state comes from the browser callback alone.
var failableStatuses = []string{
	models.OrderStatusPaymentPending,
	models.OrderStatusPaymentCompleted,
	models.OrderStatusPaymentFailed,
}

// ApplyPaymentFailed marks an order without a captured payment as failed. A
// capture recorded by the gateway is never regressed.
func (s *Store) ApplyPaymentFailed(ctx context.Context, f models.PaymentFailure) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, gateway_payment_id = COALESCE(NULLIF($4, ''), gateway_payment_id),
			webhook_payload = $5, updated_at = NOW()
		WHERE gateway_order_id = $1 AND status = ANY($6) AND paid_at IS NULL`,
		f.GatewayOrderID, models.OrderStatusPaymentFailed, models.PaymentStatusFailed,
		f.PaymentID, string(f.Payload), pq.Array(failableStatuses))
	return affected(res, err)
}

// UpdateOrderStatus moves an order to status when it currently sits in one of from
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from []string, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1 AND status = ANY($3)",
		id, to, pq.Array(from))
	return affected(res, err)
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
