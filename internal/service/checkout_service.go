package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"commerce-service/internal/cart"
	"commerce-service/internal/gateway"
	"commerce-service/internal/models"
	"commerce-service/internal/store"
	"commerce-service/internal/util"
	"commerce-service/internal/validation"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"
)

var (
	ErrValidationFailed    = errors.New("order validation failed")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrGatewayRejected     = errors.New("payment gateway rejected order")
	ErrOrderPersistFailed  = errors.New("failed to save order")
	ErrPaymentCancelled    = errors.New("cancelled by user")
	ErrPaymentUpdateFailed = errors.New("failed to update payment status")
	ErrPaymentTimeout      = errors.New("payment timed out")
	ErrPaymentSignature    = errors.New("payment signature mismatch")
	ErrCheckoutInProgress  = errors.New("checkout already in progress for this cart")
	ErrIllegalTransition   = errors.New("illegal order transition")
	ErrUnknownAction       = errors.New("unknown order action")

	ErrOrderNotFound = store.ErrOrderNotFound
)

const (
	maxOrderIDAttempts = 3
	maxNotesLength     = 500
)

// ValidationError carries per-field violations and wraps ErrValidationFailed
type ValidationError struct {
	Violations validation.Violations
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for f := range e.Violations {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e.Violations[f])
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// OrderData is the caller's view of the amount to charge
type OrderData struct {
	AmountMinor int64
	Currency    string
	Notes       string
}

// PaymentResult is the outcome of a checkout flow
type PaymentResult struct {
	Success   bool   `json:"success"`
	OrderID   string `json:"order_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Err       error  `json:"-"`
}

// CheckoutConfig tunes the checkout flow
type CheckoutConfig struct {
	MerchantName   string
	Currency       string
	KeySecret      string
	PaymentTimeout time.Duration
}

// CheckoutService orchestrates order creation and the hosted payment handoff
type CheckoutService struct {
	orders    OrderStore
	gateway   Gateway
	carts     *CartService
	locker    Locker
	publisher EventPublisher
	cfg       CheckoutConfig
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewCheckoutService creates a new checkout service. carts and locker may be
// nil when only InitiatePayment is used.
func NewCheckoutService(
	orders OrderStore,
	gw Gateway,
	carts *CartService,
	locker Locker,
	publisher EventPublisher,
	cfg CheckoutConfig,
) *CheckoutService {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	s := &CheckoutService{
		orders:    orders,
		gateway:   gw,
		carts:     carts,
		locker:    locker,
		publisher: publisher,
		cfg:       cfg,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
	s.newID = s.generateOrderID
	return s
}

// generateOrderID returns XLV_<epoch millis>_<0-999>
func (s *CheckoutService) generateOrderID() string {
	return fmt.Sprintf("XLV_%d_%d", s.now().UnixMilli(), rand.Intn(1000))
}

// CheckoutCart runs InitiatePayment over a persisted cart, holding a lock on
// the cart for the duration and clearing it after a successful payment.
func (s *CheckoutService) CheckoutCart(ctx context.Context, session string, data OrderData, shipping models.ShippingDetails, ui PaymentUI) PaymentResult {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CheckoutCart")
	defer span.End()

	if s.carts == nil {
		return s.fail(ctx, "", errors.New("cart checkout is not configured"))
	}

	lockKey := "checkout:" + session
	var token string
	if s.locker != nil {
		var ok bool
		var err error
		token, ok, err = s.locker.AcquireLock(ctx, lockKey, s.cfg.PaymentTimeout+time.Minute)
		if err != nil {
			s.logger.Warn("Checkout lock unavailable, continuing without it", zap.Error(err))
		} else if !ok {
			return s.fail(ctx, "", ErrCheckoutInProgress)
		}
	}
	if token != "" {
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.locker.ReleaseLock(releaseCtx, lockKey, token); err != nil {
				s.logger.Warn("Failed to release checkout lock", zap.String("session", session), zap.Error(err))
			}
		}()
	}

	c, err := s.carts.GetCart(ctx, session)
	if err != nil {
		return s.fail(ctx, "", fmt.Errorf("failed to load cart: %w", err))
	}

	res := s.InitiatePayment(ctx, data, c.Items(), shipping, ui)
	if res.Success {
		if err := s.carts.ClearCart(ctx, session); err != nil {
			s.logger.Warn("Failed to clear cart after payment", zap.String("session", session), zap.Error(err))
		}
	}
	return res
}

// InitiatePayment validates the cart, creates the gateway order, persists the
// order and waits for the payment UI. It never panics and never retries; a new
// call creates a new order.
func (s *CheckoutService) InitiatePayment(ctx context.Context, data OrderData, items []cart.Item, shipping models.ShippingDetails, ui PaymentUI) (res PaymentResult) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.InitiatePayment")
	defer span.End()

	util.CheckoutAttemptsTotal.Inc()

	var orderID string
	defer func() {
		if r := recover(); r != nil {
			res = s.fail(ctx, orderID, fmt.Errorf("checkout aborted: %v", r))
		}
	}()

	c := cart.FromItems(items, s.now)
	quote := c.Quote()
	if err := s.validate(data, c, quote, shipping); err != nil {
		return s.fail(ctx, "", err)
	}
	shipping = validation.SanitizeShipping(shipping)
	currency := data.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}

	if err := s.gateway.EnsureReady(ctx); err != nil {
		return s.fail(ctx, "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err))
	}

	receipt := s.newID()
	gwOrder, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		Amount:   data.AmountMinor,
		Currency: currency,
		Receipt:  receipt,
		Customer: gateway.Customer{Name: shipping.Name, Email: shipping.Email, Contact: shipping.Phone},
	})
	if err != nil {
		return s.fail(ctx, "", fmt.Errorf("%w: %v", ErrGatewayRejected, err))
	}

	order, err := s.persistOrder(ctx, receipt, gwOrder.OrderID, c, quote, shipping, data.Notes)
	if err != nil {
		return s.fail(ctx, "", fmt.Errorf("%w: %v", ErrOrderPersistFailed, err))
	}
	orderID = order.ID
	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("gateway_order_id", order.GatewayOrderID),
		zap.Int64("total_amount", order.TotalAmount))
	s.publishOrderCreated(ctx, order, c.Lines())

	fut := newPaymentFuture()
	opts := CheckoutOptions{
		Key:            gwOrder.KeyID,
		Amount:         data.AmountMinor,
		Currency:       currency,
		Name:           s.cfg.MerchantName,
		Description:    fmt.Sprintf("Order %s", order.ID),
		GatewayOrderID: gwOrder.OrderID,
		Receipt:        order.ID,
		Prefill:        Prefill{Name: shipping.Name, Email: shipping.Email, Contact: shipping.Phone},
	}

	openedAt := time.Now()
	if err := ui.Open(ctx, opts, fut.callbacks()); err != nil {
		return s.fail(ctx, order.ID, fmt.Errorf("failed to open payment UI: %w", err))
	}

	outcome, err := fut.await(ctx, s.cfg.PaymentTimeout)
	util.PaymentWaitDuration.Observe(time.Since(openedAt).Seconds())
	if err != nil {
		util.PaymentOutcomesTotal.WithLabelValues("timeout").Inc()
		if !errors.Is(err, ErrPaymentTimeout) {
			err = fmt.Errorf("%w: %v", ErrPaymentTimeout, err)
		}
		return s.fail(ctx, order.ID, err)
	}

	switch outcome.kind {
	case outcomeDismissed:
		util.PaymentOutcomesTotal.WithLabelValues("dismissed").Inc()
		return s.fail(ctx, order.ID, ErrPaymentCancelled)
	case outcomeError:
		util.PaymentOutcomesTotal.WithLabelValues("error").Inc()
		return s.fail(ctx, order.ID, outcome.err)
	}

	return s.completePayment(ctx, order, outcome.success)
}

func (s *CheckoutService) validate(data OrderData, c *cart.Cart, quote cart.Quote, shipping models.ShippingDetails) error {
	v := validation.ValidateShipping(shipping)
	switch {
	case c.IsEmpty():
		v.Add("cart", "cart is empty")
	case !quote.MeetsMinimum:
		v.Add("cart", fmt.Sprintf("minimum order value is Rs %d", cart.MinimumOrderValue))
	}
	if data.AmountMinor != quote.Total*100 {
		v.Add("order_amount", "amount does not match the cart total")
	}
	if len(data.Notes) > maxNotesLength {
		v.Add("notes", "notes are too long")
	}
	if v.Empty() {
		return nil
	}
	return &ValidationError{Violations: v}
}

func (s *CheckoutService) persistOrder(
	ctx context.Context,
	id, gatewayOrderID string,
	c *cart.Cart,
	quote cart.Quote,
	shipping models.ShippingDetails,
	notes string,
) (*models.Order, error) {
	lines, err := encodeLines(c.Lines())
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		CustomerName:    shipping.Name,
		CustomerEmail:   shipping.Email,
		CustomerPhone:   shipping.Phone,
		ShippingAddress: shipping.Address,
		Pincode:         shipping.Pincode,
		Notes:           validation.SanitizeInput(notes),
		CartItems:       lines,
		Subtotal:        quote.Subtotal,
		DeliveryCharge:  quote.DeliveryCharge,
		TotalAmount:     quote.Total,
		Status:          models.OrderStatusPaymentPending,
		PaymentStatus:   models.PaymentStatusPending,
		GatewayOrderID:  gatewayOrderID,
	}

	for attempt := 1; ; attempt++ {
		order.ID = id
		err := s.orders.CreateOrder(ctx, order)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, store.ErrDuplicateOrderID) || attempt >= maxOrderIDAttempts {
			return nil, err
		}
		util.OrderIDCollisionsTotal.Inc()
		s.logger.Warn("Order id collision, retrying", zap.String("order_id", id), zap.Int("attempt", attempt))
		id = s.newID()
	}
}

func encodeLines(lines []models.OrderLine) (types.JSONText, error) {
	b, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cart snapshot: %w", err)
	}
	return types.JSONText(b), nil
}

func (s *CheckoutService) completePayment(ctx context.Context, order *models.Order, p PaymentSuccess) PaymentResult {
	if s.cfg.KeySecret == "" {
		// Without a key secret the callback cannot be verified, so the order
		// is left for the webhook to settle.
		util.PaymentOutcomesTotal.WithLabelValues("unverified").Inc()
		s.logger.Warn("Payment callback not verifiable, waiting for webhook",
			zap.String("order_id", order.ID),
			zap.String("payment_id", p.PaymentID))
		return PaymentResult{Success: true, OrderID: order.ID, PaymentID: p.PaymentID}
	}
	if !gateway.VerifyPaymentSignature(order.GatewayOrderID, p.PaymentID, p.Signature, s.cfg.KeySecret) {
		util.PaymentOutcomesTotal.WithLabelValues("bad_signature").Inc()
		return s.fail(ctx, order.ID, ErrPaymentSignature)
	}

	util.PaymentOutcomesTotal.WithLabelValues("success").Inc()

	// The webhook is authoritative; this write only improves what the customer sees meanwhile.
	moved, err := s.orders.MarkOrderPaid(ctx, order.ID, p.PaymentID)
	switch {
	case err != nil:
		util.PaymentUpdateFailuresTotal.Inc()
		s.logger.Error("Payment succeeded but order update failed",
			zap.String("order_id", order.ID),
			zap.String("payment_id", p.PaymentID),
			zap.Error(fmt.Errorf("%w: %v", ErrPaymentUpdateFailed, err)))
	case !moved:
		util.PaymentUpdateFailuresTotal.Inc()
		s.logger.Info("Order already moved past payment_pending",
			zap.String("order_id", order.ID),
			zap.String("payment_id", p.PaymentID))
	default:
		s.logger.Info("Payment completed",
			zap.String("order_id", order.ID),
			zap.String("payment_id", p.PaymentID))
	}

	return PaymentResult{Success: true, OrderID: order.ID, PaymentID: p.PaymentID}
}

func (s *CheckoutService) fail(ctx context.Context, orderID string, err error) PaymentResult {
	util.RecordError(ctx, err)
	reason := failureReason(err)
	util.CheckoutFailuresTotal.WithLabelValues(reason).Inc()

	fields := []zap.Field{zap.String("order_id", orderID), zap.String("reason", reason), zap.Error(err)}
	switch reason {
	case "cancelled", "validation", "in_progress":
		s.logger.Info("Checkout did not complete", fields...)
	default:
		s.logger.Warn("Checkout failed", fields...)
	}

	return PaymentResult{Success: false, OrderID: orderID, Error: err.Error(), Err: err}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrValidationFailed):
		return "validation"
	case errors.Is(err, ErrGatewayUnavailable):
		return "gateway_unavailable"
	case errors.Is(err, ErrGatewayRejected):
		return "gateway_rejected"
	case errors.Is(err, ErrOrderPersistFailed):
		return "persist_failed"
	case errors.Is(err, ErrPaymentCancelled):
		return "cancelled"
	case errors.Is(err, ErrPaymentTimeout):
		return "timeout"
	case errors.Is(err, ErrPaymentSignature):
		return "bad_signature"
	case errors.Is(err, ErrCheckoutInProgress):
		return "in_progress"
	}
	return "other"
}

func (s *CheckoutService) publishOrderCreated(ctx context.Context, order *models.Order, lines []models.OrderLine) {
	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: s.now(),
		},
		OrderID:        order.ID,
		GatewayOrderID: order.GatewayOrderID,
		CustomerEmail:  order.CustomerEmail,
		Subtotal:       order.Subtotal,
		DeliveryCharge: order.DeliveryCharge,
		TotalAmount:    order.TotalAmount,
		Items:          lines,
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.String("order_id", order.ID), zap.Error(err))
	}
}

// GetOrder retrieves an order by id
func (s *CheckoutService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.GetOrder")
	defer span.End()

	return s.orders.GetOrderByID(ctx, id)
}

// ListOrders returns the newest orders, optionally filtered by status
func (s *CheckoutService) ListOrders(ctx context.Context, status string, limit, offset int) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.ListOrders")
	defer span.End()

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.orders.ListOrders(ctx, status, limit, offset)
}

// OrderAction is an operator fulfilment step
type OrderAction string

// Operator actions
const (
	ActionConfirm OrderAction = "confirm"
	ActionDeliver OrderAction = "deliver"
	ActionCancel  OrderAction = "cancel"
)

type orderTransition struct {
	from []string
	to   string
}

var orderTransitions = map[OrderAction]orderTransition{
	ActionConfirm: {from: []string{models.OrderStatusPendingReview}, to: models.OrderStatusConfirmed},
	ActionDeliver: {from: []string{models.OrderStatusConfirmed}, to: models.OrderStatusDelivered},
	ActionCancel: {
		from: []string{
			models.OrderStatusPaymentPending,
			models.OrderStatusPaymentFailed,
			models.OrderStatusPaymentCompleted,
			models.OrderStatusPendingReview,
			models.OrderStatusConfirmed,
		},
		to: models.OrderStatusCancelled,
	},
}

// AdvanceOrder applies an operator action if the order is in a state that allows it
func (s *CheckoutService) AdvanceOrder(ctx context.Context, id string, action OrderAction, actor string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.AdvanceOrder")
	defer span.End()

	tr, ok := orderTransitions[action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	current, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}

	moved, err := s.orders.UpdateOrderStatus(ctx, id, tr.from, tr.to)
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if !moved {
		latest, err := s.orders.GetOrderByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: cannot %s an order in %s", ErrIllegalTransition, action, latest.Status)
	}

	util.OrderTransitionsTotal.WithLabelValues(tr.to).Inc()
	s.logger.Info("Order status changed",
		zap.String("order_id", id),
		zap.String("from", current.Status),
		zap.String("to", tr.to),
		zap.String("actor", actor))

	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: s.now(),
		},
		OrderID: id,
		From:    current.Status,
		To:      tr.to,
		Actor:   actor,
	}
	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}

	return s.orders.GetOrderByID(ctx, id)
}
