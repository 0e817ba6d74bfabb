package service

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Prefill seeds the hosted payment form
type Prefill struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// CheckoutOptions is everything the hosted payment UI needs to open
type CheckoutOptions struct {
	Key            string  `json:"key"`
	Amount         int64   `json:"amount"`
	Currency       string  `json:"currency"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	GatewayOrderID string  `json:"order_id"`
	Receipt        string  `json:"receipt"`
	Prefill        Prefill `json:"prefill"`
}

// PaymentSuccess is handed back by the UI when the customer pays
type PaymentSuccess struct {
	PaymentID      string `json:"payment_id"`
	GatewayOrderID string `json:"order_id"`
	Signature      string `json:"signature"`
}

// Callbacks are the three ways the payment UI reports back. Only the first call counts.
type Callbacks struct {
	OnSuccess func(PaymentSuccess)
	OnDismiss func()
	OnError   func(error)
}

// PaymentUI is the hosted payment widget. Open must not block until payment completes.
type PaymentUI interface {
	Open(ctx context.Context, opts CheckoutOptions, cb Callbacks) error
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota + 1
	outcomeDismissed
	outcomeError
)

type paymentOutcome struct {
	kind    outcomeKind
	success PaymentSuccess
	err     error
}

// paymentFuture adapts the callback trio into a single awaited result
type paymentFuture struct {
	once   sync.Once
	done   chan struct{}
	result paymentOutcome
}

func newPaymentFuture() *paymentFuture {
	return &paymentFuture{done: make(chan struct{})}
}

func (f *paymentFuture) resolve(o paymentOutcome) bool {
	resolved := false
	f.once.Do(func() {
		f.result = o
		close(f.done)
		resolved = true
	})
	return resolved
}

func (f *paymentFuture) callbacks() Callbacks {
	return Callbacks{
		OnSuccess: func(s PaymentSuccess) { f.resolve(paymentOutcome{kind: outcomeSuccess, success: s}) },
		OnDismiss: func() { f.resolve(paymentOutcome{kind: outcomeDismissed}) },
		OnError: func(err error) {
			if err == nil {
				err = errors.New("payment failed")
			}
			f.resolve(paymentOutcome{kind: outcomeError, err: err})
		},
	}
}

// await blocks until resolution, ctx cancellation or timeout
func (f *paymentFuture) await(ctx context.Context, timeout time.Duration) (paymentOutcome, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-f.done:
		return f.result, nil
	case <-expired:
		return paymentOutcome{}, ErrPaymentTimeout
	case <-ctx.Done():
		return paymentOutcome{}, ctx.Err()
	}
}

// ErrSessionNotFound is returned when no open payment session matches an order
var ErrSessionNotFound = errors.New("payment session not found")

// SessionHub tracks open payment sessions by order id so browser callbacks
// arriving over HTTP can be routed to the waiting checkout flow.
type SessionHub struct {
	mu       sync.Mutex
	sessions map[string]*PaymentSession
}

// NewSessionHub creates an empty hub
func NewSessionHub() *SessionHub {
	return &SessionHub{sessions: make(map[string]*PaymentSession)}
}

// NewSession returns a session that registers itself when opened
func (h *SessionHub) NewSession() *PaymentSession {
	return &PaymentSession{
		hub:    h,
		opened: make(chan CheckoutOptions, 1),
		done:   make(chan struct{}),
	}
}

// Len reports the number of open sessions
func (h *SessionHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *SessionHub) register(orderID string, s *PaymentSession) {
	h.mu.Lock()
	h.sessions[orderID] = s
	h.mu.Unlock()
}

func (h *SessionHub) remove(orderID string, s *PaymentSession) {
	h.mu.Lock()
	if h.sessions[orderID] == s {
		delete(h.sessions, orderID)
	}
	h.mu.Unlock()
}

// Get returns the open session for orderID
func (h *SessionHub) Get(orderID string) (*PaymentSession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[orderID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Succeed routes a success callback to the session for orderID
func (h *SessionHub) Succeed(orderID string, p PaymentSuccess) (*PaymentSession, error) {
	s, err := h.Get(orderID)
	if err != nil {
		return nil, err
	}
	s.fire(func(cb Callbacks) { cb.OnSuccess(p) })
	return s, nil
}

// Dismiss routes a dismiss callback to the session for orderID
func (h *SessionHub) Dismiss(orderID string) (*PaymentSession, error) {
	s, err := h.Get(orderID)
	if err != nil {
		return nil, err
	}
	s.fire(func(cb Callbacks) { cb.OnDismiss() })
	return s, nil
}

// Fail routes an error callback to the session for orderID
func (h *SessionHub) Fail(orderID string, cause error) (*PaymentSession, error) {
	s, err := h.Get(orderID)
	if err != nil {
		return nil, err
	}
	s.fire(func(cb Callbacks) { cb.OnError(cause) })
	return s, nil
}

// PaymentSession is a PaymentUI whose callbacks are driven by HTTP requests
type PaymentSession struct {
	hub    *SessionHub
	opened chan CheckoutOptions
	done   chan struct{}

	mu       sync.Mutex
	orderID  string
	cb       *Callbacks
	result   PaymentResult
	finished bool
}

// Open implements PaymentUI
func (s *PaymentSession) Open(_ context.Context, opts CheckoutOptions, cb Callbacks) error {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return errors.New("payment session already finished")
	}
	s.orderID = opts.Receipt
	s.cb = &cb
	s.mu.Unlock()

	s.hub.register(opts.Receipt, s)
	s.opened <- opts
	return nil
}

// Opened yields the checkout options once the flow is waiting for the customer
func (s *PaymentSession) Opened() <-chan CheckoutOptions {
	return s.opened
}

// Done is closed once Finish has been called
func (s *PaymentSession) Done() <-chan struct{} {
	return s.done
}

// Result returns the final result; valid after Done is closed
func (s *PaymentSession) Result() PaymentResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Wait blocks until the flow finishes or ctx ends
func (s *PaymentSession) Wait(ctx context.Context) (PaymentResult, error) {
	select {
	case <-s.done:
		return s.Result(), nil
	case <-ctx.Done():
		return PaymentResult{}, ctx.Err()
	}
}

// Finish records the flow's result and unregisters the session. Later calls are ignored.
func (s *PaymentSession) Finish(res PaymentResult) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.result = res
	orderID := s.orderID
	s.mu.Unlock()

	if orderID != "" {
		s.hub.remove(orderID, s)
	}
	close(s.done)
}

func (s *PaymentSession) fire(call func(Callbacks)) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb != nil {
		call(*cb)
	}
}
