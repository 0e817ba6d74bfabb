package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"commerce-service/internal/cart"
	"commerce-service/internal/models"
	"commerce-service/internal/store"
	"commerce-service/internal/util"

	"go.uber.org/zap"
)

// ErrProductNotFound is returned when a cart operation names an unknown product
var ErrProductNotFound = store.ErrProductNotFound

// CartService keeps session carts in Redis and prices them against the live catalog
type CartService struct {
	carts    CartStore
	products ProductStore
	logger   *zap.Logger
	now      func() time.Time
}

// NewCartService creates a new cart service
func NewCartService(carts CartStore, products ProductStore) *CartService {
	return &CartService{
		carts:    carts,
		products: products,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// CartView is a priced cart as returned to clients
type CartView struct {
	Session string      `json:"session"`
	Items   []cart.Item `json:"items"`
	cart.Quote
}

// View prices a cart for a response
func View(session string, c *cart.Cart) CartView {
	items := c.Items()
	if items == nil {
		items = []cart.Item{}
	}
	return CartView{Session: session, Items: items, Quote: c.Quote()}
}

// GetCart loads and hydrates a session cart. Products that disappeared from the
// catalog are dropped from the view.
func (cs *CartService) GetCart(ctx context.Context, session string) (*cart.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	quantities, err := cs.carts.CartQuantities(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(quantities) == 0 {
		return cart.NewWithClock(cs.now), nil
	}

	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	products, err := cs.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]cart.Item, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			cs.logger.Warn("Cart references a product missing from the catalog",
				zap.String("session", session),
				zap.String("product_id", id))
			continue
		}
		items = append(items, cart.Item{Product: p, Quantity: quantities[id]})
	}
	return cart.FromItems(items, cs.now), nil
}

// AddItem adds one unit of a product
func (cs *CartService) AddItem(ctx context.Context, session, productID string) (*cart.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if _, err := cs.products.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}
	if _, err := cs.carts.AdjustCartItem(ctx, session, productID, 1); err != nil {
		return nil, fmt.Errorf("failed to add item: %w", err)
	}
	util.CartOperationsTotal.WithLabelValues("add").Inc()
	return cs.GetCart(ctx, session)
}

// UpdateQuantity sets a line's quantity; zero or less removes it
func (cs *CartService) UpdateQuantity(ctx context.Context, session, productID string, quantity int) (*cart.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateQuantity")
	defer span.End()

	if quantity > 0 {
		if _, err := cs.products.GetProductByID(ctx, productID); err != nil {
			return nil, err
		}
	}
	if err := cs.carts.SetCartItem(ctx, session, productID, quantity); err != nil {
		return nil, fmt.Errorf("failed to update quantity: %w", err)
	}
	util.CartOperationsTotal.WithLabelValues("update").Inc()
	return cs.GetCart(ctx, session)
}

// RemoveItem drops a product from the cart
func (cs *CartService) RemoveItem(ctx context.Context, session, productID string) (*cart.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	if err := cs.carts.RemoveCartItem(ctx, session, productID); err != nil {
		return nil, fmt.Errorf("failed to remove item: %w", err)
	}
	util.CartOperationsTotal.WithLabelValues("remove").Inc()
	return cs.GetCart(ctx, session)
}

// ClearCart empties the cart
func (cs *CartService) ClearCart(ctx context.Context, session string) error {
	ctx, span := util.StartSpan(ctx, "CartService.ClearCart")
	defer span.End()

	if err := cs.carts.ClearCart(ctx, session); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	util.CartOperationsTotal.WithLabelValues("clear").Inc()
	return nil
}

// IsNotFound reports whether err means a missing product or order
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrOrderNotFound)
}
