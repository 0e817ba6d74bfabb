// Package cart is the in-memory shopping cart and the pricing rules applied to it.
package cart

import (
	"time"

	"commerce-service/internal/models"
)

const (
	// FlatDeliveryCharge applies to orders without any kit
	FlatDeliveryCharge int64 = 80
	// MinimumOrderValue is the smallest subtotal accepted at checkout
	MinimumOrderValue int64 = 500
)

// Item is a product with its quantity
type Item struct {
	Product  models.Product `json:"product"`
	Quantity int            `json:"quantity"`
}

// Cart holds items in insertion order. It is not safe for concurrent use.
type Cart struct {
	items []Item
	now   func() time.Time
}

// New creates an empty cart using the wall clock for discount expiry
func New() *Cart {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty cart with an injected clock; nil means time.Now
func NewWithClock(now func() time.Time) *Cart {
	if now == nil {
		now = time.Now
	}
	return &Cart{now: now}
}

// FromItems builds a cart from already hydrated items, dropping non-positive quantities
func FromItems(items []Item, now func() time.Time) *Cart {
	c := NewWithClock(now)
	for _, it := range items {
		if it.Quantity > 0 {
			c.items = append(c.items, it)
		}
	}
	return c
}

func (c *Cart) index(productID string) int {
	for i := range c.items {
		if c.items[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

// AddItem increments the product's quantity or appends it with quantity 1
func (c *Cart) AddItem(p models.Product) {
	if i := c.index(p.ID); i >= 0 {
		c.items[i].Quantity++
		return
	}
	c.items = append(c.items, Item{Product: p, Quantity: 1})
}

// UpdateQuantity sets the quantity; zero or less removes the line
func (c *Cart) UpdateQuantity(productID string, quantity int) {
	if quantity <= 0 {
		c.RemoveItem(productID)
		return
	}
	if i := c.index(productID); i >= 0 {
		c.items[i].Quantity = quantity
	}
}

// RemoveItem drops the product from the cart
func (c *Cart) RemoveItem(productID string) {
	if i := c.index(productID); i >= 0 {
		c.items = append(c.items[:i], c.items[i+1:]...)
	}
}

// Clear empties the cart
func (c *Cart) Clear() {
	c.items = nil
}

// Items returns a copy of the cart lines
func (c *Cart) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// IsEmpty reports whether the cart has no lines
func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

// ItemCount is the sum of quantities
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

// Subtotal is the sum of effective price times quantity, priced now
func (c *Cart) Subtotal() int64 {
	now := c.now()
	var total int64
	for _, it := range c.items {
		total += it.Product.EffectivePrice(now) * int64(it.Quantity)
	}
	return total
}

// Lines snapshots the cart for an order
func (c *Cart) Lines() []models.OrderLine {
	now := c.now()
	lines := make([]models.OrderLine, 0, len(c.items))
	for _, it := range c.items {
		unit := it.Product.EffectivePrice(now)
		lines = append(lines, models.OrderLine{
			ProductID: it.Product.ID,
			Title:     it.Product.Title,
			UnitPrice: unit,
			Quantity:  it.Quantity,
			LineTotal: unit * int64(it.Quantity),
			IsKit:     it.Product.IsKit(),
		})
	}
	return lines
}

// Quote is the priced view of a cart
type Quote struct {
	ItemCount      int   `json:"item_count"`
	Subtotal       int64 `json:"subtotal"`
	DeliveryCharge int64 `json:"delivery_charge"`
	Total          int64 `json:"total"`
	MeetsMinimum   bool  `json:"meets_minimum"`
}

// Quote prices the cart including delivery
func (c *Cart) Quote() Quote {
	subtotal := c.Subtotal()
	delivery := DeliveryCharge(c.items)
	return Quote{
		ItemCount:      c.ItemCount(),
		Subtotal:       subtotal,
		DeliveryCharge: delivery,
		Total:          subtotal + delivery,
		MeetsMinimum:   MeetsMinimum(subtotal),
	}
}

// DeliveryCharge is free for an empty cart or when any item is a kit, otherwise flat
func DeliveryCharge(items []Item) int64 {
	if len(items) == 0 {
		return 0
	}
	for _, it := range items {
		if it.Product.IsKit() {
			return 0
		}
	}
	return FlatDeliveryCharge
}

// MeetsMinimum reports whether subtotal reaches the minimum order value
func MeetsMinimum(subtotal int64) bool {
	return subtotal >= MinimumOrderValue
}
