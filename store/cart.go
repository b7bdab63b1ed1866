// Package store owns the mutable shopping-cart state. Carts are in-memory
// only and live for the session; nothing here is persisted.
package store

import (
	"math"
	"sync"

	"github.com/freshroots/storefront/catalog"
)

// CartItem is a product plus a quantity. An item with quantity 0 never
// exists in a cart; removal is represented by absence.
type CartItem struct {
	catalog.Product
	Quantity int `json:"quantity"`
}

// Cart is an ordered collection of CartItems keyed by product id.
// Insertion order is preserved for display. All methods are safe for
// concurrent callers; each mutation is applied atomically.
type Cart struct {
	mu    sync.Mutex
	items []CartItem
	index map[string]int // product id -> position in items
}

// NewCart creates an empty cart.
func NewCart() *Cart {
	return &Cart{
		index: make(map[string]int),
	}
}

// AddItem merges a product into the cart: an existing entry gains quantity
// 1, a new product is appended with quantity 1. Never fails.
func (c *Cart) AddItem(p catalog.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i, ok := c.index[p.ID]; ok {
		c.items[i].Quantity++
		return
	}
	c.index[p.ID] = len(c.items)
	c.items = append(c.items, CartItem{Product: p, Quantity: 1})
}

// ChangeQuantity adjusts an item's quantity by delta, clamping at zero.
// A clamped or exact zero removes the item entirely. An unknown product id
// is a no-op, not an error. Increment, decrement and full removal all run
// through this single clamped path.
func (c *Cart) ChangeQuantity(productID string, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[productID]
	if !ok {
		return
	}

	newQty := c.items[i].Quantity + delta
	if newQty < 0 {
		newQty = 0
	}
	if newQty == 0 {
		c.removeAtLocked(i)
		return
	}
	c.items[i].Quantity = newQty
}

// RemoveItem drops an item regardless of quantity. Equivalent to
// ChangeQuantity(id, -current); exposed as its own primitive for clarity.
func (c *Cart) RemoveItem(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i, ok := c.index[productID]; ok {
		c.removeAtLocked(i)
	}
}

func (c *Cart) removeAtLocked(i int) {
	delete(c.index, c.items[i].ID)
	c.items = append(c.items[:i], c.items[i+1:]...)
	for j := i; j < len(c.items); j++ {
		c.index[c.items[j].ID] = j
	}
}

// Items returns the cart contents in insertion order.
func (c *Cart) Items() []CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]CartItem, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of distinct products in the cart.
func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// TotalCount returns the sum of quantities. Recomputed on every call;
// nothing is cached that could drift from the collection.
func (c *Cart) TotalCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, item := range c.items {
		total += item.Quantity
	}
	return total
}

// TotalPrice returns the sum of price*quantity across items. Each line is
// converted to integer cents before multiplying so decimal catalog prices
// total exactly, with no float accumulation drift.
func (c *Cart) TotalPrice() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var cents int64
	for _, item := range c.items {
		cents += priceCents(item.Price) * int64(item.Quantity)
	}
	return float64(cents) / 100
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = nil
	c.index = make(map[string]int)
}

func priceCents(price float64) int64 {
	return int64(math.Round(price * 100))
}
