package store

import (
	"sync"

	"github.com/google/uuid"
)

// Store holds the per-session carts, keyed by cart id.
type Store struct {
	mu    sync.RWMutex
	carts map[string]*Cart
}

// NewStore initializes an empty Store.
func NewStore() *Store {
	return &Store{
		carts: make(map[string]*Cart),
	}
}

// CreateCart creates a new empty cart and returns its id.
func (s *Store) CreateCart() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cartID := uuid.New().String()
	s.carts[cartID] = NewCart()
	return cartID
}

// GetCart returns a cart by id.
func (s *Store) GetCart(cartID string) (*Cart, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.carts[cartID]
	return c, ok
}

// DeleteCart removes a cart entirely.
func (s *Store) DeleteCart(cartID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, cartID)
}
