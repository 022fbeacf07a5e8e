package cartstore

import (
	"fmt"
	"sync"
	"time"
)

// Store keys are namespaced so the cart table can be shared with other
// durable client state later without collisions.
const keyPrefix = "namestrings:cart:"

func StoreKey(buyerID string) string {
	return keyPrefix + buyerID
}

// Store owns the authoritative in-memory cart for one buyer. Every
// mutation merges per the line identity rule, then saves the whole cart
// synchronously before returning. Each public operation is atomic: the
// store mutex serializes mutations so no interleaving is observable.
type Store struct {
	mu    sync.Mutex
	key   string
	repo  Repository
	lines []Line
}

// Open restores the buyer's persisted cart if one was ever saved,
// otherwise starts empty.
func Open(repo Repository, buyerID string) (*Store, error) {
	key := StoreKey(buyerID)
	lines, _, err := repo.Load(key)
	if err != nil {
		return nil, err
	}
	return &Store{key: key, repo: repo, lines: lines}, nil
}

// Add merges the product into the cart. A quantity below 1 is clamped to
// 1, never rejected. A line with the same product and structurally equal
// customization has its quantity incremented; anything else appends.
func (s *Store) Add(product Product, quantity int, customization map[string]string) error {
	if quantity < 1 {
		quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	custKey := CustomizationKey(customization)
	for i := range s.lines {
		if s.lines[i].ProductID == product.ID && CustomizationKey(s.lines[i].Customization) == custKey {
			s.lines[i].Quantity += quantity
			return s.save()
		}
	}

	s.lines = append(s.lines, Line{
		ProductID:     product.ID,
		Name:          product.Name,
		Image:         product.Image,
		UnitPrice:     product.UnitPrice,
		Quantity:      quantity,
		Customization: copyCustomization(customization),
		AddedAt:       time.Now(),
	})
	return s.save()
}

// Remove drops the matching line. Removing a line that is not present is
// a no-op, not an error.
func (s *Store) Remove(productID string, customization map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(productID, customization)
}

// SetQuantity overwrites the matching line's quantity. A quantity of
// zero or below removes the line, so no negative quantity is ever
// observable.
func (s *Store) SetQuantity(productID string, customization map[string]string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		return s.removeLocked(productID, customization)
	}

	custKey := CustomizationKey(customization)
	for i := range s.lines {
		if s.lines[i].ProductID == productID && CustomizationKey(s.lines[i].Customization) == custKey {
			s.lines[i].Quantity = quantity
			return s.save()
		}
	}
	return nil
}

// Clear empties the cart and durably records the cleared state, so a
// reload does not resurrect a stale non-empty save.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
	return s.save()
}

// Snapshot returns an immutable copy of the lines plus derived totals.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshotOf(s.lines)
}

func (s *Store) removeLocked(productID string, customization map[string]string) error {
	custKey := CustomizationKey(customization)
	for i := range s.lines {
		if s.lines[i].ProductID == productID && CustomizationKey(s.lines[i].Customization) == custKey {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			return s.save()
		}
	}
	return nil
}

func (s *Store) save() error {
	if err := s.repo.Save(s.key, s.lines); err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}
	return nil
}

// Manager hands out one Store per buyer and keeps it cached so all
// handlers mutate the same authoritative copy.
type Manager struct {
	mu     sync.Mutex
	repo   Repository
	stores map[string]*Store
}

func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo, stores: make(map[string]*Store)}
}

func (m *Manager) Store(buyerID string) (*Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if store, ok := m.stores[buyerID]; ok {
		return store, nil
	}
	store, err := Open(m.repo, buyerID)
	if err != nil {
		return nil, err
	}
	m.stores[buyerID] = store
	return store, nil
}
