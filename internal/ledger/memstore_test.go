package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matuskudlac/mediguide-inventory/internal/catalog"
)

// memStore implements Store with the same semantics as PostgresStore:
// check-and-write under a lock, append-only event log, idempotent restores.
type memStore struct {
	mu       sync.Mutex
	stock    map[int64]int
	orders   map[int64][]catalog.ItemQty
	restored map[int64]bool
	events   []catalog.StockEvent
}

func newMemStore() *memStore {
	return &memStore{
		stock:    map[int64]int{},
		orders:   map[int64][]catalog.ItemQty{},
		restored: map[int64]bool{},
	}
}

var _ Store = (*memStore)(nil)

func (m *memStore) ApplyDelta(_ context.Context, productID int64, delta int, reason catalog.Reason, orderID *int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(productID, delta, reason, orderID)
}

func (m *memStore) applyLocked(productID int64, delta int, reason catalog.Reason, orderID *int64) (int, error) {
	stock, ok := m.stock[productID]
	if !ok {
		return 0, fmt.Errorf("product %d: %w", productID, catalog.ErrNotFound)
	}
	if stock+delta < 0 {
		return 0, &InsufficientStockError{ProductID: productID, Requested: -delta, Available: stock}
	}
	m.stock[productID] = stock + delta
	m.events = append(m.events, catalog.StockEvent{
		ID:        int64(len(m.events) + 1),
		ProductID: productID,
		Delta:     delta,
		Reason:    reason,
		OrderID:   orderID,
		CreatedAt: time.Now(),
	})
	return stock + delta, nil
}

func (m *memStore) RestoreOrder(_ context.Context, orderID int64) ([]catalog.ItemQty, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items, ok := m.orders[orderID]
	if !ok {
		return nil, false, fmt.Errorf("order %d: %w", orderID, catalog.ErrNotFound)
	}
	if m.restored[orderID] || len(items) == 0 {
		return nil, false, nil
	}
	for _, it := range items {
		if _, err := m.applyLocked(it.ProductID, it.Quantity, catalog.ReasonOrderCancelled, &orderID); err != nil {
			return nil, false, err
		}
	}
	m.restored[orderID] = true
	return items, true, nil
}

func (m *memStore) CheckAvailability(_ context.Context, productID int64, quantity int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stock, ok := m.stock[productID]
	if !ok {
		return false, fmt.Errorf("product %d: %w", productID, catalog.ErrNotFound)
	}
	return stock >= quantity, nil
}

func (m *memStore) StockEvents(_ context.Context, productID int64, limit int) ([]catalog.StockEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.StockEvent
	for i := len(m.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.events[i].ProductID == productID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

// addOrder registers an order's items the way the storefront would before
// the hook fires.
func (m *memStore) addOrder(orderID int64, items ...catalog.ItemQty) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[orderID] = items
}
