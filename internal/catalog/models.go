package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Product struct {
	ID                int64
	CategoryID        int64
	Name              string
	Price             decimal.Decimal
	Stock             int
	LowStockThreshold int
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Order struct {
	ID           int64
	UserID       int64
	Status       Status // see status.go
	Subtotal     decimal.Decimal
	Tax          decimal.Decimal
	ShippingCost decimal.Decimal
	Total        decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal // price captured at order time, never re-read from products
	Subtotal  decimal.Decimal // quantity * unit price, always recomputed
	CreatedAt time.Time
}

// PriceAuditRecord rows are append-only; the engine never updates or deletes them.
type PriceAuditRecord struct {
	ID        int64
	ProductID int64
	OldPrice  decimal.Decimal
	NewPrice  decimal.Decimal
	ChangedAt time.Time
}

// Reason classifies a stock movement in the ledger.
type Reason string

const (
	ReasonOrderPlaced    Reason = "order_placed"
	ReasonOrderCancelled Reason = "order_cancelled"
	ReasonManualAdjust   Reason = "manual_adjustment"
)

// StockEvent is one signed movement applied to a product's stock.
// OrderID is nil for manual adjustments.
type StockEvent struct {
	ID        int64
	ProductID int64
	Delta     int
	Reason    Reason
	OrderID   *int64
	CreatedAt time.Time
}
