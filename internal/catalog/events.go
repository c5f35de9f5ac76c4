package catalog

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderItemAdded = "OrderItemAdded"
	EventOrderCancelled = "OrderCancelled"
	EventStockAdjusted  = "StockAdjusted"
	EventStockRejected  = "StockRejected"
	EventPriceChanged   = "PriceChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "inventory-engine"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- payload types per event ----

type ItemQty struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type OrderItemAddedPayload struct {
	OrderID   int64 `json:"order_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type OrderCancelledPayload struct {
	OrderID int64 `json:"order_id"`
}

type StockAdjustedPayload struct {
	ProductID int64  `json:"product_id"`
	Delta     int    `json:"delta"`
	NewStock  int    `json:"new_stock"`
	Reason    Reason `json:"reason"`
	OrderID   *int64 `json:"order_id,omitempty"`
}

type StockRejectedPayload struct {
	OrderID   int64  `json:"order_id"`
	ProductID int64  `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Reason    string `json:"reason"` // e.g., INSUFFICIENT_STOCK
}

type PriceChangedPayload struct {
	ProductID int64           `json:"product_id"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
}
