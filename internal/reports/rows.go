package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/matuskudlac/mediguide-inventory/internal/catalog"
)

// Report rows are plain structured data; rendering (JSON, CSV, ...) is the
// caller's concern.

type LowStockRow struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
}

type MonthlySalesRow struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitsSold int64           `json:"units_sold"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type OrderHistoryRow struct {
	OrderID   int64           `json:"order_id"`
	Status    catalog.Status  `json:"status"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int64           `json:"item_count"`
	CreatedAt time.Time       `json:"created_at"`
}
