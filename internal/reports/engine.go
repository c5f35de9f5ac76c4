// Package reports answers the operational queries that the original system
// ran as server-side procedures: low-stock scan, monthly sales rollup,
// bulk price changes, customer order history.
package reports

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/matuskudlac/mediguide-inventory/internal/catalog"
)

// DB is the slice of pgxpool.Pool the engine uses, split out so tests can
// substitute a mock connection.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Engine struct {
	DB  DB
	Log *zap.SugaredLogger
}

// LowStock returns every product at or below its threshold, most urgent
// first. Single statement, so the result is one consistent snapshot.
func (e *Engine) LowStock(ctx context.Context) ([]LowStockRow, error) {
	rows, err := e.DB.Query(ctx, `
		SELECT id, name, stock, low_stock_threshold
		FROM products
		WHERE stock <= low_stock_threshold AND is_active
		ORDER BY stock ASC, name ASC`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []LowStockRow
	for rows.Next() {
		var r LowStockRow
		if err := rows.Scan(&r.ProductID, &r.Name, &r.Stock, &r.Threshold); err != nil {
			return nil, storeErr(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// MonthlySales aggregates item subtotals for orders created in the given
// month. Cancelled orders are excluded: their stock was restored, so their
// items never count as revenue.
func (e *Engine) MonthlySales(ctx context.Context, month, year int) ([]MonthlySalesRow, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("month %d: %w", month, catalog.ErrInvalidArgument)
	}
	start, end := monthRange(month, year)

	rows, err := e.DB.Query(ctx, `
		SELECT p.id, p.name, SUM(oi.quantity)::bigint, SUM(oi.subtotal)
		FROM order_items oi
		JOIN orders o   ON o.id = oi.order_id
		JOIN products p ON p.id = oi.product_id
		WHERE o.created_at >= $1 AND o.created_at < $2
		  AND o.status <> 'cancelled'
		GROUP BY p.id, p.name
		ORDER BY SUM(oi.subtotal) DESC, p.name ASC`, start, end)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []MonthlySalesRow
	for rows.Next() {
		var r MonthlySalesRow
		if err := rows.Scan(&r.ProductID, &r.Name, &r.UnitsSold, &r.Revenue); err != nil {
			return nil, storeErr(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// BatchUpdatePricesByCategory applies a percentage change to every product
// in the category. Each product's price write and audit row commit in one
// transaction; the batch as a whole is not atomic, so a crash mid-batch
// leaves only fully-applied per-product changes. Returns the count of
// products actually changed.
func (e *Engine) BatchUpdatePricesByCategory(ctx context.Context, categoryID int64, pct float64) (int, error) {
	var exists bool
	if err := e.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM categories WHERE id=$1)`, categoryID).Scan(&exists); err != nil {
		return 0, storeErr(err)
	}
	if !exists {
		return 0, fmt.Errorf("category %d: %w", categoryID, catalog.ErrNotFound)
	}

	rows, err := e.DB.Query(ctx, `SELECT id FROM products WHERE category_id=$1 ORDER BY id`, categoryID)
	if err != nil {
		return 0, storeErr(err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, storeErr(err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, storeErr(err)
	}

	updated := 0
	for _, id := range ids {
		changed, err := e.updateOnePrice(ctx, id, pct)
		if err != nil {
			return updated, err
		}
		if changed {
			updated++
		}
	}
	if e.Log != nil {
		e.Log.Infow("batch price update", "category_id", categoryID, "pct", pct, "updated", updated)
	}
	return updated, nil
}

func (e *Engine) updateOnePrice(ctx context.Context, productID int64, pct float64) (bool, error) {
	tx, err := e.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, storeErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var oldPrice decimal.Decimal
	if err := tx.QueryRow(ctx, `SELECT price FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&oldPrice); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil // deleted between list and lock
		}
		return false, storeErr(err)
	}

	newPrice := applyPercent(oldPrice, pct)
	// Prices below the floor are left unchanged rather than written; the
	// products table rejects them anyway.
	if newPrice.Equal(oldPrice) || newPrice.LessThan(minPrice) {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE products SET price=$2, updated_at=now() WHERE id=$1`,
		productID, newPrice); err != nil {
		return false, storeErr(err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO products_price_audit(product_id, old_price, new_price)
		VALUES ($1,$2,$3)`, productID, oldPrice, newPrice); err != nil {
		return false, storeErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, storeErr(err)
	}
	return true, nil
}

// CustomerOrderHistory lists a customer's orders newest first with item
// counts, mirroring the original order-history procedure.
func (e *Engine) CustomerOrderHistory(ctx context.Context, userID int64) ([]OrderHistoryRow, error) {
	rows, err := e.DB.Query(ctx, `
		SELECT o.id, o.status, o.total, COUNT(oi.id), o.created_at
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		WHERE o.user_id=$1
		GROUP BY o.id
		ORDER BY o.created_at DESC`, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []OrderHistoryRow
	for rows.Next() {
		var r OrderHistoryRow
		if err := rows.Scan(&r.OrderID, &r.Status, &r.Total, &r.ItemCount, &r.CreatedAt); err != nil {
			return nil, storeErr(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", catalog.ErrStoreUnavailable, err)
}
