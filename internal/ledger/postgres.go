package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matuskudlac/mediguide-inventory/internal/catalog"
)

type PostgresStore struct{ DB *pgxpool.Pool }

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) ApplyDelta(ctx context.Context, productID int64, delta int, reason catalog.Reason, orderID *int64) (int, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, storeErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	newStock, err := applyDelta(ctx, tx, productID, delta, reason, orderID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, storeErr(err)
	}
	return newStock, nil
}

// applyDelta is the one code path that writes products.stock. Lock stock per
// product (FOR UPDATE) -> check non-negative -> write -> append ledger event.
func applyDelta(ctx context.Context, tx pgx.Tx, productID int64, delta int, reason catalog.Reason, orderID *int64) (int, error) {
	var stock int
	err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("product %d: %w", productID, catalog.ErrNotFound)
	}
	if err != nil {
		return 0, storeErr(err)
	}

	if stock+delta < 0 {
		return 0, &InsufficientStockError{ProductID: productID, Requested: -delta, Available: stock}
	}

	if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`,
		productID, delta); err != nil {
		return 0, storeErr(err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO stock_ledger_events(product_id, delta, reason, order_id)
		VALUES ($1,$2,$3,$4)`,
		productID, delta, reason, orderID); err != nil {
		return 0, storeErr(err)
	}
	return stock + delta, nil
}

func (s *PostgresStore) RestoreOrder(ctx context.Context, orderID int64) ([]catalog.ItemQty, bool, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, storeErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the order row so concurrent cancels of the same order serialize
	// here; the EXISTS check below is then race-free.
	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("order %d: %w", orderID, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, false, storeErr(err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM stock_ledger_events WHERE order_id=$1 AND reason=$2)`,
		orderID, catalog.ReasonOrderCancelled).Scan(&exists); err != nil {
		return nil, false, storeErr(err)
	}
	if exists {
		return nil, false, nil // already restored, no double credit
	}

	// ORDER BY keeps product lock order stable across concurrent restores.
	rows, err := tx.Query(ctx, `
		SELECT product_id, SUM(quantity)::int
		FROM order_items WHERE order_id=$1
		GROUP BY product_id ORDER BY product_id`, orderID)
	if err != nil {
		return nil, false, storeErr(err)
	}
	var items []catalog.ItemQty
	for rows.Next() {
		var it catalog.ItemQty
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			rows.Close()
			return nil, false, storeErr(err)
		}
		items = append(items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, false, storeErr(err)
	}
	// An itemless order writes no restore events, so the EXISTS check above
	// would report it restorable forever. Nothing to credit either way.
	if len(items) == 0 {
		return nil, false, nil
	}

	for _, it := range items {
		if _, err := applyDelta(ctx, tx, it.ProductID, it.Quantity, catalog.ReasonOrderCancelled, &orderID); err != nil {
			return nil, false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, storeErr(err)
	}
	return items, true, nil
}

func (s *PostgresStore) CheckAvailability(ctx context.Context, productID int64, quantity int) (bool, error) {
	var ok bool
	err := s.DB.QueryRow(ctx, `SELECT stock >= $2 FROM products WHERE id=$1`, productID, quantity).Scan(&ok)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("product %d: %w", productID, catalog.ErrNotFound)
	}
	if err != nil {
		return false, storeErr(err)
	}
	return ok, nil
}

func (s *PostgresStore) StockEvents(ctx context.Context, productID int64, limit int) ([]catalog.StockEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id, product_id, delta, reason, order_id, created_at
		FROM stock_ledger_events
		WHERE product_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, productID, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []catalog.StockEvent
	for rows.Next() {
		var ev catalog.StockEvent
		if err := rows.Scan(&ev.ID, &ev.ProductID, &ev.Delta, &ev.Reason, &ev.OrderID, &ev.CreatedAt); err != nil {
			return nil, storeErr(err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", catalog.ErrStoreUnavailable, err)
}
