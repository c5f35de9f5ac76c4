// Package audit keeps the immutable trail of product price changes. Rows in
// products_price_audit are written once and never touched again.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/matuskudlac/mediguide-inventory/internal/catalog"
)

// DB is the slice of pgxpool.Pool the log uses, split out so tests can
// substitute a mock connection.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Log interface {
	// Record appends one audit row. A no-op when the price did not actually
	// change.
	Record(ctx context.Context, productID int64, oldPrice, newPrice decimal.Decimal) error

	// History returns a product's audit trail, newest first.
	History(ctx context.Context, productID int64) ([]catalog.PriceAuditRecord, error)

	// UpdateProductPrice writes a product's price and its audit row in one
	// transaction. Returns the previous price.
	UpdateProductPrice(ctx context.Context, productID int64, newPrice decimal.Decimal) (decimal.Decimal, error)
}

type PostgresLog struct{ DB DB }

var _ Log = (*PostgresLog)(nil)

func (l *PostgresLog) Record(ctx context.Context, productID int64, oldPrice, newPrice decimal.Decimal) error {
	if oldPrice.Equal(newPrice) {
		return nil
	}
	_, err := l.DB.Exec(ctx, `
		INSERT INTO products_price_audit(product_id, old_price, new_price)
		VALUES ($1,$2,$3)`, productID, oldPrice, newPrice)
	if err != nil {
		return fmt.Errorf("%w: %v", catalog.ErrStoreUnavailable, err)
	}
	return nil
}

func (l *PostgresLog) History(ctx context.Context, productID int64) ([]catalog.PriceAuditRecord, error) {
	rows, err := l.DB.Query(ctx, `
		SELECT id, product_id, old_price, new_price, changed_at
		FROM products_price_audit
		WHERE product_id=$1
		ORDER BY changed_at DESC, id DESC`, productID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", catalog.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []catalog.PriceAuditRecord
	for rows.Next() {
		var rec catalog.PriceAuditRecord
		if err := rows.Scan(&rec.ID, &rec.ProductID, &rec.OldPrice, &rec.NewPrice, &rec.ChangedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", catalog.ErrStoreUnavailable, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", catalog.ErrStoreUnavailable, err)
	}
	return out, nil
}

// UpdateProductPrice is the single-product edit path: price write and audit
// append commit together or not at all.
func (l *PostgresLog) UpdateProductPrice(ctx context.Context, productID int64, newPrice decimal.Decimal) (decimal.Decimal, error) {
	if newPrice.LessThan(decimal.RequireFromString("0.01")) {
		return decimal.Zero, fmt.Errorf("price %s: %w", newPrice, catalog.ErrInvalidArgument)
	}

	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", catalog.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var oldPrice decimal.Decimal
	err = tx.QueryRow(ctx, `SELECT price FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&oldPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("product %d: %w", productID, catalog.ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", catalog.ErrStoreUnavailable, err)
	}
	if oldPrice.Equal(newPrice) {
		return oldPrice, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE products SET price=$2, updated_at=now() WHERE id=$1`,
		productID, newPrice); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", catalog.ErrStoreUnavailable, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO products_price_audit(product_id, old_price, new_price)
		VALUES ($1,$2,$3)`, productID, oldPrice, newPrice); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", catalog.ErrStoreUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", catalog.ErrStoreUnavailable, err)
	}
	return oldPrice, nil
}
