package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/safar/go-sql-marketplace/internal/database"
	"github.com/safar/go-sql-marketplace/internal/models"
)

// ReserveInventory applies every stock line of one order in a single
// transaction. The reservation row keyed by order makes the call
// idempotent: a second call for the same order changes nothing.
// Any line that would drive stock negative rolls the whole order back
// with database.ErrInsufficientStock.
func ReserveInventory(ctx context.Context, db *sql.DB, orderID uuid.UUID, lines []models.StockLine) error {
	merged, err := mergeStockLines(lines)
	if err != nil {
		return err
	}

	return database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO inventory_reservations (order_id, created_at)
			 VALUES ($1, NOW())
			 ON CONFLICT (order_id) DO NOTHING`,
			orderID)
		if err != nil {
			return fmt.Errorf("record reservation: %w", err)
		}

		inserted, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if inserted == 0 {
			return nil
		}

		for _, line := range merged {
			if err := DecrementStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		return nil
	})
}

func IsInventoryReserved(ctx context.Context, db *sql.DB, orderID uuid.UUID) (bool, error) {
	var reserved bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM inventory_reservations WHERE order_id = $1)",
		orderID).Scan(&reserved)
	if err != nil {
		return false, fmt.Errorf("check reservation: %w", err)
	}
	return reserved, nil
}

// mergeStockLines folds duplicate products together and orders rows by
// product ID so concurrent reservations lock rows in the same order.
// A total beyond what an INTEGER stock column can hold is reported as
// insufficient stock.
func mergeStockLines(lines []models.StockLine) ([]models.StockLine, error) {
	totals := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("reserve product %s: invalid quantity %d", line.ProductID, line.Quantity)
		}
		if line.Quantity > math.MaxInt32-totals[line.ProductID] {
			return nil, fmt.Errorf("%w: product %s", database.ErrInsufficientStock, line.ProductID)
		}
		totals[line.ProductID] += line.Quantity
	}

	merged := make([]models.StockLine, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, models.StockLine{ProductID: id, Quantity: qty})
	}

	sort.Slice(merged, func(i, j int) bool {
		return bytes.Compare(merged[i].ProductID[:], merged[j].ProductID[:]) < 0
	})

	return merged, nil
}
