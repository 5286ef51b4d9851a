package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-sql-marketplace/internal/database"
	"github.com/safar/go-sql-marketplace/internal/models"
)

func CreateIntent(ctx context.Context, db *sql.DB, intent *models.CheckoutIntent) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO checkout_intents (id, buyer_id, request, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		intent.ID, intent.BuyerID, intent.Request, intent.Status, intent.CreatedAt, intent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create checkout intent: %w", err)
	}
	return nil
}

func GetIntent(ctx context.Context, db *sql.DB, id uuid.UUID) (*models.CheckoutIntent, error) {
	intent := &models.CheckoutIntent{}

	err := db.QueryRowContext(ctx,
		`SELECT id, buyer_id, request, status, created_at, updated_at
		 FROM checkout_intents
		 WHERE id = $1`,
		id).Scan(&intent.ID, &intent.BuyerID, &intent.Request, &intent.Status, &intent.CreatedAt, &intent.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrIntentNotFound
		}
		return nil, fmt.Errorf("get checkout intent: %w", err)
	}

	return intent, nil
}

// CloseIntent moves an open intent to a final status. Closing an intent that
// is no longer open is a no-op.
func CloseIntent(ctx context.Context, db *sql.DB, id uuid.UUID, status models.IntentStatus, at time.Time) error {
	result, err := db.ExecContext(ctx,
		`UPDATE checkout_intents
		 SET status = $1, updated_at = $2
		 WHERE id = $3 AND status = $4`,
		status, at, id, models.IntentOpen)
	if err != nil {
		return fmt.Errorf("close checkout intent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := GetIntent(ctx, db, id); err != nil {
			return err
		}
	}

	return nil
}

// ListOpenIntents returns open intents created before the cutoff, oldest first.
func ListOpenIntents(ctx context.Context, db *sql.DB, before time.Time, limit int) ([]models.CheckoutIntent, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, buyer_id, request, status, created_at, updated_at
		 FROM checkout_intents
		 WHERE status = $1 AND created_at < $2
		 ORDER BY created_at
		 LIMIT $3`,
		models.IntentOpen, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list open intents: %w", err)
	}
	defer rows.Close()

	var intents []models.CheckoutIntent
	for rows.Next() {
		var intent models.CheckoutIntent
		if err := rows.Scan(&intent.ID, &intent.BuyerID, &intent.Request, &intent.Status, &intent.CreatedAt, &intent.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan checkout intent: %w", err)
		}
		intents = append(intents, intent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return intents, nil
}
