package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/safar/go-sql-marketplace/internal/database"
	"github.com/safar/go-sql-marketplace/internal/models"
)

func CreateSeller(ctx context.Context, db *sql.DB, userID uuid.UUID, shopName string) (*models.Seller, error) {
	seller := &models.Seller{}

	query := `
		INSERT INTO sellers (id, user_id, shop_name, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, user_id, shop_name, created_at`

	err := db.QueryRowContext(ctx, query, uuid.New(), userID, shopName).Scan(
		&seller.ID,
		&seller.UserID,
		&seller.ShopName,
		&seller.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create seller: %w", err)
	}

	return seller, nil
}

// GetSellerByUser returns the seller record owned by a user account.
func GetSellerByUser(ctx context.Context, db *sql.DB, userID uuid.UUID) (*models.Seller, error) {
	seller := &models.Seller{}

	query := `
		SELECT id, user_id, shop_name, created_at
		FROM sellers
		WHERE user_id = $1`

	err := db.QueryRowContext(ctx, query, userID).Scan(
		&seller.ID,
		&seller.UserID,
		&seller.ShopName,
		&seller.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrSellerNotFound
		}
		return nil, fmt.Errorf("get seller by user: %w", err)
	}

	return seller, nil
}

func IsSellerOwnedBy(ctx context.Context, db *sql.DB, sellerID, userID uuid.UUID) (bool, error) {
	var owned bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM sellers WHERE id = $1 AND user_id = $2)",
		sellerID, userID).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("check seller ownership: %w", err)
	}
	return owned, nil
}
