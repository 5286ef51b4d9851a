package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/go-sql-marketplace/internal/database"
	"github.com/safar/go-sql-marketplace/internal/models"
	"github.com/shopspring/decimal"
)

type CreateProductRequest struct {
	SellerID    uuid.UUID
	SKU         string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	ImageURL    string
}

func CreateProduct(ctx context.Context, db *sql.DB, req CreateProductRequest) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (id, seller_id, sku, name, description, price, stock_quantity, image_url, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), 1)
		RETURNING id, seller_id, sku, name, description, price, stock_quantity, image_url, created_at, updated_at, version`

	err := db.QueryRowContext(ctx, query,
		uuid.New(), req.SellerID, req.SKU, req.Name, req.Description, req.Price, req.Stock, req.ImageURL,
	).Scan(
		&product.ID,
		&product.SellerID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.StockQuantity,
		&product.ImageURL,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db *sql.DB, id uuid.UUID) (*models.Product, error) {
	product := &models.Product{}

	query := `
		SELECT id, seller_id, sku, name, description, price, stock_quantity, image_url, created_at, updated_at, version
		FROM products
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.SellerID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.StockQuantity,
		&product.ImageURL,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// ResolveProducts loads every requested product in one query. Missing IDs
// are simply absent from the result; callers decide what that means.
func ResolveProducts(ctx context.Context, db database.Querier, ids []uuid.UUID) ([]models.ProductSnapshot, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, seller_id, name, price, image_url, stock_quantity
		FROM products
		WHERE id = ANY($1::uuid[])`

	rows, err := db.QueryContext(ctx, query, pq.Array(uuidStrings(ids)))
	if err != nil {
		return nil, fmt.Errorf("resolve products: %w", err)
	}
	defer rows.Close()

	var products []models.ProductSnapshot
	for rows.Next() {
		var p models.ProductSnapshot
		if err := rows.Scan(&p.ID, &p.SellerID, &p.Name, &p.Price, &p.ImageURL, &p.Stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// DecrementStock subtracts quantity only if the result stays non-negative.
// The check and the write are one statement, so concurrent checkouts
// cannot oversell.
func DecrementStock(ctx context.Context, q database.Querier, productID uuid.UUID, quantity int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $2
		   AND stock_quantity >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var exists bool
		err := q.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)", productID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check product exists: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", database.ErrProductNotFound, productID)
		}
		return fmt.Errorf("%w: product %s", database.ErrInsufficientStock, productID)
	}

	return nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
