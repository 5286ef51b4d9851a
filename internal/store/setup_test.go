package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/safar/go-sql-marketplace/internal/database"
	"github.com/safar/go-sql-marketplace/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}

	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start postgres container")

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("close database: %v", err)
		}
	})

	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, database.RunMigrations(db, "../../migrations", database.MigrateUp))

	return db
}

type fixture struct {
	buyer   *models.User
	owner   *models.User
	seller  *models.Seller
	product *models.Product
}

// seed creates a buyer, a seller with its owning user and one product with
// the given stock.
func seed(t *testing.T, db *sql.DB, stock int) fixture {
	t.Helper()
	ctx := context.Background()
	tag := uuid.NewString()[:8]

	buyer, err := CreateUser(ctx, db, fmt.Sprintf("buyer-%s@example.com", tag), "Buyer")
	require.NoError(t, err)
	owner, err := CreateUser(ctx, db, fmt.Sprintf("owner-%s@example.com", tag), "Owner")
	require.NoError(t, err)
	seller, err := CreateSeller(ctx, db, owner.ID, "Shop "+tag)
	require.NoError(t, err)
	product := addProduct(t, db, seller.ID, "25.00", stock)

	return fixture{buyer: buyer, owner: owner, seller: seller, product: product}
}

func addProduct(t *testing.T, db *sql.DB, sellerID uuid.UUID, price string, stock int) *models.Product {
	t.Helper()
	product, err := CreateProduct(context.Background(), db, CreateProductRequest{
		SellerID: sellerID,
		SKU:      "SKU-" + uuid.NewString()[:12],
		Name:     "Test Product",
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		ImageURL: "https://img.example.com/p.png",
	})
	require.NoError(t, err)
	return product
}

// newOrder builds a processing order for one line of the fixture product.
// Totals follow the checkout rules: flat shipping and 10% tax.
func newOrder(f fixture, checkoutID uuid.UUID, qty int, at time.Time) *models.Order {
	at = at.UTC().Truncate(time.Microsecond)
	subtotal := f.product.Price.Mul(decimal.NewFromInt(int64(qty)))
	shipping := decimal.RequireFromString("5.99")
	tax := subtotal.Mul(decimal.RequireFromString("0.10")).Round(2)

	return &models.Order{
		ID:         uuid.New(),
		CheckoutID: checkoutID,
		BuyerID:    f.buyer.ID,
		SellerID:   f.seller.ID,
		Items: []models.OrderItem{{
			ProductID: f.product.ID,
			Name:      f.product.Name,
			Price:     f.product.Price,
			Quantity:  qty,
			ImageURL:  f.product.ImageURL,
		}},
		Subtotal:     subtotal,
		Tax:          tax,
		ShippingCost: shipping,
		Total:        subtotal.Add(tax).Add(shipping),
		Status:       models.OrderStatusProcessing,
		ShippingAddress: models.ShippingAddress{
			FullName:     "Ada Buyer",
			AddressLine1: "1 Main St",
			City:         "Springfield",
			State:        "IL",
			PostalCode:   "62701",
			Country:      "US",
			Phone:        "+1-555-0100",
		},
		PaymentMethod: models.PaymentCreditCard,
		PaymentStatus: models.PaymentStatusCompleted,
		StatusHistory: []models.StatusEntry{{
			Status:    models.OrderStatusProcessing,
			Timestamp: at,
			Note:      "order placed",
		}},
		CreatedAt: at,
		UpdatedAt: at,
		Version:   1,
	}
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}
