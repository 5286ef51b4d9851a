package orders

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/safar/go-sql-marketplace/internal/database"
	"github.com/safar/go-sql-marketplace/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionCartGroupsBySellerInCartOrder(t *testing.T) {
	m := newMemStore()
	sellerA := m.addSeller(uuid.New())
	sellerB := m.addSeller(uuid.New())
	pen := m.addProduct(sellerB, "pen", "2.00", 10)
	mug := m.addProduct(sellerA, "mug", "12.00", 10)
	ink := m.addProduct(sellerB, "ink", "4.00", 10)

	groups, err := PartitionCart(context.Background(), m, []models.CheckoutItem{
		{ProductID: pen, Quantity: 1},
		{ProductID: mug, Quantity: 2},
		{ProductID: ink, Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, sellerB, groups[0].SellerID)
	require.Len(t, groups[0].Lines, 2)
	assert.Equal(t, pen, groups[0].Lines[0].Product.ID)
	assert.Equal(t, ink, groups[0].Lines[1].Product.ID)
	assert.Equal(t, 3, groups[0].Lines[1].Quantity)

	assert.Equal(t, sellerA, groups[1].SellerID)
	assert.Equal(t, mug, groups[1].Lines[0].Product.ID)
}

func TestPartitionCartReportsMissingProducts(t *testing.T) {
	m := newMemStore()
	seller := m.addSeller(uuid.New())
	known := m.addProduct(seller, "mug", "12.00", 10)
	missing := uuid.New()

	_, err := PartitionCart(context.Background(), m, []models.CheckoutItem{
		{ProductID: known, Quantity: 1},
		{ProductID: missing, Quantity: 1},
	})

	assert.ErrorIs(t, err, database.ErrProductNotFound)
	assert.Contains(t, err.Error(), missing.String())
}

func TestPartitionCartSumsRepeatedProducts(t *testing.T) {
	m := newMemStore()
	seller := m.addSeller(uuid.New())
	mug := m.addProduct(seller, "mug", "12.00", 5)

	_, err := PartitionCart(context.Background(), m, []models.CheckoutItem{
		{ProductID: mug, Quantity: 3},
		{ProductID: mug, Quantity: 3},
	})

	assert.ErrorIs(t, err, database.ErrInsufficientStock)
}

func TestPartitionCartRejectsBadQuantities(t *testing.T) {
	m := newMemStore()

	_, err := PartitionCart(context.Background(), m, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = PartitionCart(context.Background(), m, []models.CheckoutItem{{ProductID: uuid.New(), Quantity: 0}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = PartitionCart(context.Background(), m, []models.CheckoutItem{{ProductID: uuid.New(), Quantity: models.MaxItemQuantity + 1}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "items[0].quantity")
}

func TestPartitionCartHugeRepeatedQuantity(t *testing.T) {
	m := newMemStore()
	seller := m.addSeller(uuid.New())
	mug := m.addProduct(seller, "mug", "12.00", 10)

	groups, err := PartitionCart(context.Background(), m, []models.CheckoutItem{
		{ProductID: mug, Quantity: 1},
		{ProductID: mug, Quantity: math.MaxInt},
	})

	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Nil(t, groups)
	assert.Equal(t, 10, m.stock(mug))
}

func TestCheckStockDoesNotWrapAround(t *testing.T) {
	mug := models.ProductSnapshot{ID: uuid.New(), SellerID: uuid.New(), Name: "mug", Stock: 10}
	groups := []SellerGroup{{
		SellerID: mug.SellerID,
		Lines: []Line{
			{Product: mug, Quantity: 1},
			{Product: mug, Quantity: math.MaxInt},
		},
	}}

	assert.ErrorIs(t, CheckStock(groups, nil), database.ErrInsufficientStock)
}

func TestCheckStockSkipsSellers(t *testing.T) {
	m := newMemStore()
	seller := m.addSeller(uuid.New())
	mug := m.addProduct(seller, "mug", "12.00", 0)

	groups, err := groupBySeller(context.Background(), m, []models.CheckoutItem{{ProductID: mug, Quantity: 1}})
	require.NoError(t, err)

	assert.ErrorIs(t, CheckStock(groups, nil), database.ErrInsufficientStock)
	assert.NoError(t, CheckStock(groups, map[uuid.UUID]bool{seller: true}))
}
