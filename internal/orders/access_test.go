package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/safar/go-sql-marketplace/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestGuard(t *testing.T) {
	m := newMemStore()
	buyer := uuid.New()
	sellerUser := uuid.New()
	stranger := uuid.New()
	sellerID := m.addSeller(sellerUser)
	guard := NewGuard(m)
	ctx := context.Background()

	order := func(status models.OrderStatus) *models.Order {
		o := orderIn(status)
		o.BuyerID = buyer
		o.SellerID = sellerID
		return o
	}

	t.Run("read", func(t *testing.T) {
		o := order(models.OrderStatusProcessing)
		assert.NoError(t, guard.CanRead(ctx, o, buyer))
		assert.NoError(t, guard.CanRead(ctx, o, sellerUser))
		assert.ErrorIs(t, guard.CanRead(ctx, o, stranger), ErrForbidden)
	})

	t.Run("seller transitions", func(t *testing.T) {
		o := order(models.OrderStatusShipped)
		assert.NoError(t, guard.CanTransition(ctx, o, sellerUser, models.OrderStatusDelivered))
		assert.NoError(t, guard.CanTransition(ctx, o, sellerUser, models.OrderStatusCancelled))
	})

	t.Run("buyer transitions", func(t *testing.T) {
		assert.ErrorIs(t, guard.CanTransition(ctx, order(models.OrderStatusProcessing), buyer, models.OrderStatusShipped), ErrForbidden)
		assert.NoError(t, guard.CanTransition(ctx, order(models.OrderStatusProcessing), buyer, models.OrderStatusCancelled))
		assert.ErrorIs(t, guard.CanTransition(ctx, order(models.OrderStatusShipped), buyer, models.OrderStatusCancelled), ErrInvalidTransition)
	})

	t.Run("stranger transitions", func(t *testing.T) {
		assert.ErrorIs(t, guard.CanTransition(ctx, order(models.OrderStatusProcessing), stranger, models.OrderStatusCancelled), ErrForbidden)
	})

	t.Run("cancel", func(t *testing.T) {
		assert.NoError(t, guard.CanCancel(ctx, order(models.OrderStatusPending), buyer))
		assert.NoError(t, guard.CanCancel(ctx, order(models.OrderStatusProcessing), buyer))
		for _, status := range []models.OrderStatus{models.OrderStatusShipped, models.OrderStatusDelivered, models.OrderStatusCancelled} {
			assert.ErrorIs(t, guard.CanCancel(ctx, order(status), buyer), ErrInvalidTransition, status)
		}
		assert.ErrorIs(t, guard.CanCancel(ctx, order(models.OrderStatusProcessing), sellerUser), ErrForbidden)
	})
}
