package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/safar/go-sql-marketplace/internal/models"
)

// Guard decides what a caller may do with an order. A caller is the buyer
// when they placed it, and the seller when they own the order's seller
// record. Unrelated callers get ErrForbidden; the order's existence is not
// hidden from them.
type Guard struct {
	sellers SellerDirectory
}

func NewGuard(sellers SellerDirectory) *Guard {
	return &Guard{sellers: sellers}
}

func (g *Guard) isSeller(ctx context.Context, order *models.Order, callerID uuid.UUID) (bool, error) {
	owned, err := g.sellers.IsOwnedBy(ctx, order.SellerID, callerID)
	if err != nil {
		return false, fmt.Errorf("check seller ownership: %w", err)
	}
	return owned, nil
}

func (g *Guard) CanRead(ctx context.Context, order *models.Order, callerID uuid.UUID) error {
	if order.BuyerID == callerID {
		return nil
	}
	seller, err := g.isSeller(ctx, order, callerID)
	if err != nil {
		return err
	}
	if !seller {
		return ErrForbidden
	}
	return nil
}

// CanTransition lets the owning seller request any target; the lifecycle
// table still has the final say. A buyer may only ask for cancelled, under
// the same rule as CanCancel.
func (g *Guard) CanTransition(ctx context.Context, order *models.Order, callerID uuid.UUID, target models.OrderStatus) error {
	seller, err := g.isSeller(ctx, order, callerID)
	if err != nil {
		return err
	}
	if seller {
		return nil
	}
	if order.BuyerID == callerID && target == models.OrderStatusCancelled {
		return buyerMayCancel(order)
	}
	return ErrForbidden
}

func (g *Guard) CanCancel(_ context.Context, order *models.Order, callerID uuid.UUID) error {
	if order.BuyerID != callerID {
		return ErrForbidden
	}
	return buyerMayCancel(order)
}

func buyerMayCancel(order *models.Order) error {
	if !buyerCancellable[order.Status] {
		return &TransitionError{
			From:   order.Status,
			To:     models.OrderStatusCancelled,
			Reason: "buyers can only cancel pending or processing orders",
		}
	}
	return nil
}
