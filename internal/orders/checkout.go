package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/safar/go-sql-marketplace/internal/database"
	"github.com/safar/go-sql-marketplace/internal/models"
	"github.com/sirupsen/logrus"
)

const reservationFailedNote = "cancelled at checkout: stock could not be reserved"

// PlaceOrder turns one cart into one order per seller.
//
// The checkout intent is written first, then each seller group is persisted
// and has its stock reserved in turn. A failure on a later group does not
// undo earlier groups: the committed orders come back inside a
// *CheckoutError. Infrastructure failures leave the intent open for the
// reconciler; a group that runs out of stock abandons it.
func (s *Service) PlaceOrder(ctx context.Context, buyerID uuid.UUID, req models.CheckoutRequest) ([]models.Order, error) {
	logger := s.log.WithField("buyer_id", buyerID)

	if err := s.validateCheckout(req); err != nil {
		s.metrics.CheckoutFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	groups, err := PartitionCart(ctx, s.catalog, req.Items)
	if err != nil {
		s.metrics.CheckoutFailures.WithLabelValues(failureReason(err)).Inc()
		logger.WithError(err).Info("Checkout rejected")
		return nil, err
	}

	now := s.clock.Now()
	intent := &models.CheckoutIntent{
		ID:        uuid.New(),
		BuyerID:   buyerID,
		Request:   req,
		Status:    models.IntentOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.intents.CreateIntent(ctx, intent); err != nil {
		s.metrics.CheckoutFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, fmt.Errorf("record checkout intent: %w", err)
	}
	logger = logger.WithField("checkout_id", intent.ID)

	placed := make([]models.Order, 0, len(groups))
	for _, group := range groups {
		order, err := s.fulfilGroup(ctx, intent, group)
		if err != nil {
			s.metrics.CheckoutFailures.WithLabelValues(failureReason(err)).Inc()
			logger.WithError(err).WithFields(logrus.Fields{
				"seller_id": group.SellerID,
				"committed": len(placed),
			}).Warn("Checkout stopped partway")

			if isRejection(err) {
				s.closeIntent(ctx, intent.ID, models.IntentAbandoned, "checkout")
			}
			if len(placed) == 0 {
				return nil, err
			}
			return nil, &CheckoutError{Committed: placed, Err: err}
		}
		placed = append(placed, *order)
	}

	s.closeIntent(ctx, intent.ID, models.IntentCompleted, "checkout")
	logger.WithField("orders", len(placed)).Info("Checkout completed")

	return placed, nil
}

// ResumeCheckout finishes an intent that a crashed or interrupted checkout
// left open. Seller groups that already have an order only get their stock
// reservation re-applied; missing groups are created as PlaceOrder would.
// An existing order whose stock is gone is cancelled and the intent
// abandoned.
func (s *Service) ResumeCheckout(ctx context.Context, intent models.CheckoutIntent) (models.IntentStatus, error) {
	existing, err := s.orders.ListCheckoutOrders(ctx, intent.ID)
	if err != nil {
		return models.IntentOpen, err
	}

	done := make(map[uuid.UUID]bool, len(existing))
	for i := range existing {
		done[existing[i].SellerID] = true
		if _, err := s.reserveOrCancel(ctx, &existing[i]); err != nil {
			if isRejection(err) {
				return s.abandon(ctx, intent, err)
			}
			return models.IntentOpen, err
		}
	}

	groups, err := groupBySeller(ctx, s.catalog, intent.Request.Items)
	if err == nil {
		err = CheckStock(groups, done)
	}
	if err != nil {
		if isRejection(err) {
			return s.abandon(ctx, intent, err)
		}
		return models.IntentOpen, err
	}

	for _, group := range groups {
		if done[group.SellerID] {
			continue
		}
		if _, err := s.fulfilGroup(ctx, &intent, group); err != nil {
			if isRejection(err) {
				return s.abandon(ctx, intent, err)
			}
			return models.IntentOpen, err
		}
	}

	if err := s.intents.CloseIntent(ctx, intent.ID, models.IntentCompleted, s.clock.Now()); err != nil {
		return models.IntentOpen, err
	}
	s.metrics.IntentsResolved.WithLabelValues(string(models.IntentCompleted), "reconciler").Inc()
	return models.IntentCompleted, nil
}

func (s *Service) abandon(ctx context.Context, intent models.CheckoutIntent, cause error) (models.IntentStatus, error) {
	s.log.WithError(cause).WithField("checkout_id", intent.ID).Info("Abandoning checkout intent")
	if err := s.intents.CloseIntent(ctx, intent.ID, models.IntentAbandoned, s.clock.Now()); err != nil {
		return models.IntentOpen, err
	}
	s.metrics.IntentsResolved.WithLabelValues(string(models.IntentAbandoned), "reconciler").Inc()
	return models.IntentAbandoned, nil
}

func (s *Service) closeIntent(ctx context.Context, id uuid.UUID, status models.IntentStatus, source string) {
	if err := s.intents.CloseIntent(ctx, id, status, s.clock.Now()); err != nil {
		// The reconciler picks the intent up again later.
		s.log.WithError(err).WithField("checkout_id", id).Warn("Failed to close checkout intent")
		return
	}
	s.metrics.IntentsResolved.WithLabelValues(string(status), source).Inc()
}

// fulfilGroup persists the group's order, or picks up the one a previous
// attempt already wrote, and reserves its stock.
func (s *Service) fulfilGroup(ctx context.Context, intent *models.CheckoutIntent, group SellerGroup) (*models.Order, error) {
	order := s.buildOrder(intent, group)

	err := s.orders.CreateOrder(ctx, order)
	switch {
	case errors.Is(err, database.ErrDuplicateOrder):
		order, err = s.orders.GetCheckoutOrder(ctx, intent.ID, group.SellerID)
		if err != nil {
			return nil, fmt.Errorf("load existing order for seller %s: %w", group.SellerID, err)
		}
	case err != nil:
		return nil, fmt.Errorf("persist order for seller %s: %w", group.SellerID, err)
	default:
		s.metrics.OrdersCreated.Inc()
		s.log.WithFields(logrus.Fields{
			"order_id":    order.ID,
			"checkout_id": intent.ID,
			"seller_id":   group.SellerID,
			"total":       order.Total.StringFixed(2),
		}).Info("Order created")
	}

	return s.reserveOrCancel(ctx, order)
}

// reserveOrCancel applies the order's stock decrements. When the stock is
// gone the order is cancelled with a note and the reservation error is
// returned. If the cancel itself fails, that failure is returned instead so
// the intent stays open and the reconciler retries both steps.
func (s *Service) reserveOrCancel(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.Status == models.OrderStatusCancelled {
		return order, nil
	}

	err := s.inventory.Reserve(ctx, order.ID, order.StockLines())
	if err == nil {
		return order, nil
	}
	if !isRejection(err) {
		return nil, fmt.Errorf("reserve stock for order %s: %w", order.ID, err)
	}

	req := TransitionRequest{Target: models.OrderStatusCancelled, Note: reservationFailedNote}
	if _, cerr := s.applyTransition(ctx, order.ID, req, nil); cerr != nil {
		s.log.WithError(cerr).WithFields(logrus.Fields{
			"order_id":    order.ID,
			"reservation": err.Error(),
		}).Error("Failed to cancel order after reservation failure")
		return nil, fmt.Errorf("cancel order %s after rejected reservation: %w", order.ID, cerr)
	}
	return nil, err
}

func (s *Service) buildOrder(intent *models.CheckoutIntent, group SellerGroup) *models.Order {
	totals := Price(group.Lines)
	now := s.clock.Now()

	items := make([]models.OrderItem, 0, len(group.Lines))
	for _, line := range group.Lines {
		items = append(items, models.OrderItem{
			ProductID: line.Product.ID,
			Name:      line.Product.Name,
			Price:     line.Product.Price,
			Quantity:  line.Quantity,
			ImageURL:  line.Product.ImageURL,
		})
	}

	return &models.Order{
		ID:              uuid.New(),
		CheckoutID:      intent.ID,
		BuyerID:         intent.BuyerID,
		SellerID:        group.SellerID,
		Items:           items,
		Subtotal:        totals.Subtotal,
		Tax:             totals.Tax,
		ShippingCost:    totals.ShippingCost,
		Total:           totals.Total,
		Status:          InitialStatus,
		ShippingAddress: intent.Request.ShippingAddress,
		PaymentMethod:   intent.Request.PaymentMethod,
		PaymentStatus:   models.PaymentStatusCompleted,
		Notes:           intent.Request.Notes,
		StatusHistory: []models.StatusEntry{
			{Status: InitialStatus, Timestamp: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

func (s *Service) validateCheckout(req models.CheckoutRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	verr := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		verr.Fields[fieldPath(fe)] = describeFieldError(fe)
	}
	return verr
}

// fieldPath drops the root struct name: "items[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// isRejection reports whether err is the buyer's problem rather than ours:
// retrying the same checkout would fail the same way.
func isRejection(err error) bool {
	return errors.Is(err, database.ErrInsufficientStock) ||
		errors.Is(err, database.ErrProductNotFound) ||
		errors.Is(err, ErrInvalidRequest)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, database.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, database.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}
