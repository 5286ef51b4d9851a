package orders

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/safar/go-sql-marketplace/internal/database"
	"github.com/safar/go-sql-marketplace/internal/metrics"
	"github.com/safar/go-sql-marketplace/internal/models"
	"github.com/safar/go-sql-marketplace/internal/store"
	"github.com/sirupsen/logrus"
)

type Catalog interface {
	ResolveProducts(ctx context.Context, ids []uuid.UUID) ([]models.ProductSnapshot, error)
}

// InventoryLedger applies an order's stock decrements exactly once per order.
type InventoryLedger interface {
	Reserve(ctx context.Context, orderID uuid.UUID, lines []models.StockLine) error
}

type SellerDirectory interface {
	IsOwnedBy(ctx context.Context, sellerID, userID uuid.UUID) (bool, error)
	SellerForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

type Repository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetCheckoutOrder(ctx context.Context, checkoutID, sellerID uuid.UUID) (*models.Order, error)
	ListCheckoutOrders(ctx context.Context, checkoutID uuid.UUID) ([]models.Order, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, page, pageSize int) (*store.OffsetPage[models.Order], error)
	ListBuyerOrdersCursor(ctx context.Context, buyerID uuid.UUID, cursor string, limit int) (*store.CursorPage[models.Order], error)
	ListSellerOrders(ctx context.Context, sellerID uuid.UUID, page, pageSize int) (*store.OffsetPage[models.Order], error)
	UpdateOrderStatus(ctx context.Context, order *models.Order, previous models.OrderStatus) error
	SellerOrderStats(ctx context.Context, sellerID uuid.UUID) (*models.OrderStats, error)
}

type IntentStore interface {
	CreateIntent(ctx context.Context, intent *models.CheckoutIntent) error
	CloseIntent(ctx context.Context, id uuid.UUID, status models.IntentStatus, at time.Time) error
}

type Dependencies struct {
	Catalog   Catalog
	Inventory InventoryLedger
	Sellers   SellerDirectory
	Orders    Repository
	Intents   IntentStore
}

type Option func(*Service)

func WithClock(clock Clock) Option {
	return func(s *Service) { s.clock = clock }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Service) { s.log = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

const maxTransitionAttempts = 3

type Service struct {
	catalog   Catalog
	inventory InventoryLedger
	sellers   SellerDirectory
	orders    Repository
	intents   IntentStore
	guard     *Guard
	validate  *validator.Validate
	clock     Clock
	log       *logrus.Logger
	metrics   *metrics.Metrics
}

func NewService(deps Dependencies, opts ...Option) *Service {
	s := &Service{
		catalog:   deps.Catalog,
		inventory: deps.Inventory,
		sellers:   deps.Sellers,
		orders:    deps.Orders,
		intents:   deps.Intents,
		guard:     NewGuard(deps.Sellers),
		validate:  newValidator(),
		clock:     SystemClock,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewUnregistered()
	}
	return s
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Service) GetOrder(ctx context.Context, callerID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CanRead(ctx, order, callerID); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, page, pageSize int) (*store.OffsetPage[models.Order], error) {
	page, pageSize = store.NormalizePage(page, pageSize)
	return s.orders.ListBuyerOrders(ctx, buyerID, page, pageSize)
}

func (s *Service) ListBuyerOrdersCursor(ctx context.Context, buyerID uuid.UUID, cursor string, limit int) (*store.CursorPage[models.Order], error) {
	_, limit = store.NormalizePage(1, limit)
	page, err := s.orders.ListBuyerOrdersCursor(ctx, buyerID, cursor, limit)
	if errors.Is(err, store.ErrInvalidCursor) {
		return nil, invalidField("cursor", "malformed cursor")
	}
	return page, err
}

func (s *Service) ListSellerOrders(ctx context.Context, sellerID uuid.UUID, page, pageSize int) (*store.OffsetPage[models.Order], error) {
	page, pageSize = store.NormalizePage(page, pageSize)
	return s.orders.ListSellerOrders(ctx, sellerID, page, pageSize)
}

// ListSellerOrdersForUser lists orders for the seller record owned by
// userID. A user with no seller record gets an empty page.
func (s *Service) ListSellerOrdersForUser(ctx context.Context, userID uuid.UUID, page, pageSize int) (*store.OffsetPage[models.Order], error) {
	sellerID, err := s.sellers.SellerForUser(ctx, userID)
	if errors.Is(err, database.ErrSellerNotFound) {
		page, pageSize = store.NormalizePage(page, pageSize)
		return store.NewOffsetPage[models.Order](nil, 0, page, pageSize), nil
	}
	if err != nil {
		return nil, err
	}
	return s.ListSellerOrders(ctx, sellerID, page, pageSize)
}

// SellerOrderStats summarises the caller's seller orders. Revenue and
// average value leave out cancelled orders.
func (s *Service) SellerOrderStats(ctx context.Context, userID uuid.UUID) (*models.OrderStats, error) {
	sellerID, err := s.sellers.SellerForUser(ctx, userID)
	if errors.Is(err, database.ErrSellerNotFound) {
		return emptyStats(), nil
	}
	if err != nil {
		return nil, err
	}
	return s.orders.SellerOrderStats(ctx, sellerID)
}

func emptyStats() *models.OrderStats {
	stats := &models.OrderStats{OrdersByStatus: make(map[models.OrderStatus]int64, len(models.OrderStatuses))}
	for _, status := range models.OrderStatuses {
		stats.OrdersByStatus[status] = 0
	}
	return stats
}

// TransitionOrderStatus moves an order to req.Target on behalf of callerID.
func (s *Service) TransitionOrderStatus(ctx context.Context, callerID, orderID uuid.UUID, req TransitionRequest) (*models.Order, error) {
	return s.applyTransition(ctx, orderID, req, func(order *models.Order) error {
		return s.guard.CanTransition(ctx, order, callerID, req.Target)
	})
}

// CancelOrder is the buyer's cancellation path. Stock is not returned.
func (s *Service) CancelOrder(ctx context.Context, buyerID, orderID uuid.UUID, reason string) (*models.Order, error) {
	req := TransitionRequest{Target: models.OrderStatusCancelled, Note: reason}
	return s.applyTransition(ctx, orderID, req, func(order *models.Order) error {
		return s.guard.CanCancel(ctx, order, buyerID)
	})
}

// applyTransition loads, authorizes and transitions the order, retrying
// from a fresh read when a concurrent writer bumped its version first.
func (s *Service) applyTransition(ctx context.Context, orderID uuid.UUID, req TransitionRequest, authorize func(*models.Order) error) (*models.Order, error) {
	var lastErr error
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		order, err := s.orders.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if authorize != nil {
			if err := authorize(order); err != nil {
				return nil, err
			}
		}

		next, err := s.commitTransition(ctx, order, req)
		if errors.Is(err, database.ErrOptimisticLockFailed) {
			lastErr = err
			s.log.WithFields(logrus.Fields{
				"order_id": orderID,
				"attempt":  attempt + 1,
			}).Debug("Order changed concurrently, retrying transition")
			continue
		}
		if err != nil {
			return nil, err
		}
		return next, nil
	}
	return nil, fmt.Errorf("transition order %s: %w", orderID, lastErr)
}

func (s *Service) commitTransition(ctx context.Context, order *models.Order, req TransitionRequest) (*models.Order, error) {
	next, err := Transition(order, req, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.orders.UpdateOrderStatus(ctx, next, order.Status); err != nil {
		return nil, err
	}

	s.metrics.StatusTransitions.WithLabelValues(string(order.Status), string(next.Status)).Inc()
	s.log.WithFields(logrus.Fields{
		"order_id": next.ID,
		"from":     order.Status,
		"status":   next.Status,
	}).Info("Order status changed")

	return next, nil
}
