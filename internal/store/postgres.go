package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-sql-marketplace/internal/models"
)

// Postgres binds the package functions to one connection pool so they can
// be handed to the order service as its collaborators.
type Postgres struct {
	db          *sql.DB
	eventsTopic string
}

func NewPostgres(db *sql.DB, eventsTopic string) *Postgres {
	return &Postgres{db: db, eventsTopic: eventsTopic}
}

func (p *Postgres) DB() *sql.DB {
	return p.db
}

func (p *Postgres) ResolveProducts(ctx context.Context, ids []uuid.UUID) ([]models.ProductSnapshot, error) {
	return ResolveProducts(ctx, p.db, ids)
}

func (p *Postgres) Reserve(ctx context.Context, orderID uuid.UUID, lines []models.StockLine) error {
	return ReserveInventory(ctx, p.db, orderID, lines)
}

func (p *Postgres) IsOwnedBy(ctx context.Context, sellerID, userID uuid.UUID) (bool, error) {
	return IsSellerOwnedBy(ctx, p.db, sellerID, userID)
}

func (p *Postgres) SellerForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	seller, err := GetSellerByUser(ctx, p.db, userID)
	if err != nil {
		return uuid.Nil, err
	}
	return seller.ID, nil
}

func (p *Postgres) CreateOrder(ctx context.Context, order *models.Order) error {
	return CreateOrder(ctx, p.db, order, p.eventsTopic)
}

func (p *Postgres) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return GetOrder(ctx, p.db, id)
}

func (p *Postgres) GetCheckoutOrder(ctx context.Context, checkoutID, sellerID uuid.UUID) (*models.Order, error) {
	return GetCheckoutOrder(ctx, p.db, checkoutID, sellerID)
}

func (p *Postgres) ListCheckoutOrders(ctx context.Context, checkoutID uuid.UUID) ([]models.Order, error) {
	return ListCheckoutOrders(ctx, p.db, checkoutID)
}

func (p *Postgres) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, page, pageSize int) (*OffsetPage[models.Order], error) {
	return ListBuyerOrders(ctx, p.db, buyerID, page, pageSize)
}

func (p *Postgres) ListBuyerOrdersCursor(ctx context.Context, buyerID uuid.UUID, cursor string, limit int) (*CursorPage[models.Order], error) {
	return ListBuyerOrdersCursor(ctx, p.db, buyerID, cursor, limit)
}

func (p *Postgres) ListSellerOrders(ctx context.Context, sellerID uuid.UUID, page, pageSize int) (*OffsetPage[models.Order], error) {
	return ListSellerOrders(ctx, p.db, sellerID, page, pageSize)
}

func (p *Postgres) UpdateOrderStatus(ctx context.Context, order *models.Order, previous models.OrderStatus) error {
	return UpdateOrderStatus(ctx, p.db, order, previous, p.eventsTopic)
}

func (p *Postgres) SellerOrderStats(ctx context.Context, sellerID uuid.UUID) (*models.OrderStats, error) {
	return SellerOrderStats(ctx, p.db, sellerID)
}

func (p *Postgres) CreateIntent(ctx context.Context, intent *models.CheckoutIntent) error {
	return CreateIntent(ctx, p.db, intent)
}

func (p *Postgres) CloseIntent(ctx context.Context, id uuid.UUID, status models.IntentStatus, at time.Time) error {
	return CloseIntent(ctx, p.db, id, status, at)
}

func (p *Postgres) ListOpenIntents(ctx context.Context, before time.Time, limit int) ([]models.CheckoutIntent, error) {
	return ListOpenIntents(ctx, p.db, before, limit)
}

func (p *Postgres) FetchPendingEvents(ctx context.Context, limit int) ([]OutboxRecord, error) {
	return FetchPendingEvents(ctx, p.db, limit)
}

func (p *Postgres) MarkEventSent(ctx context.Context, id int64) error {
	return MarkEventSent(ctx, p.db, id)
}
