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
	"golang.org/x/sync/errgroup"
)

const orderColumns = `id, checkout_id, buyer_id, seller_id, subtotal, tax, shipping_cost, total,
	status, shipping_address, payment_method, payment_status, tracking_number, notes,
	created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (models.Order, error) {
	var order models.Order
	var tracking sql.NullString

	err := row.Scan(
		&order.ID,
		&order.CheckoutID,
		&order.BuyerID,
		&order.SellerID,
		&order.Subtotal,
		&order.Tax,
		&order.ShippingCost,
		&order.Total,
		&order.Status,
		&order.ShippingAddress,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&tracking,
		&order.Notes,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	order.TrackingNumber = tracking.String
	return order, err
}

// CreateOrder persists the order, its line items, its initial history and
// an order.created outbox event in one transaction. A second order for the
// same (checkout, seller) pair fails with database.ErrDuplicateOrder.
func CreateOrder(ctx context.Context, db *sql.DB, order *models.Order, topic string) error {
	if len(order.Items) == 0 {
		return errors.New("create order: order has no items")
	}
	if len(order.StatusHistory) == 0 {
		return errors.New("create order: order has no status history")
	}

	return database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO orders (id, checkout_id, buyer_id, seller_id, subtotal, tax, shipping_cost, total,
			                     status, shipping_address, payment_method, payment_status, tracking_number, notes,
			                     created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1)
			 ON CONFLICT (checkout_id, seller_id) DO NOTHING`,
			order.ID,
			order.CheckoutID,
			order.BuyerID,
			order.SellerID,
			order.Subtotal,
			order.Tax,
			order.ShippingCost,
			order.Total,
			order.Status,
			order.ShippingAddress,
			order.PaymentMethod,
			order.PaymentStatus,
			nullString(order.TrackingNumber),
			order.Notes,
			order.CreatedAt,
			order.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		inserted, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if inserted == 0 {
			return database.ErrDuplicateOrder
		}

		for i, item := range order.Items {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, position, product_id, name, unit_price, quantity, image_url)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				order.ID, i+1, item.ProductID, item.Name, item.Price, item.Quantity, item.ImageURL)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		for i, entry := range order.StatusHistory {
			if err := insertStatusEntry(ctx, tx, order.ID, i+1, entry); err != nil {
				return err
			}
		}

		event := models.NewOrderEvent(models.EventOrderCreated, order, "")
		return InsertOutboxEvent(ctx, tx, topic, order.ID.String(), event.EventID, event)
	})
}

// UpdateOrderStatus writes the order's current status, tracking number and
// newest history entry, guarded by the version the caller loaded.
// On success order.Version is advanced.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, order *models.Order, previous models.OrderStatus, topic string) error {
	entry, ok := order.LastStatus()
	if !ok || entry.Status != order.Status {
		return errors.New("update order status: history does not end in the current status")
	}

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE orders
			 SET status = $1,
			     tracking_number = $2,
			     updated_at = $3,
			     version = version + 1
			 WHERE id = $4
			   AND version = $5`,
			order.Status, nullString(order.TrackingNumber), order.UpdatedAt, order.ID, order.Version)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return database.ErrOptimisticLockFailed
		}

		if err := insertStatusEntry(ctx, tx, order.ID, len(order.StatusHistory), entry); err != nil {
			return err
		}

		event := models.NewOrderEvent(models.EventOrderStatusChanged, order, previous)
		return InsertOutboxEvent(ctx, tx, topic, order.ID.String(), event.EventID, event)
	})
	if err != nil {
		return err
	}

	order.Version++
	return nil
}

func insertStatusEntry(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, seq int, entry models.StatusEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_status_history (order_id, seq, status, note, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		orderID, seq, entry.Status, entry.Note, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

func GetOrder(ctx context.Context, db *sql.DB, id uuid.UUID) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return getOrder(ctx, db, query, id)
}

func GetCheckoutOrder(ctx context.Context, db *sql.DB, checkoutID, sellerID uuid.UUID) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE checkout_id = $1 AND seller_id = $2`
	return getOrder(ctx, db, query, checkoutID, sellerID)
}

func getOrder(ctx context.Context, db *sql.DB, query string, args ...any) (*models.Order, error) {
	order, err := scanOrder(db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	orders := []models.Order{order}
	if err := loadOrderDetails(ctx, db, orders); err != nil {
		return nil, err
	}

	return &orders[0], nil
}

// ListCheckoutOrders returns every order created from one checkout.
func ListCheckoutOrders(ctx context.Context, db *sql.DB, checkoutID uuid.UUID) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE checkout_id = $1 ORDER BY created_at, id`

	orders, err := queryOrders(ctx, db, query, checkoutID)
	if err != nil {
		return nil, err
	}
	if err := loadOrderDetails(ctx, db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func ListBuyerOrders(ctx context.Context, db *sql.DB, buyerID uuid.UUID, page, pageSize int) (*OffsetPage[models.Order], error) {
	return listOrdersBy(ctx, db, "buyer_id", buyerID, page, pageSize)
}

func ListSellerOrders(ctx context.Context, db *sql.DB, sellerID uuid.UUID, page, pageSize int) (*OffsetPage[models.Order], error) {
	return listOrdersBy(ctx, db, "seller_id", sellerID, page, pageSize)
}

// listOrdersBy pages through orders newest first. column is one of the
// indexed owner columns and never comes from user input.
func listOrdersBy(ctx context.Context, db *sql.DB, column string, ownerID uuid.UUID, page, pageSize int) (*OffsetPage[models.Order], error) {
	page, pageSize = NormalizePage(page, pageSize)
	offset := (page - 1) * pageSize

	var total int64
	var orders []models.Order

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := db.QueryRowContext(gctx,
			`SELECT COUNT(*) FROM orders WHERE `+column+` = $1`, ownerID).Scan(&total)
		if err != nil {
			return fmt.Errorf("count orders: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		query := `SELECT ` + orderColumns + `
			FROM orders
			WHERE ` + column + ` = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2 OFFSET $3`

		var err error
		orders, err = queryOrders(gctx, db, query, ownerID, pageSize, offset)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := loadOrderDetails(ctx, db, orders); err != nil {
		return nil, err
	}

	return NewOffsetPage(orders, total, page, pageSize), nil
}

func ListBuyerOrdersCursor(ctx context.Context, db *sql.DB, buyerID uuid.UUID, cursor string, limit int) (*CursorPage[models.Order], error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	_, limit = NormalizePage(1, limit)

	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE buyer_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	orders, err := queryOrders(ctx, db, query, buyerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	if err := loadOrderDetails(ctx, db, orders); err != nil {
		return nil, err
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	if orders == nil {
		orders = []models.Order{}
	}

	return &CursorPage[models.Order]{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// SellerOrderStats aggregates a seller's orders by status. Revenue and the
// average order value leave cancelled orders out.
func SellerOrderStats(ctx context.Context, db *sql.DB, sellerID uuid.UUID) (*models.OrderStats, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(total), 0)
		 FROM orders
		 WHERE seller_id = $1
		 GROUP BY status`,
		sellerID)
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}
	defer rows.Close()

	stats := &models.OrderStats{
		TotalRevenue:      decimal.Zero,
		AverageOrderValue: decimal.Zero,
		OrdersByStatus:    make(map[models.OrderStatus]int64, len(models.OrderStatuses)),
	}
	for _, status := range models.OrderStatuses {
		stats.OrdersByStatus[status] = 0
	}

	var billable int64
	for rows.Next() {
		var status models.OrderStatus
		var count int64
		var sum decimal.Decimal
		if err := rows.Scan(&status, &count, &sum); err != nil {
			return nil, fmt.Errorf("scan order stats: %w", err)
		}

		stats.OrdersByStatus[status] = count
		stats.TotalOrders += count
		if status != models.OrderStatusCancelled {
			billable += count
			stats.TotalRevenue = stats.TotalRevenue.Add(sum)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if billable > 0 {
		stats.AverageOrderValue = stats.TotalRevenue.Div(decimal.NewFromInt(billable)).Round(2)
	}

	return stats, nil
}

func queryOrders(ctx context.Context, db database.Querier, query string, args ...any) ([]models.Order, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// loadOrderDetails fills Items and StatusHistory for a batch of orders
// with one query per child table.
func loadOrderDetails(ctx context.Context, db database.Querier, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[uuid.UUID]int, len(orders))
	ids := make([]string, len(orders))
	for i := range orders {
		index[orders[i].ID] = i
		ids[i] = orders[i].ID.String()
		orders[i].Items = nil
		orders[i].StatusHistory = nil
	}

	itemRows, err := db.QueryContext(ctx,
		`SELECT order_id, product_id, name, unit_price, quantity, image_url
		 FROM order_items
		 WHERE order_id = ANY($1::uuid[])
		 ORDER BY order_id, position`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("get order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var orderID uuid.UUID
		var item models.OrderItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.Name, &item.Price, &item.Quantity, &item.ImageURL); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	historyRows, err := db.QueryContext(ctx,
		`SELECT order_id, status, note, created_at
		 FROM order_status_history
		 WHERE order_id = ANY($1::uuid[])
		 ORDER BY order_id, seq`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("get status history: %w", err)
	}
	defer historyRows.Close()

	for historyRows.Next() {
		var orderID uuid.UUID
		var entry models.StatusEntry
		if err := historyRows.Scan(&orderID, &entry.Status, &entry.Note, &entry.Timestamp); err != nil {
			return fmt.Errorf("scan status history: %w", err)
		}
		i := index[orderID]
		orders[i].StatusHistory = append(orders[i].StatusHistory, entry)
	}
	if err := historyRows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
