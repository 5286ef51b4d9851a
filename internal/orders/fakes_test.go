package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-sql-marketplace/internal/database"
	"github.com/safar/go-sql-marketplace/internal/models"
	"github.com/safar/go-sql-marketplace/internal/store"
	"github.com/shopspring/decimal"
)

// memStore implements every collaborator of Service in memory.
type memStore struct {
	mu sync.Mutex

	products map[uuid.UUID]models.ProductSnapshot
	owners   map[uuid.UUID]uuid.UUID
	orders   map[uuid.UUID]*models.Order
	reserved map[uuid.UUID]bool
	intents  map[uuid.UUID]*models.CheckoutIntent

	createErr   map[uuid.UUID]error
	reserveErr  map[uuid.UUID]error
	updateErr   error
	staleWrites int
	updates     int
}

func newMemStore() *memStore {
	return &memStore{
		products:   make(map[uuid.UUID]models.ProductSnapshot),
		owners:     make(map[uuid.UUID]uuid.UUID),
		orders:     make(map[uuid.UUID]*models.Order),
		reserved:   make(map[uuid.UUID]bool),
		intents:    make(map[uuid.UUID]*models.CheckoutIntent),
		createErr:  make(map[uuid.UUID]error),
		reserveErr: make(map[uuid.UUID]error),
	}
}

func (m *memStore) addSeller(userID uuid.UUID) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	sellerID := uuid.New()
	m.owners[sellerID] = userID
	return sellerID
}

func (m *memStore) addProduct(sellerID uuid.UUID, name, price string, stock int) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.products[id] = models.ProductSnapshot{
		ID:       id,
		SellerID: sellerID,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		ImageURL: "https://img.example/" + name + ".png",
		Stock:    stock,
	}
	return id
}

func (m *memStore) stock(productID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[productID].Stock
}

func (m *memStore) intent(id uuid.UUID) models.CheckoutIntent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.intents[id]
}

func (m *memStore) onlyIntent() models.CheckoutIntent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, intent := range m.intents {
		return *intent
	}
	panic("no checkout intent recorded")
}

func (m *memStore) allOrders() []models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memStore) ResolveProducts(_ context.Context, ids []uuid.UUID) ([]models.ProductSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ProductSnapshot
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) Reserve(_ context.Context, orderID uuid.UUID, lines []models.StockLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserved[orderID] {
		return nil
	}
	if order, ok := m.orders[orderID]; ok {
		if err := m.reserveErr[order.SellerID]; err != nil {
			return err
		}
	}

	want := make(map[uuid.UUID]int)
	for _, l := range lines {
		want[l.ProductID] += l.Quantity
	}
	for id, qty := range want {
		p, ok := m.products[id]
		if !ok {
			return fmt.Errorf("%w: %s", database.ErrProductNotFound, id)
		}
		if p.Stock < qty {
			return fmt.Errorf("%w: %s", database.ErrInsufficientStock, p.Name)
		}
	}
	for id, qty := range want {
		p := m.products[id]
		p.Stock -= qty
		m.products[id] = p
	}
	m.reserved[orderID] = true
	return nil
}

func (m *memStore) IsOwnedBy(_ context.Context, sellerID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.owners[sellerID]
	return ok && owner == userID, nil
}

func (m *memStore) SellerForUser(_ context.Context, userID uuid.UUID) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sellerID, owner := range m.owners {
		if owner == userID {
			return sellerID, nil
		}
	}
	return uuid.Nil, database.ErrSellerNotFound
}

func (m *memStore) CreateOrder(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.createErr[order.SellerID]; err != nil {
		return err
	}
	for _, o := range m.orders {
		if o.CheckoutID == order.CheckoutID && o.SellerID == order.SellerID {
			return database.ErrDuplicateOrder
		}
	}
	stored := cloneOrder(order)
	m.orders[order.ID] = &stored
	return nil
}

func (m *memStore) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, database.ErrOrderNotFound
	}
	out := cloneOrder(o)
	return &out, nil
}

func (m *memStore) GetCheckoutOrder(_ context.Context, checkoutID, sellerID uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.CheckoutID == checkoutID && o.SellerID == sellerID {
			out := cloneOrder(o)
			return &out, nil
		}
	}
	return nil, database.ErrOrderNotFound
}

func (m *memStore) ListCheckoutOrders(_ context.Context, checkoutID uuid.UUID) ([]models.Order, error) {
	return m.filter(func(o *models.Order) bool { return o.CheckoutID == checkoutID }), nil
}

func (m *memStore) ListBuyerOrders(_ context.Context, buyerID uuid.UUID, page, pageSize int) (*store.OffsetPage[models.Order], error) {
	return paginate(m.filter(func(o *models.Order) bool { return o.BuyerID == buyerID }), page, pageSize), nil
}

func (m *memStore) ListBuyerOrdersCursor(_ context.Context, buyerID uuid.UUID, cursor string, limit int) (*store.CursorPage[models.Order], error) {
	if _, err := store.DecodeCursor(cursor); err != nil {
		return nil, err
	}
	items := m.filter(func(o *models.Order) bool { return o.BuyerID == buyerID })
	if len(items) > limit {
		items = items[:limit]
	}
	return &store.CursorPage[models.Order]{Items: items}, nil
}

func (m *memStore) ListSellerOrders(_ context.Context, sellerID uuid.UUID, page, pageSize int) (*store.OffsetPage[models.Order], error) {
	return paginate(m.filter(func(o *models.Order) bool { return o.SellerID == sellerID }), page, pageSize), nil
}

func (m *memStore) UpdateOrderStatus(_ context.Context, order *models.Order, _ models.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.orders[order.ID]
	if !ok {
		return database.ErrOrderNotFound
	}
	if m.staleWrites > 0 {
		// Someone else got there first.
		m.staleWrites--
		stored.Version++
		return database.ErrOptimisticLockFailed
	}
	if stored.Version != order.Version {
		return database.ErrOptimisticLockFailed
	}
	order.Version++
	next := cloneOrder(order)
	m.orders[order.ID] = &next
	return nil
}

func (m *memStore) SellerOrderStats(_ context.Context, sellerID uuid.UUID) (*models.OrderStats, error) {
	stats := emptyStats()
	stats.TotalRevenue = decimal.Zero
	var counted int64
	for _, o := range m.filter(func(o *models.Order) bool { return o.SellerID == sellerID }) {
		stats.TotalOrders++
		stats.OrdersByStatus[o.Status]++
		if o.Status != models.OrderStatusCancelled {
			stats.TotalRevenue = stats.TotalRevenue.Add(o.Total)
			counted++
		}
	}
	if counted > 0 {
		stats.AverageOrderValue = stats.TotalRevenue.Div(decimal.NewFromInt(counted)).Round(2)
	}
	return stats, nil
}

func (m *memStore) CreateIntent(_ context.Context, intent *models.CheckoutIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *intent
	m.intents[intent.ID] = &stored
	return nil
}

func (m *memStore) CloseIntent(_ context.Context, id uuid.UUID, status models.IntentStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[id]
	if !ok {
		return database.ErrIntentNotFound
	}
	if intent.Status == models.IntentOpen {
		intent.Status = status
		intent.UpdatedAt = at
	}
	return nil
}

func (m *memStore) filter(keep func(*models.Order) bool) []models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func paginate(all []models.Order, page, pageSize int) *store.OffsetPage[models.Order] {
	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return store.NewOffsetPage(all[start:end], int64(len(all)), page, pageSize)
}

func cloneOrder(o *models.Order) models.Order {
	out := *o
	out.Items = append([]models.OrderItem(nil), o.Items...)
	out.StatusHistory = append([]models.StatusEntry(nil), o.StatusHistory...)
	return out
}

// tickClock advances one second on every reading.
type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}
