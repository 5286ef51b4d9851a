package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/safar/go-sql-marketplace/internal/database"
	"github.com/safar/go-sql-marketplace/internal/models"
)

type Line struct {
	Product  models.ProductSnapshot
	Quantity int
}

// SellerGroup is the part of a cart that becomes one order.
type SellerGroup struct {
	SellerID uuid.UUID
	Lines    []Line
}

// PartitionCart resolves every product in one lookup, verifies stock and
// groups the lines by seller. Groups come back in the order their seller
// first appears in the cart. Nothing is mutated.
func PartitionCart(ctx context.Context, catalog Catalog, items []models.CheckoutItem) ([]SellerGroup, error) {
	groups, err := groupBySeller(ctx, catalog, items)
	if err != nil {
		return nil, err
	}
	if err := CheckStock(groups, nil); err != nil {
		return nil, err
	}
	return groups, nil
}

func groupBySeller(ctx context.Context, catalog Catalog, items []models.CheckoutItem) ([]SellerGroup, error) {
	if len(items) == 0 {
		return nil, invalidField("items", "at least one item is required")
	}

	ids := make([]uuid.UUID, 0, len(items))
	seen := make(map[uuid.UUID]bool, len(items))
	for i, item := range items {
		if item.Quantity < 1 {
			return nil, invalidField(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
		if item.Quantity > models.MaxItemQuantity {
			return nil, invalidField(fmt.Sprintf("items[%d].quantity", i), fmt.Sprintf("must be at most %d", models.MaxItemQuantity))
		}
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}

	products, err := catalog.ResolveProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve products: %w", err)
	}

	byID := make(map[uuid.UUID]models.ProductSnapshot, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var missing []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", database.ErrProductNotFound, strings.Join(missing, ", "))
	}

	var groups []SellerGroup
	groupIndex := make(map[uuid.UUID]int)
	for _, item := range items {
		product := byID[item.ProductID]

		idx, ok := groupIndex[product.SellerID]
		if !ok {
			idx = len(groups)
			groupIndex[product.SellerID] = idx
			groups = append(groups, SellerGroup{SellerID: product.SellerID})
		}
		groups[idx].Lines = append(groups[idx].Lines, Line{Product: product, Quantity: item.Quantity})
	}

	return groups, nil
}

// CheckStock fails with database.ErrInsufficientStock when the quantity
// requested for a product, summed over the cart, exceeds its stock.
// Groups whose seller is in skip are not checked.
func CheckStock(groups []SellerGroup, skip map[uuid.UUID]bool) error {
	requested := make(map[uuid.UUID]int)
	for _, group := range groups {
		if skip[group.SellerID] {
			continue
		}
		for _, line := range group.Lines {
			left := line.Product.Stock - requested[line.Product.ID]
			if line.Quantity > left {
				return fmt.Errorf("%w: %s (requested %d, available %d)",
					database.ErrInsufficientStock, line.Product.Name, line.Quantity, left)
			}
			requested[line.Product.ID] += line.Quantity
		}
	}
	return nil
}
