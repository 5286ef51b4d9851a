package orders

import (
	"fmt"
	"time"

	"github.com/safar/go-sql-marketplace/internal/models"
)

// InitialStatus is where checkout puts new orders: payment is treated as
// settled at checkout, so orders skip pending.
const InitialStatus = models.OrderStatusProcessing

var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:    {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:    {models.OrderStatusDelivered, models.OrderStatusCancelled},
	models.OrderStatusDelivered:  {},
	models.OrderStatusCancelled:  {},
}

// buyerCancellable lists the statuses a buyer may still cancel from.
var buyerCancellable = map[models.OrderStatus]bool{
	models.OrderStatusPending:    true,
	models.OrderStatusProcessing: true,
}

func AllowedTransitions(from models.OrderStatus) []models.OrderStatus {
	return append([]models.OrderStatus(nil), transitions[from]...)
}

func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(status models.OrderStatus) bool {
	next, ok := transitions[status]
	return ok && len(next) == 0
}

type TransitionRequest struct {
	Target         models.OrderStatus
	TrackingNumber string
	Note           string
}

// Transition returns a copy of order moved to req.Target with one more
// history entry. The input order is never modified, so a rejected
// transition leaves it exactly as it was.
func Transition(order *models.Order, req TransitionRequest, now time.Time) (*models.Order, error) {
	if !req.Target.Valid() {
		return nil, invalidField("status", fmt.Sprintf("unknown status %q", req.Target))
	}
	if !CanTransition(order.Status, req.Target) {
		return nil, &TransitionError{From: order.Status, To: req.Target}
	}
	if req.TrackingNumber != "" && req.Target != models.OrderStatusShipped {
		return nil, invalidField("tracking_number", "can only be set when shipping an order")
	}
	if len(req.Note) > models.MaxNotesLength {
		return nil, invalidField("note", "must be at most 500 characters")
	}

	// History timestamps never go backwards, even if the clock does.
	if last, ok := order.LastStatus(); ok && now.Before(last.Timestamp) {
		now = last.Timestamp
	}

	next := *order
	next.StatusHistory = make([]models.StatusEntry, len(order.StatusHistory), len(order.StatusHistory)+1)
	copy(next.StatusHistory, order.StatusHistory)

	next.Status = req.Target
	if req.TrackingNumber != "" {
		next.TrackingNumber = req.TrackingNumber
	}
	next.UpdatedAt = now
	next.StatusHistory = append(next.StatusHistory, models.StatusEntry{
		Status:    req.Target,
		Timestamp: now,
		Note:      req.Note,
	})

	return &next, nil
}
