package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

type OrderEvent struct {
	EventID        uuid.UUID       `json:"event_id"`
	Type           string          `json:"type"`
	OrderID        uuid.UUID       `json:"order_id"`
	CheckoutID     uuid.UUID       `json:"checkout_id"`
	BuyerID        uuid.UUID       `json:"buyer_id"`
	SellerID       uuid.UUID       `json:"seller_id"`
	Status         OrderStatus     `json:"status"`
	PreviousStatus OrderStatus     `json:"previous_status,omitempty"`
	Total          decimal.Decimal `json:"total"`
	TrackingNumber string          `json:"tracking_number,omitempty"`
	Note           string          `json:"note,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

func NewOrderEvent(eventType string, order *Order, previous OrderStatus) OrderEvent {
	event := OrderEvent{
		EventID:        uuid.New(),
		Type:           eventType,
		OrderID:        order.ID,
		CheckoutID:     order.CheckoutID,
		BuyerID:        order.BuyerID,
		SellerID:       order.SellerID,
		Status:         order.Status,
		PreviousStatus: previous,
		Total:          order.Total,
		TrackingNumber: order.TrackingNumber,
		OccurredAt:     order.UpdatedAt,
	}
	if last, ok := order.LastStatus(); ok {
		event.Note = last.Note
		event.OccurredAt = last.Timestamp
	}
	return event
}
