package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const MaxNotesLength = 500

// MaxItemQuantity caps a single cart line.
const MaxItemQuantity = 10000

type CheckoutItem struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1,max=10000"`
}

// CheckoutRequest is the buyer's intent: what to buy and where to ship it.
type CheckoutRequest struct {
	Items           []CheckoutItem  `json:"items" validate:"required,min=1,dive"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   PaymentMethod   `json:"payment_method" validate:"required,oneof=credit_card debit_card paypal stripe cash_on_delivery"`
	Notes           string          `json:"notes,omitempty" validate:"max=500"`
}

func (r CheckoutRequest) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *CheckoutRequest) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("scan checkout request: unsupported type %T", src)
	}
}

type IntentStatus string

const (
	IntentOpen      IntentStatus = "open"
	IntentCompleted IntentStatus = "completed"
	IntentAbandoned IntentStatus = "abandoned"
)

// CheckoutIntent is written before any seller-group order so an
// interrupted checkout can be found and finished later.
type CheckoutIntent struct {
	ID        uuid.UUID       `json:"id"`
	BuyerID   uuid.UUID       `json:"buyer_id"`
	Request   CheckoutRequest `json:"request"`
	Status    IntentStatus    `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
