package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

type ShippingAddress struct {
	FullName     string `json:"full_name" validate:"required,max=200"`
	AddressLine1 string `json:"address_line1" validate:"required,max=200"`
	AddressLine2 string `json:"address_line2,omitempty" validate:"max=200"`
	City         string `json:"city" validate:"required,max=100"`
	State        string `json:"state" validate:"required,max=100"`
	PostalCode   string `json:"postal_code" validate:"required,max=20"`
	Country      string `json:"country" validate:"required,max=100"`
	Phone        string `json:"phone" validate:"required,max=40"`
}

// Value stores the address as a JSONB document.
func (a ShippingAddress) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *ShippingAddress) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*a = ShippingAddress{}
		return nil
	default:
		return fmt.Errorf("scan shipping address: unsupported type %T", src)
	}
	return json.Unmarshal(data, a)
}
