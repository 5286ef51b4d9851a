package orders

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/safar/go-sql-marketplace/internal/models"
)

var (
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidRequest    = errors.New("invalid request")
)

// TransitionError matches ErrInvalidTransition.
type TransitionError struct {
	From   models.OrderStatus
	To     models.OrderStatus
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("invalid status transition: cannot move order from %s to %s", e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ValidationError matches ErrInvalidRequest and carries one message per field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func invalidField(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// CheckoutError reports a checkout that failed after some seller-group
// orders were already committed. Those orders stand.
type CheckoutError struct {
	Committed []models.Order
	Err       error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("checkout stopped after %d committed order(s): %v", len(e.Committed), e.Err)
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}
