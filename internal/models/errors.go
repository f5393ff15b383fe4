package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInUse                  = errors.New("resource is still referenced")
	ErrStoreUnavailable       = errors.New("store unavailable")
	ErrInvalidBuyerData       = errors.New("invalid buyer data")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrPromoNotFound          = errors.New("promo code not found")
	ErrPromoNotYetValid       = errors.New("promo code not yet valid")
	ErrPromoExpired           = errors.New("promo code expired")
	ErrPromoExhausted         = errors.New("promo code exhausted")
	ErrOrderNotPending        = errors.New("this order can no longer be modified")
	ErrOrderAlreadyCancelled  = errors.New("order already cancelled")
	ErrOrderNotExpired        = errors.New("order payment window still open")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrTicketNotUsable        = errors.New("ticket is not usable")
	ErrTicketAlreadyCheckedIn = errors.New("ticket already checked in")
)

// BuyerError names the buyer slot (0 = primary) and field that failed validation.
type BuyerError struct {
	Index  int
	Field  string
	Reason string
}

func (e *BuyerError) Error() string {
	return fmt.Sprintf("%s: buyer %d %s %s", ErrInvalidBuyerData, e.Index, e.Field, e.Reason)
}

func (e *BuyerError) Unwrap() error {
	return ErrInvalidBuyerData
}

// Unavailable wraps a storage failure so callers can match ErrStoreUnavailable
// while keeping the driver error in the message.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

// StateError reports an order that is no longer pending. It matches
// ErrOrderNotPending and ErrInvalidStateTransition, and also
// ErrOrderAlreadyCancelled when the order was cancelled.
type StateError struct {
	OrderID string
	Status  OrderStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("order %s is %s: %s", e.OrderID, e.Status, ErrOrderNotPending)
}

func (e *StateError) Is(target error) bool {
	switch target {
	case ErrOrderNotPending, ErrInvalidStateTransition:
		return true
	case ErrOrderAlreadyCancelled:
		return e.Status == OrderCancelled
	}
	return false
}
