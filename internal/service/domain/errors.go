package domain

import (
	"errors"
	"fmt"
)

// admission
var (
	ErrEventNotFound          = errors.New("event not found")
	ErrEventInactiveOrExpired = errors.New("event is not active or outside its time window")
	ErrConcurrencyCapReached  = errors.New("event has reached its concurrent session limit")
	ErrAdmissionGrantRequired = errors.New("ticketed event requires an admission grant")
)

// sessions
var (
	ErrNoActiveSession = errors.New("no active session for user in event")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionNotOwned = errors.New("session belongs to another user")
)

// cart and checkout
var (
	ErrProductNotFound    = errors.New("product not found")
	ErrProductNotInEvent  = errors.New("product is not sellable in this event")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrInvalidPayMode     = errors.New("pay mode must be points or cash")
	ErrPayModeNotAllowed  = errors.New("pay mode not allowed by event")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrCheckoutDenied     = errors.New("event purchase no longer valid")
	ErrInvalidEventAttach = errors.New("invalid event product annotation")
)

// CheckoutDeniedError carries the guard decision that rejected a session's lines at checkout.
type CheckoutDeniedError struct {
	SessionID string
	ProductID uint
	Decision  Decision
}

func (e *CheckoutDeniedError) Error() string {
	return fmt.Sprintf("session %s: %s", e.SessionID, e.Decision.Reason)
}

func (e *CheckoutDeniedError) Is(target error) bool {
	return target == ErrCheckoutDenied
}
