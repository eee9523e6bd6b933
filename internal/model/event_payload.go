package model

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidEvent = errors.New("invalid event")

// EventPayload is the admin write shape of an Event. EventInsert carries a full record,
// EventUpdate a patch. Both are validated before touching storage.
type EventPayload interface {
	Validate() error
	Apply(e *Event)
}

type EventInsert struct {
	Title         string    `json:"title" binding:"required"`
	Description   string    `json:"description"`
	Kind          EventKind `json:"kind" binding:"required"`
	StartTime     time.Time `json:"start_time" binding:"required"`
	EndTime       time.Time `json:"end_time" binding:"required"`
	MaxConcurrent int       `json:"max_concurrent" binding:"required"`
	UserTimeLimit int       `json:"user_time_limit" binding:"required"`
	PurchaseCap   int64     `json:"purchase_cap"`
	AllowedPay    PayMode   `json:"allowed_pay" binding:"required"`
	IsActive      *bool     `json:"is_active"`
}

var _ EventPayload = EventInsert{}

func (in EventInsert) Validate() error {
	e := &Event{}
	in.Apply(e)
	return validateEvent(e)
}

func (in EventInsert) Apply(e *Event) {
	e.Title = in.Title
	e.Description = in.Description
	e.Kind = in.Kind
	e.StartTime = in.StartTime
	e.EndTime = in.EndTime
	e.MaxConcurrent = in.MaxConcurrent
	e.UserTimeLimit = in.UserTimeLimit
	e.PurchaseCap = in.PurchaseCap
	e.AllowedPay = in.AllowedPay
	e.IsActive = true
	if in.IsActive != nil {
		e.IsActive = *in.IsActive
	}
}

// EventUpdate patches only the non-nil fields. Validate checks the fields on their own;
// ValidateAgainst checks the merged result.
type EventUpdate struct {
	Title         *string    `json:"title"`
	Description   *string    `json:"description"`
	Kind          *EventKind `json:"kind"`
	StartTime     *time.Time `json:"start_time"`
	EndTime       *time.Time `json:"end_time"`
	MaxConcurrent *int       `json:"max_concurrent"`
	UserTimeLimit *int       `json:"user_time_limit"`
	PurchaseCap   *int64     `json:"purchase_cap"`
	AllowedPay    *PayMode   `json:"allowed_pay"`
	IsActive      *bool      `json:"is_active"`
}

var _ EventPayload = EventUpdate{}

func (up EventUpdate) Validate() error {
	if up.Title != nil && *up.Title == "" {
		return fmt.Errorf("%w: title must not be empty", ErrInvalidEvent)
	}
	if up.Kind != nil && !validKind(*up.Kind) {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, *up.Kind)
	}
	if up.MaxConcurrent != nil && *up.MaxConcurrent < 1 {
		return fmt.Errorf("%w: max_concurrent must be at least 1", ErrInvalidEvent)
	}
	if up.UserTimeLimit != nil && *up.UserTimeLimit < 1 {
		return fmt.Errorf("%w: user_time_limit must be at least 1 minute", ErrInvalidEvent)
	}
	if up.PurchaseCap != nil && *up.PurchaseCap < 0 {
		return fmt.Errorf("%w: purchase_cap must not be negative", ErrInvalidEvent)
	}
	if up.AllowedPay != nil && !validPayMode(*up.AllowedPay) {
		return fmt.Errorf("%w: unknown allowed_pay %q", ErrInvalidEvent, *up.AllowedPay)
	}
	return nil
}

// ValidateAgainst returns the error the patched copy of current would fail with.
func (up EventUpdate) ValidateAgainst(current Event) error {
	if err := up.Validate(); err != nil {
		return err
	}
	up.Apply(&current)
	return validateEvent(&current)
}

func (up EventUpdate) Apply(e *Event) {
	if up.Title != nil {
		e.Title = *up.Title
	}
	if up.Description != nil {
		e.Description = *up.Description
	}
	if up.Kind != nil {
		e.Kind = *up.Kind
	}
	if up.StartTime != nil {
		e.StartTime = *up.StartTime
	}
	if up.EndTime != nil {
		e.EndTime = *up.EndTime
	}
	if up.MaxConcurrent != nil {
		e.MaxConcurrent = *up.MaxConcurrent
	}
	if up.UserTimeLimit != nil {
		e.UserTimeLimit = *up.UserTimeLimit
	}
	if up.PurchaseCap != nil {
		e.PurchaseCap = *up.PurchaseCap
	}
	if up.AllowedPay != nil {
		e.AllowedPay = *up.AllowedPay
	}
	if up.IsActive != nil {
		e.IsActive = *up.IsActive
	}
}

func validateEvent(e *Event) error {
	switch {
	case e.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	case !validKind(e.Kind):
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	case !e.EndTime.After(e.StartTime):
		return fmt.Errorf("%w: end_time must be after start_time", ErrInvalidEvent)
	case e.MaxConcurrent < 1:
		return fmt.Errorf("%w: max_concurrent must be at least 1", ErrInvalidEvent)
	case e.UserTimeLimit < 1:
		return fmt.Errorf("%w: user_time_limit must be at least 1 minute", ErrInvalidEvent)
	case e.PurchaseCap < 0:
		return fmt.Errorf("%w: purchase_cap must not be negative", ErrInvalidEvent)
	case !validPayMode(e.AllowedPay):
		return fmt.Errorf("%w: unknown allowed_pay %q", ErrInvalidEvent, e.AllowedPay)
	}
	return nil
}

func validKind(k EventKind) bool {
	return k == EventKindScheduled || k == EventKindTicketed
}

func validPayMode(m PayMode) bool {
	return m == PayPoints || m == PayCash || m == PayBoth
}
