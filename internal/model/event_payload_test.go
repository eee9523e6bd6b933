package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func validInsert() EventInsert {
	return EventInsert{
		Title:         "Cave night",
		Kind:          EventKindScheduled,
		StartTime:     t0,
		EndTime:       t0.Add(2 * time.Hour),
		MaxConcurrent: 10,
		UserTimeLimit: 30,
		PurchaseCap:   500,
		AllowedPay:    PayBoth,
	}
}

func TestEventInsert_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *EventInsert)
		ok     bool
	}{
		{"valid", func(in *EventInsert) {}, true},
		{"unlimited cap", func(in *EventInsert) { in.PurchaseCap = 0 }, true},
		{"end equals start", func(in *EventInsert) { in.EndTime = in.StartTime }, false},
		{"end before start", func(in *EventInsert) { in.EndTime = in.StartTime.Add(-time.Minute) }, false},
		{"zero concurrency", func(in *EventInsert) { in.MaxConcurrent = 0 }, false},
		{"zero time limit", func(in *EventInsert) { in.UserTimeLimit = 0 }, false},
		{"negative cap", func(in *EventInsert) { in.PurchaseCap = -1 }, false},
		{"unknown kind", func(in *EventInsert) { in.Kind = "raffle" }, false},
		{"unknown pay", func(in *EventInsert) { in.AllowedPay = "card" }, false},
		{"empty title", func(in *EventInsert) { in.Title = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInsert()
			tt.mutate(&in)
			err := in.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidEvent)
			}
		})
	}
}

func TestEventInsert_ApplyDefaultsActive(t *testing.T) {
	var e Event
	validInsert().Apply(&e)
	assert.True(t, e.IsActive)

	inactive := false
	in := validInsert()
	in.IsActive = &inactive
	in.Apply(&e)
	assert.False(t, e.IsActive)
}

func TestEventUpdate_ValidateAgainstMergedRecord(t *testing.T) {
	var current Event
	validInsert().Apply(&current)

	newEnd := current.StartTime.Add(-time.Hour)
	err := EventUpdate{EndTime: &newEnd}.ValidateAgainst(current)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	limit := 45
	up := EventUpdate{UserTimeLimit: &limit}
	require.NoError(t, up.ValidateAgainst(current))
	up.Apply(&current)
	assert.Equal(t, 45, current.UserTimeLimit)
	assert.Equal(t, "Cave night", current.Title)
}

func TestEvent_OpenAtInclusiveWindow(t *testing.T) {
	var e Event
	validInsert().Apply(&e)

	assert.True(t, e.OpenAt(e.StartTime))
	assert.True(t, e.OpenAt(e.EndTime))
	assert.False(t, e.OpenAt(e.EndTime.Add(time.Second)))
	assert.False(t, e.OpenAt(e.StartTime.Add(-time.Second)))

	e.IsActive = false
	assert.False(t, e.OpenAt(e.StartTime.Add(time.Minute)))
}

func TestEvent_Allows(t *testing.T) {
	e := Event{AllowedPay: PayPoints}
	assert.True(t, e.Allows(PayPoints))
	assert.False(t, e.Allows(PayCash))

	e.AllowedPay = PayBoth
	assert.True(t, e.Allows(PayCash))
}
