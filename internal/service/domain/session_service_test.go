package domain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs-lzh/cave-sale/internal/model"
)

var ctx = context.Background()

func TestAdmit_Preconditions(t *testing.T) {
	f := newFixture(t)

	_, err := f.sessionService.Admit(ctx, 1, 404, t0)
	assert.ErrorIs(t, err, ErrEventNotFound)

	inactive := false
	closed := f.event(t, func(in *model.EventInsert) { in.IsActive = &inactive })
	_, err = f.sessionService.Admit(ctx, 1, closed.ID, t0)
	assert.ErrorIs(t, err, ErrEventInactiveOrExpired)

	open := f.event(t, nil)
	_, err = f.sessionService.Admit(ctx, 1, open.ID, open.EndTime.Add(time.Second))
	assert.ErrorIs(t, err, ErrEventInactiveOrExpired)

	// window bounds are inclusive
	a, err := f.sessionService.Admit(ctx, 1, open.ID, open.EndTime)
	require.NoError(t, err)
	assert.Equal(t, open.EndTime.Add(30*time.Minute), a.Session.ExpiresAt)
}

func TestAdmit_TicketedNeedsGrant(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, func(in *model.EventInsert) { in.Kind = model.EventKindTicketed })

	_, err := f.sessionService.Admit(ctx, 5, e.ID, t0)
	assert.ErrorIs(t, err, ErrAdmissionGrantRequired)

	require.NoError(t, f.eventService.GrantAdmission(ctx, e.ID, 5))
	a, err := f.sessionService.Admit(ctx, 5, e.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, a.Session.Status)
}

// concurrency cap reached, then a slot frees up
func TestAdmit_ConcurrencyCapScenario(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, func(in *model.EventInsert) { in.MaxConcurrent = 1 })

	x, err := f.sessionService.Admit(ctx, 1, e.ID, t0)
	require.NoError(t, err)

	_, err = f.sessionService.Admit(ctx, 2, e.ID, t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrConcurrencyCapReached)

	_, ended, err := f.sessionService.End(ctx, x.Session.ID, 0, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, ended)

	y, err := f.sessionService.Admit(ctx, 2, e.ID, t0.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, uint(2), y.Session.UserID)
}

func TestAdmit_IdempotentForValidSession(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, nil)

	first, err := f.sessionService.Admit(ctx, 1, e.ID, t0)
	require.NoError(t, err)
	again, err := f.sessionService.Admit(ctx, 1, e.ID, t0.Add(5*time.Minute))
	require.NoError(t, err)

	assert.True(t, again.Existing)
	assert.Equal(t, first.Session.ID, again.Session.ID)
	assert.Equal(t, first.Session.ExpiresAt, again.Session.ExpiresAt)
}

func TestAdmit_ReplacesExpiredSession(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, func(in *model.EventInsert) { in.MaxConcurrent = 1 })

	old, err := f.sessionService.Admit(ctx, 1, e.ID, t0)
	require.NoError(t, err)

	fresh, err := f.sessionService.Admit(ctx, 1, e.ID, t0.Add(45*time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, old.Session.ID, fresh.Session.ID)
	require.NotNil(t, fresh.Reaped)
	assert.Equal(t, old.Session.ID, fresh.Reaped.ID)

	stored, err := f.sessionService.GetSession(ctx, old.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionEnded, stored.Status)

	n, err := f.cache.ActiveSessionCount(ctx, e.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestAdmit_CompensatesFailedSave(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, func(in *model.EventInsert) { in.MaxConcurrent = 1 })
	f.sessions.createErr = errors.New("db down")

	_, err := f.sessionService.Admit(ctx, 1, e.ID, t0)
	require.Error(t, err)

	n, err := f.cache.ActiveSessionCount(ctx, e.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	f.sessions.createErr = nil
	_, err = f.sessionService.Admit(ctx, 2, e.ID, t0)
	assert.NoError(t, err)
}

func TestAdmit_ConcurrentNeverExceedsCap(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, func(in *model.EventInsert) { in.MaxConcurrent = 3 })

	var mu sync.Mutex
	admitted := 0
	var wg sync.WaitGroup
	for i := range 30 {
		wg.Add(1)
		go func(user uint) {
			defer wg.Done()
			if _, err := f.sessionService.Admit(ctx, user, e.ID, t0); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(uint(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 3, admitted)
	active, err := f.sessions.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 3)
}

// explicit exit racing the reaper
func TestEnd_IdempotentScenario(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, func(in *model.EventInsert) { in.MaxConcurrent = 2 })

	a, err := f.sessionService.Admit(ctx, 1, e.ID, t0)
	require.NoError(t, err)
	_, err = f.sessionService.Admit(ctx, 2, e.ID, t0)
	require.NoError(t, err)

	first, ended, err := f.sessionService.End(ctx, a.Session.ID, 120, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ended)
	second, ended, err := f.sessionService.End(ctx, a.Session.ID, 0, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, ended)

	assert.Equal(t, first.EndedAt, second.EndedAt)
	assert.EqualValues(t, 120, second.TotalSpent)

	n, err := f.cache.ActiveSessionCount(ctx, e.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = f.sessionService.GetActiveSession(ctx, 1, e.ID)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, _, err = f.sessionService.End(ctx, "missing", 0, t0)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEnd_WhenCacheLostSession(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, nil)
	a, err := f.sessionService.Admit(ctx, 1, e.ID, t0)
	require.NoError(t, err)

	f.mr.FlushAll()

	s, ended, err := f.sessionService.End(ctx, a.Session.ID, 75, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ended)
	assert.EqualValues(t, 75, s.TotalSpent)
}

func TestListExpiredAndRestore(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, func(in *model.EventInsert) { in.MaxConcurrent = 2 })

	a, err := f.sessionService.Admit(ctx, 1, e.ID, t0)
	require.NoError(t, err)
	b, err := f.sessionService.Admit(ctx, 2, e.ID, t0.Add(20*time.Minute))
	require.NoError(t, err)

	ids, err := f.sessionService.ListExpired(ctx, t0.Add(30*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{a.Session.ID}, ids)

	// redis restarted: the slots must come back, and only once
	f.mr.FlushAll()
	restored, err := f.sessionService.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, restored)
	restored, err = f.sessionService.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, restored)

	n, err := f.cache.ActiveSessionCount(ctx, e.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = f.sessionService.Admit(ctx, 3, e.ID, t0.Add(21*time.Minute))
	assert.ErrorIs(t, err, ErrConcurrencyCapReached)

	again, err := f.sessionService.Admit(ctx, 2, e.ID, t0.Add(21*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, b.Session.ID, again.Session.ID)
}

// units already checked out still count against the per-product cap after redis is rebuilt
func TestRestore_CountsCheckedOutUnits(t *testing.T) {
	f := newFixture(t)
	e := f.event(t, nil)
	p := f.product(t, e.ID, 150, 100, 0, 2)

	adm, err := f.sessionService.Admit(ctx, 1, e.ID, t0)
	require.NoError(t, err)
	res, err := f.cartService.AddEventItem(ctx, 1, adm.Session.ID, p.ID, 2, t0.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, res.Decision.Allowed)
	_, err = f.orderService.PlaceOrder(ctx, 1, model.PayCash, t0.Add(2*time.Minute))
	require.NoError(t, err)

	f.mr.FlushAll()
	restored, err := f.sessionService.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	res, err = f.cartService.AddEventItem(ctx, 1, adm.Session.ID, p.ID, 1, t0.Add(3*time.Minute))
	require.NoError(t, err)
	assert.False(t, res.Decision.Allowed)
	assert.Equal(t, DenyPerProductCapExceeded, res.Decision.Reason)
	assert.EqualValues(t, 0, res.Decision.Remaining)
}
