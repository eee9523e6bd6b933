package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// many users racing for a small concurrency cap: exactly cap of them get in
func TestConcurrent_AdmissionNeverExceedsCap(t *testing.T) {
	const (
		maxConcurrent = 10
		concurrency   = 200
		eventID       = 1
	)
	c, _ := newTestCache(t)

	var admitted, rejected, other int64
	var wg sync.WaitGroup
	for i := range concurrency {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			_, err := admit(t, c, eventID, uint(index+1), maxConcurrent, fmt.Sprintf("s-%d", index), t0)
			switch {
			case err == nil:
				atomic.AddInt64(&admitted, 1)
			case errors.Is(err, ErrConcurrencyCapReached):
				atomic.AddInt64(&rejected, 1)
			default:
				atomic.AddInt64(&other, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, maxConcurrent, admitted)
	assert.EqualValues(t, concurrency-maxConcurrent, rejected)
	assert.Zero(t, other)

	n, err := c.ActiveSessionCount(ctx, eventID)
	require.NoError(t, err)
	assert.EqualValues(t, maxConcurrent, n)
}

// one user firing many admissions at once holds exactly one session
func TestConcurrent_SameUserGetsOneSession(t *testing.T) {
	const concurrency = 50
	c, _ := newTestCache(t)

	ids := make([]string, concurrency)
	var wg sync.WaitGroup
	for i := range concurrency {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			res, err := admit(t, c, 1, 42, 100, fmt.Sprintf("s-%d", index), t0)
			if err == nil {
				ids[index] = res.SessionID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	n, err := c.ActiveSessionCount(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

// concurrent additions from several tabs of one session never jointly pass the cap
func TestConcurrent_SpendCapHoldsUnderRace(t *testing.T) {
	const (
		concurrency = 100
		cap         = 1000
		price       = 30
	)
	c, _ := newTestCache(t)
	_, err := admit(t, c, 1, 1, 1, "s", t0)
	require.NoError(t, err)

	var accepted int64
	var wg sync.WaitGroup
	for i := range concurrency {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			res, err := c.ReserveSpend(ctx, SpendRequest{
				SessionID:             "s",
				ProductID:             uint(index + 1),
				Quantity:              1,
				UnitPrice:             price,
				MaxQuantityPerProduct: 1,
				PurchaseCap:           cap,
			}, t0.Add(time.Minute))
			if err == nil && res.Outcome == SpendAccepted {
				atomic.AddInt64(&accepted, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, cap/price, accepted)
	state, err := c.GetSessionState(ctx, "s")
	require.NoError(t, err)
	assert.LessOrEqual(t, state.TotalSpent, int64(cap))
	assert.EqualValues(t, accepted*price, state.TotalSpent)
}

// manual exit racing the reaper releases exactly one slot
func TestConcurrent_EndRaceReleasesOnce(t *testing.T) {
	c, _ := newTestCache(t)
	_, err := admit(t, c, 1, 1, 2, "a", t0)
	require.NoError(t, err)
	_, err = admit(t, c, 1, 2, 2, "b", t0)
	require.NoError(t, err)

	var transitions int64
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.EndSession(ctx, "a", 0, t0.Add(time.Minute))
			if err == nil && res.Ended {
				atomic.AddInt64(&transitions, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, transitions)
	n, err := c.ActiveSessionCount(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
