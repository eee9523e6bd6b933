package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisCache struct {
	Client *redis.Client
}

func NewRedisCache(url string) (*RedisCache, error) {
	client := redis.NewClient(
		&redis.Options{
			Addr:     url,
			Password: "",
			DB:       0,
		},
	)
	redisCache := &RedisCache{Client: client}

	return redisCache, nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.Client.Close()
}

/*
* session admission and finalization
 */

type AdmitResult struct {
	SessionID string
	// Existing is set when the user already held a valid session, which is returned as is.
	Existing bool
	// ReapedSessionID is an expired session of the same user finalized during admission.
	ReapedSessionID string
}

// AdmitSession atomically checks the event's active counter, increments it and
// registers the new session, or returns the user's still-valid session.
func (r *RedisCache) AdmitSession(ctx context.Context, eventID, userID uint, maxConcurrent int,
	sessionID string, now, expiresAt time.Time) (AdmitResult, error) {
	keys := []string{
		MakeEventActiveSessionsKey(eventID),
		MakeUserEventSessionKey(eventID, userID),
		SessionExpiryIndexKey,
	}
	res, err := admitSessionScript.Run(ctx, r.Client, keys,
		maxConcurrent, sessionID, now.UnixMilli(), expiresAt.UnixMilli(), eventID, userID).Slice()
	if err != nil {
		return AdmitResult{}, err
	}
	if len(res) != 3 {
		return AdmitResult{}, fmt.Errorf("unexpected admit script reply: %v", res)
	}

	code, _ := res[0].(int64)
	sid, _ := res[1].(string)
	reaped, _ := res[2].(string)
	result := AdmitResult{SessionID: sid, ReapedSessionID: reaped}

	switch code {
	case 0:
		return result, nil
	case 1:
		result.Existing = true
		return result, nil
	case -1:
		return result, ErrConcurrencyCapReached
	}
	return result, fmt.Errorf("unexpected admit script code %d", code)
}

type EndResult struct {
	// Ended is true only for the call that performed the active -> ended transition.
	Ended      bool
	TotalSpent int64
}

// EndSession marks the session ended and releases its concurrency slot. Calling it on an
// ended session changes nothing. ErrSessionNotFound means redis has no record of it.
func (r *RedisCache) EndSession(ctx context.Context, sessionID string, finalTotalSpent int64, now time.Time) (EndResult, error) {
	keys := []string{MakeSessionKey(sessionID), MakeSessionQtyKey(sessionID), SessionExpiryIndexKey}
	res, err := endSessionScript.Run(ctx, r.Client, keys, now.UnixMilli(), finalTotalSpent, sessionID).Int64Slice()
	if err != nil {
		return EndResult{}, err
	}
	if len(res) != 2 {
		return EndResult{}, fmt.Errorf("unexpected end script reply: %v", res)
	}

	switch res[0] {
	case 1:
		return EndResult{Ended: true, TotalSpent: res[1]}, nil
	case 0:
		return EndResult{Ended: false, TotalSpent: res[1]}, nil
	case -1:
		return EndResult{}, ErrSessionNotFound
	}
	return EndResult{}, fmt.Errorf("unexpected end script code %d", res[0])
}

func (r *RedisCache) GetSessionState(ctx context.Context, sessionID string) (*SessionState, error) {
	cmd := r.Client.HGetAll(ctx, MakeSessionKey(sessionID))
	fields, err := cmd.Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}
	var state SessionState
	if err := cmd.Scan(&state); err != nil {
		return nil, err
	}
	return &state, nil
}

// ActiveSessionID returns the id registered as the user's active session in the event.
func (r *RedisCache) ActiveSessionID(ctx context.Context, eventID, userID uint) (string, error) {
	sid, err := r.Client.Get(ctx, MakeUserEventSessionKey(eventID, userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSessionNotFound
		}
		return "", err
	}
	return sid, nil
}

func (r *RedisCache) ActiveSessionCount(ctx context.Context, eventID uint) (int64, error) {
	n, err := r.Client.Get(ctx, MakeEventActiveSessionsKey(eventID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// DueSessions lists up to limit session ids whose expires_at is at or before now.
func (r *RedisCache) DueSessions(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return r.Client.ZRangeByScore(ctx, SessionExpiryIndexKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
}

/*
* spend reservation inside a session
 */

type SpendOutcome int

const (
	SpendAccepted SpendOutcome = iota
	SpendSessionExpired
	SpendPerProductCap
	SpendCapExceeded
)

type SpendRequest struct {
	SessionID             string
	ProductID             uint
	Quantity              int
	UnitPrice             int64
	MaxQuantityPerProduct int
	PurchaseCap           int64
}

type SpendResult struct {
	Outcome SpendOutcome
	// TotalSpent after an accepted reservation.
	TotalSpent int64
	// Remaining quantity or budget reported with a refusal.
	Remaining int64
}

// ReserveSpend runs the quantity and spend checks and the increments as one script,
// so concurrent additions to the same session are serialized by redis.
func (r *RedisCache) ReserveSpend(ctx context.Context, req SpendRequest, now time.Time) (SpendResult, error) {
	keys := []string{MakeSessionKey(req.SessionID), MakeSessionQtyKey(req.SessionID)}
	res, err := reserveSpendScript.Run(ctx, r.Client, keys,
		now.UnixMilli(), req.ProductID, req.Quantity, req.UnitPrice, req.MaxQuantityPerProduct, req.PurchaseCap).Int64Slice()
	if err != nil {
		return SpendResult{}, err
	}
	if len(res) != 2 {
		return SpendResult{}, fmt.Errorf("unexpected reserve script reply: %v", res)
	}

	switch res[0] {
	case 0:
		return SpendResult{Outcome: SpendAccepted, TotalSpent: res[1]}, nil
	case -1:
		return SpendResult{Outcome: SpendSessionExpired}, nil
	case -2:
		return SpendResult{Outcome: SpendPerProductCap, Remaining: res[1]}, nil
	case -3:
		return SpendResult{Outcome: SpendCapExceeded, Remaining: res[1]}, nil
	case -4:
		return SpendResult{}, ErrSessionNotFound
	}
	return SpendResult{}, fmt.Errorf("unexpected reserve script code %d", res[0])
}

// ReleaseSpend undoes an accepted reservation that could not be persisted.
func (r *RedisCache) ReleaseSpend(ctx context.Context, req SpendRequest) error {
	keys := []string{MakeSessionKey(req.SessionID), MakeSessionQtyKey(req.SessionID)}
	cost := req.UnitPrice * int64(req.Quantity)
	return releaseSpendScript.Run(ctx, r.Client, keys, req.ProductID, req.Quantity, cost).Err()
}

/*
* recovery
 */

type RestoreSession struct {
	SessionID  string
	EventID    uint
	UserID     uint
	StartedAt  time.Time
	ExpiresAt  time.Time
	TotalSpent int64
	Quantities map[uint]int
}

// RestoreSession rebuilds an active session missing from redis. Sessions already present
// are left untouched, so running it against a healthy cache does not double count.
func (r *RedisCache) RestoreSession(ctx context.Context, s RestoreSession) (bool, error) {
	keys := []string{
		MakeSessionKey(s.SessionID),
		MakeSessionQtyKey(s.SessionID),
		MakeEventActiveSessionsKey(s.EventID),
		MakeUserEventSessionKey(s.EventID, s.UserID),
		SessionExpiryIndexKey,
	}
	args := make([]any, 0, 6+len(s.Quantities)*2)
	args = append(args, s.SessionID, s.EventID, s.UserID, s.StartedAt.UnixMilli(), s.ExpiresAt.UnixMilli(), s.TotalSpent)
	for productID, qty := range s.Quantities {
		args = append(args, productID, qty)
	}

	n, err := restoreSessionScript.Run(ctx, r.Client, keys, args...).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
