package cache

import (
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// key names definition
// key names built inside lua scripts must follow these formats
const (
	SessionKey    = "session:%s"     // hash of session state, '%s' is session id
	SessionQtyKey = "session:%s:qty" // hash product id -> quantity reserved in the session

	EventActiveSessionsKey = "event:%d:sessions:active" // active session counter of an event
	UserEventSessionKey    = "event:%d:user:%d:session" // active session id of a user in an event

	SessionExpiryIndexKey = "sessions:expiry" // zset of active session ids scored by expires_at (unix ms)
)

func MakeSessionKey(sessionID string) string {
	return fmt.Sprintf(SessionKey, sessionID)
}

func MakeSessionQtyKey(sessionID string) string {
	return fmt.Sprintf(SessionQtyKey, sessionID)
}

func MakeEventActiveSessionsKey(eventID uint) string {
	return fmt.Sprintf(EventActiveSessionsKey, eventID)
}

func MakeUserEventSessionKey(eventID, userID uint) string {
	return fmt.Sprintf(UserEventSessionKey, eventID, userID)
}

// SessionState mirrors the session hash written by the lua scripts.
type SessionState struct {
	EventID    uint   `redis:"event_id"`
	UserID     uint   `redis:"user_id"`
	Status     string `redis:"status"`
	TotalSpent int64  `redis:"total_spent"`
	StartedAt  int64  `redis:"started_at"` // unix ms
	ExpiresAt  int64  `redis:"expires_at"` // unix ms
	EndedAt    int64  `redis:"ended_at"`   // unix ms, 0 while active
}

const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// errors
var (
	ErrConcurrencyCapReached = errors.New("event concurrency cap reached")
	ErrSessionNotFound       = errors.New("session not found in cache")
)

// lua scripts

// admit returns {code, session_id, reaped_session_id}
// code: 0 admitted, 1 existing valid session returned, -1 concurrency cap reached
var admitSessionScript = redis.NewScript(`
	-- KEYS[1] = event:{event_id}:sessions:active
	-- KEYS[2] = event:{event_id}:user:{user_id}:session
	-- KEYS[3] = sessions:expiry

	-- ARGV[1] = max_concurrent
	-- ARGV[2] = new session id
	-- ARGV[3] = now (unix ms)
	-- ARGV[4] = expires_at (unix ms)
	-- ARGV[5] = event_id
	-- ARGV[6] = user_id

	local reaped = ""
	local existing = redis.call("GET", KEYS[2])
	if existing then
		local sessKey = "session:" .. existing
		local status = redis.call("HGET", sessKey, "status")
		local expiresAt = tonumber(redis.call("HGET", sessKey, "expires_at"))

		-- still valid, hand the same session back
		if status == "active" and expiresAt and tonumber(ARGV[3]) < expiresAt then
			return {1, existing, reaped}
		end

		-- expired but never finalized, finalize it before admitting again
		-- ended session hashes are kept for a day (86400s), then the database is the only record
		if status == "active" then
			redis.call("HSET", sessKey, "status", "ended", "ended_at", ARGV[3])
			redis.call("EXPIRE", sessKey, 86400)
			if tonumber(redis.call("GET", KEYS[1]) or "0") > 0 then
				redis.call("DECR", KEYS[1])
			end
			redis.call("ZREM", KEYS[3], existing)
			reaped = existing
		end
		redis.call("DEL", KEYS[2])
	end

	local active = tonumber(redis.call("GET", KEYS[1]) or "0")
	if active >= tonumber(ARGV[1]) then
		return {-1, "", reaped}
	end

	redis.call("INCR", KEYS[1])

	local newKey = "session:" .. ARGV[2]
	redis.call("HSET", newKey,
		"event_id", ARGV[5],
		"user_id", ARGV[6],
		"status", "active",
		"total_spent", "0",
		"started_at", ARGV[3],
		"expires_at", ARGV[4]
	)
	redis.call("SET", KEYS[2], ARGV[2])
	redis.call("ZADD", KEYS[3], ARGV[4], ARGV[2])

	return {0, ARGV[2], reaped}
`)

// end returns {code, total_spent}
// code: 1 ended now, 0 already ended, -1 unknown session
var endSessionScript = redis.NewScript(`
	-- KEYS[1] = session:{session_id}
	-- KEYS[2] = session:{session_id}:qty
	-- KEYS[3] = sessions:expiry

	-- ARGV[1] = now (unix ms)
	-- ARGV[2] = final total spent reported by the caller
	-- ARGV[3] = session id

	local status = redis.call("HGET", KEYS[1], "status")
	if not status then
		return {-1, 0}
	end

	local spent = tonumber(redis.call("HGET", KEYS[1], "total_spent") or "0")
	if status ~= "active" then
		return {0, spent}
	end

	-- total spent never decreases
	local final = tonumber(ARGV[2])
	if final and final > spent then
		spent = final
	end

	local eventID = redis.call("HGET", KEYS[1], "event_id")
	local userID = redis.call("HGET", KEYS[1], "user_id")

	redis.call("HSET", KEYS[1], "status", "ended", "ended_at", ARGV[1], "total_spent", spent)
	redis.call("EXPIRE", KEYS[1], 86400)
	redis.call("EXPIRE", KEYS[2], 86400)

	-- release the concurrency slot exactly once, on the active -> ended transition
	local counterKey = "event:" .. eventID .. ":sessions:active"
	if tonumber(redis.call("GET", counterKey) or "0") > 0 then
		redis.call("DECR", counterKey)
	end

	local userKey = "event:" .. eventID .. ":user:" .. userID .. ":session"
	if redis.call("GET", userKey) == ARGV[3] then
		redis.call("DEL", userKey)
	end

	redis.call("ZREM", KEYS[3], ARGV[3])

	return {1, spent}
`)

// reserve returns {code, value}
// code: 0 accepted (value = new total spent), -1 session expired or ended,
// -2 per-product cap (value = remaining quantity), -3 spend cap (value = remaining budget),
// -4 unknown session
var reserveSpendScript = redis.NewScript(`
	-- KEYS[1] = session:{session_id}
	-- KEYS[2] = session:{session_id}:qty

	-- ARGV[1] = now (unix ms)
	-- ARGV[2] = product_id
	-- ARGV[3] = requested quantity
	-- ARGV[4] = event price per unit
	-- ARGV[5] = max quantity per product
	-- ARGV[6] = purchase cap, 0 means unlimited

	local status = redis.call("HGET", KEYS[1], "status")
	if not status then
		return {-4, 0}
	end

	local expiresAt = tonumber(redis.call("HGET", KEYS[1], "expires_at"))
	if status ~= "active" or tonumber(ARGV[1]) >= expiresAt then
		return {-1, 0}
	end

	local qty = tonumber(ARGV[3])
	local have = tonumber(redis.call("HGET", KEYS[2], ARGV[2]) or "0")
	local maxQty = tonumber(ARGV[5])
	if have + qty > maxQty then
		local remaining = maxQty - have
		if remaining < 0 then
			remaining = 0
		end
		return {-2, remaining}
	end

	local spent = tonumber(redis.call("HGET", KEYS[1], "total_spent") or "0")
	local cost = qty * tonumber(ARGV[4])
	local cap = tonumber(ARGV[6])
	if cap > 0 and spent + cost > cap then
		local remaining = cap - spent
		if remaining < 0 then
			remaining = 0
		end
		return {-3, remaining}
	end

	redis.call("HINCRBY", KEYS[2], ARGV[2], qty)
	local total = redis.call("HINCRBY", KEYS[1], "total_spent", cost)

	return {0, total}
`)

// compensates a reservation whose cart write failed
var releaseSpendScript = redis.NewScript(`
	-- KEYS[1] = session:{session_id}
	-- KEYS[2] = session:{session_id}:qty

	-- ARGV[1] = product_id
	-- ARGV[2] = quantity
	-- ARGV[3] = cost

	local have = tonumber(redis.call("HGET", KEYS[2], ARGV[1]) or "0")
	local qty = tonumber(ARGV[2])
	if have < qty then
		qty = have
	end
	if qty > 0 then
		redis.call("HINCRBY", KEYS[2], ARGV[1], -qty)
	end

	local spent = tonumber(redis.call("HGET", KEYS[1], "total_spent") or "0")
	local cost = tonumber(ARGV[3])
	if spent < cost then
		cost = spent
	end
	if cost > 0 then
		redis.call("HINCRBY", KEYS[1], "total_spent", -cost)
	end

	return 1
`)

// restore recreates an active session lost from redis, returns 1 when restored, 0 when present
var restoreSessionScript = redis.NewScript(`
	-- KEYS[1] = session:{session_id}
	-- KEYS[2] = session:{session_id}:qty
	-- KEYS[3] = event:{event_id}:sessions:active
	-- KEYS[4] = event:{event_id}:user:{user_id}:session
	-- KEYS[5] = sessions:expiry

	-- ARGV[1] = session id
	-- ARGV[2] = event_id
	-- ARGV[3] = user_id
	-- ARGV[4] = started_at (unix ms)
	-- ARGV[5] = expires_at (unix ms)
	-- ARGV[6] = total_spent
	-- ARGV[7..] = product_id quantity pairs

	if redis.call("EXISTS", KEYS[1]) == 1 then
		return 0
	end

	redis.call("HSET", KEYS[1],
		"event_id", ARGV[2],
		"user_id", ARGV[3],
		"status", "active",
		"total_spent", ARGV[6],
		"started_at", ARGV[4],
		"expires_at", ARGV[5]
	)
	for i = 7, #ARGV, 2 do
		redis.call("HSET", KEYS[2], ARGV[i], ARGV[i + 1])
	end

	redis.call("INCR", KEYS[3])
	redis.call("SET", KEYS[4], ARGV[1])
	redis.call("ZADD", KEYS[5], ARGV[5], ARGV[1])

	return 1
`)
