package mq

import "time"

// Queue names and message definitions

// delay queue from session admission to the expiry reaper
// each message carries its own TTL (the session's remaining time) and is dead-lettered
// into the timeout queue when it runs out
const (
	SessionExpiryDelayQueue      = "session.expiry.delay"
	SessionExpiryTimeoutQueue    = "session.expiry.timeout"
	SessionExpiryTimeoutExchange = "session.expiry.exchange"
	SessionExpiryRoutingKey      = "session.expiry"
)

type SessionExpiryMessage struct {
	SessionID string    `json:"session_id"`
	EventID   uint      `json:"event_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// immediate queue from the services to the notification consumer
// either UserIDs or Role names the recipients
// rejected messages are parked in the dead queue for inspection
const (
	NotificationQueue     = "notification.dispatch.immediate"
	NotificationDeadQueue = "notification.dispatch.dead"
)

// unacked deliveries a consumer holds at once
const ConsumerPrefetch = 16

type NotificationMessage struct {
	UserIDs []uint `json:"user_ids,omitempty"`
	Role    string `json:"role,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
