package model

import (
	"time"
)

type User struct {
	ID             uint     `gorm:"primaryKey"`
	Name           string   `gorm:"size:64;not null;uniqueIndex"`
	HashedPassword string   `gorm:"not null"`
	Role           UserRole `gorm:"type:varchar(16);not null;index"`
}

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type EventKind string

const (
	EventKindScheduled EventKind = "scheduled"
	EventKindTicketed  EventKind = "ticketed"
)

type PayMode string

const (
	PayPoints PayMode = "points"
	PayCash   PayMode = "cash"
	PayBoth   PayMode = "both"
)

// Event is an administrator-defined promotional window. Session activity never writes to it.
type Event struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Title         string    `gorm:"size:100;not null" json:"title"`
	Description   string    `gorm:"type:text" json:"description"`
	Kind          EventKind `gorm:"type:varchar(16);not null" json:"kind"`
	StartTime     time.Time `gorm:"not null;index" json:"start_time"`
	EndTime       time.Time `gorm:"not null;index" json:"end_time"`
	MaxConcurrent int       `gorm:"not null" json:"max_concurrent"`
	UserTimeLimit int       `gorm:"not null" json:"user_time_limit"` // minutes
	PurchaseCap   int64     `gorm:"not null;default:0" json:"purchase_cap"`
	AllowedPay    PayMode   `gorm:"type:varchar(8);not null" json:"allowed_pay"`
	IsActive      bool      `gorm:"not null;default:true;index" json:"is_active"`
}

// OpenAt reports whether the event admits users at now. Both window bounds are inclusive.
func (e *Event) OpenAt(now time.Time) bool {
	return e.IsActive && !now.Before(e.StartTime) && !now.After(e.EndTime)
}

func (e *Event) SessionDuration() time.Duration {
	return time.Duration(e.UserTimeLimit) * time.Minute
}

// Allows reports whether an order paid with mode may contain this event's items.
func (e *Event) Allows(mode PayMode) bool {
	return e.AllowedPay == PayBoth || e.AllowedPay == mode
}

type Product struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"size:128;not null" json:"name"`
	Category string `gorm:"size:64;not null;index" json:"category"`
	Price    int64  `gorm:"not null" json:"price"`
	ImageURL string `gorm:"size:512" json:"image_url"`
}

// EventProduct annotates a product as sellable inside one event.
type EventProduct struct {
	ID                    uint    `gorm:"primaryKey" json:"id"`
	EventID               uint    `gorm:"not null;uniqueIndex:idx_event_product" json:"event_id"`
	ProductID             uint    `gorm:"not null;uniqueIndex:idx_event_product" json:"product_id"`
	EventPrice            int64   `gorm:"not null" json:"event_price"`
	RequiredPoints        int64   `gorm:"not null;default:0" json:"required_points"`
	MaxQuantityPerProduct int     `gorm:"not null" json:"max_quantity_per_product"`
	Product               Product `gorm:"foreignKey:ProductID" json:"product"`
}

type AdmissionGrant struct {
	ID      uint `gorm:"primaryKey"`
	EventID uint `gorm:"not null;uniqueIndex:idx_grant_event_user"`
	UserID  uint `gorm:"not null;uniqueIndex:idx_grant_event_user"`
}

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Session is a user's time-bounded admission into an event.
// The partial unique index keeps one active session per (event, user) in the database too.
type Session struct {
	ID         string        `gorm:"primaryKey;size:36" json:"session_id"`
	EventID    uint          `gorm:"not null;uniqueIndex:idx_session_active_user,where:status = 'active'" json:"event_id"`
	UserID     uint          `gorm:"not null;index;uniqueIndex:idx_session_active_user,where:status = 'active'" json:"user_id"`
	StartedAt  time.Time     `gorm:"not null" json:"started_at"`
	ExpiresAt  time.Time     `gorm:"not null;index" json:"expires_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
	TotalSpent int64         `gorm:"not null;default:0" json:"total_spent"`
	Status     SessionStatus `gorm:"type:varchar(8);not null;index" json:"status"`
}

func (s *Session) IsActive() bool {
	return s.Status == SessionActive
}

// LiveAt reports whether the session still accepts purchases at now.
func (s *Session) LiveAt(now time.Time) bool {
	return s.IsActive() && now.Before(s.ExpiresAt)
}

// CartLine is either an ordinary item (SessionID == "") or an event purchase bound to a session.
type CartLine struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	UserID                uint      `gorm:"not null;uniqueIndex:idx_cart_line" json:"user_id"`
	ProductID             uint      `gorm:"not null;uniqueIndex:idx_cart_line" json:"product_id"`
	SessionID             string    `gorm:"size:36;not null;default:'';uniqueIndex:idx_cart_line;index" json:"session_id,omitempty"`
	Quantity              int       `gorm:"not null" json:"quantity"`
	UnitPrice             int64     `gorm:"not null" json:"unit_price"`
	IsEventPurchase       bool      `gorm:"not null;default:false" json:"is_event_purchase"`
	EventPrice            int64     `gorm:"not null;default:0" json:"event_price"`
	RequiredPoints        int64     `gorm:"not null;default:0" json:"required_points"`
	MaxQuantityPerProduct int       `gorm:"not null;default:0" json:"max_quantity_per_product"`
	CreatedAt             time.Time `json:"created_at"`
}

type OrderStatus string

const (
	OrderPlaced OrderStatus = "placed"
)

type Order struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	UserID      uint        `gorm:"not null;index" json:"user_id"`
	PayMode     PayMode     `gorm:"type:varchar(8);not null" json:"pay_mode"`
	TotalAmount int64       `gorm:"not null" json:"total_amount"`
	TotalPoints int64       `gorm:"not null;default:0" json:"total_points"`
	Status      OrderStatus `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	Lines       []OrderLine `gorm:"foreignKey:OrderID" json:"lines"`
}

type OrderLine struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	OrderID         uint   `gorm:"not null;index" json:"order_id"`
	ProductID       uint   `gorm:"not null" json:"product_id"`
	SessionID       string `gorm:"size:36;not null;default:''" json:"session_id,omitempty"`
	Quantity        int    `gorm:"not null" json:"quantity"`
	UnitPrice       int64  `gorm:"not null" json:"unit_price"`
	UnitPoints      int64  `gorm:"not null;default:0" json:"unit_points"`
	IsEventPurchase bool   `gorm:"not null" json:"is_event_purchase"`
}

type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Kind      string    `gorm:"size:32;not null" json:"kind"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	IsRead    bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// AllModels lists every table for AutoMigrate.
func AllModels() []any {
	return []any{
		&User{}, &Event{}, &Product{}, &EventProduct{}, &AdmissionGrant{},
		&Session{}, &CartLine{}, &Order{}, &OrderLine{}, &Notification{},
	}
}
