package domain

import (
	"time"

	"github.com/qs-lzh/cave-sale/internal/model"
)

type DenyReason string

const (
	DenySessionExpired        DenyReason = "session_expired"
	DenyPerProductCapExceeded DenyReason = "per_product_cap_exceeded"
	DenySpendCapExceeded      DenyReason = "spend_cap_exceeded"
)

// Unlimited is reported as the remaining budget of events without a purchase cap.
const Unlimited int64 = -1

// Decision is the outcome of a guard check. A denial is a normal value, not an error.
type Decision struct {
	Allowed bool       `json:"allowed"`
	Reason  DenyReason `json:"reason,omitempty"`
	// Remaining is the quantity left for PerProductCapExceeded and the budget left
	// otherwise, Unlimited when the event has no cap.
	Remaining int64 `json:"remaining"`
}

func Allow(remaining int64) Decision {
	return Decision{Allowed: true, Remaining: remaining}
}

func Deny(reason DenyReason, remaining int64) Decision {
	return Decision{Allowed: false, Reason: reason, Remaining: remaining}
}

// CanAdd decides whether qty units of ep may join the session's cart.
// lines are the cart lines already bound to the session; lines of other sessions
// and ordinary items are ignored. It mutates nothing.
func CanAdd(now time.Time, session *model.Session, event *model.Event, ep *model.EventProduct, qty int, lines []model.CartLine) Decision {
	if !session.LiveAt(now) {
		return Deny(DenySessionExpired, 0)
	}

	have := 0
	var spent int64
	for _, l := range lines {
		if !l.IsEventPurchase || l.SessionID != session.ID {
			continue
		}
		spent += l.EventPrice * int64(l.Quantity)
		if l.ProductID == ep.ProductID {
			have += l.Quantity
		}
	}

	if have+qty > ep.MaxQuantityPerProduct {
		return Deny(DenyPerProductCapExceeded, int64(max(ep.MaxQuantityPerProduct-have, 0)))
	}

	// the session record may be ahead of the cart, e.g. after a purchase was checked out
	spent = max(spent, session.TotalSpent)
	cost := ep.EventPrice * int64(qty)
	if event.PurchaseCap > 0 && spent+cost > event.PurchaseCap {
		return Deny(DenySpendCapExceeded, max(event.PurchaseCap-spent, 0))
	}

	return Allow(RemainingBudget(event, spent+cost))
}

// ValidateSessionLines re-checks every event line of one session before an order is placed,
// using the quantity and price copied onto each line when it was added.
func ValidateSessionLines(now time.Time, session *model.Session, event *model.Event, lines []model.CartLine) (Decision, uint) {
	if !session.LiveAt(now) {
		return Deny(DenySessionExpired, 0), 0
	}

	qty := make(map[uint]int)
	var spent int64
	for _, l := range lines {
		if !l.IsEventPurchase || l.SessionID != session.ID {
			continue
		}
		qty[l.ProductID] += l.Quantity
		if qty[l.ProductID] > l.MaxQuantityPerProduct {
			return Deny(DenyPerProductCapExceeded, 0), l.ProductID
		}
		spent += l.EventPrice * int64(l.Quantity)
		if event.PurchaseCap > 0 && spent > event.PurchaseCap {
			return Deny(DenySpendCapExceeded, 0), l.ProductID
		}
	}

	return Allow(RemainingBudget(event, spent)), 0
}

// RemainingBudget is the spend left under the event cap, Unlimited when there is none.
func RemainingBudget(event *model.Event, spent int64) int64 {
	if event.PurchaseCap <= 0 {
		return Unlimited
	}
	return max(event.PurchaseCap-spent, 0)
}
