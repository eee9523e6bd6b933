package domain

import (
	"github.com/qs-lzh/cave-sale/config"
	"github.com/qs-lzh/cave-sale/internal/model"
)

type RarityTier string

const (
	RarityCommon    RarityTier = "common"
	RarityRare      RarityTier = "rare"
	RarityEpic      RarityTier = "epic"
	RarityLegendary RarityTier = "legendary"
)

func (t RarityTier) Valid() bool {
	switch t {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	}
	return false
}

// RarityPolicy holds the score thresholds, each tier starts strictly above its value.
type RarityPolicy struct {
	Legendary float64
	Epic      float64
	Rare      float64
}

func DefaultRarityPolicy() RarityPolicy {
	return RarityPolicy{Legendary: 80, Epic: 50, Rare: 25}
}

// NewRarityPolicy falls back to the defaults when the thresholds are out of order.
func NewRarityPolicy(cfg config.RarityConfig) RarityPolicy {
	if cfg.Validate() != nil {
		return DefaultRarityPolicy()
	}
	return RarityPolicy{Legendary: cfg.Legendary, Epic: cfg.Epic, Rare: cfg.Rare}
}

// Score combines the event discount and the points requirement:
// discount fraction * 100 + required points / 100.
func Score(ep *model.EventProduct) float64 {
	var discount float64
	if price := ep.Product.Price; price > 0 && ep.EventPrice < price {
		discount = float64(price-ep.EventPrice) / float64(price)
	}
	return discount*100 + float64(ep.RequiredPoints)/100
}

func (p RarityPolicy) Tier(ep *model.EventProduct) RarityTier {
	score := Score(ep)
	switch {
	case score > p.Legendary:
		return RarityLegendary
	case score > p.Epic:
		return RarityEpic
	case score > p.Rare:
		return RarityRare
	}
	return RarityCommon
}
