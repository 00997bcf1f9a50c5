package services

import (
	"fmt"

	"github.com/shopspring/decimal"

	"repaircoin-backend/config"
	"repaircoin-backend/models"
)

var hundred = decimal.NewFromInt(100)

// TierChange is the result of applying an earning event to a customer.
type TierChange struct {
	Previous models.Tier
	Current  models.Tier
	Lifetime decimal.Decimal
	Changed  bool
}

// TierEngine maps lifetime earnings onto tiers using the injected policy.
type TierEngine struct {
	silver decimal.Decimal
	gold   decimal.Decimal
	bonus  map[models.Tier]decimal.Decimal
}

func NewTierEngine(policy config.Policy) *TierEngine {
	bonus := make(map[models.Tier]decimal.Decimal, len(policy.TierBonus))
	for tier, pct := range policy.TierBonus {
		bonus[tier] = pct
	}
	return &TierEngine{
		silver: policy.SilverThreshold,
		gold:   policy.GoldThreshold,
		bonus:  bonus,
	}
}

// TierFor uses inclusive lower bounds.
func (e *TierEngine) TierFor(lifetime decimal.Decimal) models.Tier {
	switch {
	case lifetime.GreaterThanOrEqual(e.gold):
		return models.TierGold
	case lifetime.GreaterThanOrEqual(e.silver):
		return models.TierSilver
	default:
		return models.TierBronze
	}
}

func (e *TierEngine) BonusPercentFor(tier models.Tier) decimal.Decimal {
	if pct, ok := e.bonus[tier]; ok {
		return pct
	}
	return decimal.Zero
}

// ApplyBonus returns the extra credit due on base for a customer in tier,
// rounded down to whole cents.
func (e *TierEngine) ApplyBonus(tier models.Tier, base decimal.Decimal) decimal.Decimal {
	if base.Sign() <= 0 {
		return decimal.Zero
	}
	return base.Mul(e.BonusPercentFor(tier)).Div(hundred).RoundDown(2)
}

// Recompute adds delta to the customer's lifetime earnings and re-derives the
// tier. Spending never reaches here, so lifetime only grows.
func (e *TierEngine) Recompute(customer *models.Customer, delta decimal.Decimal) (TierChange, error) {
	if customer == nil {
		return TierChange{}, invalid("customer is required")
	}
	if delta.Sign() < 0 {
		return TierChange{}, fmt.Errorf("%w: earnings delta %s is negative", ErrInvalidAmount, delta)
	}
	previous := customer.Tier
	if !previous.Valid() {
		previous = e.TierFor(customer.LifetimeEarnings)
	}
	customer.LifetimeEarnings = customer.LifetimeEarnings.Add(delta)
	current := e.TierFor(customer.LifetimeEarnings)
	customer.Tier = current
	return TierChange{
		Previous: previous,
		Current:  current,
		Lifetime: customer.LifetimeEarnings,
		Changed:  previous != current,
	}, nil
}
