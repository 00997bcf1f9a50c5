package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Tier string

const (
	TierBronze Tier = "BRONZE"
	TierSilver Tier = "SILVER"
	TierGold   Tier = "GOLD"
)

// Rank orders tiers so callers can compare them.
func (t Tier) Rank() int {
	switch t {
	case TierSilver:
		return 1
	case TierGold:
		return 2
	default:
		return 0
	}
}

func (t Tier) Valid() bool {
	return t == TierBronze || t == TierSilver || t == TierGold
}

// Customer is keyed by the lower-cased wallet address. Customers are never
// hard-deleted, only deactivated.
type Customer struct {
	Address string `gorm:"primaryKey;size:42" json:"address"`
	Name    string `json:"name"`

	Tier             Tier            `gorm:"size:10;not null" json:"tier"`
	LifetimeEarnings decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"lifetimeEarnings"`
	HomeShopID       *string         `gorm:"size:64;index" json:"homeShopId,omitempty"`
	ReferralCount    int             `gorm:"default:0" json:"referralCount"`
	IsActive         bool            `gorm:"default:true" json:"isActive"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsHomeShop reports whether shopID is the shop the customer is enrolled at.
func (c *Customer) IsHomeShop(shopID string) bool {
	return c != nil && c.HomeShopID != nil && *c.HomeShopID == shopID
}
