package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Shop is a repair shop that issues and accepts RCN. A shop can only take part
// in redemptions once an admin has verified it.
type Shop struct {
	ShopID               string `gorm:"primaryKey;size:64" json:"shopId"`
	Name                 string `gorm:"not null" json:"name"`
	WalletAddress        string `gorm:"size:42;uniqueIndex;not null" json:"walletAddress"`
	ReimbursementAddress string `gorm:"size:42" json:"reimbursementAddress"`

	Verified         bool `gorm:"default:false" json:"verified"`
	Active           bool `gorm:"default:false" json:"active"`
	CrossShopEnabled bool `gorm:"default:false" json:"crossShopEnabled"`

	TotalRedemptions decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"totalRedemptions"`
	VerifiedAt       *time.Time      `json:"verifiedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CanRedeem reports whether the shop may accept redemptions at all.
func (s *Shop) CanRedeem() bool {
	return s != nil && s.Active && s.Verified
}
