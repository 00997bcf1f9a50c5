package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Kind string

const (
	KindMint     Kind = "mint"
	KindRedeem   Kind = "redeem"
	KindTransfer Kind = "transfer"
)

type Source string

const (
	SourceRepair        Source = "repair"
	SourceReferralBonus Source = "referral_bonus"
	SourceTierBonus     Source = "tier_bonus"
	SourceAdminMint     Source = "admin_mint"
	SourcePromotion     Source = "promotion"
	SourcePurchase      Source = "purchase"
	SourceRedemption    Source = "redemption"
	SourceTransfer      Source = "transfer"
)

// IsEarning reports whether tokens minted from this source count towards the
// earned balance and lifetime earnings.
func (s Source) IsEarning() bool {
	switch s {
	case SourceRepair, SourceReferralBonus, SourceTierBonus, SourceAdminMint, SourcePromotion:
		return true
	}
	return false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// LedgerEntry is an append-only record of a token movement. Once confirmed it
// is immutable; the only permitted mutation is pending -> confirmed|failed.
type LedgerEntry struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TxRef           string          `gorm:"size:128;uniqueIndex;not null" json:"txRef"`
	CustomerAddress string          `gorm:"size:42;index;not null" json:"customerAddress"`
	ShopID          *string         `gorm:"size:64;index" json:"shopId,omitempty"`
	Counterparty    string          `gorm:"size:42" json:"counterparty,omitempty"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Kind            Kind            `gorm:"size:16;index;not null" json:"kind"`
	Source          Source          `gorm:"size:24;not null" json:"source"`
	Inbound         bool            `json:"inbound,omitempty"`
	Status          Status          `gorm:"size:16;index;not null" json:"status"`
	Timestamp       time.Time       `gorm:"index;not null" json:"timestamp"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) (err error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return
}
