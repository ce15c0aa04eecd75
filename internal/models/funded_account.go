package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	FundedStatusPending   = "pending"
	FundedStatusActive    = "active"
	FundedStatusSuspended = "suspended"
	FundedStatusRevoked   = "revoked"
)

// FundedAccount is a capital allocation granted after a dual-phase pass.
// Revoked is terminal.
type FundedAccount struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	AgentID   string `gorm:"type:varchar(100);not null;index"`
	AgentName string `gorm:"type:varchar(100)"`

	ChallengeEntryID    string `gorm:"type:varchar(36);not null"`
	VerificationEntryID string `gorm:"type:varchar(36);not null"`

	// AccountID links the allocation to a venue sub-account; zero means the
	// allocation has not been attached to live execution yet.
	AccountID int64 `gorm:"not null;default:0"`

	Allocation     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	CurrentEquity  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	TotalWithdrawn decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	Status         string `gorm:"type:varchar(20);not null;default:'pending';index"`
	ProtocolFeeBps int64  `gorm:"not null;default:1000"`

	MaxDailyLoss float64 `gorm:"type:numeric(20,10);not null"`
	MaxTotalLoss float64 `gorm:"type:numeric(20,10);not null"`

	AttestationRef string     `gorm:"type:varchar(200)"`
	AppliedAt      time.Time  `gorm:"type:timestamptz;not null"`
	ActivatedAt    *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (FundedAccount) TableName() string {
	return "funded_accounts"
}
