package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	VaultStatusActive = "active"
	VaultStatusFrozen = "frozen"
	VaultStatusClosed = "closed"
)

// Vault is a delegated-trading allocation, distinct from a funded account.
// Frozen is terminal for trading purposes; the row stays readable.
type Vault struct {
	Pubkey            string `gorm:"type:varchar(100);primaryKey"`
	Name              string `gorm:"type:varchar(100);not null"`
	DelegateAuthority string `gorm:"type:varchar(100);not null;index"`

	AccountID int64 `gorm:"not null"`

	TotalDeposits decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	CurrentEquity decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	AgentProfitShareBps int64  `gorm:"not null;default:9000"`
	Status              string `gorm:"type:varchar(20);not null;default:'active';index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Vault) TableName() string {
	return "vaults"
}
