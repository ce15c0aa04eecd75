package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ChallengeStatusActive    = "active"
	ChallengeStatusUpcoming  = "upcoming"
	ChallengeStatusCompleted = "completed"
)

// Challenge is one qualification track: a capital tier at a given phase.
// Rows are seeded at startup from config and treated as immutable afterwards.
type Challenge struct {
	ID          string `gorm:"type:varchar(36);primaryKey"`
	Name        string `gorm:"type:varchar(100);not null"`
	Description string `gorm:"type:text"`

	StartingCapital float64 `gorm:"type:numeric(30,10);not null"`
	DurationDays    int     `gorm:"not null"`
	ProfitTarget    float64 `gorm:"type:numeric(20,10);not null"`
	MaxDailyLoss    float64 `gorm:"type:numeric(20,10);not null"`
	MaxTotalLoss    float64 `gorm:"type:numeric(20,10);not null"`
	MinTradingDays  int     `gorm:"not null"`

	Phase  int             `gorm:"not null;index"`
	Fee    decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	Status string          `gorm:"type:varchar(20);not null;default:'active';index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Challenge) TableName() string {
	return "challenges"
}
