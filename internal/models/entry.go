package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	EntryStatusActive  = "active"
	EntryStatusPassed  = "passed"
	EntryStatusFailed  = "failed"
	EntryStatusExpired = "expired"
)

// PnlHistoryCap bounds the per-entry PnL history used for the Sharpe proxy.
const PnlHistoryCap = 10000

// PerformanceMetrics is the running metrics record of one entry. It is owned
// by its entry and mutated only through the accumulator fold.
type PerformanceMetrics struct {
	CurrentPnl        float64 `gorm:"type:numeric(30,10);not null;default:0" json:"currentPnl"`
	CurrentPnlPercent float64 `gorm:"type:numeric(20,10);not null;default:0" json:"currentPnlPercent"`

	PeakEquity    float64 `gorm:"type:numeric(30,10);not null;default:0" json:"peakEquity"`
	CurrentEquity float64 `gorm:"type:numeric(30,10);not null;default:0" json:"currentEquity"`

	MaxDrawdown        float64 `gorm:"type:numeric(30,10);not null;default:0" json:"maxDrawdown"`
	MaxDrawdownPercent float64 `gorm:"type:numeric(20,10);not null;default:0" json:"maxDrawdownPercent"`

	DailyLoss        float64 `gorm:"type:numeric(30,10);not null;default:0" json:"dailyLoss"`
	DailyLossPercent float64 `gorm:"type:numeric(20,10);not null;default:0" json:"dailyLossPercent"`
	DailyLossDate    string  `gorm:"type:varchar(10)" json:"dailyLossDate"`

	MaxDailyLoss        float64 `gorm:"type:numeric(30,10);not null;default:0" json:"maxDailyLoss"`
	MaxDailyLossPercent float64 `gorm:"type:numeric(20,10);not null;default:0" json:"maxDailyLossPercent"`

	SharpeRatio float64 `gorm:"type:numeric(20,10);not null;default:0" json:"sharpeRatio"`
	TotalTrades int     `gorm:"not null;default:0" json:"totalTrades"`
	WinRate     float64 `gorm:"type:numeric(20,10);not null;default:0" json:"winRate"`

	PnlHistory  datatypes.JSONSlice[float64] `json:"pnlHistory"`
	TradingDays datatypes.JSONSlice[string]  `json:"tradingDays"`
}

// DayKey is the calendar-day identifier used for daily-loss resets and the
// trading-day set. UTC, so a "day" is unambiguous across hosts.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// NewMetrics returns the zero-state metrics for a fresh entry.
func NewMetrics(startingCapital float64, now time.Time) PerformanceMetrics {
	return PerformanceMetrics{
		PeakEquity:    startingCapital,
		CurrentEquity: startingCapital,
		DailyLossDate: DayKey(now),
		PnlHistory:    datatypes.JSONSlice[float64]{},
		TradingDays:   datatypes.JSONSlice[string]{},
	}
}

// HasTradingDay reports whether day is already in the trading-day set.
func (m PerformanceMetrics) HasTradingDay(day string) bool {
	for _, d := range m.TradingDays {
		if d == day {
			return true
		}
	}
	return false
}

// Entry is one agent's attempt at one challenge. Status is terminal once it
// leaves active; the phase-1 back-reference, once set, is immutable.
type Entry struct {
	ID          string `gorm:"type:varchar(36);primaryKey"`
	ChallengeID string `gorm:"type:varchar(36);not null;index"`
	AgentID     string `gorm:"type:varchar(100);not null;index"`
	AgentName   string `gorm:"type:varchar(100)"`

	// AccountID is the execution-venue sub-account handle for this entry.
	AccountID int64 `gorm:"not null"`

	StartedAt time.Time `gorm:"type:timestamptz;not null"`
	EndsAt    time.Time `gorm:"type:timestamptz;not null"`

	Status        string `gorm:"type:varchar(20);not null;default:'active';index"`
	Phase         int    `gorm:"not null"`
	Phase1EntryID string `gorm:"type:varchar(36)"`

	AttestationRef string `gorm:"type:varchar(200)"`

	Metrics PerformanceMetrics `gorm:"embedded;embeddedPrefix:m_" json:"metrics"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Entry) TableName() string {
	return "challenge_entries"
}

func (e *Entry) Terminal() bool {
	return e.Status != EntryStatusActive
}
