// Package metrics folds equity observations into a running per-entry
// performance record. The fold is pure: same previous record, capital and
// observation always produce the same next record.
package metrics

import (
	"math"
	"time"

	"proparena/internal/models"
)

// Observation is one tick's view of an execution account.
type Observation struct {
	Equity     float64
	TradeCount int
	// PositionPnls holds the unrealized PnL of each open position; the win
	// rate is the fraction above zero.
	PositionPnls []float64
}

// Fold produces the next metrics record from the previous one and a new
// observation. sharpePeriods is the annualization base for the Sharpe proxy.
func Fold(prev models.PerformanceMetrics, startingCapital float64, obs Observation, now time.Time, sharpePeriods float64) models.PerformanceMetrics {
	next := prev
	today := models.DayKey(now)

	pnl := obs.Equity - startingCapital
	next.CurrentPnl = pnl
	if startingCapital > 0 {
		next.CurrentPnlPercent = pnl / startingCapital * 100
	}

	// Day rollover: the daily loss counts losses since the start of the
	// current calendar day only.
	dailyLoss := prev.DailyLoss
	if prev.DailyLossDate != today {
		dailyLoss = 0
	}
	if drop := prev.CurrentEquity - obs.Equity; drop > 0 {
		// Gains do not offset a day's recorded loss.
		dailyLoss += drop
	}
	next.DailyLoss = dailyLoss
	next.DailyLossDate = today
	if startingCapital > 0 {
		next.DailyLossPercent = dailyLoss / startingCapital * 100
	}
	next.MaxDailyLoss = math.Max(prev.MaxDailyLoss, next.DailyLoss)
	next.MaxDailyLossPercent = math.Max(prev.MaxDailyLossPercent, next.DailyLossPercent)

	next.PeakEquity = math.Max(prev.PeakEquity, obs.Equity)
	next.CurrentEquity = obs.Equity
	drawdown := next.PeakEquity - obs.Equity
	var drawdownPct float64
	if next.PeakEquity > 0 {
		drawdownPct = drawdown / next.PeakEquity * 100
	}
	next.MaxDrawdown = math.Max(prev.MaxDrawdown, drawdown)
	next.MaxDrawdownPercent = math.Max(prev.MaxDrawdownPercent, drawdownPct)

	next.PnlHistory = append(prev.PnlHistory[:0:0], prev.PnlHistory...)
	next.PnlHistory = append(next.PnlHistory, pnl)
	if n := len(next.PnlHistory); n > models.PnlHistoryCap {
		next.PnlHistory = append(next.PnlHistory[:0:0], next.PnlHistory[n-models.PnlHistoryCap:]...)
	}

	next.TradingDays = append(prev.TradingDays[:0:0], prev.TradingDays...)
	if obs.TradeCount > prev.TotalTrades {
		next.TotalTrades = obs.TradeCount
		if !prev.HasTradingDay(today) {
			next.TradingDays = append(next.TradingDays, today)
		}
	}

	next.SharpeRatio = Sharpe(next.PnlHistory, sharpePeriods)

	wins := 0
	for _, p := range obs.PositionPnls {
		if p > 0 {
			wins++
		}
	}
	if len(obs.PositionPnls) > 0 {
		next.WinRate = float64(wins) / float64(len(obs.PositionPnls))
	} else {
		next.WinRate = 0
	}

	return next
}

// Sharpe computes the Sharpe proxy over the PnL history: mean over population
// stddev of successive differences, annualized by sqrt(periodsPerYear). A
// zero-variance profitable history saturates at 10.
func Sharpe(pnlHistory []float64, periodsPerYear float64) float64 {
	if len(pnlHistory) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(pnlHistory)-1)
	for i := 1; i < len(pnlHistory); i++ {
		returns = append(returns, pnlHistory[i]-pnlHistory[i-1])
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	std := math.Sqrt(variance)
	if std == 0 {
		if mean > 0 {
			return 10
		}
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}
