// Package evaluation drives the qualification loop: each tick it refreshes
// every active entry's metrics from the venue (or the fallback generator)
// and applies the pass/fail/expire ladder.
package evaluation

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"proparena/internal/attest"
	"proparena/internal/config"
	"proparena/internal/metrics"
	"proparena/internal/models"
	"proparena/internal/repository"
	"proparena/internal/service"
	"proparena/internal/venue"
)

// Engine evaluates active entries against their challenge's rules. One
// engine instance serves the whole process; ticks never overlap.
type Engine struct {
	Repo       repository.Repository
	Venue      venue.SnapshotSource
	Attest     attest.Sink
	Challenges *service.ChallengeService
	Logger     *zap.Logger
	Config     config.EvaluationConfig
	Fallback   *Simulator
}

// Tick evaluates every active entry of every active challenge once. A
// failure on one entry never blocks the rest of the sweep.
func (e *Engine) Tick(ctx context.Context) error {
	challenges, err := e.Repo.ListChallengesByStatus(ctx, models.ChallengeStatusActive)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range challenges {
		c := challenges[i]
		entries, err := e.Repo.ListActiveEntriesByChallenge(ctx, c.ID)
		if err != nil {
			e.Logger.Warn("listing entries failed",
				zap.String("challenge_id", c.ID), zap.Error(err))
			continue
		}
		for j := range entries {
			if err := e.evaluateEntry(ctx, &c, &entries[j], now); err != nil {
				e.Logger.Warn("entry evaluation failed",
					zap.String("entry_id", entries[j].ID), zap.Error(err))
			}
		}
	}
	return nil
}

func (e *Engine) evaluateEntry(ctx context.Context, c *models.Challenge, entry *models.Entry, now time.Time) error {
	obs := e.observe(ctx, entry, c.StartingCapital)
	next := metrics.Fold(entry.Metrics, c.StartingCapital, obs, now, e.Config.SharpePeriodsPerYear)
	if err := e.Repo.UpdateEntryMetrics(ctx, entry.ID, next); err != nil {
		return err
	}
	entry.Metrics = next

	switch {
	case next.DailyLossPercent > c.MaxDailyLoss:
		return e.finalize(ctx, c, entry, models.EntryStatusFailed, now)
	case next.MaxDrawdownPercent > c.MaxTotalLoss:
		return e.finalize(ctx, c, entry, models.EntryStatusFailed, now)
	case next.CurrentPnlPercent >= c.ProfitTarget && len(next.TradingDays) >= c.MinTradingDays:
		if err := e.finalize(ctx, c, entry, models.EntryStatusPassed, now); err != nil {
			return err
		}
		if c.Phase == 1 {
			if _, err := e.Challenges.EnterPhase2(ctx, entry, c); err != nil {
				e.Logger.Warn("phase 2 enrollment failed",
					zap.String("entry_id", entry.ID), zap.Error(err))
			}
		}
		return nil
	case !now.Before(entry.EndsAt):
		return e.finalize(ctx, c, entry, models.EntryStatusExpired, now)
	}
	return nil
}

// observe reads the live account; read failures and implausible equity fall
// back to the simulator. A live equity farther than the sanity band from
// starting capital is treated as a venue-side glitch, not a real move.
func (e *Engine) observe(ctx context.Context, entry *models.Entry, capital float64) metrics.Observation {
	if e.Venue != nil && entry.AccountID != 0 {
		snap, err := e.Venue.AccountSnapshot(ctx, entry.AccountID)
		if err == nil && e.plausible(snap.Equity, capital) {
			pnls := make([]float64, 0, len(snap.Positions))
			for _, p := range snap.Positions {
				pnls = append(pnls, p.UnrealizedPnl)
			}
			return metrics.Observation{
				Equity:       snap.Equity,
				TradeCount:   snap.TradeCount,
				PositionPnls: pnls,
			}
		}
		if err != nil {
			e.Logger.Debug("venue snapshot failed, using fallback",
				zap.String("entry_id", entry.ID), zap.Error(err))
		}
	}
	return e.Fallback.Next(entry.Metrics, capital)
}

func (e *Engine) plausible(equity, capital float64) bool {
	if equity <= 0 {
		return false
	}
	return math.Abs(equity-capital) <= e.Config.EquitySanityBand*capital
}

// finalize applies a terminal transition with its attestation. The sink is
// best-effort: a store failure downgrades to an offline reference rather
// than leaving the entry active.
func (e *Engine) finalize(ctx context.Context, c *models.Challenge, entry *models.Entry, status string, now time.Time) error {
	ref := attest.FallbackRef(attest.KindChallengeResult, now)
	if e.Attest != nil {
		payload := attest.Payload{
			Kind:                attest.KindChallengeResult,
			AgentID:             entry.AgentID,
			ChallengeID:         entry.ChallengeID,
			Phase:               entry.Phase,
			PnlPercent:          entry.Metrics.CurrentPnlPercent,
			MaxDrawdownPercent:  entry.Metrics.MaxDrawdownPercent,
			MaxDailyLossPercent: entry.Metrics.MaxDailyLossPercent,
			TradingDays:         len(entry.Metrics.TradingDays),
			SharpeRatio:         entry.Metrics.SharpeRatio,
			Passed:              status == models.EntryStatusPassed,
			Timestamp:           now.Unix(),
		}
		if stored, err := e.Attest.Store(ctx, payload); err == nil {
			ref = stored
		} else {
			e.Logger.Warn("attestation store failed, using offline reference",
				zap.String("entry_id", entry.ID), zap.Error(err))
		}
	}

	if err := e.Repo.SetEntryStatus(ctx, entry.ID, status, ref); err != nil {
		return err
	}
	entry.Status = status
	entry.AttestationRef = ref
	e.Logger.Info("entry finalized",
		zap.String("entry_id", entry.ID),
		zap.String("agent_id", entry.AgentID),
		zap.String("challenge", c.Name),
		zap.Int("phase", entry.Phase),
		zap.String("status", status),
		zap.Float64("pnl_percent", entry.Metrics.CurrentPnlPercent),
		zap.String("attestation_ref", ref),
	)
	return nil
}
