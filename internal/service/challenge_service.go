package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"proparena/internal/config"
	"proparena/internal/models"
	"proparena/internal/repository"
)

var (
	ErrChallengeNotOpen = errors.New("challenge is not open for entry")
)

// ChallengeService owns challenge seeding, entry enrollment and the
// read-side projections (leaderboard, agent entries).
type ChallengeService struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

// Seed creates one challenge per tier per phase from config. Reseeding
// happens only at process startup; existing rows with the same tier/phase
// name are replaced.
func (s *ChallengeService) Seed(ctx context.Context, cfg config.ChallengesConfig) (int, error) {
	count := 0
	for _, tier := range cfg.Tiers {
		for _, phase := range cfg.Phases {
			name := fmt.Sprintf("$%gk %s", tier.Capital/1000, phase.Label)
			c := &models.Challenge{
				ID:   uuid.NewString(),
				Name: name,
				Description: fmt.Sprintf(
					"Phase %d %s: $%g capital, %g%% profit target, %g%% max daily loss, %g%% max total loss, min %d trading days, %d-day window. Fee: $%g (refundable on pass).",
					phase.Phase, phase.Label, tier.Capital, phase.ProfitTarget,
					cfg.MaxDailyLoss, cfg.MaxTotalLoss, cfg.MinTradingDays, phase.DurationDays, tier.Fee,
				),
				StartingCapital: tier.Capital,
				DurationDays:    phase.DurationDays,
				ProfitTarget:    phase.ProfitTarget,
				MaxDailyLoss:    cfg.MaxDailyLoss,
				MaxTotalLoss:    cfg.MaxTotalLoss,
				MinTradingDays:  cfg.MinTradingDays,
				Phase:           phase.Phase,
				Fee:             decimal.NewFromFloat(tier.Fee),
				Status:          models.ChallengeStatusActive,
				CreatedAt:       time.Now().UTC(),
			}
			if err := s.Repo.UpsertChallenge(ctx, c); err != nil {
				return count, err
			}
			count++
		}
	}
	if s.Logger != nil {
		s.Logger.Info("challenges seeded",
			zap.Int("count", count),
			zap.Int("tiers", len(cfg.Tiers)),
			zap.Int("phases", len(cfg.Phases)),
		)
	}
	return count, nil
}

func (s *ChallengeService) List(ctx context.Context) ([]models.Challenge, error) {
	return s.Repo.ListChallenges(ctx)
}

func (s *ChallengeService) Get(ctx context.Context, id string) (*models.Challenge, error) {
	return s.Repo.GetChallenge(ctx, id)
}

// Enter enrolls an agent into a challenge. Enrollment is idempotent: an
// agent already holding an active entry for the challenge gets that entry
// back unchanged. phase1EntryID links a phase-2 entry to its qualifying
// phase-1 entry and is empty for direct enrollment.
func (s *ChallengeService) Enter(ctx context.Context, challengeID, agentID, agentName, phase1EntryID string) (*models.Entry, error) {
	challenge, err := s.Repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if challenge.Status != models.ChallengeStatusActive {
		return nil, ErrChallengeNotOpen
	}

	if existing, err := s.Repo.FindActiveEntry(ctx, challengeID, agentID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	accountID, err := s.Repo.NextAccountID(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := &models.Entry{
		ID:            uuid.NewString(),
		ChallengeID:   challengeID,
		AgentID:       agentID,
		AgentName:     agentName,
		AccountID:     accountID,
		StartedAt:     now,
		EndsAt:        now.Add(time.Duration(challenge.DurationDays) * 24 * time.Hour),
		Status:        models.EntryStatusActive,
		Phase:         challenge.Phase,
		Phase1EntryID: phase1EntryID,
		Metrics:       models.NewMetrics(challenge.StartingCapital, now),
	}
	if err := s.Repo.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("agent entered challenge",
			zap.String("agent_id", agentID),
			zap.String("challenge", challenge.Name),
			zap.Int("phase", challenge.Phase),
			zap.String("entry_id", entry.ID),
		)
	}
	return entry, nil
}

// EnterPhase2 auto-enrolls the agent of a passed phase-1 entry into the
// phase-2 challenge of the same capital tier, stamping the back-reference.
func (s *ChallengeService) EnterPhase2(ctx context.Context, phase1Entry *models.Entry, phase1Challenge *models.Challenge) (*models.Entry, error) {
	p2, err := s.Repo.FindPhase2Challenge(ctx, phase1Challenge.StartingCapital)
	if err != nil {
		return nil, err
	}
	return s.Enter(ctx, p2.ID, phase1Entry.AgentID, phase1Entry.AgentName, phase1Entry.ID)
}

func (s *ChallengeService) Entry(ctx context.Context, id string) (*models.Entry, error) {
	return s.Repo.GetEntry(ctx, id)
}

func (s *ChallengeService) EntriesByAgent(ctx context.Context, agentID string) ([]models.Entry, error) {
	return s.Repo.ListEntriesByAgent(ctx, agentID)
}

// QualifiedEntries returns the linked passed phase-1/phase-2 pair that makes
// an agent funding-eligible, or ErrNotFound.
func (s *ChallengeService) QualifiedEntries(ctx context.Context, agentID string) (phase1, phase2 *models.Entry, err error) {
	entries, err := s.Repo.ListEntriesByAgent(ctx, agentID)
	if err != nil {
		return nil, nil, err
	}
	for i := range entries {
		e := entries[i]
		if e.Phase != 2 || e.Status != models.EntryStatusPassed || e.Phase1EntryID == "" {
			continue
		}
		for j := range entries {
			p1 := entries[j]
			if p1.Phase == 1 && p1.Status == models.EntryStatusPassed && p1.ID == e.Phase1EntryID {
				return &p1, &e, nil
			}
		}
	}
	return nil, nil, repository.ErrNotFound
}

// Leaderboard ranks a challenge's entries by PnL percent, descending. Ties
// keep enrollment order (the store lists entries in insertion order and the
// sort is stable).
func (s *ChallengeService) Leaderboard(ctx context.Context, challengeID string) ([]models.LeaderboardRow, error) {
	entries, err := s.Repo.ListEntriesByChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Metrics.CurrentPnlPercent > entries[j].Metrics.CurrentPnlPercent
	})
	rows := make([]models.LeaderboardRow, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, models.LeaderboardRow{
			Rank:               i + 1,
			AgentID:            e.AgentID,
			AgentName:          e.AgentName,
			PnlPercent:         e.Metrics.CurrentPnlPercent,
			MaxDrawdownPercent: e.Metrics.MaxDrawdownPercent,
			SharpeRatio:        e.Metrics.SharpeRatio,
			Status:             e.Status,
		})
	}
	return rows, nil
}
