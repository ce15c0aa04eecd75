package evaluation

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"proparena/internal/attest"
	"proparena/internal/config"
	"proparena/internal/models"
	"proparena/internal/repository/memorystore"
	"proparena/internal/service"
	"proparena/internal/venue"
)

type stubSnapshots struct {
	snaps map[int64]venue.AccountSnapshot
	err   error
}

func (s *stubSnapshots) AccountSnapshot(ctx context.Context, accountID int64) (venue.AccountSnapshot, error) {
	if s.err != nil {
		return venue.AccountSnapshot{}, s.err
	}
	snap, ok := s.snaps[accountID]
	if !ok {
		return venue.AccountSnapshot{}, errors.New("unknown account")
	}
	return snap, nil
}

type stubSink struct {
	stored []attest.Payload
	err    error
}

func (s *stubSink) Store(ctx context.Context, p attest.Payload) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.stored = append(s.stored, p)
	return "ledger:1", nil
}

func testConfig() config.ChallengesConfig {
	return config.ChallengesConfig{
		Tiers: []config.TierConfig{{Capital: 10000, Fee: 89}},
		Phases: []config.PhaseConfig{
			{Phase: 1, Label: "Challenge", ProfitTarget: 8, DurationDays: 30},
			{Phase: 2, Label: "Verification", ProfitTarget: 5, DurationDays: 60},
		},
		MaxDailyLoss:   5,
		MaxTotalLoss:   10,
		MinTradingDays: 10,
	}
}

func newEngine(t *testing.T) (*Engine, *service.ChallengeService, *memorystore.Store, *stubSnapshots, *stubSink) {
	t.Helper()
	store := memorystore.New()
	challenges := &service.ChallengeService{Repo: store}
	if _, err := challenges.Seed(context.Background(), testConfig()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	snaps := &stubSnapshots{snaps: map[int64]venue.AccountSnapshot{}}
	sink := &stubSink{}
	engine := &Engine{
		Repo:       store,
		Venue:      snaps,
		Attest:     sink,
		Challenges: challenges,
		Logger:     zap.NewNop(),
		Config: config.EvaluationConfig{
			SharpePeriodsPerYear: 8760,
			EquitySanityBand:     0.5,
		},
		Fallback: &Simulator{Rand: rand.New(rand.NewSource(1))},
	}
	return engine, challenges, store, snaps, sink
}

func phase1Challenge(t *testing.T, challenges *service.ChallengeService) *models.Challenge {
	t.Helper()
	items, err := challenges.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i := range items {
		if items[i].Phase == 1 {
			return &items[i]
		}
	}
	t.Fatalf("no phase-1 challenge")
	return nil
}

func enterAgent(t *testing.T, challenges *service.ChallengeService, challengeID, agentID string) *models.Entry {
	t.Helper()
	entry, err := challenges.Enter(context.Background(), challengeID, agentID, agentID, "")
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	return entry
}

// prefillTradingDays backfills the trading-day record so the minimum-days
// gate is already satisfied.
func prefillTradingDays(t *testing.T, store *memorystore.Store, entry *models.Entry, days int) {
	t.Helper()
	m := entry.Metrics
	for i := 0; i < days; i++ {
		day := models.DayKey(time.Now().UTC().AddDate(0, 0, -days+i))
		m.TradingDays = append(m.TradingDays, day)
	}
	if err := store.UpdateEntryMetrics(context.Background(), entry.ID, m); err != nil {
		t.Fatalf("update metrics: %v", err)
	}
	entry.Metrics = m
}

func TestTickPassesEntryAndEnrollsPhase2(t *testing.T) {
	engine, challenges, store, snaps, sink := newEngine(t)
	ctx := context.Background()
	c := phase1Challenge(t, challenges)
	entry := enterAgent(t, challenges, c.ID, "agent-pass")
	prefillTradingDays(t, store, entry, 11)
	snaps.snaps[entry.AccountID] = venue.AccountSnapshot{Equity: 10900, TradeCount: 42}

	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	final, err := store.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if final.Status != models.EntryStatusPassed {
		t.Fatalf("expected passed at 9%% with 11 trading days, got %s", final.Status)
	}
	if final.AttestationRef != "ledger:1" {
		t.Fatalf("expected ledger reference, got %q", final.AttestationRef)
	}
	if len(sink.stored) != 1 || !sink.stored[0].Passed {
		t.Fatalf("expected one passed attestation, got %+v", sink.stored)
	}

	// A passed phase 1 auto-enrolls the agent into phase 2 of the same tier.
	all, _ := store.ListEntriesByAgent(ctx, "agent-pass")
	var phase2 *models.Entry
	for i := range all {
		if all[i].Phase == 2 {
			phase2 = &all[i]
		}
	}
	if phase2 == nil {
		t.Fatalf("expected a phase-2 entry")
	}
	if phase2.Phase1EntryID != entry.ID {
		t.Fatalf("expected back-reference to %s, got %q", entry.ID, phase2.Phase1EntryID)
	}
	if phase2.Status != models.EntryStatusActive {
		t.Fatalf("expected fresh phase-2 entry active, got %s", phase2.Status)
	}
}

func TestTickDoesNotPassBelowMinTradingDays(t *testing.T) {
	engine, challenges, store, snaps, _ := newEngine(t)
	ctx := context.Background()
	c := phase1Challenge(t, challenges)
	entry := enterAgent(t, challenges, c.ID, "agent-early")
	prefillTradingDays(t, store, entry, 3)
	snaps.snaps[entry.AccountID] = venue.AccountSnapshot{Equity: 10900}

	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	final, _ := store.GetEntry(ctx, entry.ID)
	if final.Status != models.EntryStatusActive {
		t.Fatalf("target hit without min trading days must stay active, got %s", final.Status)
	}
}

func TestTickFailsOnDailyLoss(t *testing.T) {
	engine, challenges, store, snaps, sink := newEngine(t)
	ctx := context.Background()
	c := phase1Challenge(t, challenges)
	entry := enterAgent(t, challenges, c.ID, "agent-dl")
	snaps.snaps[entry.AccountID] = venue.AccountSnapshot{Equity: 9300}

	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	final, _ := store.GetEntry(ctx, entry.ID)
	if final.Status != models.EntryStatusFailed {
		t.Fatalf("expected failed at 7%% daily loss, got %s", final.Status)
	}
	if len(sink.stored) != 1 || sink.stored[0].Passed {
		t.Fatalf("expected one failed attestation, got %+v", sink.stored)
	}
}

func TestDailyLossAccumulatesAcrossTicks(t *testing.T) {
	engine, challenges, store, snaps, _ := newEngine(t)
	ctx := context.Background()
	c := phase1Challenge(t, challenges)
	entry := enterAgent(t, challenges, c.ID, "agent-slow")

	// Each drop alone is under the 5% daily limit.
	snaps.snaps[entry.AccountID] = venue.AccountSnapshot{Equity: 9700}
	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	mid, _ := store.GetEntry(ctx, entry.ID)
	if mid.Status != models.EntryStatusActive {
		t.Fatalf("expected still active after 3%% loss, got %s", mid.Status)
	}

	snaps.snaps[entry.AccountID] = venue.AccountSnapshot{Equity: 9400}
	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	final, _ := store.GetEntry(ctx, entry.ID)
	if final.Status != models.EntryStatusFailed {
		t.Fatalf("expected failed at 6%% cumulative daily loss, got %s", final.Status)
	}
}

func TestTickFailsOnDrawdownFromPeak(t *testing.T) {
	engine, challenges, store, snaps, _ := newEngine(t)
	ctx := context.Background()
	c := phase1Challenge(t, challenges)
	entry := enterAgent(t, challenges, c.ID, "agent-dd")

	m := entry.Metrics
	m.PeakEquity = 10500
	m.CurrentEquity = 9500
	if err := store.UpdateEntryMetrics(ctx, entry.ID, m); err != nil {
		t.Fatalf("update metrics: %v", err)
	}
	// Small drop on the day, but 10.5% off the peak.
	snaps.snaps[entry.AccountID] = venue.AccountSnapshot{Equity: 9400}

	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	final, _ := store.GetEntry(ctx, entry.ID)
	if final.Status != models.EntryStatusFailed {
		t.Fatalf("expected failed on max drawdown, got %s", final.Status)
	}
}

func TestTickExpiresEntryPastWindow(t *testing.T) {
	engine, challenges, store, snaps, _ := newEngine(t)
	ctx := context.Background()
	c := phase1Challenge(t, challenges)
	now := time.Now().UTC()
	entry := &models.Entry{
		ID:          "entry-expired",
		ChallengeID: c.ID,
		AgentID:     "agent-exp",
		AccountID:   77,
		StartedAt:   now.AddDate(0, 0, -31),
		EndsAt:      now.Add(-time.Hour),
		Status:      models.EntryStatusActive,
		Phase:       1,
		Metrics:     models.NewMetrics(c.StartingCapital, now.AddDate(0, 0, -31)),
	}
	if err := store.InsertEntry(ctx, entry); err != nil {
		t.Fatalf("insert: %v", err)
	}
	snaps.snaps[entry.AccountID] = venue.AccountSnapshot{Equity: 10100}

	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	final, _ := store.GetEntry(ctx, entry.ID)
	if final.Status != models.EntryStatusExpired {
		t.Fatalf("expected expired past window, got %s", final.Status)
	}
}

func TestFallbackOnVenueOutage(t *testing.T) {
	engine, challenges, store, snaps, _ := newEngine(t)
	ctx := context.Background()
	c := phase1Challenge(t, challenges)
	entry := enterAgent(t, challenges, c.ID, "agent-off")
	snaps.err = errors.New("venue down")

	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	final, _ := store.GetEntry(ctx, entry.ID)
	if len(final.Metrics.PnlHistory) != 1 {
		t.Fatalf("expected one synthetic observation folded, got %d", len(final.Metrics.PnlHistory))
	}
	if final.Status != models.EntryStatusActive {
		t.Fatalf("expected still active on a small synthetic move, got %s", final.Status)
	}
}

func TestFallbackOnImplausibleEquity(t *testing.T) {
	engine, challenges, store, snaps, _ := newEngine(t)
	ctx := context.Background()
	c := phase1Challenge(t, challenges)
	entry := enterAgent(t, challenges, c.ID, "agent-glitch")
	// 10x the starting capital is outside the sanity band.
	snaps.snaps[entry.AccountID] = venue.AccountSnapshot{Equity: 100000}

	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	final, _ := store.GetEntry(ctx, entry.ID)
	if final.Metrics.CurrentEquity == 100000 {
		t.Fatalf("implausible equity must not be folded")
	}
}

func TestFinalizeFallsBackToOfflineRef(t *testing.T) {
	engine, challenges, store, snaps, sink := newEngine(t)
	ctx := context.Background()
	c := phase1Challenge(t, challenges)
	entry := enterAgent(t, challenges, c.ID, "agent-noref")
	snaps.snaps[entry.AccountID] = venue.AccountSnapshot{Equity: 9300}
	sink.err = errors.New("ledger down")

	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	final, _ := store.GetEntry(ctx, entry.ID)
	if final.Status != models.EntryStatusFailed {
		t.Fatalf("sink outage must not block the transition, got %s", final.Status)
	}
	if !strings.HasPrefix(final.AttestationRef, "offline:challenge_result:") {
		t.Fatalf("expected offline reference, got %q", final.AttestationRef)
	}
}

func TestTerminalEntriesAreLeftAlone(t *testing.T) {
	engine, challenges, store, snaps, _ := newEngine(t)
	ctx := context.Background()
	c := phase1Challenge(t, challenges)
	entry := enterAgent(t, challenges, c.ID, "agent-done")
	snaps.snaps[entry.AccountID] = venue.AccountSnapshot{Equity: 9300}

	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	first, _ := store.GetEntry(ctx, entry.ID)
	if first.Status != models.EntryStatusFailed {
		t.Fatalf("expected failed, got %s", first.Status)
	}

	snaps.snaps[entry.AccountID] = venue.AccountSnapshot{Equity: 10900}
	if err := engine.Tick(ctx); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	second, _ := store.GetEntry(ctx, entry.ID)
	if second.Status != models.EntryStatusFailed {
		t.Fatalf("terminal status must never change, got %s", second.Status)
	}
}
