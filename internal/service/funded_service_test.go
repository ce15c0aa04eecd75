package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"proparena/internal/config"
	"proparena/internal/models"
	"proparena/internal/repository/memorystore"
	"proparena/internal/venue"
)

type fakeSnapshots struct {
	equity map[int64]float64
	err    error
}

func (f *fakeSnapshots) AccountSnapshot(ctx context.Context, accountID int64) (venue.AccountSnapshot, error) {
	if f.err != nil {
		return venue.AccountSnapshot{}, f.err
	}
	return venue.AccountSnapshot{Equity: f.equity[accountID]}, nil
}

// qualifyAgent walks an agent through both phases and returns the phase-2 entry.
func qualifyAgent(t *testing.T, svc *ChallengeService, store *memorystore.Store, agentID string) *models.Entry {
	t.Helper()
	ctx := context.Background()
	c1 := challengeByTierPhase(t, svc, 10000, 1)
	p1, err := svc.Enter(ctx, c1.ID, agentID, agentID, "")
	if err != nil {
		t.Fatalf("enter phase 1: %v", err)
	}
	if err := store.SetEntryStatus(ctx, p1.ID, models.EntryStatusPassed, ""); err != nil {
		t.Fatalf("pass phase 1: %v", err)
	}
	p1.Status = models.EntryStatusPassed
	p2, err := svc.EnterPhase2(ctx, p1, c1)
	if err != nil {
		t.Fatalf("enter phase 2: %v", err)
	}
	if err := store.SetEntryStatus(ctx, p2.ID, models.EntryStatusPassed, ""); err != nil {
		t.Fatalf("pass phase 2: %v", err)
	}
	p2.Status = models.EntryStatusPassed
	return p2
}

func newFundedService(t *testing.T) (*FundedService, *ChallengeService, *memorystore.Store, *fakeSnapshots) {
	t.Helper()
	challenges, store := newChallengeService(t)
	snaps := &fakeSnapshots{equity: map[int64]float64{}}
	funded := &FundedService{
		Repo:       store,
		Challenges: challenges,
		Venue:      snaps,
		Config: config.FundingConfig{
			Multiplier:     5,
			ProtocolFeeBps: 1000,
			MaxDailyLoss:   5,
			MaxTotalLoss:   10,
		},
	}
	return funded, challenges, store, snaps
}

func activateFunded(t *testing.T, funded *FundedService, challenges *ChallengeService, store *memorystore.Store, agentID string) *models.FundedAccount {
	t.Helper()
	ctx := context.Background()
	qualifyAgent(t, challenges, store, agentID)
	account, err := funded.Apply(ctx, agentID, agentID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	account, err = funded.Activate(ctx, account.ID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	return account
}

func TestApplyRequiresBothPhases(t *testing.T) {
	funded, challenges, store, _ := newFundedService(t)
	ctx := context.Background()

	if _, err := funded.Apply(ctx, "agent-x", ""); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}

	p2 := qualifyAgent(t, challenges, store, "agent-x")
	account, err := funded.Apply(ctx, "agent-x", "Agent X")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if account.Status != models.FundedStatusPending {
		t.Fatalf("expected pending, got %s", account.Status)
	}
	// 10k tier at 5x.
	if !account.Allocation.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("expected allocation 50000, got %s", account.Allocation)
	}
	if !account.CurrentEquity.Equal(account.Allocation) {
		t.Fatalf("expected equity to start at allocation, got %s", account.CurrentEquity)
	}
	if account.AccountID != p2.AccountID {
		t.Fatalf("expected funded account bound to phase-2 sub-account %d, got %d", p2.AccountID, account.AccountID)
	}

	again, err := funded.Apply(ctx, "agent-x", "Agent X")
	if err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if again.ID != account.ID {
		t.Fatalf("expected idempotent apply, got %s and %s", account.ID, again.ID)
	}
}

func TestActivateRequiresPending(t *testing.T) {
	funded, challenges, store, _ := newFundedService(t)
	account := activateFunded(t, funded, challenges, store, "agent-a")
	if account.Status != models.FundedStatusActive {
		t.Fatalf("expected active, got %s", account.Status)
	}
	if account.ActivatedAt == nil {
		t.Fatalf("expected activatedAt to be set")
	}
	if _, err := funded.Activate(context.Background(), account.ID); !errors.Is(err, ErrAccountNotPending) {
		t.Fatalf("expected ErrAccountNotPending, got %v", err)
	}
}

func TestWithdrawProfits(t *testing.T) {
	funded, challenges, store, snaps := newFundedService(t)
	ctx := context.Background()
	account := activateFunded(t, funded, challenges, store, "agent-w")
	snaps.equity[account.AccountID] = 55000

	w, err := funded.WithdrawProfits(ctx, account.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !w.Profit.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("expected profit 5000, got %s", w.Profit)
	}
	if !w.Fee.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected fee 500, got %s", w.Fee)
	}
	if !w.Payout.Equal(decimal.NewFromInt(4500)) {
		t.Fatalf("expected payout 4500, got %s", w.Payout)
	}
	if w.Reference == "" {
		t.Fatalf("expected a withdrawal reference")
	}

	saved, err := funded.Get(ctx, account.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !saved.CurrentEquity.Equal(saved.Allocation) {
		t.Fatalf("expected equity reset to allocation, got %s", saved.CurrentEquity)
	}
	if !saved.TotalWithdrawn.Equal(decimal.NewFromInt(4500)) {
		t.Fatalf("expected totalWithdrawn 4500, got %s", saved.TotalWithdrawn)
	}

	// Flat equity leaves nothing to withdraw.
	snaps.equity[account.AccountID] = 50000
	if _, err := funded.WithdrawProfits(ctx, account.ID); !errors.Is(err, ErrNoProfit) {
		t.Fatalf("expected ErrNoProfit, got %v", err)
	}
	saved, _ = funded.Get(ctx, account.ID)
	if !saved.TotalWithdrawn.Equal(decimal.NewFromInt(4500)) {
		t.Fatalf("failed withdrawal must not mutate, got %s", saved.TotalWithdrawn)
	}
}

func TestWithdrawRequiresActiveAccount(t *testing.T) {
	funded, challenges, store, _ := newFundedService(t)
	ctx := context.Background()
	qualifyAgent(t, challenges, store, "agent-p")
	account, err := funded.Apply(ctx, "agent-p", "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := funded.WithdrawProfits(ctx, account.ID); !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected ErrAccountNotActive, got %v", err)
	}
}

func TestLossLimitRevokesAccount(t *testing.T) {
	funded, challenges, store, snaps := newFundedService(t)
	ctx := context.Background()
	account := activateFunded(t, funded, challenges, store, "agent-l")
	snaps.equity[account.AccountID] = 40000 // 20% down on 50000

	check, err := funded.CheckLossLimits(ctx, account.ID)
	if err != nil {
		t.Fatalf("loss check: %v", err)
	}
	if !check.Breached {
		t.Fatalf("expected breach at 20%% loss")
	}
	saved, _ := funded.Get(ctx, account.ID)
	if saved.Status != models.FundedStatusRevoked {
		t.Fatalf("expected revoked, got %s", saved.Status)
	}
	// Revocation is terminal.
	if _, err := funded.WithdrawProfits(ctx, account.ID); !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected ErrAccountNotActive after revocation, got %v", err)
	}
}

func TestWithdrawBlockedOnBreach(t *testing.T) {
	funded, challenges, store, snaps := newFundedService(t)
	ctx := context.Background()
	account := activateFunded(t, funded, challenges, store, "agent-b")
	snaps.equity[account.AccountID] = 44000 // 12% down

	if _, err := funded.WithdrawProfits(ctx, account.ID); !errors.Is(err, ErrLossLimitBreached) {
		t.Fatalf("expected ErrLossLimitBreached, got %v", err)
	}
}

func TestLossCheckToleratesVenueOutage(t *testing.T) {
	funded, challenges, store, snaps := newFundedService(t)
	ctx := context.Background()
	account := activateFunded(t, funded, challenges, store, "agent-o")
	snaps.err = errors.New("venue down")

	check, err := funded.CheckLossLimits(ctx, account.ID)
	if err != nil {
		t.Fatalf("loss check: %v", err)
	}
	if check.Breached {
		t.Fatalf("stale equity at allocation must not breach")
	}
	saved, _ := funded.Get(ctx, account.ID)
	if saved.Status != models.FundedStatusActive {
		t.Fatalf("expected account to stay active, got %s", saved.Status)
	}
}

func TestSweepLossLimits(t *testing.T) {
	funded, challenges, store, snaps := newFundedService(t)
	ctx := context.Background()
	healthy := activateFunded(t, funded, challenges, store, "agent-h")
	broke := activateFunded(t, funded, challenges, store, "agent-k")
	snaps.equity[healthy.AccountID] = 51000
	snaps.equity[broke.AccountID] = 30000

	if err := funded.SweepLossLimits(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	h, _ := funded.Get(ctx, healthy.ID)
	if h.Status != models.FundedStatusActive {
		t.Fatalf("expected healthy account active, got %s", h.Status)
	}
	b, _ := funded.Get(ctx, broke.ID)
	if b.Status != models.FundedStatusRevoked {
		t.Fatalf("expected breached account revoked, got %s", b.Status)
	}
}

func TestPerformanceProjection(t *testing.T) {
	funded, challenges, store, snaps := newFundedService(t)
	ctx := context.Background()
	account := activateFunded(t, funded, challenges, store, "agent-s")
	snaps.equity[account.AccountID] = 52000
	if _, err := funded.CheckLossLimits(ctx, account.ID); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	summary, err := funded.Performance(ctx, account.ID)
	if err != nil {
		t.Fatalf("performance: %v", err)
	}
	if !summary.Profit.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("expected profit 2000, got %s", summary.Profit)
	}
	if !summary.AvailableToWithdraw.Equal(decimal.NewFromInt(1800)) {
		t.Fatalf("expected 1800 available after 10%% fee, got %s", summary.AvailableToWithdraw)
	}
	saved, _ := funded.Get(ctx, account.ID)
	if !saved.TotalWithdrawn.IsZero() {
		t.Fatalf("performance must not mutate state")
	}
}
