package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"proparena/internal/attest"
	"proparena/internal/config"
	"proparena/internal/models"
	"proparena/internal/repository"
	"proparena/internal/venue"
)

var (
	// ErrNotEligible: funding requires a linked passed phase-1/phase-2 pair.
	ErrNotEligible = errors.New("agent has not passed both qualification phases")

	ErrAccountNotActive  = errors.New("funded account is not active")
	ErrAccountNotPending = errors.New("funded account is not pending")
	ErrNoProfit          = errors.New("no profit to withdraw")
	ErrLossLimitBreached = errors.New("loss limit breached; account revoked")
)

// LossCheck is the outcome of a loss-limit evaluation.
type LossCheck struct {
	Breached bool   `json:"breached"`
	Reason   string `json:"reason,omitempty"`
}

// Withdrawal is the result of one profit withdrawal booking.
type Withdrawal struct {
	Reference     string          `json:"reference"`
	Allocation    decimal.Decimal `json:"initialAllocation"`
	CurrentEquity decimal.Decimal `json:"currentEquity"`
	Profit        decimal.Decimal `json:"totalProfit"`
	Fee           decimal.Decimal `json:"protocolFee"`
	Payout        decimal.Decimal `json:"agentPayout"`
	FeeBps        int64           `json:"feeRateBps"`
}

// PerformanceSummary is the read-only projection of the withdrawal math.
type PerformanceSummary struct {
	Allocation          decimal.Decimal `json:"initialAllocation"`
	CurrentEquity       decimal.Decimal `json:"currentEquity"`
	Profit              decimal.Decimal `json:"totalProfit"`
	AvailableToWithdraw decimal.Decimal `json:"availableToWithdraw"`
	ProtocolFeeRate     decimal.Decimal `json:"protocolFeeRate"`
	AgentShareRate      decimal.Decimal `json:"agentShareRate"`
	TotalWithdrawn      decimal.Decimal `json:"totalWithdrawn"`
}

// FundedService converts dual-phase passes into capital allocations and
// enforces loss limits and profit-split bookkeeping on them.
type FundedService struct {
	Repo       repository.Repository
	Challenges *ChallengeService
	Venue      venue.SnapshotSource
	Attest     attest.Sink
	Logger     *zap.Logger
	Config     config.FundingConfig

	locks keyedLocks
}

// Apply creates the funded account for a qualified agent. Idempotent: an
// existing pending or active account for the agent is returned as-is.
func (s *FundedService) Apply(ctx context.Context, agentID, agentName string) (*models.FundedAccount, error) {
	phase1, phase2, err := s.Challenges.QualifiedEntries(ctx, agentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotEligible
	}
	if err != nil {
		return nil, err
	}

	if existing, err := s.Repo.FindFundedAccountByAgent(ctx, agentID); err == nil {
		if existing.Status == models.FundedStatusPending || existing.Status == models.FundedStatusActive {
			return existing, nil
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	// Sized from the tier the agent actually qualified through.
	challenge, err := s.Repo.GetChallenge(ctx, phase1.ChallengeID)
	if err != nil {
		return nil, err
	}
	allocation := decimal.NewFromFloat(challenge.StartingCapital).
		Mul(decimal.NewFromFloat(s.Config.Multiplier))

	account := &models.FundedAccount{
		ID:                  uuid.NewString(),
		AgentID:             agentID,
		AgentName:           agentName,
		ChallengeEntryID:    phase1.ID,
		VerificationEntryID: phase2.ID,
		AccountID:           phase2.AccountID,
		Allocation:          allocation,
		CurrentEquity:       allocation,
		TotalWithdrawn:      decimal.Zero,
		Status:              models.FundedStatusPending,
		ProtocolFeeBps:      s.Config.ProtocolFeeBps,
		MaxDailyLoss:        s.Config.MaxDailyLoss,
		MaxTotalLoss:        s.Config.MaxTotalLoss,
		AppliedAt:           time.Now().UTC(),
	}
	if err := s.Repo.InsertFundedAccount(ctx, account); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("funded account application",
			zap.String("agent_id", agentID),
			zap.String("account_id", account.ID),
			zap.String("allocation", allocation.StringFixed(2)),
		)
	}
	return account, nil
}

// Activate moves a pending account to active and attests the activation.
// Attestation failures are swallowed.
func (s *FundedService) Activate(ctx context.Context, accountID string) (*models.FundedAccount, error) {
	unlock := s.locks.lock(accountID)
	defer unlock()

	account, err := s.Repo.GetFundedAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Status != models.FundedStatusPending {
		return nil, ErrAccountNotPending
	}
	now := time.Now().UTC()
	account.Status = models.FundedStatusActive
	account.ActivatedAt = &now

	if s.Attest != nil {
		ref, err := s.Attest.Store(ctx, attest.Payload{
			Kind:      attest.KindFundedStatus,
			AgentID:   account.AgentID,
			Passed:    true,
			Timestamp: now.Unix(),
		})
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("funded activation attestation failed", zap.Error(err))
			}
		} else {
			account.AttestationRef = ref
		}
	}

	if err := s.Repo.SaveFundedAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *FundedService) Get(ctx context.Context, accountID string) (*models.FundedAccount, error) {
	return s.Repo.GetFundedAccount(ctx, accountID)
}

func (s *FundedService) ByAgent(ctx context.Context, agentID string) (*models.FundedAccount, error) {
	return s.Repo.FindFundedAccountByAgent(ctx, agentID)
}

func (s *FundedService) List(ctx context.Context) ([]models.FundedAccount, error) {
	return s.Repo.ListFundedAccounts(ctx)
}

// refreshEquity updates CurrentEquity from the venue when the account is
// linked to a live sub-account; read failures keep the last booked value.
func (s *FundedService) refreshEquity(ctx context.Context, account *models.FundedAccount) {
	if s.Venue == nil || account.AccountID == 0 {
		return
	}
	snap, err := s.Venue.AccountSnapshot(ctx, account.AccountID)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("funded equity read failed",
				zap.String("account_id", account.ID), zap.Error(err))
		}
		return
	}
	if snap.Equity > 0 {
		account.CurrentEquity = decimal.NewFromFloat(snap.Equity)
	}
}

// CheckLossLimits evaluates the total-loss limit and revokes the account on
// breach. Revocation is terminal. Must be called before any withdrawal.
func (s *FundedService) CheckLossLimits(ctx context.Context, accountID string) (LossCheck, error) {
	unlock := s.locks.lock(accountID)
	defer unlock()
	return s.checkLossLimitsLocked(ctx, accountID)
}

func (s *FundedService) checkLossLimitsLocked(ctx context.Context, accountID string) (LossCheck, error) {
	account, err := s.Repo.GetFundedAccount(ctx, accountID)
	if err != nil {
		return LossCheck{}, err
	}
	if account.Status != models.FundedStatusActive {
		return LossCheck{}, nil
	}
	s.refreshEquity(ctx, account)

	if account.Allocation.IsZero() {
		return LossCheck{}, nil
	}
	lossPct := account.Allocation.Sub(account.CurrentEquity).
		Div(account.Allocation).
		Mul(decimal.NewFromInt(100))
	if lossPct.GreaterThan(decimal.NewFromFloat(account.MaxTotalLoss)) {
		account.Status = models.FundedStatusRevoked
		if err := s.Repo.SaveFundedAccount(ctx, account); err != nil {
			return LossCheck{}, err
		}
		reason := fmt.Sprintf("total loss %s%% exceeded %g%% limit",
			lossPct.StringFixed(2), account.MaxTotalLoss)
		if s.Logger != nil {
			s.Logger.Warn("funded account revoked",
				zap.String("account_id", account.ID),
				zap.String("reason", reason),
			)
		}
		return LossCheck{Breached: true, Reason: reason}, nil
	}
	if err := s.Repo.SaveFundedAccount(ctx, account); err != nil {
		return LossCheck{}, err
	}
	return LossCheck{}, nil
}

// WithdrawProfits books a profit withdrawal: profit above the allocation is
// split by the protocol fee, equity resets to the allocation, and the payout
// accrues to TotalWithdrawn. Profit is withdrawn, not compounded.
func (s *FundedService) WithdrawProfits(ctx context.Context, accountID string) (*Withdrawal, error) {
	unlock := s.locks.lock(accountID)
	defer unlock()

	account, err := s.Repo.GetFundedAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Status != models.FundedStatusActive {
		return nil, ErrAccountNotActive
	}
	check, err := s.checkLossLimitsLocked(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if check.Breached {
		return nil, fmt.Errorf("%w: %s", ErrLossLimitBreached, check.Reason)
	}

	account, err = s.Repo.GetFundedAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	equity := account.CurrentEquity
	profit := equity.Sub(account.Allocation)
	if !profit.IsPositive() {
		return nil, ErrNoProfit
	}

	feeBps := decimal.NewFromInt(account.ProtocolFeeBps)
	fee := profit.Mul(feeBps).Div(decimal.NewFromInt(10000))
	payout := profit.Sub(fee)

	account.CurrentEquity = account.Allocation
	account.TotalWithdrawn = account.TotalWithdrawn.Add(payout)
	if err := s.Repo.SaveFundedAccount(ctx, account); err != nil {
		return nil, err
	}

	ref := fmt.Sprintf("withdraw_%s_%d", accountID[:8], time.Now().Unix())
	if s.Logger != nil {
		s.Logger.Info("profit withdrawal booked",
			zap.String("account_id", account.ID),
			zap.String("payout", payout.StringFixed(2)),
			zap.String("fee", fee.StringFixed(2)),
		)
	}
	return &Withdrawal{
		Reference:     ref,
		Allocation:    account.Allocation,
		CurrentEquity: equity,
		Profit:        profit,
		Fee:           fee,
		Payout:        payout,
		FeeBps:        account.ProtocolFeeBps,
	}, nil
}

// Performance projects the withdrawal math without mutating state.
func (s *FundedService) Performance(ctx context.Context, accountID string) (*PerformanceSummary, error) {
	account, err := s.Repo.GetFundedAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	feeRate := decimal.NewFromInt(account.ProtocolFeeBps).Div(decimal.NewFromInt(10000))
	profit := account.CurrentEquity.Sub(account.Allocation)
	available := decimal.Zero
	if profit.IsPositive() {
		available = profit.Mul(decimal.NewFromInt(1).Sub(feeRate))
	}
	return &PerformanceSummary{
		Allocation:          account.Allocation,
		CurrentEquity:       account.CurrentEquity,
		Profit:              profit,
		AvailableToWithdraw: available,
		ProtocolFeeRate:     feeRate,
		AgentShareRate:      decimal.NewFromInt(1).Sub(feeRate),
		TotalWithdrawn:      account.TotalWithdrawn,
	}, nil
}

// SweepLossLimits runs the loss check over every active account; one
// account's failure does not stop the sweep. Driven by cron.
func (s *FundedService) SweepLossLimits(ctx context.Context) error {
	accounts, err := s.Repo.ListFundedAccountsByStatus(ctx, models.FundedStatusActive)
	if err != nil {
		return err
	}
	for i := range accounts {
		if _, err := s.CheckLossLimits(ctx, accounts[i].ID); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("loss-limit sweep failed for account",
					zap.String("account_id", accounts[i].ID), zap.Error(err))
			}
		}
	}
	return nil
}
