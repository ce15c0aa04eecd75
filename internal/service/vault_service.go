package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"proparena/internal/config"
	"proparena/internal/models"
	"proparena/internal/repository"
	"proparena/internal/venue"
)

var ErrVaultNotActive = errors.New("vault is not active")

// ProfitSplit is the 90/10-style division of a vault's profit.
type ProfitSplit struct {
	TotalProfit    decimal.Decimal `json:"totalProfit"`
	AgentProfit    decimal.Decimal `json:"agentProfit"`
	ProtocolProfit decimal.Decimal `json:"protocolProfit"`
}

type CreateVaultRequest struct {
	Name              string          `json:"name"`
	DelegateAuthority string          `json:"delegateAuthority"`
	TotalDeposits     decimal.Decimal `json:"totalDeposits"`
	ProfitShareBps    int64           `json:"agentProfitShareBps"`
}

// VaultService manages delegated-trading allocations: profit splits, the
// consecutive-profit scale-up rule and freezing.
type VaultService struct {
	Repo   repository.Repository
	Venue  venue.SnapshotSource
	Deleg  venue.Delegator
	Logger *zap.Logger
	Config config.VaultConfig

	locks keyedLocks
}

func (s *VaultService) Create(ctx context.Context, req CreateVaultRequest) (*models.Vault, error) {
	if req.Name == "" || req.DelegateAuthority == "" {
		return nil, errors.New("vault name and delegate authority are required")
	}
	accountID, err := s.Repo.NextAccountID(ctx)
	if err != nil {
		return nil, err
	}
	shareBps := req.ProfitShareBps
	if shareBps == 0 {
		shareBps = s.Config.DefaultProfitShareBps
	}
	now := time.Now().UTC()
	vault := &models.Vault{
		Pubkey:              vaultPubkey(req.Name, accountID),
		Name:                req.Name,
		DelegateAuthority:   req.DelegateAuthority,
		AccountID:           accountID,
		TotalDeposits:       req.TotalDeposits,
		CurrentEquity:       req.TotalDeposits,
		AgentProfitShareBps: shareBps,
		Status:              models.VaultStatusActive,
		CreatedAt:           now,
	}
	if err := s.Repo.InsertVault(ctx, vault); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("vault created",
			zap.String("pubkey", vault.Pubkey),
			zap.String("name", vault.Name),
			zap.Int64("profit_share_bps", shareBps),
		)
	}
	return vault, nil
}

// vaultPubkey derives a stable opaque handle for the vault.
func vaultPubkey(name string, accountID int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("vault:%s:%d", name, accountID)))
	return hex.EncodeToString(sum[:])[:44]
}

func (s *VaultService) Get(ctx context.Context, pubkey string) (*models.Vault, error) {
	return s.Repo.GetVault(ctx, pubkey)
}

func (s *VaultService) List(ctx context.Context) ([]models.Vault, error) {
	return s.Repo.ListVaults(ctx)
}

func (s *VaultService) ListByDelegate(ctx context.Context, delegate string) ([]models.Vault, error) {
	return s.Repo.ListVaultsByDelegate(ctx, delegate)
}

// RefreshEquity pulls the vault's live equity from the venue. Read failures
// keep the last known value.
func (s *VaultService) RefreshEquity(ctx context.Context, pubkey string) (*models.Vault, error) {
	unlock := s.locks.lock(pubkey)
	defer unlock()
	return s.refreshEquityLocked(ctx, pubkey)
}

func (s *VaultService) refreshEquityLocked(ctx context.Context, pubkey string) (*models.Vault, error) {
	vault, err := s.Repo.GetVault(ctx, pubkey)
	if err != nil {
		return nil, err
	}
	if s.Venue == nil {
		return vault, nil
	}
	snap, err := s.Venue.AccountSnapshot(ctx, vault.AccountID)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("vault equity read failed",
				zap.String("pubkey", pubkey), zap.Error(err))
		}
		return vault, nil
	}
	vault.CurrentEquity = decimal.NewFromFloat(snap.Equity)
	if err := s.Repo.SaveVault(ctx, vault); err != nil {
		return nil, err
	}
	return vault, nil
}

// ProfitSplitFor refreshes equity and splits profit over deposits by the
// vault's agent share. Zero or negative profit yields zero splits.
func (s *VaultService) ProfitSplitFor(ctx context.Context, pubkey string) (*ProfitSplit, error) {
	unlock := s.locks.lock(pubkey)
	defer unlock()

	vault, err := s.refreshEquityLocked(ctx, pubkey)
	if err != nil {
		return nil, err
	}
	totalProfit := vault.CurrentEquity.Sub(vault.TotalDeposits)
	if !totalProfit.IsPositive() {
		return &ProfitSplit{TotalProfit: totalProfit, AgentProfit: decimal.Zero, ProtocolProfit: decimal.Zero}, nil
	}
	agentShare := decimal.NewFromInt(vault.AgentProfitShareBps).Div(decimal.NewFromInt(10000))
	agentProfit := totalProfit.Mul(agentShare)
	return &ProfitSplit{
		TotalProfit:    totalProfit,
		AgentProfit:    agentProfit,
		ProtocolProfit: totalProfit.Sub(agentProfit),
	}, nil
}

// CheckScaleUp applies the scale-up rule: enough consecutive profitable
// months at a high enough cumulative profit grows the allocation by the
// configured percentage (rounded). Returns the unchanged allocation and
// false otherwise.
func (s *VaultService) CheckScaleUp(currentAllocation decimal.Decimal, consecutiveProfitableMonths int, consecutiveProfitPercent float64) (decimal.Decimal, bool) {
	if consecutiveProfitableMonths < s.Config.ScaleUpRequiredMonths {
		return currentAllocation, false
	}
	if consecutiveProfitPercent < s.Config.ScaleUpMinProfitPercent {
		return currentAllocation, false
	}
	factor := decimal.NewFromInt(1).
		Add(decimal.NewFromFloat(s.Config.ScaleUpPercent).Div(decimal.NewFromInt(100)))
	return currentAllocation.Mul(factor).Round(0), true
}

// Freeze revokes the vault's delegated trading authority and marks it
// frozen. The row stays readable. Freezing is terminal for trading.
func (s *VaultService) Freeze(ctx context.Context, pubkey string) (*models.Vault, error) {
	unlock := s.locks.lock(pubkey)
	defer unlock()

	vault, err := s.Repo.GetVault(ctx, pubkey)
	if err != nil {
		return nil, err
	}
	if vault.Status != models.VaultStatusActive {
		return nil, ErrVaultNotActive
	}
	if s.Deleg != nil {
		if err := s.Deleg.RevokeDelegation(ctx, vault.AccountID); err != nil {
			return nil, fmt.Errorf("revoke delegation: %w", err)
		}
	}
	vault.Status = models.VaultStatusFrozen
	if err := s.Repo.SaveVault(ctx, vault); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("vault frozen", zap.String("pubkey", pubkey))
	}
	return vault, nil
}

// RefreshAll refreshes equity for every active vault; driven by cron.
func (s *VaultService) RefreshAll(ctx context.Context) error {
	vaults, err := s.Repo.ListVaults(ctx)
	if err != nil {
		return err
	}
	for i := range vaults {
		if vaults[i].Status != models.VaultStatusActive {
			continue
		}
		if _, err := s.RefreshEquity(ctx, vaults[i].Pubkey); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("vault refresh failed",
					zap.String("pubkey", vaults[i].Pubkey), zap.Error(err))
			}
		}
	}
	return nil
}
