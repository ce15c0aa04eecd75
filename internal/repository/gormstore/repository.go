// Package gormstore is the gorm-backed repository implementation, used when
// db.driver selects postgres or sqlite.
package gormstore

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"proparena/internal/models"
	"proparena/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrNotFound
	}
	return err
}

func (s *Store) UpsertChallenge(ctx context.Context, item *models.Challenge) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(item).Error
}

func (s *Store) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	var out models.Challenge
	if err := s.db.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (s *Store) ListChallenges(ctx context.Context) ([]models.Challenge, error) {
	var out []models.Challenge
	err := s.db.WithContext(ctx).
		Order("starting_capital asc, phase asc").
		Find(&out).Error
	return out, err
}

func (s *Store) ListChallengesByStatus(ctx context.Context, status string) ([]models.Challenge, error) {
	var out []models.Challenge
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("starting_capital asc, phase asc").
		Find(&out).Error
	return out, err
}

func (s *Store) FindPhase2Challenge(ctx context.Context, startingCapital float64) (*models.Challenge, error) {
	var out models.Challenge
	err := s.db.WithContext(ctx).
		Where("phase = 2 AND starting_capital = ? AND status = ?", startingCapital, models.ChallengeStatusActive).
		First(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (s *Store) InsertEntry(ctx context.Context, item *models.Entry) error {
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetEntry(ctx context.Context, id string) (*models.Entry, error) {
	var out models.Entry
	if err := s.db.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (s *Store) ListEntriesByChallenge(ctx context.Context, challengeID string) ([]models.Entry, error) {
	var out []models.Entry
	err := s.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

func (s *Store) ListActiveEntriesByChallenge(ctx context.Context, challengeID string) ([]models.Entry, error) {
	var out []models.Entry
	err := s.db.WithContext(ctx).
		Where("challenge_id = ? AND status = ?", challengeID, models.EntryStatusActive).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

func (s *Store) ListEntriesByAgent(ctx context.Context, agentID string) ([]models.Entry, error) {
	var out []models.Entry
	err := s.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

func (s *Store) FindActiveEntry(ctx context.Context, challengeID, agentID string) (*models.Entry, error) {
	var out models.Entry
	err := s.db.WithContext(ctx).
		Where("challenge_id = ? AND agent_id = ? AND status = ?", challengeID, agentID, models.EntryStatusActive).
		Order("created_at asc").
		First(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (s *Store) UpdateEntryMetrics(ctx context.Context, id string, m models.PerformanceMetrics) error {
	// Explicit column map: zero is a legitimate value for every metric, so
	// a struct update (which omits zero fields) would corrupt the record.
	updates := map[string]any{
		"m_current_pnl":            m.CurrentPnl,
		"m_current_pnl_percent":    m.CurrentPnlPercent,
		"m_peak_equity":            m.PeakEquity,
		"m_current_equity":         m.CurrentEquity,
		"m_max_drawdown":           m.MaxDrawdown,
		"m_max_drawdown_percent":   m.MaxDrawdownPercent,
		"m_daily_loss":             m.DailyLoss,
		"m_daily_loss_percent":     m.DailyLossPercent,
		"m_daily_loss_date":        m.DailyLossDate,
		"m_max_daily_loss":         m.MaxDailyLoss,
		"m_max_daily_loss_percent": m.MaxDailyLossPercent,
		"m_sharpe_ratio":           m.SharpeRatio,
		"m_total_trades":           m.TotalTrades,
		"m_win_rate":               m.WinRate,
		"m_pnl_history":            m.PnlHistory,
		"m_trading_days":           m.TradingDays,
	}
	res := s.db.WithContext(ctx).
		Model(&models.Entry{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) SetEntryStatus(ctx context.Context, id, status, attestationRef string) error {
	updates := map[string]any{"status": status}
	if attestationRef != "" {
		updates["attestation_ref"] = attestationRef
	}
	// The active guard makes terminal transitions first-write-wins.
	res := s.db.WithContext(ctx).
		Model(&models.Entry{}).
		Where("id = ? AND status = ?", id, models.EntryStatusActive).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Entry{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return repository.ErrNotFound
		}
		return repository.ErrTerminalStatus
	}
	return nil
}

func (s *Store) InsertFundedAccount(ctx context.Context, item *models.FundedAccount) error {
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetFundedAccount(ctx context.Context, id string) (*models.FundedAccount, error) {
	var out models.FundedAccount
	if err := s.db.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (s *Store) FindFundedAccountByAgent(ctx context.Context, agentID string) (*models.FundedAccount, error) {
	var out models.FundedAccount
	err := s.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("created_at asc").
		First(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (s *Store) ListFundedAccounts(ctx context.Context) ([]models.FundedAccount, error) {
	var out []models.FundedAccount
	err := s.db.WithContext(ctx).Order("applied_at asc").Find(&out).Error
	return out, err
}

func (s *Store) ListFundedAccountsByStatus(ctx context.Context, status string) ([]models.FundedAccount, error) {
	var out []models.FundedAccount
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("applied_at asc").
		Find(&out).Error
	return out, err
}

func (s *Store) SaveFundedAccount(ctx context.Context, item *models.FundedAccount) error {
	res := s.db.WithContext(ctx).
		Model(&models.FundedAccount{}).
		Where("id = ?", item.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(item)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) InsertVault(ctx context.Context, item *models.Vault) error {
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetVault(ctx context.Context, pubkey string) (*models.Vault, error) {
	var out models.Vault
	if err := s.db.WithContext(ctx).First(&out, "pubkey = ?", pubkey).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (s *Store) ListVaults(ctx context.Context) ([]models.Vault, error) {
	var out []models.Vault
	err := s.db.WithContext(ctx).Order("created_at asc").Find(&out).Error
	return out, err
}

func (s *Store) ListVaultsByDelegate(ctx context.Context, delegate string) ([]models.Vault, error) {
	var out []models.Vault
	err := s.db.WithContext(ctx).
		Where("delegate_authority = ?", delegate).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

func (s *Store) SaveVault(ctx context.Context, item *models.Vault) error {
	res := s.db.WithContext(ctx).
		Model(&models.Vault{}).
		Where("pubkey = ?", item.Pubkey).
		Select("*").
		Omit("pubkey", "created_at").
		Updates(item)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) NextAccountID(ctx context.Context) (int64, error) {
	var next int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Counter
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&c, "name = ?", "venue_account").Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c = models.Counter{Name: "venue_account"}
			if err := tx.Create(&c).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		c.Value++
		next = c.Value
		return tx.Save(&c).Error
	})
	return next, err
}
