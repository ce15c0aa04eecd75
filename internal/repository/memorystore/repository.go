// Package memorystore is the authoritative in-process store. The service
// runs single-process with no durability across restarts; this store is the
// reference implementation of repository.Repository and doubles as the test
// store.
package memorystore

import (
	"context"
	"sort"
	"sync"

	"proparena/internal/models"
	"proparena/internal/repository"
)

type Store struct {
	mu sync.RWMutex

	challenges map[string]models.Challenge
	entries    map[string]models.Entry
	funded     map[string]models.FundedAccount
	vaults     map[string]models.Vault

	// insertion order, for stable listings and leaderboard tie-breaks
	entryOrder []string

	accountSeq int64
}

func New() *Store {
	return &Store{
		challenges: map[string]models.Challenge{},
		entries:    map[string]models.Entry{},
		funded:     map[string]models.FundedAccount{},
		vaults:     map[string]models.Vault{},
	}
}

func cloneEntry(e models.Entry) models.Entry {
	out := e
	out.Metrics.PnlHistory = append(out.Metrics.PnlHistory[:0:0], e.Metrics.PnlHistory...)
	out.Metrics.TradingDays = append(out.Metrics.TradingDays[:0:0], e.Metrics.TradingDays...)
	return out
}

func (s *Store) UpsertChallenge(ctx context.Context, item *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[item.ID] = *item
	return nil
}

func (s *Store) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.challenges[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (s *Store) ListChallenges(ctx context.Context) ([]models.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Challenge, 0, len(s.challenges))
	for _, c := range s.challenges {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartingCapital != out[j].StartingCapital {
			return out[i].StartingCapital < out[j].StartingCapital
		}
		return out[i].Phase < out[j].Phase
	})
	return out, nil
}

func (s *Store) ListChallengesByStatus(ctx context.Context, status string) ([]models.Challenge, error) {
	all, _ := s.ListChallenges(ctx)
	out := all[:0]
	for _, c := range all {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) FindPhase2Challenge(ctx context.Context, startingCapital float64) (*models.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.challenges {
		if c.Phase == 2 && c.StartingCapital == startingCapital && c.Status == models.ChallengeStatusActive {
			out := c
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) InsertEntry(ctx context.Context, item *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[item.ID] = cloneEntry(*item)
	s.entryOrder = append(s.entryOrder, item.ID)
	return nil
}

func (s *Store) GetEntry(ctx context.Context, id string) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneEntry(e)
	return &out, nil
}

func (s *Store) listEntries(match func(models.Entry) bool) []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Entry
	for _, id := range s.entryOrder {
		e, ok := s.entries[id]
		if !ok || !match(e) {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	return out
}

func (s *Store) ListEntriesByChallenge(ctx context.Context, challengeID string) ([]models.Entry, error) {
	return s.listEntries(func(e models.Entry) bool { return e.ChallengeID == challengeID }), nil
}

func (s *Store) ListActiveEntriesByChallenge(ctx context.Context, challengeID string) ([]models.Entry, error) {
	return s.listEntries(func(e models.Entry) bool {
		return e.ChallengeID == challengeID && e.Status == models.EntryStatusActive
	}), nil
}

func (s *Store) ListEntriesByAgent(ctx context.Context, agentID string) ([]models.Entry, error) {
	return s.listEntries(func(e models.Entry) bool { return e.AgentID == agentID }), nil
}

func (s *Store) FindActiveEntry(ctx context.Context, challengeID, agentID string) (*models.Entry, error) {
	matches := s.listEntries(func(e models.Entry) bool {
		return e.ChallengeID == challengeID && e.AgentID == agentID && e.Status == models.EntryStatusActive
	})
	if len(matches) == 0 {
		return nil, repository.ErrNotFound
	}
	return &matches[0], nil
}

func (s *Store) UpdateEntryMetrics(ctx context.Context, id string, m models.PerformanceMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Metrics = m
	s.entries[id] = cloneEntry(e)
	return nil
}

func (s *Store) SetEntryStatus(ctx context.Context, id, status, attestationRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return repository.ErrNotFound
	}
	if e.Status != models.EntryStatusActive {
		return repository.ErrTerminalStatus
	}
	e.Status = status
	if attestationRef != "" {
		e.AttestationRef = attestationRef
	}
	s.entries[id] = e
	return nil
}

func (s *Store) InsertFundedAccount(ctx context.Context, item *models.FundedAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funded[item.ID] = *item
	return nil
}

func (s *Store) GetFundedAccount(ctx context.Context, id string) (*models.FundedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.funded[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (s *Store) FindFundedAccountByAgent(ctx context.Context, agentID string) (*models.FundedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.funded {
		if a.AgentID == agentID {
			out := a
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) ListFundedAccounts(ctx context.Context) ([]models.FundedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FundedAccount, 0, len(s.funded))
	for _, a := range s.funded {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.Before(out[j].AppliedAt) })
	return out, nil
}

func (s *Store) ListFundedAccountsByStatus(ctx context.Context, status string) ([]models.FundedAccount, error) {
	all, _ := s.ListFundedAccounts(ctx)
	out := all[:0]
	for _, a := range all {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) SaveFundedAccount(ctx context.Context, item *models.FundedAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.funded[item.ID]; !ok {
		return repository.ErrNotFound
	}
	s.funded[item.ID] = *item
	return nil
}

func (s *Store) InsertVault(ctx context.Context, item *models.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vaults[item.Pubkey] = *item
	return nil
}

func (s *Store) GetVault(ctx context.Context, pubkey string) (*models.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vaults[pubkey]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (s *Store) ListVaults(ctx context.Context) ([]models.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Vault, 0, len(s.vaults))
	for _, v := range s.vaults {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListVaultsByDelegate(ctx context.Context, delegate string) ([]models.Vault, error) {
	all, _ := s.ListVaults(ctx)
	out := all[:0]
	for _, v := range all {
		if v.DelegateAuthority == delegate {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) SaveVault(ctx context.Context, item *models.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vaults[item.Pubkey]; !ok {
		return repository.ErrNotFound
	}
	s.vaults[item.Pubkey] = *item
	return nil
}

func (s *Store) NextAccountID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountSeq++
	return s.accountSeq, nil
}
