package repository

import (
	"context"
	"errors"

	"proparena/internal/models"
)

var (
	// ErrNotFound is returned for unknown challenge/entry/account/vault ids.
	ErrNotFound = errors.New("not found")

	// ErrTerminalStatus is returned when a status write targets an entry
	// that already left the active state. Terminal transitions never roll
	// back and never repeat.
	ErrTerminalStatus = errors.New("entry status is terminal")
)

// Repository is the authoritative store behind every engine. The default
// implementation is in-process (memorystore); gormstore substitutes real
// persistence without touching the accumulator or state machine.
type Repository interface {
	// Challenges (immutable after seeding).
	UpsertChallenge(ctx context.Context, item *models.Challenge) error
	GetChallenge(ctx context.Context, id string) (*models.Challenge, error)
	ListChallenges(ctx context.Context) ([]models.Challenge, error)
	ListChallengesByStatus(ctx context.Context, status string) ([]models.Challenge, error)
	// FindPhase2Challenge resolves the active phase-2 track of the same
	// capital tier, for auto-enrollment on a phase-1 pass.
	FindPhase2Challenge(ctx context.Context, startingCapital float64) (*models.Challenge, error)

	// Entries.
	InsertEntry(ctx context.Context, item *models.Entry) error
	GetEntry(ctx context.Context, id string) (*models.Entry, error)
	ListEntriesByChallenge(ctx context.Context, challengeID string) ([]models.Entry, error)
	ListActiveEntriesByChallenge(ctx context.Context, challengeID string) ([]models.Entry, error)
	ListEntriesByAgent(ctx context.Context, agentID string) ([]models.Entry, error)
	// FindActiveEntry backs enrollment idempotency.
	FindActiveEntry(ctx context.Context, challengeID, agentID string) (*models.Entry, error)
	UpdateEntryMetrics(ctx context.Context, id string, m models.PerformanceMetrics) error
	// SetEntryStatus applies a terminal transition; it fails with
	// ErrTerminalStatus when the entry is no longer active.
	SetEntryStatus(ctx context.Context, id, status, attestationRef string) error

	// Funded accounts.
	InsertFundedAccount(ctx context.Context, item *models.FundedAccount) error
	GetFundedAccount(ctx context.Context, id string) (*models.FundedAccount, error)
	FindFundedAccountByAgent(ctx context.Context, agentID string) (*models.FundedAccount, error)
	ListFundedAccounts(ctx context.Context) ([]models.FundedAccount, error)
	ListFundedAccountsByStatus(ctx context.Context, status string) ([]models.FundedAccount, error)
	SaveFundedAccount(ctx context.Context, item *models.FundedAccount) error

	// Vaults.
	InsertVault(ctx context.Context, item *models.Vault) error
	GetVault(ctx context.Context, pubkey string) (*models.Vault, error)
	ListVaults(ctx context.Context) ([]models.Vault, error)
	ListVaultsByDelegate(ctx context.Context, delegate string) ([]models.Vault, error)
	SaveVault(ctx context.Context, item *models.Vault) error

	// NextAccountID allocates a venue sub-account handle.
	NextAccountID(ctx context.Context) (int64, error)
}
