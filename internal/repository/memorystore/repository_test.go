package memorystore

import (
	"context"
	"errors"
	"testing"
	"time"

	"proparena/internal/models"
	"proparena/internal/repository"
)

func insertActiveEntry(t *testing.T, s *Store, id string) *models.Entry {
	t.Helper()
	now := time.Now().UTC()
	e := &models.Entry{
		ID:          id,
		ChallengeID: "c-1",
		AgentID:     "agent-1",
		Status:      models.EntryStatusActive,
		StartedAt:   now,
		EndsAt:      now.AddDate(0, 0, 30),
		Metrics:     models.NewMetrics(10000, now),
	}
	if err := s.InsertEntry(context.Background(), e); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return e
}

func TestSetEntryStatusGuardsTerminal(t *testing.T) {
	s := New()
	ctx := context.Background()
	insertActiveEntry(t, s, "e-1")

	if err := s.SetEntryStatus(ctx, "missing", models.EntryStatusFailed, ""); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetEntryStatus(ctx, "e-1", models.EntryStatusPassed, "ref-1"); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if err := s.SetEntryStatus(ctx, "e-1", models.EntryStatusFailed, "ref-2"); !errors.Is(err, repository.ErrTerminalStatus) {
		t.Fatalf("expected ErrTerminalStatus, got %v", err)
	}
	e, _ := s.GetEntry(ctx, "e-1")
	if e.Status != models.EntryStatusPassed || e.AttestationRef != "ref-1" {
		t.Fatalf("terminal entry must be unchanged, got %+v", e)
	}
}

func TestGetEntryReturnsIsolatedCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	e := insertActiveEntry(t, s, "e-2")

	m := e.Metrics
	m.PnlHistory = append(m.PnlHistory, 100)
	m.TradingDays = append(m.TradingDays, "2026-01-01")
	if err := s.UpdateEntryMetrics(ctx, "e-2", m); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := s.GetEntry(ctx, "e-2")
	got.Metrics.PnlHistory[0] = -999
	got.Metrics.TradingDays[0] = "mutated"

	again, _ := s.GetEntry(ctx, "e-2")
	if again.Metrics.PnlHistory[0] != 100 || again.Metrics.TradingDays[0] != "2026-01-01" {
		t.Fatalf("store state leaked through a returned copy: %+v", again.Metrics)
	}
}

func TestListEntriesKeepsInsertionOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	insertActiveEntry(t, s, "e-a")
	insertActiveEntry(t, s, "e-b")
	insertActiveEntry(t, s, "e-c")

	entries, err := s.ListEntriesByChallenge(ctx, "c-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 || entries[0].ID != "e-a" || entries[2].ID != "e-c" {
		t.Fatalf("expected insertion order, got %+v", entries)
	}
}

func TestNextAccountIDIsMonotonic(t *testing.T) {
	s := New()
	ctx := context.Background()
	prev := int64(0)
	for i := 0; i < 5; i++ {
		id, err := s.NextAccountID(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if id <= prev {
			t.Fatalf("expected strictly increasing ids, got %d after %d", id, prev)
		}
		prev = id
	}
}

func TestSaveRequiresExistingRow(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.SaveFundedAccount(ctx, &models.FundedAccount{ID: "nope"}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SaveVault(ctx, &models.Vault{Pubkey: "nope"}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
