package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/storage"
)

func committedRound(date, ticker string) *domain.Round {
	return &domain.Round{
		Date:        date,
		Ticker:      ticker,
		State:       domain.StateCommitted,
		Prediction:  1,
		PCommit:     decimal.RequireFromString("450.25"),
		CommitBarTS: "2024-01-15T15:55:00-05:00",
		Salt:        "00112233445566778899aabbccddeeff",
		Context:     date + "|" + ticker + "|NYSE|close",
		CommitHash:  "deadbeef",
	}
}

func TestRoundStore_InsertAndGet(t *testing.T) {
	store := NewRoundStore()
	ctx := context.Background()

	r := committedRound("2024-01-15", "SPY")
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByIdentity(ctx, domain.RoundIdentity{Date: "2024-01-15", Ticker: "SPY"})
	if err != nil {
		t.Fatalf("GetByIdentity failed: %v", err)
	}
	if got.CommitHash != "deadbeef" {
		t.Errorf("CommitHash mismatch: got %s", got.CommitHash)
	}
	if got.State != domain.StateCommitted {
		t.Errorf("State = %s, want %s", got.State, domain.StateCommitted)
	}
}

func TestRoundStore_DuplicateIdentity(t *testing.T) {
	store := NewRoundStore()
	ctx := context.Background()

	if err := store.Insert(ctx, committedRound("2024-01-15", "SPY")); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	err := store.Insert(ctx, committedRound("2024-01-15", "SPY"))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Same ticker on a different date is a new round.
	if err := store.Insert(ctx, committedRound("2024-01-16", "SPY")); err != nil {
		t.Errorf("Insert for new date failed: %v", err)
	}
}

func TestRoundStore_GetByDateOrdered(t *testing.T) {
	store := NewRoundStore()
	ctx := context.Background()

	for _, ticker := range []string{"SPY", "AAPL", "MSFT"} {
		if err := store.Insert(ctx, committedRound("2024-01-15", ticker)); err != nil {
			t.Fatalf("Insert %s failed: %v", ticker, err)
		}
	}
	if err := store.Insert(ctx, committedRound("2024-01-16", "SPY")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	rounds, err := store.GetByDate(ctx, "2024-01-15")
	if err != nil {
		t.Fatalf("GetByDate failed: %v", err)
	}
	if len(rounds) != 3 {
		t.Fatalf("Expected 3 rounds, got %d", len(rounds))
	}
	want := []string{"AAPL", "MSFT", "SPY"}
	for i, r := range rounds {
		if r.Ticker != want[i] {
			t.Errorf("rounds[%d].Ticker = %s, want %s", i, r.Ticker, want[i])
		}
	}
}

func TestRoundStore_SetRevealed(t *testing.T) {
	store := NewRoundStore()
	ctx := context.Background()

	r := committedRound("2024-01-15", "SPY")
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	r.PReveal = decimal.RequireFromString("451.00")
	r.PrevClose = decimal.RequireFromString("450.00")
	r.Outcome = 1
	r.Symbol = domain.Symbol{1, 1, 1, 75}
	if err := store.SetRevealed(ctx, r); err != nil {
		t.Fatalf("SetRevealed failed: %v", err)
	}

	got, err := store.GetByIdentity(ctx, r.Identity())
	if err != nil {
		t.Fatalf("GetByIdentity failed: %v", err)
	}
	if got.State != domain.StateRevealed {
		t.Errorf("State = %s, want %s", got.State, domain.StateRevealed)
	}
	if got.Symbol.Hex() != "0101014b" {
		t.Errorf("Symbol = %s, want 0101014b", got.Symbol.Hex())
	}

	// Reveal fields are write-once.
	err = store.SetRevealed(ctx, r)
	if !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestRoundStore_SetRejected(t *testing.T) {
	store := NewRoundStore()
	ctx := context.Background()

	r := committedRound("2024-01-15", "SPY")
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.SetRejected(ctx, r.Identity()); err != nil {
		t.Fatalf("SetRejected failed: %v", err)
	}

	got, err := store.GetByIdentity(ctx, r.Identity())
	if err != nil {
		t.Fatalf("GetByIdentity failed: %v", err)
	}
	if got.State != domain.StateRejected {
		t.Errorf("State = %s, want %s", got.State, domain.StateRejected)
	}

	// A revealed round cannot be rejected afterwards.
	other := committedRound("2024-01-15", "AAPL")
	if err := store.Insert(ctx, other); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.SetRevealed(ctx, other); err != nil {
		t.Fatalf("SetRevealed failed: %v", err)
	}
	err = store.SetRejected(ctx, other.Identity())
	if !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestRoundStore_NotFound(t *testing.T) {
	store := NewRoundStore()
	ctx := context.Background()

	_, err := store.GetByIdentity(ctx, domain.RoundIdentity{Date: "2024-01-15", Ticker: "SPY"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.SetRejected(ctx, domain.RoundIdentity{Date: "2024-01-15", Ticker: "SPY"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
