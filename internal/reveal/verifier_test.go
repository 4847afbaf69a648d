package reveal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"market-entropy-lab/internal/commitment"
	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/storage/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	engine   *commitment.Engine
	verifier *Verifier
	rounds   *memory.RoundStore
	log      *memory.EntropyLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rounds := memory.NewRoundStore()
	log := memory.NewEntropyLog()
	now := func() time.Time { return time.Date(2024, 1, 15, 21, 5, 0, 0, time.UTC) }
	return &fixture{
		engine: commitment.NewEngine(commitment.Config{
			Rounds:          rounds,
			Salts:           commitment.NewHMACSaltDeriver([]byte("test-secret-key")),
			DefaultExchange: "NYSE",
			Now:             now,
		}),
		verifier: NewVerifier(Config{
			Rounds:   rounds,
			Log:      log,
			Provider: "fixture",
			Now:      now,
		}),
		rounds: rounds,
		log:    log,
	}
}

func (f *fixture) commit(t *testing.T, ticker, date string, prediction int, pCommit string) *domain.Round {
	t.Helper()
	r, err := f.engine.Commit(context.Background(), commitment.CommitInput{
		Ticker:      ticker,
		Date:        date,
		Prediction:  prediction,
		PCommit:     d(pCommit),
		CommitBarTS: date + "T15:55:00-05:00",
	})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	return r
}

func TestReveal_EndToEndUpMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.commit(t, "SPY", "2024-01-15", 1, "100.00")

	r, err := f.verifier.Reveal(ctx, domain.RoundIdentity{Date: "2024-01-15", Ticker: "SPY"}, Observation{
		PReveal:   d("101.23"),
		PrevClose: d("99.50"),
	})
	if err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}

	if r.State != domain.StateRevealed {
		t.Errorf("State = %s, want revealed", r.State)
	}
	if r.Outcome != 1 {
		t.Errorf("Outcome = %d, want 1", r.Outcome)
	}
	if !r.Delta.Equal(d("1.23")) {
		t.Errorf("Delta = %s, want 1.23", r.Delta)
	}
	if r.SignBit != 1 || r.MagQ != 123 {
		t.Errorf("SignBit=%d MagQ=%d, want 1/123", r.SignBit, r.MagQ)
	}
	if got := r.Symbol.Hex(); got != "0101017b" {
		t.Errorf("Symbol = %s, want 0101017b", got)
	}

	entries, err := f.log.All(ctx)
	if err != nil {
		t.Fatalf("log.All failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("log has %d entries, want 1", len(entries))
	}
	if entries[0].Symbol != r.Symbol {
		t.Error("logged symbol differs from round symbol")
	}
	if entries[0].SymbolBits != "11" {
		t.Errorf("SymbolBits = %s, want 11", entries[0].SymbolBits)
	}
}

func TestReveal_EndToEndFlat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.commit(t, "SPY", "2024-01-15", 0, "50.00")

	r, err := f.verifier.Reveal(ctx, domain.RoundIdentity{Date: "2024-01-15", Ticker: "SPY"}, Observation{
		PReveal:   d("50.00"),
		PrevClose: d("51.00"),
	})
	if err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}
	if r.Symbol.Hex() != "00000000" {
		t.Errorf("Symbol = %s, want 00000000", r.Symbol.Hex())
	}
	if r.Outcome != 0 || r.SignBit != 0 || r.MagQ != 0 {
		t.Errorf("outcome fields = %d/%d/%d, want all zero", r.Outcome, r.SignBit, r.MagQ)
	}
}

func TestReveal_TiePolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.commit(t, "SPY", "2024-01-15", 1, "100.00")

	r, err := f.verifier.Reveal(ctx, domain.RoundIdentity{Date: "2024-01-15", Ticker: "SPY"}, Observation{
		PReveal:   d("100.50"),
		PrevClose: d("100.50"),
	})
	if err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}
	if r.Outcome != 0 {
		t.Errorf("tie must resolve to outcome 0, got %d", r.Outcome)
	}
	if !r.Tie {
		t.Error("Tie flag not set")
	}
}

func TestReveal_MissingCommit(t *testing.T) {
	f := newFixture(t)

	_, err := f.verifier.Reveal(context.Background(), domain.RoundIdentity{Date: "2024-01-15", Ticker: "SPY"}, Observation{
		PReveal:   d("100"),
		PrevClose: d("99"),
	})
	if !errors.Is(err, ErrMissingCommitRound) {
		t.Errorf("Expected ErrMissingCommitRound, got %v", err)
	}
}

func TestReveal_CommitmentMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.commit(t, "SPY", "2024-01-15", 1, "100.00")

	// A re-observed commit price that disagrees with the snapshot the
	// commitment was built over must fail verification.
	check := d("100.01")
	id := domain.RoundIdentity{Date: "2024-01-15", Ticker: "SPY"}
	_, err := f.verifier.Reveal(ctx, id, Observation{
		PReveal:      d("101.00"),
		PrevClose:    d("99.00"),
		PCommitCheck: &check,
	})
	if !errors.Is(err, ErrCommitmentMismatch) {
		t.Fatalf("Expected ErrCommitmentMismatch, got %v", err)
	}

	stored, err := f.rounds.GetByIdentity(ctx, id)
	if err != nil {
		t.Fatalf("GetByIdentity failed: %v", err)
	}
	if stored.State != domain.StateRejected {
		t.Errorf("State = %s, want rejected", stored.State)
	}

	n, err := f.log.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("rejected round must not reach the entropy log, got %d entries", n)
	}
}

func TestReveal_TamperedArchiveDetected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Archive a round whose stored hash does not bind its fields.
	r := &domain.Round{
		Date:        "2024-01-15",
		Ticker:      "SPY",
		State:       domain.StateCommitted,
		Prediction:  1,
		PCommit:     d("100.00"),
		CommitBarTS: "2024-01-15T15:55:00-05:00",
		CommittedAt: time.Date(2024, 1, 15, 20, 55, 0, 0, time.UTC),
		Salt:        "00112233445566778899aabbccddeeff",
		Context:     "2024-01-15|SPY|NYSE|close",
		CommitHash:  "not-the-original-commit",
	}
	if err := f.rounds.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	_, err := f.verifier.Reveal(ctx, r.Identity(), Observation{
		PReveal:   d("101.00"),
		PrevClose: d("99.00"),
	})
	if !errors.Is(err, ErrCommitmentMismatch) {
		t.Errorf("Expected ErrCommitmentMismatch, got %v", err)
	}
}

func TestReveal_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.commit(t, "SPY", "2024-01-15", 1, "100.00")

	id := domain.RoundIdentity{Date: "2024-01-15", Ticker: "SPY"}
	obs := Observation{PReveal: d("101.23"), PrevClose: d("99.50")}

	first, err := f.verifier.Reveal(ctx, id, obs)
	if err != nil {
		t.Fatalf("first Reveal failed: %v", err)
	}
	second, err := f.verifier.Reveal(ctx, id, obs)
	if err != nil {
		t.Fatalf("second Reveal failed: %v", err)
	}
	if first.Symbol != second.Symbol || !first.Delta.Equal(second.Delta) {
		t.Error("re-reveal returned a different round")
	}

	n, err := f.log.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("log has %d entries after re-reveal, want 1", n)
	}
}

func TestReveal_AlreadyRevealedDifferentInputs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.commit(t, "SPY", "2024-01-15", 1, "100.00")

	id := domain.RoundIdentity{Date: "2024-01-15", Ticker: "SPY"}
	if _, err := f.verifier.Reveal(ctx, id, Observation{PReveal: d("101.23"), PrevClose: d("99.50")}); err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}

	_, err := f.verifier.Reveal(ctx, id, Observation{PReveal: d("102.00"), PrevClose: d("99.50")})
	if !errors.Is(err, ErrAlreadyRevealed) {
		t.Errorf("Expected ErrAlreadyRevealed, got %v", err)
	}
}

func TestReveal_CorrectedInputsAfterRejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.commit(t, "SPY", "2024-01-15", 1, "100.00")

	id := domain.RoundIdentity{Date: "2024-01-15", Ticker: "SPY"}

	// First attempt against a bad re-observed commit price: rejected.
	bad := d("100.50")
	_, err := f.verifier.Reveal(ctx, id, Observation{
		PReveal: d("101.00"), PrevClose: d("99.00"), PCommitCheck: &bad,
	})
	if !errors.Is(err, ErrCommitmentMismatch) {
		t.Fatalf("Expected ErrCommitmentMismatch, got %v", err)
	}

	// New attempt with the corrected observation verifies.
	good := d("100.00")
	r, err := f.verifier.Reveal(ctx, id, Observation{
		PReveal: d("101.00"), PrevClose: d("99.00"), PCommitCheck: &good,
	})
	if err != nil {
		t.Fatalf("corrected Reveal failed: %v", err)
	}
	if r.State != domain.StateRevealed {
		t.Errorf("State = %s, want revealed", r.State)
	}

	n, _ := f.log.Count(ctx)
	if n != 1 {
		t.Errorf("log has %d entries, want 1", n)
	}
}

// flakyLog fails a fixed number of appends before behaving normally.
type flakyLog struct {
	*memory.EntropyLog
	failures int
}

func (l *flakyLog) Append(ctx context.Context, e *domain.EntropyEntry) error {
	if l.failures > 0 {
		l.failures--
		return errors.New("append: disk full")
	}
	return l.EntropyLog.Append(ctx, e)
}

func TestReveal_FailedLogAppendKeepsRoundCommitted(t *testing.T) {
	rounds := memory.NewRoundStore()
	log := &flakyLog{EntropyLog: memory.NewEntropyLog(), failures: 1}
	now := func() time.Time { return time.Date(2024, 1, 15, 21, 5, 0, 0, time.UTC) }
	engine := commitment.NewEngine(commitment.Config{
		Rounds:          rounds,
		Salts:           commitment.NewHMACSaltDeriver([]byte("test-secret-key")),
		DefaultExchange: "NYSE",
		Now:             now,
	})
	verifier := NewVerifier(Config{Rounds: rounds, Log: log, Provider: "fixture", Now: now})
	ctx := context.Background()

	if _, err := engine.Commit(ctx, commitment.CommitInput{
		Ticker: "SPY", Date: "2024-01-15", Prediction: 1,
		PCommit: d("100.00"), CommitBarTS: "2024-01-15T15:55:00-05:00",
	}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	id := domain.RoundIdentity{Date: "2024-01-15", Ticker: "SPY"}
	obs := Observation{PReveal: d("101.23"), PrevClose: d("99.50")}

	// The failed append must leave the round un-revealed: a revealed
	// round without its symbol in the log is unrecoverable.
	if _, err := verifier.Reveal(ctx, id, obs); err == nil {
		t.Fatal("Reveal succeeded despite failed log append")
	}
	stored, err := rounds.GetByIdentity(ctx, id)
	if err != nil {
		t.Fatalf("GetByIdentity failed: %v", err)
	}
	if stored.State != domain.StateCommitted {
		t.Fatalf("State after failed append = %s, want committed", stored.State)
	}
	if n, _ := log.Count(ctx); n != 0 {
		t.Fatalf("log has %d entries after failed append, want 0", n)
	}

	// The retry with identical inputs completes both writes.
	r, err := verifier.Reveal(ctx, id, obs)
	if err != nil {
		t.Fatalf("retry Reveal failed: %v", err)
	}
	if r.State != domain.StateRevealed {
		t.Errorf("State = %s, want revealed", r.State)
	}
	n, err := log.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("log has %d entries after retry, want 1", n)
	}
}

func TestReveal_RevealedRoundHealsMissingLogEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A revealed round whose symbol never reached the log, as a crashed
	// earlier run could leave behind.
	sym := domain.Symbol{1, 1, 1, 123}
	r := &domain.Round{
		Date:        "2024-01-15",
		Ticker:      "SPY",
		State:       domain.StateRevealed,
		Prediction:  1,
		PCommit:     d("100.00"),
		PReveal:     d("101.23"),
		PrevClose:   d("99.50"),
		Outcome:     1,
		Delta:       d("1.23"),
		SignBit:     1,
		MagQ:        123,
		Symbol:      sym,
		Provider:    "fixture",
		CommitBarTS: "2024-01-15T15:55:00-05:00",
		CommittedAt: time.Date(2024, 1, 15, 20, 55, 0, 0, time.UTC),
		RevealedAt:  time.Date(2024, 1, 15, 21, 5, 0, 0, time.UTC),
		Salt:        "00112233445566778899aabbccddeeff",
		Context:     "2024-01-15|SPY|NYSE|close",
		CommitHash:  "aa",
	}
	if err := f.rounds.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := f.verifier.Reveal(ctx, r.Identity(), Observation{
		PReveal: d("101.23"), PrevClose: d("99.50"),
	})
	if err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}
	if got.Symbol != sym {
		t.Errorf("Symbol = %v, want %v", got.Symbol, sym)
	}

	entries, err := f.log.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("log has %d entries, want 1", len(entries))
	}
	if entries[0].Symbol != sym {
		t.Error("healed log entry carries the wrong symbol")
	}
}

func TestReveal_RejectionLeavesPriorStateIntact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// One good revealed round first.
	f.commit(t, "AAPL", "2024-01-15", 0, "190.00")
	if _, err := f.verifier.Reveal(ctx, domain.RoundIdentity{Date: "2024-01-15", Ticker: "AAPL"}, Observation{
		PReveal: d("189.00"), PrevClose: d("190.50"),
	}); err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}

	// A later rejected round must not disturb it.
	f.commit(t, "SPY", "2024-01-15", 1, "100.00")
	bad := d("107.00")
	if _, err := f.verifier.Reveal(ctx, domain.RoundIdentity{Date: "2024-01-15", Ticker: "SPY"}, Observation{
		PReveal: d("101.00"), PrevClose: d("99.00"), PCommitCheck: &bad,
	}); !errors.Is(err, ErrCommitmentMismatch) {
		t.Fatalf("Expected ErrCommitmentMismatch, got %v", err)
	}

	entries, err := f.log.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Ticker != "AAPL" {
		t.Errorf("prior log state disturbed: %+v", entries)
	}
	prior, err := f.rounds.GetByIdentity(ctx, domain.RoundIdentity{Date: "2024-01-15", Ticker: "AAPL"})
	if err != nil || prior.State != domain.StateRevealed {
		t.Errorf("prior revealed round disturbed: %v %v", prior, err)
	}
}
