// Package verification implements independent replay of archived rounds.
// It re-derives every commitment hash, symbol, and extraction digest from
// archived inputs alone and reports any divergence from the stored record.
package verification

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"market-entropy-lab/internal/commitment"
	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/extract"
	"market-entropy-lab/internal/storage"
	"market-entropy-lab/internal/symbol"
)

var (
	// ErrRoundNotFound is returned when the identity doesn't exist.
	ErrRoundNotFound = errors.New("round not found")

	// ErrRoundNotRevealed is returned when the round has no reveal fields
	// to replay against.
	ErrRoundNotRevealed = errors.New("round not revealed")
)

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// RoundResult contains the result of replaying a single round.
type RoundResult struct {
	Identity    domain.RoundIdentity
	Match       bool
	Divergences []FieldDivergence
}

// Report contains results for a full-archive replay.
type Report struct {
	TotalRounds     int
	MatchedRounds   int
	DivergentRounds int
	LogEntries      int
	Results         []RoundResult
}

// ReplayVerifier re-derives archived artifacts from their inputs.
type ReplayVerifier struct {
	rounds     storage.RoundStore
	entropyLog storage.EntropyLog
}

// Options contains configuration for creating a ReplayVerifier.
type Options struct {
	Rounds storage.RoundStore
	Log    storage.EntropyLog
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts Options) *ReplayVerifier {
	return &ReplayVerifier{
		rounds:     opts.Rounds,
		entropyLog: opts.Log,
	}
}

// VerifyRound replays one revealed round from its archived inputs.
// It recomputes the commitment hash from the archived payload fields, and
// the outcome, delta quantization, and symbol from the archived prices.
func (v *ReplayVerifier) VerifyRound(ctx context.Context, id domain.RoundIdentity) (*RoundResult, error) {
	r, err := v.rounds.GetByIdentity(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}
	if r.State != domain.StateRevealed {
		return nil, fmt.Errorf("%w: %s is %s", ErrRoundNotRevealed, id, r.State)
	}

	result := &RoundResult{Identity: id}
	result.Divergences = v.replayRound(r)
	result.Match = len(result.Divergences) == 0
	return result, nil
}

// replayRound recomputes every derived field of a revealed round.
func (v *ReplayVerifier) replayRound(r *domain.Round) []FieldDivergence {
	var divs []FieldDivergence

	hash, err := commitment.HashRound(r, r.PCommit)
	if err != nil {
		divs = append(divs, FieldDivergence{Field: "CommitHash", Expected: r.CommitHash, Actual: err.Error()})
	} else if hash != r.CommitHash {
		divs = append(divs, FieldDivergence{Field: "CommitHash", Expected: r.CommitHash, Actual: hash})
	}

	outcome := 0
	if r.PReveal.GreaterThan(r.PrevClose) {
		outcome = 1
	}
	if outcome != r.Outcome {
		divs = append(divs, FieldDivergence{Field: "Outcome", Expected: r.Outcome, Actual: outcome})
	}

	tie := r.PReveal.Equal(r.PrevClose)
	if tie != r.Tie {
		divs = append(divs, FieldDivergence{Field: "Tie", Expected: r.Tie, Actual: tie})
	}

	delta := r.PReveal.Sub(r.PCommit)
	if !delta.Equal(r.Delta) {
		divs = append(divs, FieldDivergence{Field: "Delta", Expected: r.Delta.String(), Actual: delta.String()})
	}

	sym := symbol.Encode(r.Prediction, outcome, delta)
	if sym != r.Symbol {
		divs = append(divs, FieldDivergence{Field: "Symbol", Expected: r.Symbol.Hex(), Actual: sym.Hex()})
	}
	if sym.SignBit() != r.SignBit {
		divs = append(divs, FieldDivergence{Field: "SignBit", Expected: r.SignBit, Actual: sym.SignBit()})
	}
	if sym.MagQ() != r.MagQ {
		divs = append(divs, FieldDivergence{Field: "MagQ", Expected: r.MagQ, Actual: sym.MagQ()})
	}

	return divs
}

// VerifyAll replays every revealed round and cross-checks the entropy log:
// each log entry must point at a revealed round, carry that round's symbol,
// and appear exactly once per identity.
func (v *ReplayVerifier) VerifyAll(ctx context.Context) (*Report, error) {
	entries, err := v.entropyLog.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read entropy log: %w", err)
	}

	report := &Report{LogEntries: len(entries)}
	seen := make(map[string]bool, len(entries))

	for _, e := range entries {
		id := domain.RoundIdentity{Date: e.Date, Ticker: e.Ticker}
		result := RoundResult{Identity: id}

		if seen[id.Key()] {
			result.Divergences = append(result.Divergences, FieldDivergence{
				Field: "LogIdentity", Expected: "unique", Actual: "duplicate",
			})
		}
		seen[id.Key()] = true

		r, err := v.rounds.GetByIdentity(ctx, id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			result.Divergences = append(result.Divergences, FieldDivergence{
				Field: "Round", Expected: "revealed round", Actual: "missing",
			})
		case err != nil:
			return nil, err
		case r.State != domain.StateRevealed:
			result.Divergences = append(result.Divergences, FieldDivergence{
				Field: "RoundState", Expected: string(domain.StateRevealed), Actual: string(r.State),
			})
		default:
			if e.Symbol != r.Symbol {
				result.Divergences = append(result.Divergences, FieldDivergence{
					Field: "LogSymbol", Expected: r.Symbol.Hex(), Actual: e.Symbol.Hex(),
				})
			}
			result.Divergences = append(result.Divergences, v.replayRound(r)...)
		}

		result.Match = len(result.Divergences) == 0
		report.Results = append(report.Results, result)
		report.TotalRounds++
		if result.Match {
			report.MatchedRounds++
		} else {
			report.DivergentRounds++
		}
	}

	return report, nil
}

// ExtractionResult contains the result of replaying one extraction run.
type ExtractionResult struct {
	RunID       string
	Match       bool
	Divergences []FieldDivergence
}

// VerifyExtraction recomputes an archived extraction run over the current
// log and compares digests. The seed is rebuilt from the record, so a
// beacon value is not refetched.
func (v *ReplayVerifier) VerifyExtraction(ctx context.Context, rec *domain.ExtractionRecord) (*ExtractionResult, error) {
	seedBytes, err := hex.DecodeString(rec.SeedHex)
	if err != nil {
		return nil, fmt.Errorf("decode archived seed: %w", err)
	}
	seed := domain.Seed{Bytes: seedBytes, Mode: rec.SeedMode, Source: rec.SeedSource}

	res, err := extract.FromLog(ctx, v.entropyLog, seed, rec.RequestedWindow, rec.OutBits)
	if err != nil {
		return nil, err
	}

	result := &ExtractionResult{RunID: rec.RunID}
	if res.OutputHex != rec.OutputHex {
		result.Divergences = append(result.Divergences, FieldDivergence{
			Field: "OutputHex", Expected: rec.OutputHex, Actual: res.OutputHex,
		})
	}
	if res.EffectiveWindow != rec.EffectiveWindow {
		result.Divergences = append(result.Divergences, FieldDivergence{
			Field: "EffectiveWindow", Expected: rec.EffectiveWindow, Actual: res.EffectiveWindow,
		})
	}
	result.Match = len(result.Divergences) == 0
	return result, nil
}
