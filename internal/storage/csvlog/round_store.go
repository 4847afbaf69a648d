package csvlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/storage"
)

// roundHeader is the pinned column order of the round file.
var roundHeader = []string{
	"date", "ticker", "state", "prediction", "p_commit", "commit_bar_ts",
	"committed_at", "salt", "context", "commit_hash",
	"p_reveal", "prev_close", "outcome", "tie", "delta", "sign_bit", "mag_q",
	"symbol", "provider", "revealed_at",
}

// RoundStore is a CSV-file-backed implementation of storage.RoundStore.
// The file is append-only: a state transition appends the full updated row,
// and on reload the last row per (date, ticker) identity wins. The full
// transition history therefore stays on disk.
type RoundStore struct {
	mu     sync.RWMutex
	path   string
	file   *os.File
	writer *csv.Writer
	rounds map[string]*domain.Round // identity key -> latest state
}

// NewRoundStore opens (or creates) the round file at path and replays the
// existing rows.
func NewRoundStore(path string) (*RoundStore, error) {
	rounds, err := replayRounds(path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open round file %s: %w", path, err)
	}

	s := &RoundStore{
		path:   path,
		file:   file,
		writer: csv.NewWriter(file),
		rounds: rounds,
	}

	if len(rounds) == 0 {
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("stat round file: %w", err)
		}
		if info.Size() == 0 {
			if err := s.writer.Write(roundHeader); err != nil {
				file.Close()
				return nil, fmt.Errorf("write header: %w", err)
			}
			s.writer.Flush()
			if err := s.writer.Error(); err != nil {
				file.Close()
				return nil, fmt.Errorf("flush header: %w", err)
			}
		}
	}

	return s, nil
}

// Close flushes and closes the underlying file.
func (s *RoundStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// Compile-time interface check.
var _ storage.RoundStore = (*RoundStore)(nil)

// Insert adds a newly committed round. Returns ErrDuplicateKey if a round
// already exists for the (date, ticker) identity.
func (s *RoundStore) Insert(_ context.Context, r *domain.Round) error {
	if r == nil || r.Date == "" || r.Ticker == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Identity().Key()
	if _, exists := s.rounds[key]; exists {
		return storage.ErrDuplicateKey
	}

	if err := s.appendRow(r); err != nil {
		return err
	}
	cp := *r
	s.rounds[key] = &cp
	return nil
}

// GetByIdentity retrieves a round. Returns ErrNotFound if not exists.
func (s *RoundStore) GetByIdentity(_ context.Context, id domain.RoundIdentity) (*domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rounds[id.Key()]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// GetByDate retrieves all rounds for a trade date, ordered by ticker.
func (s *RoundStore) GetByDate(_ context.Context, date string) ([]*domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Round
	for _, r := range s.rounds {
		if r.Date == date {
			cp := *r
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Ticker < result[j].Ticker })
	return result, nil
}

// SetRevealed writes the reveal-phase fields and moves the round to
// StateRevealed. Returns ErrInvalidTransition if already revealed. A
// rejected round may still reveal; corrected inputs are a new attempt.
func (s *RoundStore) SetRevealed(_ context.Context, r *domain.Round) error {
	if r == nil || r.Date == "" || r.Ticker == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Identity().Key()
	stored, ok := s.rounds[key]
	if !ok {
		return storage.ErrNotFound
	}
	if stored.State == domain.StateRevealed {
		return storage.ErrInvalidTransition
	}

	cp := *r
	cp.State = domain.StateRevealed
	if err := s.appendRow(&cp); err != nil {
		return err
	}
	s.rounds[key] = &cp
	return nil
}

// SetRejected moves the round to StateRejected. Refuses on revealed rounds.
func (s *RoundStore) SetRejected(_ context.Context, id domain.RoundIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.rounds[id.Key()]
	if !ok {
		return storage.ErrNotFound
	}
	if stored.State == domain.StateRevealed {
		return storage.ErrInvalidTransition
	}
	if stored.State == domain.StateRejected {
		return nil
	}

	cp := *stored
	cp.State = domain.StateRejected
	if err := s.appendRow(&cp); err != nil {
		return err
	}
	s.rounds[id.Key()] = &cp
	return nil
}

func (s *RoundStore) appendRow(r *domain.Round) error {
	if err := s.writer.Write(roundRecord(r)); err != nil {
		return fmt.Errorf("write round row: %w", err)
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("flush round row: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync round file: %w", err)
	}
	return nil
}

// roundRecord serializes one round in header order. Reveal fields of an
// unrevealed round serialize as empty strings.
func roundRecord(r *domain.Round) []string {
	rec := []string{
		r.Date,
		r.Ticker,
		string(r.State),
		strconv.Itoa(r.Prediction),
		r.PCommit.String(),
		r.CommitBarTS,
		r.CommittedAt.UTC().Format(time.RFC3339),
		r.Salt,
		r.Context,
		r.CommitHash,
	}

	if r.State != domain.StateRevealed {
		return append(rec, "", "", "", "", "", "", "", "", "", "")
	}
	return append(rec,
		r.PReveal.String(),
		r.PrevClose.String(),
		strconv.Itoa(r.Outcome),
		strconv.FormatBool(r.Tie),
		r.Delta.String(),
		strconv.Itoa(r.SignBit),
		strconv.Itoa(r.MagQ),
		r.Symbol.Hex(),
		r.Provider,
		r.RevealedAt.UTC().Format(time.RFC3339),
	)
}

// replayRounds rebuilds the latest state per identity from the file.
func replayRounds(path string) (map[string]*domain.Round, error) {
	rounds := make(map[string]*domain.Round)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rounds, nil
		}
		return nil, fmt.Errorf("open round file %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(roundHeader)

	first := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read round file %s: %w", path, err)
		}
		if first {
			first = false
			if row[0] == roundHeader[0] {
				continue
			}
		}
		round, err := parseRoundRecord(row)
		if err != nil {
			return nil, fmt.Errorf("parse round file %s: %w", path, err)
		}
		rounds[round.Identity().Key()] = round
	}
	return rounds, nil
}

func parseRoundRecord(row []string) (*domain.Round, error) {
	var (
		r   domain.Round
		err error
	)
	r.Date = row[0]
	r.Ticker = row[1]
	r.State = domain.RoundState(row[2])
	if r.Prediction, err = strconv.Atoi(row[3]); err != nil {
		return nil, fmt.Errorf("prediction: %w", err)
	}
	if r.PCommit, err = decimal.NewFromString(row[4]); err != nil {
		return nil, fmt.Errorf("p_commit: %w", err)
	}
	r.CommitBarTS = row[5]
	if r.CommittedAt, err = time.Parse(time.RFC3339, row[6]); err != nil {
		return nil, fmt.Errorf("committed_at: %w", err)
	}
	r.Salt = row[7]
	r.Context = row[8]
	r.CommitHash = row[9]

	if r.State != domain.StateRevealed {
		return &r, nil
	}

	if r.PReveal, err = decimal.NewFromString(row[10]); err != nil {
		return nil, fmt.Errorf("p_reveal: %w", err)
	}
	if r.PrevClose, err = decimal.NewFromString(row[11]); err != nil {
		return nil, fmt.Errorf("prev_close: %w", err)
	}
	if r.Outcome, err = strconv.Atoi(row[12]); err != nil {
		return nil, fmt.Errorf("outcome: %w", err)
	}
	if r.Tie, err = strconv.ParseBool(row[13]); err != nil {
		return nil, fmt.Errorf("tie: %w", err)
	}
	if r.Delta, err = decimal.NewFromString(row[14]); err != nil {
		return nil, fmt.Errorf("delta: %w", err)
	}
	if r.SignBit, err = strconv.Atoi(row[15]); err != nil {
		return nil, fmt.Errorf("sign_bit: %w", err)
	}
	if r.MagQ, err = strconv.Atoi(row[16]); err != nil {
		return nil, fmt.Errorf("mag_q: %w", err)
	}
	if r.Symbol, err = domain.ParseSymbol(row[17]); err != nil {
		return nil, fmt.Errorf("symbol: %w", err)
	}
	r.Provider = row[18]
	if r.RevealedAt, err = time.Parse(time.RFC3339, row[19]); err != nil {
		return nil, fmt.Errorf("revealed_at: %w", err)
	}
	return &r, nil
}
