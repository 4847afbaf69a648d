// Package csvlog implements the entropy log as a single append-only CSV
// file. The file is the archive of record for file-based deployments: rows
// are only ever appended, and the on-disk order is the log order.
package csvlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/storage"
)

// header is the pinned column order of the log file.
var header = []string{
	"date", "ticker", "prediction", "outcome", "symbol_bits", "commit_hash",
	"context", "salt", "prev_close", "p_reveal", "provider", "tie",
	"p_commit", "commit_bar", "delta", "sign_bit", "mag_q", "symbol",
	"appended_at",
}

// EntropyLog is a CSV-file-backed implementation of storage.EntropyLog.
type EntropyLog struct {
	mu      sync.RWMutex
	path    string
	file    *os.File
	writer  *csv.Writer
	entries []*domain.EntropyEntry
	seen    map[string]struct{} // identity keys
}

// NewEntropyLog opens (or creates) the log file at path and loads the
// existing entries.
func NewEntropyLog(path string) (*EntropyLog, error) {
	entries, err := readExisting(path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open entropy log %s: %w", path, err)
	}

	l := &EntropyLog{
		path:    path,
		file:    file,
		writer:  csv.NewWriter(file),
		entries: entries,
		seen:    make(map[string]struct{}, len(entries)),
	}
	for _, e := range entries {
		l.seen[e.Identity().Key()] = struct{}{}
	}

	if len(entries) == 0 {
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("stat entropy log: %w", err)
		}
		if info.Size() == 0 {
			if err := l.writer.Write(header); err != nil {
				file.Close()
				return nil, fmt.Errorf("write header: %w", err)
			}
			l.writer.Flush()
			if err := l.writer.Error(); err != nil {
				file.Close()
				return nil, fmt.Errorf("flush header: %w", err)
			}
		}
	}

	return l, nil
}

// Close flushes and closes the underlying file.
func (l *EntropyLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

// Append adds one entry to memory and to disk. Returns ErrDuplicateKey if
// an entry already exists for the (date, ticker) identity.
func (l *EntropyLog) Append(_ context.Context, e *domain.EntropyEntry) error {
	if e == nil || e.Date == "" || e.Ticker == "" {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := e.Identity().Key()
	if _, exists := l.seen[key]; exists {
		return storage.ErrDuplicateKey
	}

	if err := l.writer.Write(record(e)); err != nil {
		return fmt.Errorf("write entropy row: %w", err)
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return fmt.Errorf("flush entropy row: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync entropy log: %w", err)
	}

	cp := *e
	l.entries = append(l.entries, &cp)
	l.seen[key] = struct{}{}
	return nil
}

// LastN returns the most recent n entries in log order, oldest first.
func (l *EntropyLog) LastN(_ context.Context, n int) ([]*domain.EntropyEntry, error) {
	if n <= 0 {
		return nil, storage.ErrInvalidInput
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	start := len(l.entries) - n
	if start < 0 {
		start = 0
	}
	return copyEntries(l.entries[start:]), nil
}

// All returns the full log in log order, oldest first.
func (l *EntropyLog) All(_ context.Context) ([]*domain.EntropyEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyEntries(l.entries), nil
}

// Count returns the number of entries.
func (l *EntropyLog) Count(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

var _ storage.EntropyLog = (*EntropyLog)(nil)

func copyEntries(src []*domain.EntropyEntry) []*domain.EntropyEntry {
	out := make([]*domain.EntropyEntry, len(src))
	for i, e := range src {
		cp := *e
		out[i] = &cp
	}
	return out
}

// record serializes one entry in header order.
func record(e *domain.EntropyEntry) []string {
	return []string{
		e.Date,
		e.Ticker,
		strconv.Itoa(e.Prediction),
		strconv.Itoa(e.Outcome),
		e.SymbolBits,
		e.CommitHash,
		e.Context,
		e.Salt,
		e.PrevClose.String(),
		e.PReveal.String(),
		e.Provider,
		strconv.FormatBool(e.Tie),
		e.PCommit.String(),
		e.CommitBar,
		e.Delta.String(),
		strconv.Itoa(e.SignBit),
		strconv.Itoa(e.MagQ),
		e.Symbol.Hex(),
		e.AppendedAt.UTC().Format(time.RFC3339),
	}
}

// readExisting parses the log file if present. A missing file is an empty
// log; a malformed row is a hard error, never a silent skip.
func readExisting(path string) ([]*domain.EntropyEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open entropy log %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)

	var entries []*domain.EntropyEntry
	first := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read entropy log %s: %w", path, err)
		}
		if first {
			first = false
			if row[0] == header[0] {
				continue
			}
		}
		e, err := parseRecord(row)
		if err != nil {
			return nil, fmt.Errorf("parse entropy log %s: %w", path, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func parseRecord(row []string) (*domain.EntropyEntry, error) {
	var (
		e   domain.EntropyEntry
		err error
	)
	e.Date = row[0]
	e.Ticker = row[1]
	if e.Prediction, err = strconv.Atoi(row[2]); err != nil {
		return nil, fmt.Errorf("prediction: %w", err)
	}
	if e.Outcome, err = strconv.Atoi(row[3]); err != nil {
		return nil, fmt.Errorf("outcome: %w", err)
	}
	e.SymbolBits = row[4]
	e.CommitHash = row[5]
	e.Context = row[6]
	e.Salt = row[7]
	if e.PrevClose, err = decimal.NewFromString(row[8]); err != nil {
		return nil, fmt.Errorf("prev_close: %w", err)
	}
	if e.PReveal, err = decimal.NewFromString(row[9]); err != nil {
		return nil, fmt.Errorf("p_reveal: %w", err)
	}
	e.Provider = row[10]
	if e.Tie, err = strconv.ParseBool(row[11]); err != nil {
		return nil, fmt.Errorf("tie: %w", err)
	}
	if e.PCommit, err = decimal.NewFromString(row[12]); err != nil {
		return nil, fmt.Errorf("p_commit: %w", err)
	}
	e.CommitBar = row[13]
	if e.Delta, err = decimal.NewFromString(row[14]); err != nil {
		return nil, fmt.Errorf("delta: %w", err)
	}
	if e.SignBit, err = strconv.Atoi(row[15]); err != nil {
		return nil, fmt.Errorf("sign_bit: %w", err)
	}
	if e.MagQ, err = strconv.Atoi(row[16]); err != nil {
		return nil, fmt.Errorf("mag_q: %w", err)
	}
	if e.Symbol, err = domain.ParseSymbol(row[17]); err != nil {
		return nil, fmt.Errorf("symbol: %w", err)
	}
	if e.AppendedAt, err = time.Parse(time.RFC3339, row[18]); err != nil {
		return nil, fmt.Errorf("appended_at: %w", err)
	}
	return &e, nil
}
