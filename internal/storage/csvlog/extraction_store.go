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

	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/storage"
)

// extractionHeader is the pinned column order of the extraction file.
var extractionHeader = []string{
	"run_id", "date", "seed_mode", "seed_source", "seed_hex",
	"requested_window", "effective_window", "out_bits", "output_hex",
	"generated_at",
}

// ExtractionStore is a CSV-file-backed implementation of
// storage.ExtractionStore. Records are append-only; run IDs never repeat.
type ExtractionStore struct {
	mu      sync.RWMutex
	path    string
	file    *os.File
	writer  *csv.Writer
	records []*domain.ExtractionRecord
	seen    map[string]struct{} // run IDs
}

// NewExtractionStore opens (or creates) the extraction file at path and
// loads the existing records.
func NewExtractionStore(path string) (*ExtractionStore, error) {
	records, err := readExtractions(path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open extraction file %s: %w", path, err)
	}

	s := &ExtractionStore{
		path:    path,
		file:    file,
		writer:  csv.NewWriter(file),
		records: records,
		seen:    make(map[string]struct{}, len(records)),
	}
	for _, rec := range records {
		s.seen[rec.RunID] = struct{}{}
	}

	if len(records) == 0 {
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("stat extraction file: %w", err)
		}
		if info.Size() == 0 {
			if err := s.writer.Write(extractionHeader); err != nil {
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
func (s *ExtractionStore) Close() error {
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
var _ storage.ExtractionStore = (*ExtractionStore)(nil)

// Insert adds a new record. Returns ErrDuplicateKey if run_id exists.
func (s *ExtractionStore) Insert(_ context.Context, rec *domain.ExtractionRecord) error {
	if rec == nil || rec.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[rec.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	if err := s.writer.Write(extractionRecord(rec)); err != nil {
		return fmt.Errorf("write extraction row: %w", err)
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("flush extraction row: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync extraction file: %w", err)
	}

	cp := *rec
	s.records = append(s.records, &cp)
	s.seen[rec.RunID] = struct{}{}
	return nil
}

// GetByDate retrieves all records for a trade date, newest first.
func (s *ExtractionStore) GetByDate(_ context.Context, date string) ([]*domain.ExtractionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExtractionRecord
	for _, rec := range s.records {
		if rec.Date == date {
			cp := *rec
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].GeneratedAt.Equal(result[j].GeneratedAt) {
			return result[i].GeneratedAt.After(result[j].GeneratedAt)
		}
		return result[i].RunID > result[j].RunID
	})
	return result, nil
}

func extractionRecord(rec *domain.ExtractionRecord) []string {
	return []string{
		rec.RunID,
		rec.Date,
		string(rec.SeedMode),
		rec.SeedSource,
		rec.SeedHex,
		strconv.Itoa(rec.RequestedWindow),
		strconv.Itoa(rec.EffectiveWindow),
		strconv.Itoa(rec.OutBits),
		rec.OutputHex,
		rec.GeneratedAt.UTC().Format(time.RFC3339),
	}
}

func readExtractions(path string) ([]*domain.ExtractionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open extraction file %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(extractionHeader)

	var records []*domain.ExtractionRecord
	first := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read extraction file %s: %w", path, err)
		}
		if first {
			first = false
			if row[0] == extractionHeader[0] {
				continue
			}
		}
		rec, err := parseExtractionRecord(row)
		if err != nil {
			return nil, fmt.Errorf("parse extraction file %s: %w", path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseExtractionRecord(row []string) (*domain.ExtractionRecord, error) {
	var (
		rec domain.ExtractionRecord
		err error
	)
	rec.RunID = row[0]
	rec.Date = row[1]
	rec.SeedMode = domain.SeedMode(row[2])
	rec.SeedSource = row[3]
	rec.SeedHex = row[4]
	if rec.RequestedWindow, err = strconv.Atoi(row[5]); err != nil {
		return nil, fmt.Errorf("requested_window: %w", err)
	}
	if rec.EffectiveWindow, err = strconv.Atoi(row[6]); err != nil {
		return nil, fmt.Errorf("effective_window: %w", err)
	}
	if rec.OutBits, err = strconv.Atoi(row[7]); err != nil {
		return nil, fmt.Errorf("out_bits: %w", err)
	}
	rec.OutputHex = row[8]
	if rec.GeneratedAt, err = time.Parse(time.RFC3339, row[9]); err != nil {
		return nil, fmt.Errorf("generated_at: %w", err)
	}
	return &rec, nil
}
