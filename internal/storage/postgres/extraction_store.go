package postgres

import (
	"context"
	"fmt"

	"market-entropy-lab/internal/domain"
	"market-entropy-lab/internal/storage"
)

// ExtractionStore implements storage.ExtractionStore using PostgreSQL.
type ExtractionStore struct {
	pool *Pool
}

// NewExtractionStore creates a new ExtractionStore.
func NewExtractionStore(pool *Pool) *ExtractionStore {
	return &ExtractionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExtractionStore = (*ExtractionStore)(nil)

// Insert adds a new record. Returns ErrDuplicateKey if run_id exists.
func (s *ExtractionStore) Insert(ctx context.Context, rec *domain.ExtractionRecord) error {
	if rec == nil || rec.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO extractions (
			run_id, date, seed_mode, seed_source, seed_hex,
			requested_window, effective_window, out_bits, output_hex, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.RunID,
		rec.Date,
		string(rec.SeedMode),
		rec.SeedSource,
		rec.SeedHex,
		rec.RequestedWindow,
		rec.EffectiveWindow,
		rec.OutBits,
		rec.OutputHex,
		rec.GeneratedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert extraction: %w", err)
	}
	return nil
}

// GetByDate retrieves all records for a trade date, newest first.
func (s *ExtractionStore) GetByDate(ctx context.Context, date string) ([]*domain.ExtractionRecord, error) {
	query := `
		SELECT run_id, date, seed_mode, seed_source, seed_hex,
			requested_window, effective_window, out_bits, output_hex, generated_at
		FROM extractions
		WHERE date = $1
		ORDER BY generated_at DESC, run_id DESC
	`

	rows, err := s.pool.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("get extractions by date: %w", err)
	}
	defer rows.Close()

	var result []*domain.ExtractionRecord
	for rows.Next() {
		var rec domain.ExtractionRecord
		var seedMode string
		if err := rows.Scan(
			&rec.RunID, &rec.Date, &seedMode, &rec.SeedSource, &rec.SeedHex,
			&rec.RequestedWindow, &rec.EffectiveWindow, &rec.OutBits, &rec.OutputHex, &rec.GeneratedAt,
		); err != nil {
			return nil, fmt.Errorf("scan extraction: %w", err)
		}
		rec.SeedMode = domain.SeedMode(seedMode)
		result = append(result, &rec)
	}
	return result, rows.Err()
}
