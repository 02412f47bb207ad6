package sequence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	txcontext "ppdb/pkg/platform/tx"
)

// PostgresStore persists counters in the sequence_counters table. The
// increment is a single upsert, so concurrent callers serialize on the
// row and each sees a distinct RETURNING value.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) querier(ctx context.Context) rowQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Next(ctx context.Context, key Key) (int, error) {
	query := `
		INSERT INTO sequence_counters (tenant_id, cycle_year, batch_code, last_value, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (tenant_id, cycle_year, batch_code)
		DO UPDATE SET last_value = sequence_counters.last_value + 1, updated_at = now()
		RETURNING last_value
	`
	var v int
	err := s.querier(ctx).QueryRowContext(ctx, query,
		uuid.UUID(key.TenantID), key.CycleYear, key.BatchCode,
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("next sequence for %s: %w", key, err)
	}
	return v, nil
}

func (s *PostgresStore) Seed(ctx context.Context, key Key, max int) error {
	query := `
		INSERT INTO sequence_counters (tenant_id, cycle_year, batch_code, last_value, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (tenant_id, cycle_year, batch_code)
		DO UPDATE SET last_value = GREATEST(sequence_counters.last_value, EXCLUDED.last_value),
		              updated_at = now()
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(key.TenantID), key.CycleYear, key.BatchCode, max,
	)
	if err != nil {
		return fmt.Errorf("seed sequence for %s: %w", key, err)
	}
	return nil
}

// EnsureSchema creates the counter table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS sequence_counters (
			tenant_id  UUID        NOT NULL,
			cycle_year INT         NOT NULL,
			batch_code TEXT        NOT NULL,
			last_value INT         NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_id, cycle_year, batch_code)
		)
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure sequence_counters schema: %w", err)
	}
	return nil
}
