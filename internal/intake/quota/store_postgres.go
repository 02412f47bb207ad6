package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	txcontext "ppdb/pkg/platform/tx"
)

// PostgresStore persists reserved counts in the quota_reservations table.
// The conditional upsert makes check-and-increment a single statement, so
// concurrent reservations for the same key serialize on the row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type execQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) querier(ctx context.Context) execQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Increment(ctx context.Context, key ResKey, limit int) (bool, error) {
	// limit <= 0 disables the WHERE guard; the row still counts so Release
	// and reporting stay accurate.
	query := `
		INSERT INTO quota_reservations (tenant_id, batch_id, track, pathway, reserved)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (tenant_id, batch_id, track, pathway)
		DO UPDATE SET reserved = quota_reservations.reserved + 1
		WHERE $5 <= 0 OR quota_reservations.reserved < $5
		RETURNING reserved
	`
	var reserved int
	err := s.querier(ctx).QueryRowContext(ctx, query,
		uuid.UUID(key.TenantID), uuid.UUID(key.BatchID), key.Track, key.Pathway, limit,
	).Scan(&reserved)
	if errors.Is(err, sql.ErrNoRows) {
		// Upsert declined: the key is at its limit.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("increment quota for %s: %w", key, err)
	}
	return true, nil
}

func (s *PostgresStore) Decrement(ctx context.Context, key ResKey) error {
	query := `
		UPDATE quota_reservations
		SET reserved = GREATEST(reserved - 1, 0)
		WHERE tenant_id = $1 AND batch_id = $2 AND track = $3 AND pathway = $4
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(key.TenantID), uuid.UUID(key.BatchID), key.Track, key.Pathway,
	)
	if err != nil {
		return fmt.Errorf("decrement quota for %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context, key ResKey) (int, error) {
	query := `
		SELECT reserved FROM quota_reservations
		WHERE tenant_id = $1 AND batch_id = $2 AND track = $3 AND pathway = $4
	`
	var reserved int
	err := s.querier(ctx).QueryRowContext(ctx, query,
		uuid.UUID(key.TenantID), uuid.UUID(key.BatchID), key.Track, key.Pathway,
	).Scan(&reserved)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count quota for %s: %w", key, err)
	}
	return reserved, nil
}

func (s *PostgresStore) Seed(ctx context.Context, key ResKey, count int) error {
	query := `
		INSERT INTO quota_reservations (tenant_id, batch_id, track, pathway, reserved)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, batch_id, track, pathway)
		DO UPDATE SET reserved = GREATEST(quota_reservations.reserved, EXCLUDED.reserved)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(key.TenantID), uuid.UUID(key.BatchID), key.Track, key.Pathway, count,
	)
	if err != nil {
		return fmt.Errorf("seed quota for %s: %w", key, err)
	}
	return nil
}

// EnsureSchema creates the reservation table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS quota_reservations (
			tenant_id UUID NOT NULL,
			batch_id  UUID NOT NULL,
			track     TEXT NOT NULL DEFAULT '',
			pathway   TEXT NOT NULL DEFAULT '',
			reserved  INT  NOT NULL DEFAULT 0,
			PRIMARY KEY (tenant_id, batch_id, track, pathway)
		)
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure quota_reservations schema: %w", err)
	}
	return nil
}
