package intakeconfig

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ppdb/internal/intake/models"
	id "ppdb/pkg/domain"
	"ppdb/pkg/platform/sentinel"
	txcontext "ppdb/pkg/platform/tx"
)

// PostgresStore persists configurations in the intake_configurations table.
// Tracks, pathways, and quotas are JSONB; they are read whole, never
// queried into.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const configColumns = `
	id, tenant_id, cycle_year, batch_label, batch_code,
	registration_start, registration_end, announcement_date,
	reregistration_start, reregistration_end,
	tracks, pathways, quotas,
	max_applications, fee_amount, auto_approve, active,
	admission_policy, threshold_score,
	created_at, updated_at`

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) querier(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, cfg *models.IntakeConfiguration) error {
	tracks, pathways, quotas, err := marshalRules(cfg)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO intake_configurations (` + configColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err = s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(cfg.ID), uuid.UUID(cfg.TenantID), cfg.CycleYear, cfg.BatchLabel, cfg.BatchCode,
		cfg.RegistrationStart, cfg.RegistrationEnd, cfg.AnnouncementDate,
		cfg.ReRegistrationStart, cfg.ReRegistrationEnd,
		tracks, pathways, quotas,
		cfg.MaxApplications, cfg.FeeAmount, cfg.AutoApprove, cfg.Active,
		cfg.AdmissionPolicy, cfg.ThresholdScore,
		cfg.CreatedAt, cfg.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create intake configuration %s: %w", cfg.ID, err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, cfg *models.IntakeConfiguration) error {
	tracks, pathways, quotas, err := marshalRules(cfg)
	if err != nil {
		return err
	}

	query := `
		UPDATE intake_configurations SET
			batch_label = $1, batch_code = $2,
			registration_start = $3, registration_end = $4, announcement_date = $5,
			reregistration_start = $6, reregistration_end = $7,
			tracks = $8, pathways = $9, quotas = $10,
			max_applications = $11, fee_amount = $12, auto_approve = $13, active = $14,
			admission_policy = $15, threshold_score = $16,
			updated_at = $17
		WHERE tenant_id = $18 AND id = $19
	`
	res, err := s.querier(ctx).ExecContext(ctx, query,
		cfg.BatchLabel, cfg.BatchCode,
		cfg.RegistrationStart, cfg.RegistrationEnd, cfg.AnnouncementDate,
		cfg.ReRegistrationStart, cfg.ReRegistrationEnd,
		tracks, pathways, quotas,
		cfg.MaxApplications, cfg.FeeAmount, cfg.AutoApprove, cfg.Active,
		cfg.AdmissionPolicy, cfg.ThresholdScore,
		cfg.UpdatedAt,
		uuid.UUID(cfg.TenantID), uuid.UUID(cfg.ID),
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update intake configuration %s: %w", cfg.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update intake configuration %s: %w", cfg.ID, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID, batchID id.BatchID) (*models.IntakeConfiguration, error) {
	query := `SELECT ` + configColumns + ` FROM intake_configurations WHERE tenant_id = $1 AND id = $2`
	cfg, err := scanConfiguration(s.querier(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(batchID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return cfg, err
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.IntakeConfiguration, error) {
	query := `
		SELECT ` + configColumns + ` FROM intake_configurations
		WHERE tenant_id = $1
		ORDER BY registration_start, batch_code
	`
	rows, err := s.querier(ctx).QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list intake configurations: %w", err)
	}
	defer rows.Close()

	var configs []*models.IntakeConfiguration
	for rows.Next() {
		cfg, err := scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list intake configurations: %w", err)
	}
	return configs, nil
}

// EnsureSchema creates the configurations table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS intake_configurations (
			id                   UUID PRIMARY KEY,
			tenant_id            UUID NOT NULL,
			cycle_year           INT NOT NULL,
			batch_label          TEXT NOT NULL,
			batch_code           TEXT NOT NULL,
			registration_start   TIMESTAMPTZ NOT NULL,
			registration_end     TIMESTAMPTZ NOT NULL,
			announcement_date    TIMESTAMPTZ,
			reregistration_start TIMESTAMPTZ,
			reregistration_end   TIMESTAMPTZ,
			tracks               JSONB NOT NULL,
			pathways             JSONB NOT NULL,
			quotas               JSONB NOT NULL,
			max_applications     INT NOT NULL DEFAULT 0,
			fee_amount           BIGINT NOT NULL DEFAULT 0,
			auto_approve         BOOLEAN NOT NULL DEFAULT FALSE,
			active               BOOLEAN NOT NULL DEFAULT FALSE,
			admission_policy     TEXT NOT NULL,
			threshold_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at           TIMESTAMPTZ NOT NULL,
			updated_at           TIMESTAMPTZ NOT NULL,
			UNIQUE (tenant_id, cycle_year, batch_code)
		)
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure intake_configurations schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfiguration(row rowScanner) (*models.IntakeConfiguration, error) {
	var (
		cfg          models.IntakeConfiguration
		batID, tenID uuid.UUID
		tracks       []byte
		pathways     []byte
		quotas       []byte
	)
	err := row.Scan(
		&batID, &tenID, &cfg.CycleYear, &cfg.BatchLabel, &cfg.BatchCode,
		&cfg.RegistrationStart, &cfg.RegistrationEnd, &cfg.AnnouncementDate,
		&cfg.ReRegistrationStart, &cfg.ReRegistrationEnd,
		&tracks, &pathways, &quotas,
		&cfg.MaxApplications, &cfg.FeeAmount, &cfg.AutoApprove, &cfg.Active,
		&cfg.AdmissionPolicy, &cfg.ThresholdScore,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan intake configuration: %w", err)
	}

	cfg.ID = id.BatchID(batID)
	cfg.TenantID = id.TenantID(tenID)

	if err := json.Unmarshal(tracks, &cfg.Tracks); err != nil {
		return nil, fmt.Errorf("decode tracks: %w", err)
	}
	if err := json.Unmarshal(pathways, &cfg.Pathways); err != nil {
		return nil, fmt.Errorf("decode pathways: %w", err)
	}
	if err := json.Unmarshal(quotas, &cfg.Quotas); err != nil {
		return nil, fmt.Errorf("decode quotas: %w", err)
	}
	return &cfg, nil
}

func marshalRules(cfg *models.IntakeConfiguration) (tracks, pathways, quotas []byte, err error) {
	tracks, err = json.Marshal(cfg.Tracks)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode tracks: %w", err)
	}
	pathways, err = json.Marshal(cfg.Pathways)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode pathways: %w", err)
	}
	quotas, err = json.Marshal(cfg.Quotas)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode quotas: %w", err)
	}
	return tracks, pathways, quotas, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
