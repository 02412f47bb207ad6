package application

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

// PostgresStore persists applications in the applications table. Candidate
// and document fields live in JSONB columns; everything the store queries
// or indexes on is a first-class column.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const applicationColumns = `
	id, tenant_id, batch_id, registration_id, sequence, cycle_year,
	candidate, track, pathway,
	selection_score, interview_score, document_score, total_score,
	status, rejection_reason, notes,
	paid, payment_amount, payment_date,
	documents,
	registered_at, selection_at, announced_at, accepted_at, reregistered_at,
	created_at, updated_at, version`

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

func (s *PostgresStore) Create(ctx context.Context, app *models.Application) error {
	candidate, documents, err := marshalJSONFields(app)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
	`
	_, err = s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(app.ID), uuid.UUID(app.TenantID), uuid.UUID(app.BatchID),
		app.RegistrationID, app.Sequence, app.CycleYear,
		candidate, app.Track, app.Pathway,
		app.SelectionScore, app.InterviewScore, app.DocumentScore, app.TotalScore,
		string(app.Status), app.RejectionReason, app.Notes,
		app.Paid, app.PaymentAmount, app.PaymentDate,
		documents,
		app.RegisteredAt, app.SelectionAt, app.AnnouncedAt, app.AcceptedAt, app.ReRegisteredAt,
		app.CreatedAt, app.UpdatedAt, app.Version,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create application %s: %w", app.RegistrationID, err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID, appID id.ApplicationID) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE tenant_id = $1 AND id = $2`
	return s.scanOne(s.querier(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(appID)))
}

func (s *PostgresStore) FindByRegistrationID(ctx context.Context, tenantID id.TenantID, regID string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE tenant_id = $1 AND registration_id = $2`
	return s.scanOne(s.querier(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID), regID))
}

func (s *PostgresStore) ListByBatch(ctx context.Context, tenantID id.TenantID, batchID id.BatchID) ([]*models.Application, error) {
	query := `
		SELECT ` + applicationColumns + ` FROM applications
		WHERE tenant_id = $1 AND batch_id = $2
		ORDER BY sequence
	`
	rows, err := s.querier(ctx).QueryContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(batchID))
	if err != nil {
		return nil, fmt.Errorf("list applications for batch %s: %w", batchID, err)
	}
	defer rows.Close()

	var apps []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list applications for batch %s: %w", batchID, err)
	}
	return apps, nil
}

// Execute runs mutate against the row under SELECT FOR UPDATE, then writes
// the new state with an optimistic version guard. The row lock already
// serializes writers; the guard catches anything bypassing Execute.
func (s *PostgresStore) Execute(ctx context.Context, tenantID id.TenantID, appID id.ApplicationID,
	mutate func(app *models.Application) error) (*models.Application, error) {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin application update: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + applicationColumns + ` FROM applications WHERE tenant_id = $1 AND id = $2 FOR UPDATE`
	app, err := s.scanOne(tx.QueryRowContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(appID)))
	if err != nil {
		return nil, err
	}

	if err := mutate(app); err != nil {
		return nil, err
	}

	candidate, documents, err := marshalJSONFields(app)
	if err != nil {
		return nil, err
	}

	update := `
		UPDATE applications SET
			candidate = $1, track = $2, pathway = $3,
			selection_score = $4, interview_score = $5, document_score = $6, total_score = $7,
			status = $8, rejection_reason = $9, notes = $10,
			paid = $11, payment_amount = $12, payment_date = $13,
			documents = $14,
			registered_at = $15, selection_at = $16, announced_at = $17,
			accepted_at = $18, reregistered_at = $19,
			updated_at = $20, version = version + 1
		WHERE tenant_id = $21 AND id = $22 AND version = $23
	`
	res, err := tx.ExecContext(ctx, update,
		candidate, app.Track, app.Pathway,
		app.SelectionScore, app.InterviewScore, app.DocumentScore, app.TotalScore,
		string(app.Status), app.RejectionReason, app.Notes,
		app.Paid, app.PaymentAmount, app.PaymentDate,
		documents,
		app.RegisteredAt, app.SelectionAt, app.AnnouncedAt,
		app.AcceptedAt, app.ReRegisteredAt,
		app.UpdatedAt,
		uuid.UUID(tenantID), uuid.UUID(appID), app.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("update application %s: %w", appID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update application %s: %w", appID, err)
	}
	if affected == 0 {
		return nil, sentinel.ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit application update: %w", err)
	}
	app.Version++
	return app, nil
}

func (s *PostgresStore) MaxSequence(ctx context.Context, tenantID id.TenantID, batchID id.BatchID) (int, error) {
	query := `
		SELECT COALESCE(MAX(sequence), 0) FROM applications
		WHERE tenant_id = $1 AND batch_id = $2
	`
	var max int
	err := s.querier(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(batchID)).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max sequence for batch %s: %w", batchID, err)
	}
	return max, nil
}

// EnsureSchema creates the applications table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS applications (
			id               UUID PRIMARY KEY,
			tenant_id        UUID NOT NULL,
			batch_id         UUID NOT NULL,
			registration_id  TEXT NOT NULL,
			sequence         BIGINT NOT NULL,
			cycle_year       INT NOT NULL,
			candidate        JSONB NOT NULL,
			track            TEXT NOT NULL,
			pathway          TEXT NOT NULL,
			selection_score  DOUBLE PRECISION,
			interview_score  DOUBLE PRECISION,
			document_score   DOUBLE PRECISION,
			total_score      DOUBLE PRECISION,
			status           TEXT NOT NULL,
			rejection_reason TEXT NOT NULL DEFAULT '',
			notes            TEXT NOT NULL DEFAULT '',
			paid             BOOLEAN NOT NULL DEFAULT FALSE,
			payment_amount   BIGINT NOT NULL DEFAULT 0,
			payment_date     TIMESTAMPTZ,
			documents        JSONB NOT NULL DEFAULT '{}',
			registered_at    TIMESTAMPTZ,
			selection_at     TIMESTAMPTZ,
			announced_at     TIMESTAMPTZ,
			accepted_at      TIMESTAMPTZ,
			reregistered_at  TIMESTAMPTZ,
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL,
			version          INT NOT NULL,
			UNIQUE (tenant_id, registration_id)
		);
		CREATE INDEX IF NOT EXISTS applications_batch_idx
			ON applications (tenant_id, batch_id);
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure applications schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanOne(row *sql.Row) (*models.Application, error) {
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return app, err
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app                 models.Application
		appID, tenID, batID uuid.UUID
		status              string
		candidate           []byte
		documents           []byte
	)
	err := row.Scan(
		&appID, &tenID, &batID, &app.RegistrationID, &app.Sequence, &app.CycleYear,
		&candidate, &app.Track, &app.Pathway,
		&app.SelectionScore, &app.InterviewScore, &app.DocumentScore, &app.TotalScore,
		&status, &app.RejectionReason, &app.Notes,
		&app.Paid, &app.PaymentAmount, &app.PaymentDate,
		&documents,
		&app.RegisteredAt, &app.SelectionAt, &app.AnnouncedAt, &app.AcceptedAt, &app.ReRegisteredAt,
		&app.CreatedAt, &app.UpdatedAt, &app.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan application: %w", err)
	}

	app.ID = id.ApplicationID(appID)
	app.TenantID = id.TenantID(tenID)
	app.BatchID = id.BatchID(batID)
	app.Status = models.Status(status)

	if err := json.Unmarshal(candidate, &app.Candidate); err != nil {
		return nil, fmt.Errorf("decode candidate: %w", err)
	}
	if len(documents) > 0 {
		if err := json.Unmarshal(documents, &app.Documents); err != nil {
			return nil, fmt.Errorf("decode documents: %w", err)
		}
	}
	return &app, nil
}

func marshalJSONFields(app *models.Application) (candidate, documents []byte, err error) {
	candidate, err = json.Marshal(app.Candidate)
	if err != nil {
		return nil, nil, fmt.Errorf("encode candidate: %w", err)
	}
	docs := app.Documents
	if docs == nil {
		docs = map[string]models.DocumentStatus{}
	}
	documents, err = json.Marshal(docs)
	if err != nil {
		return nil, nil, fmt.Errorf("encode documents: %w", err)
	}
	return candidate, documents, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
