package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"pharmatrace/internal/registry/models"
	id "pharmatrace/pkg/domain"
	"pharmatrace/pkg/platform/sentinel"
)

// Postgres persists batches in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed batch store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const batchColumns = `batch_id, ledger_topic_id, drug_name, composition, batch_size,
	manufacturing_date, expiry_date, storage_instructions, status, creator_org_id,
	qr_code_url, qr_signature, units_created, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, b *models.Batch) error {
	query := `
		INSERT INTO batches (` + batchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.ExecContext(ctx, query,
		b.ID, b.LedgerTopicID, b.DrugName, b.Composition, b.BatchSize,
		b.ManufacturingDate, b.ExpiryDate, b.StorageInstructions, b.Status, b.CreatorOrgID.String(),
		b.QRCodeURL, b.QRSignature, b.UnitsCreated, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("batch %s already exists: %w", b.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, batchID id.BatchID) (*models.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE batch_id = $1`
	return scanBatch(s.db.QueryRowContext(ctx, query, batchID))
}

// Execute loads the batch FOR UPDATE inside a transaction, validates, mutates,
// and writes back the mutable columns.
func (s *Postgres) Execute(ctx context.Context, batchID id.BatchID, validate func(*models.Batch) error, mutate func(*models.Batch)) (*models.Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + batchColumns + ` FROM batches WHERE batch_id = $1 FOR UPDATE`
	b, err := scanBatch(tx.QueryRowContext(ctx, query, batchID))
	if err != nil {
		return nil, err
	}

	if err := validate(b); err != nil {
		return nil, err
	}
	mutate(b)

	_, err = tx.ExecContext(ctx, `
		UPDATE batches
		SET status = $2, units_created = $3, updated_at = $4
		WHERE batch_id = $1
	`, b.ID, b.Status, b.UnitsCreated, b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch tx: %w", err)
	}
	return b, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*models.Batch, error) {
	var b models.Batch
	var creator string
	err := row.Scan(
		&b.ID, &b.LedgerTopicID, &b.DrugName, &b.Composition, &b.BatchSize,
		&b.ManufacturingDate, &b.ExpiryDate, &b.StorageInstructions, &b.Status, &creator,
		&b.QRCodeURL, &b.QRSignature, &b.UnitsCreated, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("batch not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan batch: %w", err)
	}
	creatorID, err := id.ParseOrgID(creator)
	if err != nil {
		return nil, fmt.Errorf("scan batch creator: %w", err)
	}
	b.CreatorOrgID = creatorID
	return &b, nil
}
