package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pharmatrace/internal/transfer/models"
	id "pharmatrace/pkg/domain"
	"pharmatrace/pkg/platform/sentinel"
)

// Postgres persists transfers in PostgreSQL.
//
// The schema carries a partial unique index enforcing one active transfer per
// batch:
//
//	CREATE UNIQUE INDEX one_active_transfer_per_batch
//	    ON transfers (batch_id)
//	    WHERE status IN ('PENDING', 'IN_PROGRESS');
//
// so two concurrent requests that both pass validation still cannot both
// insert; the loser gets a unique violation mapped to ErrConflict.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed transfer store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const transferColumns = `id, batch_id, from_org_id, to_org_id, quantity, type,
	status, notes, transfer_date, created_at, updated_at`

const uniqueViolation = "23505"

func (s *Postgres) Create(ctx context.Context, t *models.Transfer) error {
	query := `
		INSERT INTO transfers (` + transferColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.pool.Exec(ctx, query,
		t.ID.String(), t.BatchID, t.FromOrgID.String(), t.ToOrgID.String(), t.Quantity, t.Type,
		t.Status, t.Notes, t.TransferDate, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("batch %s already has an active transfer: %w", t.BatchID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create transfer: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, transferID id.TransferID) (*models.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`
	return scanTransfer(s.pool.QueryRow(ctx, query, transferID.String()))
}

// ListByBatch returns a batch's transfers, newest first.
func (s *Postgres) ListByBatch(ctx context.Context, batchID id.BatchID) ([]*models.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE batch_id = $1 ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var out []*models.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FindActiveByBatch returns the batch's PENDING or IN_PROGRESS transfer.
func (s *Postgres) FindActiveByBatch(ctx context.Context, batchID id.BatchID) (*models.Transfer, error) {
	query := `
		SELECT ` + transferColumns + ` FROM transfers
		WHERE batch_id = $1 AND status IN ('PENDING', 'IN_PROGRESS')
	`
	return scanTransfer(s.pool.QueryRow(ctx, query, batchID))
}

// LatestCompleted returns the batch's most recent COMPLETED transfer.
func (s *Postgres) LatestCompleted(ctx context.Context, batchID id.BatchID) (*models.Transfer, error) {
	query := `
		SELECT ` + transferColumns + ` FROM transfers
		WHERE batch_id = $1 AND status = 'COMPLETED'
		ORDER BY transfer_date DESC
		LIMIT 1
	`
	return scanTransfer(s.pool.QueryRow(ctx, query, batchID))
}

// Execute loads the transfer FOR UPDATE inside a transaction, validates,
// mutates, and writes back the mutable columns.
func (s *Postgres) Execute(ctx context.Context, transferID id.TransferID, validate func(*models.Transfer) error, mutate func(*models.Transfer)) (*models.Transfer, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transfer tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1 FOR UPDATE`
	t, err := scanTransfer(tx.QueryRow(ctx, query, transferID.String()))
	if err != nil {
		return nil, err
	}

	if err := validate(t); err != nil {
		return nil, err
	}
	mutate(t)

	_, err = tx.Exec(ctx, `
		UPDATE transfers
		SET status = $2, notes = $3, transfer_date = $4, updated_at = $5
		WHERE id = $1
	`, t.ID.String(), t.Status, t.Notes, t.TransferDate, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update transfer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transfer tx: %w", err)
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (*models.Transfer, error) {
	var (
		t            models.Transfer
		transferID   string
		fromOrg      string
		toOrg        string
		transferDate *time.Time
	)
	err := row.Scan(
		&transferID, &t.BatchID, &fromOrg, &toOrg, &t.Quantity, &t.Type,
		&t.Status, &t.Notes, &transferDate, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("transfer not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan transfer: %w", err)
	}

	t.TransferDate = transferDate
	if t.ID, err = id.ParseTransferID(transferID); err != nil {
		return nil, fmt.Errorf("scan transfer id: %w", err)
	}
	if t.FromOrgID, err = id.ParseOrgID(fromOrg); err != nil {
		return nil, fmt.Errorf("scan transfer source org: %w", err)
	}
	if t.ToOrgID, err = id.ParseOrgID(toOrg); err != nil {
		return nil, fmt.Errorf("scan transfer destination org: %w", err)
	}
	return &t, nil
}
