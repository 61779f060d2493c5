package unit

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

// Postgres persists units in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed unit store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const unitColumns = `serial_number, batch_id, ordinal, ledger_sequence,
	qr_code_url, qr_signature, status, created_at`

func (s *Postgres) Create(ctx context.Context, u *models.Unit) error {
	query := `
		INSERT INTO units (` + unitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		u.SerialNumber, u.BatchID, u.Ordinal, u.LedgerSequence,
		u.QRCodeURL, u.QRSignature, u.Status, u.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("unit %s already exists: %w", u.SerialNumber, sentinel.ErrConflict)
		}
		return fmt.Errorf("create unit: %w", err)
	}
	return nil
}

func (s *Postgres) FindBySerial(ctx context.Context, serial id.SerialNumber) (*models.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE serial_number = $1`
	var u models.Unit
	err := s.db.QueryRowContext(ctx, query, serial).Scan(
		&u.SerialNumber, &u.BatchID, &u.Ordinal, &u.LedgerSequence,
		&u.QRCodeURL, &u.QRSignature, &u.Status, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("unit not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan unit: %w", err)
	}
	return &u, nil
}

func (s *Postgres) ListByBatch(ctx context.Context, batchID id.BatchID) ([]*models.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE batch_id = $1 ORDER BY ordinal`
	rows, err := s.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	var units []*models.Unit
	for rows.Next() {
		var u models.Unit
		if err := rows.Scan(
			&u.SerialNumber, &u.BatchID, &u.Ordinal, &u.LedgerSequence,
			&u.QRCodeURL, &u.QRSignature, &u.Status, &u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, &u)
	}
	return units, rows.Err()
}

func (s *Postgres) MintedOrdinals(ctx context.Context, batchID id.BatchID) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ordinal FROM units WHERE batch_id = $1`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list ordinals: %w", err)
	}
	defer rows.Close()

	ordinals := make(map[int]bool)
	for rows.Next() {
		var ordinal int
		if err := rows.Scan(&ordinal); err != nil {
			return nil, fmt.Errorf("scan ordinal: %w", err)
		}
		ordinals[ordinal] = true
	}
	return ordinals, rows.Err()
}

func (s *Postgres) CountAvailable(ctx context.Context, batchID id.BatchID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM units
		WHERE batch_id = $1 AND status NOT IN ($2, $3)
	`, batchID, models.UnitStatusDispatched, models.UnitStatusReturned).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count available units: %w", err)
	}
	return count, nil
}

func (s *Postgres) Execute(ctx context.Context, serial id.SerialNumber, validate func(*models.Unit) error, mutate func(*models.Unit)) (*models.Unit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin unit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var u models.Unit
	query := `SELECT ` + unitColumns + ` FROM units WHERE serial_number = $1 FOR UPDATE`
	err = tx.QueryRowContext(ctx, query, serial).Scan(
		&u.SerialNumber, &u.BatchID, &u.Ordinal, &u.LedgerSequence,
		&u.QRCodeURL, &u.QRSignature, &u.Status, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("unit not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan unit: %w", err)
	}

	if err := validate(&u); err != nil {
		return nil, err
	}
	mutate(&u)

	if _, err := tx.ExecContext(ctx, `UPDATE units SET status = $2 WHERE serial_number = $1`, u.SerialNumber, u.Status); err != nil {
		return nil, fmt.Errorf("update unit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit unit tx: %w", err)
	}
	return &u, nil
}
