package org

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

// Postgres persists organizations in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed organization store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, o *models.Organization) error {
	query := `
		INSERT INTO organizations (id, name, type, is_active, is_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		o.ID.String(), o.Name, o.Type, o.IsActive, o.IsVerified, o.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("organization %s already exists: %w", o.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, orgID id.OrgID) (*models.Organization, error) {
	var o models.Organization
	var rawID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, is_active, is_verified, created_at
		FROM organizations WHERE id = $1
	`, orgID.String()).Scan(&rawID, &o.Name, &o.Type, &o.IsActive, &o.IsVerified, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("organization not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan organization: %w", err)
	}
	parsed, err := id.ParseOrgID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan organization id: %w", err)
	}
	o.ID = parsed
	return &o, nil
}
