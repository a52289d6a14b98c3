package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"guideboard/internal/common"
	"guideboard/internal/dbx"
	"guideboard/internal/domain/model"
)

type ContactRepository interface {
	Upsert(ctx context.Context, c *model.Contact) error
	FindByJobID(ctx context.Context, jobID string) (*model.Contact, error)
}

type pgContactRepository struct {
	db dbx.DBTX
}

func NewPgContactRepository(db dbx.DBTX) ContactRepository {
	return &pgContactRepository{db: db}
}

func (r *pgContactRepository) Upsert(ctx context.Context, c *model.Contact) error {
	query := `INSERT INTO job_contacts (job_id, customer_name, phone, email)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (job_id) DO UPDATE
	          SET customer_name = EXCLUDED.customer_name,
	              phone = EXCLUDED.phone,
	              email = EXCLUDED.email,
	              updated_at = now()
	          RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, c.JobID, c.CustomerName, c.Phone, c.Email).Scan(&c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgContactRepository.Upsert: %w", err)
	}
	return nil
}

func (r *pgContactRepository) FindByJobID(ctx context.Context, jobID string) (*model.Contact, error) {
	query := `SELECT job_id, customer_name, phone, email, updated_at
	          FROM job_contacts WHERE job_id = $1`
	c := &model.Contact{}
	err := r.db.QueryRowContext(ctx, query, jobID).Scan(&c.JobID, &c.CustomerName, &c.Phone, &c.Email, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgContactRepository.FindByJobID: %w", err)
	}
	return c, nil
}
