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

type ProfileRepository interface {
	// Ensure inserts p unless a profile with the same id exists, then returns the stored row.
	Ensure(ctx context.Context, p *model.Profile) (*model.Profile, error)
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	// FindRole returns only the trusted role column, for authorization.
	FindRole(ctx context.Context, id string) (string, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) (*model.Profile, error)
	List(ctx context.Context, limit, offset int) ([]model.Profile, int, error)
}

type pgProfileRepository struct {
	db dbx.DBTX
}

func NewPgProfileRepository(db dbx.DBTX) ProfileRepository {
	return &pgProfileRepository{db: db}
}

func (r *pgProfileRepository) Ensure(ctx context.Context, p *model.Profile) (*model.Profile, error) {
	query := `INSERT INTO profiles (id, display_name, role)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, p.ID, p.DisplayName, p.Role); err != nil {
		return nil, fmt.Errorf("pgProfileRepository.Ensure: %w", err)
	}
	return r.FindByID(ctx, p.ID)
}

func (r *pgProfileRepository) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	query := `SELECT id, display_name, role, created_at, updated_at
	          FROM profiles WHERE id = $1`
	p := &model.Profile{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.DisplayName, &p.Role, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProfileRepository.FindByID: %w", err)
	}
	return p, nil
}

func (r *pgProfileRepository) FindRole(ctx context.Context, id string) (string, error) {
	var role string
	err := r.db.QueryRowContext(ctx, `SELECT role FROM profiles WHERE id = $1`, id).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("pgProfileRepository.FindRole: %w", err)
	}
	return role, nil
}

func (r *pgProfileRepository) UpdateDisplayName(ctx context.Context, id, displayName string) (*model.Profile, error) {
	query := `UPDATE profiles SET display_name = $1, updated_at = now()
	          WHERE id = $2
	          RETURNING id, display_name, role, created_at, updated_at`
	p := &model.Profile{}
	err := r.db.QueryRowContext(ctx, query, displayName, id).Scan(&p.ID, &p.DisplayName, &p.Role, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProfileRepository.UpdateDisplayName: %w", err)
	}
	return p, nil
}

func (r *pgProfileRepository) List(ctx context.Context, limit, offset int) ([]model.Profile, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgProfileRepository.List count: %w", err)
	}

	query := `SELECT id, display_name, role, created_at, updated_at
	          FROM profiles
	          ORDER BY display_name, id
	          LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgProfileRepository.List query: %w", err)
	}
	defer rows.Close()

	profiles := []model.Profile{}
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Role, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("pgProfileRepository.List scan: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgProfileRepository.List rows.Err: %w", err)
	}
	return profiles, total, nil
}
