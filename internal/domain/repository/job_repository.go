package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"guideboard/internal/common"
	"guideboard/internal/dbx"
	"guideboard/internal/domain/model"

	"github.com/jackc/pgx/v5/pgtype"
)

// JobFilter narrows List. Zero values mean "no restriction".
type JobFilter struct {
	// VisibleTo, when set, keeps only open jobs and jobs claimed by this profile.
	VisibleTo    *string
	ClaimedBy    string
	Statuses     []model.JobStatus
	DateFrom     string // inclusive, YYYY-MM-DD
	DateTo       string // inclusive, YYYY-MM-DD
	UpdatedSince *time.Time
	Limit        int
	Offset       int
}

// JobPatch carries the editable job fields. Status and claimant are absent on purpose:
// they move only through the arbiter.
type JobPatch struct {
	Title        *string
	JobDate      *string
	CallTime     *string
	Location     *string
	Boat         *string
	Pay          *float64
	Requirements *[]string
	Notes        *string
}

func (p JobPatch) Empty() bool {
	return p.Title == nil && p.JobDate == nil && p.CallTime == nil && p.Location == nil &&
		p.Boat == nil && p.Pay == nil && p.Requirements == nil && p.Notes == nil
}

type JobRepository interface {
	Create(ctx context.Context, job *model.Job) error
	Update(ctx context.Context, id string, patch JobPatch) error
	FindByID(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, f JobFilter) ([]model.Job, int, error)
	Delete(ctx context.Context, id string) error

	// LockState reads status and claimant and holds the row lock until the
	// surrounding transaction ends. Only meaningful on a *sql.Tx.
	LockState(ctx context.Context, id string) (model.JobState, error)
	SetState(ctx context.Context, id string, s model.JobState) error
}

type pgJobRepository struct {
	db dbx.DBTX
}

func NewPgJobRepository(db dbx.DBTX) JobRepository {
	return &pgJobRepository{db: db}
}

const jobSelect = `
        SELECT j.id, j.title, to_char(j.job_date, 'YYYY-MM-DD'), j.call_time,
               j.location, j.boat, j.pay::float8, j.requirements, j.notes,
               j.status, j.claimed_by, j.created_by, j.created_at, j.updated_at,
               cp.display_name
        FROM jobs j
        LEFT JOIN profiles cp ON cp.id = j.claimed_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner, m *pgtype.Map, j *model.Job) error {
	err := row.Scan(
		&j.ID, &j.Title, &j.JobDate, &j.CallTime,
		&j.Location, &j.Boat, &j.Pay, m.SQLScanner(&j.Requirements), &j.Notes,
		&j.Status, &j.ClaimedBy, &j.CreatedBy, &j.CreatedAt, &j.UpdatedAt,
		&j.ClaimedByName,
	)
	if j.Requirements == nil {
		j.Requirements = []string{}
	}
	return err
}

func (r *pgJobRepository) Create(ctx context.Context, j *model.Job) error {
	query := `INSERT INTO jobs (id, title, job_date, call_time, location, boat, pay, requirements, notes, status, claimed_by, created_by)
	          VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	          RETURNING created_at, updated_at`
	if j.Requirements == nil {
		j.Requirements = []string{}
	}
	err := r.db.QueryRowContext(ctx, query,
		j.ID, j.Title, j.JobDate, j.CallTime, j.Location, j.Boat, j.Pay, j.Requirements, j.Notes,
		string(j.Status), j.ClaimedBy, j.CreatedBy,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("job %s already exists: %w", j.ID, common.ErrConflict)
		}
		return fmt.Errorf("pgJobRepository.Create: %w", err)
	}
	return nil
}

func (r *pgJobRepository) Update(ctx context.Context, id string, p JobPatch) error {
	var sets []string
	var args []any
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}
	if p.Title != nil {
		add("title = $%d", *p.Title)
	}
	if p.JobDate != nil {
		add("job_date = $%d::date", *p.JobDate)
	}
	if p.CallTime != nil {
		add("call_time = $%d", *p.CallTime)
	}
	if p.Location != nil {
		add("location = $%d", nullIfEmpty(*p.Location))
	}
	if p.Boat != nil {
		add("boat = $%d", nullIfEmpty(*p.Boat))
	}
	if p.Pay != nil {
		add("pay = $%d", *p.Pay)
	}
	if p.Requirements != nil {
		add("requirements = $%d", *p.Requirements)
	}
	if p.Notes != nil {
		add("notes = $%d", nullIfEmpty(*p.Notes))
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE jobs SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("pgJobRepository.Update: %w", err)
	}
	return expectOneRow(res, "pgJobRepository.Update")
}

func (r *pgJobRepository) FindByID(ctx context.Context, id string) (*model.Job, error) {
	job := &model.Job{}
	err := scanJob(r.db.QueryRowContext(ctx, jobSelect+` WHERE j.id = $1`, id), pgtype.NewMap(), job)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgJobRepository.FindByID: %w", err)
	}
	return job, nil
}

func (r *pgJobRepository) List(ctx context.Context, f JobFilter) ([]model.Job, int, error) {
	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.VisibleTo != nil {
		conditions = append(conditions, fmt.Sprintf("(j.status = 'open' OR j.claimed_by = %s)", arg(*f.VisibleTo)))
	}
	if f.ClaimedBy != "" {
		conditions = append(conditions, "j.claimed_by = "+arg(f.ClaimedBy))
	}
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			placeholders[i] = arg(string(s))
		}
		conditions = append(conditions, fmt.Sprintf("j.status IN (%s)", strings.Join(placeholders, ", ")))
	}
	if f.DateFrom != "" {
		conditions = append(conditions, fmt.Sprintf("j.job_date >= %s::date", arg(f.DateFrom)))
	}
	if f.DateTo != "" {
		conditions = append(conditions, fmt.Sprintf("j.job_date <= %s::date", arg(f.DateTo)))
	}
	if f.UpdatedSince != nil {
		conditions = append(conditions, "j.updated_at > "+arg(*f.UpdatedSince))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs j`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgJobRepository.List count: %w", err)
	}

	query := jobSelect + where + fmt.Sprintf(" ORDER BY j.job_date, j.call_time, j.id LIMIT %s OFFSET %s", arg(f.Limit), arg(f.Offset))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgJobRepository.List query: %w", err)
	}
	defer rows.Close()

	m := pgtype.NewMap()
	jobs := []model.Job{}
	for rows.Next() {
		var j model.Job
		if err := scanJob(rows, m, &j); err != nil {
			return nil, 0, fmt.Errorf("pgJobRepository.List scan: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgJobRepository.List rows.Err: %w", err)
	}
	return jobs, total, nil
}

func (r *pgJobRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgJobRepository.Delete: %w", err)
	}
	return expectOneRow(res, "pgJobRepository.Delete")
}

func (r *pgJobRepository) LockState(ctx context.Context, id string) (model.JobState, error) {
	var s model.JobState
	err := r.db.QueryRowContext(ctx, `SELECT status, claimed_by FROM jobs WHERE id = $1 FOR UPDATE`, id).
		Scan(&s.Status, &s.ClaimedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, common.ErrNotFound
		}
		return s, fmt.Errorf("pgJobRepository.LockState: %w", err)
	}
	return s, nil
}

func (r *pgJobRepository) SetState(ctx context.Context, id string, s model.JobState) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, claimed_by = $2, updated_at = now() WHERE id = $3`,
		string(s.Status), s.ClaimedBy, id)
	if err != nil {
		return fmt.Errorf("pgJobRepository.SetState: %w", err)
	}
	return expectOneRow(res, "pgJobRepository.SetState")
}

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
