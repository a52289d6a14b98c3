package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"guideboard/internal/common"
	"guideboard/internal/domain/model"
	"guideboard/internal/domain/policy"
	"guideboard/internal/domain/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher delivers change notifications. Delivery is best effort.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, ev model.JobEvent) error
}

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
	publishTimeout  = 2 * time.Second
)

type JobService struct {
	db          *sql.DB
	repos       repository.Manager
	events      EventPublisher
	lockTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func NewJobService(db *sql.DB, repos repository.Manager, events EventPublisher, lockTimeout time.Duration, logger *zap.Logger) *JobService {
	return &JobService{
		db:          db,
		repos:       repos,
		events:      events,
		lockTimeout: lockTimeout,
		logger:      logger.Named("jobs"),
		now:         time.Now,
	}
}

type CreateJobRequest struct {
	Title        string          `json:"title"`
	JobDate      string          `json:"job_date"`
	CallTime     string          `json:"call_time"`
	Location     *string         `json:"location,omitempty"`
	Boat         *string         `json:"boat,omitempty"`
	Pay          *float64        `json:"pay,omitempty"`
	Requirements []string        `json:"requirements"`
	Notes        *string         `json:"notes,omitempty"`
	Contact      *ContactRequest `json:"contact,omitempty"`
}

// UpdateJobRequest is a partial update. Absent fields are left alone; an
// empty string clears an optional text field.
type UpdateJobRequest struct {
	Title        *string   `json:"title,omitempty"`
	JobDate      *string   `json:"job_date,omitempty"`
	CallTime     *string   `json:"call_time,omitempty"`
	Location     *string   `json:"location,omitempty"`
	Boat         *string   `json:"boat,omitempty"`
	Pay          *float64  `json:"pay,omitempty"`
	Requirements *[]string `json:"requirements,omitempty"`
	Notes        *string   `json:"notes,omitempty"`
}

type ListJobsRequest struct {
	Tab          string
	Status       string
	From         string
	To           string
	UpdatedSince *time.Time
	Page         int
	PageSize     int
}

type JobPage struct {
	Jobs     []model.Job `json:"jobs"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

const (
	TabOpen = "open"
	TabMine = "mine"
	TabAll  = "all"
)

func (s *JobService) CreateJob(ctx context.Context, p policy.Principal, req CreateJobRequest) (*model.Job, error) {
	if err := policy.Authorize(p, policy.CreateJob, nil); err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := validateJobFields(&req.Title, &req.JobDate, &req.CallTime, req.Pay); err != nil {
		return nil, err
	}
	if req.Contact != nil {
		if err := req.Contact.validate(); err != nil {
			return nil, err
		}
	}

	job := &model.Job{
		ID:           uuid.NewString(),
		Title:        req.Title,
		JobDate:      req.JobDate,
		CallTime:     req.CallTime,
		Location:     trimOptional(req.Location),
		Boat:         trimOptional(req.Boat),
		Pay:          req.Pay,
		Requirements: model.NormalizeRequirements(req.Requirements),
		Notes:        trimOptional(req.Notes),
		Status:       model.JobStatusOpen,
		CreatedBy:    p.ID,
	}
	jobs := s.repos.Jobs(s.db)
	if err := jobs.Create(ctx, job); err != nil {
		return nil, common.Errorf("failed to create job: %w", err)
	}

	if req.Contact != nil {
		contact := req.Contact.toModel(job.ID)
		if err := s.repos.Contacts(s.db).Upsert(ctx, contact); err != nil {
			// The job must not outlive a failed contact write.
			if derr := jobs.Delete(ctx, job.ID); derr != nil {
				s.logger.Error("failed to remove job after contact write failed",
					zap.String("job_id", job.ID), zap.Error(derr))
			}
			return nil, common.Errorf("failed to save job contact: %w", err)
		}
		job.Contact = contact
	}

	s.logger.Info("job created", zap.String("job_id", job.ID), zap.String("created_by", p.ID))
	s.publish(ctx, job.ID, model.JobEventCreated, job.Status)
	return job, nil
}

func (s *JobService) UpdateJob(ctx context.Context, p policy.Principal, jobID string, req UpdateJobRequest) (*model.Job, error) {
	job, err := s.loadVisible(ctx, p, jobID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(p, policy.UpdateJob, job); err != nil {
		return nil, err
	}

	patch, err := req.toPatch()
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return s.GetJob(ctx, p, jobID)
	}
	if err := s.repos.Jobs(s.db).Update(ctx, jobID, patch); err != nil {
		return nil, common.Errorf("failed to update job: %w", err)
	}

	s.logger.Info("job updated", zap.String("job_id", jobID), zap.String("updated_by", p.ID))
	updated, err := s.GetJob(ctx, p, jobID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, jobID, model.JobEventUpdated, updated.Status)
	return updated, nil
}

// GetJob returns the job if p may see it, with the customer contact attached
// when p may also see that.
func (s *JobService) GetJob(ctx context.Context, p policy.Principal, jobID string) (*model.Job, error) {
	job, err := s.loadVisible(ctx, p, jobID)
	if err != nil {
		return nil, err
	}
	if policy.Authorize(p, policy.ReadContact, job) == nil {
		contact, err := s.repos.Contacts(s.db).FindByJobID(ctx, jobID)
		switch {
		case err == nil:
			job.Contact = contact
		case !errors.Is(err, common.ErrNotFound):
			return nil, common.Errorf("failed to load job contact: %w", err)
		}
	}
	return job, nil
}

func (s *JobService) ListJobs(ctx context.Context, p policy.Principal, req ListJobsRequest) (*JobPage, error) {
	page, pageSize := normalizePage(req.Page, req.PageSize)
	f := repository.JobFilter{
		DateFrom:     req.From,
		DateTo:       req.To,
		UpdatedSince: req.UpdatedSince,
		Limit:        pageSize,
		Offset:       (page - 1) * pageSize,
	}

	if scope := policy.Visibility(p); !scope.Unrestricted {
		visibleTo := scope.VisibleTo
		f.VisibleTo = &visibleTo
	}

	switch req.Tab {
	case "":
	case TabOpen:
		f.Statuses = []model.JobStatus{model.JobStatusOpen}
	case TabMine:
		f.ClaimedBy = p.ID
	case TabAll:
		if !p.IsAdmin() {
			return nil, fmt.Errorf("tab %q: %w", req.Tab, common.ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("unknown tab %q: %w", req.Tab, common.ErrValidation)
	}

	if req.Status != "" {
		st := model.JobStatus(req.Status)
		if !st.Valid() {
			return nil, fmt.Errorf("unknown status %q: %w", req.Status, common.ErrValidation)
		}
		if req.Tab == TabOpen && st != model.JobStatusOpen {
			return &JobPage{Jobs: []model.Job{}, Page: page, PageSize: pageSize}, nil
		}
		f.Statuses = []model.JobStatus{st}
	}
	if req.From != "" && !model.ValidDate(req.From) {
		return nil, fmt.Errorf("from must be YYYY-MM-DD: %w", common.ErrValidation)
	}
	if req.To != "" && !model.ValidDate(req.To) {
		return nil, fmt.Errorf("to must be YYYY-MM-DD: %w", common.ErrValidation)
	}

	jobs, total, err := s.repos.Jobs(s.db).List(ctx, f)
	if err != nil {
		return nil, common.Errorf("failed to list jobs: %w", err)
	}

	visible := jobs[:0]
	for _, j := range jobs {
		if policy.Authorize(p, policy.ReadJob, &j) != nil {
			s.logger.Warn("list returned a row the principal may not read", zap.String("job_id", j.ID))
			total--
			continue
		}
		visible = append(visible, j)
	}
	return &JobPage{Jobs: visible, Total: total, Page: page, PageSize: pageSize}, nil
}

// loadVisible fetches jobID and hides it from principals that may not read it.
func (s *JobService) loadVisible(ctx context.Context, p policy.Principal, jobID string) (*model.Job, error) {
	if uuid.Validate(jobID) != nil {
		return nil, common.ErrNotFound
	}
	job, err := s.repos.Jobs(s.db).FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(p, policy.ReadJob, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobService) publish(ctx context.Context, jobID string, kind model.JobEventKind, status model.JobStatus) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	ev := model.JobEvent{JobID: jobID, Kind: kind, Status: status, At: s.now().UTC()}
	if err := s.events.PublishJobEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to publish job event",
			zap.String("job_id", jobID), zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (r UpdateJobRequest) toPatch() (repository.JobPatch, error) {
	patch := repository.JobPatch{
		Location: trimPatchField(r.Location),
		Boat:     trimPatchField(r.Boat),
		Notes:    trimPatchField(r.Notes),
		Pay:      r.Pay,
	}
	if r.Title != nil {
		t := strings.TrimSpace(*r.Title)
		if t == "" {
			return patch, fmt.Errorf("title must not be empty: %w", common.ErrValidation)
		}
		patch.Title = &t
	}
	if r.JobDate != nil {
		if !model.ValidDate(*r.JobDate) {
			return patch, fmt.Errorf("job_date must be YYYY-MM-DD: %w", common.ErrValidation)
		}
		patch.JobDate = r.JobDate
	}
	if r.CallTime != nil {
		if !model.ValidCallTime(*r.CallTime) {
			return patch, fmt.Errorf("call_time must be HH:MM: %w", common.ErrValidation)
		}
		patch.CallTime = r.CallTime
	}
	if r.Pay != nil && *r.Pay < 0 {
		return patch, fmt.Errorf("pay must not be negative: %w", common.ErrValidation)
	}
	if r.Requirements != nil {
		tags := model.NormalizeRequirements(*r.Requirements)
		patch.Requirements = &tags
	}
	return patch, nil
}

func validateJobFields(title, date, callTime *string, pay *float64) error {
	if *title == "" {
		return fmt.Errorf("title is required: %w", common.ErrValidation)
	}
	if !model.ValidDate(*date) {
		return fmt.Errorf("job_date must be YYYY-MM-DD: %w", common.ErrValidation)
	}
	if !model.ValidCallTime(*callTime) {
		return fmt.Errorf("call_time must be HH:MM: %w", common.ErrValidation)
	}
	if pay != nil && *pay < 0 {
		return fmt.Errorf("pay must not be negative: %w", common.ErrValidation)
	}
	return nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = defaultPage
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

// trimPatchField trims an optional patch value. Unlike trimOptional it keeps
// a blank result, which clears the column.
func trimPatchField(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
