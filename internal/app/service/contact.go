package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"guideboard/internal/common"
	"guideboard/internal/domain/model"
	"guideboard/internal/domain/policy"

	"go.uber.org/zap"
)

type ContactRequest struct {
	CustomerName string  `json:"customer_name"`
	Phone        *string `json:"phone,omitempty"`
	Email        *string `json:"email,omitempty"`
}

func (r *ContactRequest) validate() error {
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.Phone = trimOptional(r.Phone)
	r.Email = trimOptional(r.Email)
	if r.CustomerName == "" {
		return fmt.Errorf("customer_name is required: %w", common.ErrValidation)
	}
	if r.Email != nil {
		if _, err := mail.ParseAddress(*r.Email); err != nil {
			return fmt.Errorf("email is not a valid address: %w", common.ErrValidation)
		}
	}
	return nil
}

func (r *ContactRequest) toModel(jobID string) *model.Contact {
	return &model.Contact{JobID: jobID, CustomerName: r.CustomerName, Phone: r.Phone, Email: r.Email}
}

// PutContact creates or replaces the customer contact of a job. Admins only.
func (s *JobService) PutContact(ctx context.Context, p policy.Principal, jobID string, req ContactRequest) (*model.Contact, error) {
	job, err := s.loadVisible(ctx, p, jobID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(p, policy.WriteContact, job); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	contact := req.toModel(jobID)
	if err := s.repos.Contacts(s.db).Upsert(ctx, contact); err != nil {
		return nil, common.Errorf("failed to save job contact: %w", err)
	}
	s.logger.Info("job contact saved", zap.String("job_id", jobID), zap.String("updated_by", p.ID))
	s.publish(ctx, jobID, model.JobEventContactUpdated, job.Status)
	return contact, nil
}

// GetContact returns the contact of a job. Callers not allowed to see it get
// ErrNotFound, the same answer as for a job without a contact.
func (s *JobService) GetContact(ctx context.Context, p policy.Principal, jobID string) (*model.Contact, error) {
	job, err := s.loadVisible(ctx, p, jobID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(p, policy.ReadContact, job); err != nil {
		return nil, err
	}
	return s.repos.Contacts(s.db).FindByJobID(ctx, jobID)
}
