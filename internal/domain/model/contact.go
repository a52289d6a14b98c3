package model

import "time"

// Contact is the customer attached to a job. Visible only to admins and the job's claimant.
type Contact struct {
	JobID        string    `json:"job_id"`
	CustomerName string    `json:"customer_name"`
	Phone        *string   `json:"phone,omitempty"`
	Email        *string   `json:"email,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}
