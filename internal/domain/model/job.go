package model

import (
	"sort"
	"time"

	"github.com/gosimple/slug"
)

type JobStatus string

const (
	JobStatusOpen     JobStatus = "open"
	JobStatusAssigned JobStatus = "assigned"
	JobStatusComplete JobStatus = "complete"
	JobStatusCanceled JobStatus = "canceled"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusOpen, JobStatusAssigned, JobStatusComplete, JobStatusCanceled:
		return true
	}
	return false
}

// HoldsClaimant reports whether a job in this status must carry a claimant.
func (s JobStatus) HoldsClaimant() bool {
	return s == JobStatusAssigned || s == JobStatusComplete
}

const (
	DateLayout     = "2006-01-02"
	CallTimeLayout = "15:04"
)

type Job struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	JobDate      string    `json:"job_date"`  // YYYY-MM-DD
	CallTime     string    `json:"call_time"` // HH:MM, 24h
	Location     *string   `json:"location,omitempty"`
	Boat         *string   `json:"boat,omitempty"`
	Pay          *float64  `json:"pay,omitempty"`
	Requirements []string  `json:"requirements"`
	Notes        *string   `json:"notes,omitempty"`
	Status       JobStatus `json:"status"`
	ClaimedBy    *string   `json:"claimed_by,omitempty"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Contact       *Contact `json:"contact,omitempty"`         // only when the caller may see it
	ClaimedByName *string  `json:"claimed_by_name,omitempty"` // for display
}

// State returns the arbitrated part of the job.
func (j *Job) State() JobState {
	return JobState{Status: j.Status, ClaimedBy: j.ClaimedBy}
}

// IsClaimedBy reports whether userID currently holds the job.
func (j *Job) IsClaimedBy(userID string) bool {
	return j.ClaimedBy != nil && userID != "" && *j.ClaimedBy == userID
}

// NormalizeRequirements slugifies, de-duplicates and sorts requirement tags.
func NormalizeRequirements(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		s := slug.Make(t)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ValidDate reports whether s is a calendar date in DateLayout.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// ValidCallTime reports whether s is a 24h HH:MM clock time.
func ValidCallTime(s string) bool {
	if len(s) != len(CallTimeLayout) {
		return false
	}
	_, err := time.Parse(CallTimeLayout, s)
	return err == nil
}
