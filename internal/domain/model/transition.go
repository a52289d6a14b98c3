package model

import "errors"

// Reasons a transition is refused. They never leave the service as errors;
// the arbiter reports them as a plain false.
var (
	ErrJobNotOpen      = errors.New("job is not open")
	ErrJobTaken        = errors.New("job already claimed")
	ErrNotPermitted    = errors.New("caller may not perform this transition")
	ErrInvalidState    = errors.New("transition not allowed from current status")
	ErrUnknownAssignee = errors.New("assignee has no profile")
)

// JobState is the arbitrated slice of a job row: status and claimant.
type JobState struct {
	Status    JobStatus
	ClaimedBy *string
}

func (s JobState) claimedBy(id string) bool {
	return s.ClaimedBy != nil && id != "" && *s.ClaimedBy == id
}

// Consistent reports whether a claimant is present exactly when the status requires one.
func (s JobState) Consistent() bool {
	return (s.ClaimedBy != nil) == s.Status.HoldsClaimant()
}

// Caller is the identity a transition is evaluated for. IsAdmin must come from trusted storage.
type Caller struct {
	ID      string
	IsAdmin bool
}

// Claim takes an open, unclaimed job for the caller.
func Claim(s JobState, c Caller) (JobState, error) {
	if s.Status != JobStatusOpen {
		return s, ErrJobNotOpen
	}
	if s.ClaimedBy != nil {
		return s, ErrJobTaken
	}
	id := c.ID
	return JobState{Status: JobStatusAssigned, ClaimedBy: &id}, nil
}

// Unclaim releases an assigned job back to open. Admins or the claimant only.
func Unclaim(s JobState, c Caller) (JobState, error) {
	if !c.IsAdmin && !s.claimedBy(c.ID) {
		return s, ErrNotPermitted
	}
	if s.Status != JobStatusAssigned {
		return s, ErrInvalidState
	}
	return JobState{Status: JobStatusOpen}, nil
}

// AssignTo hands the job to guideID regardless of its current state. Admins only.
func AssignTo(s JobState, c Caller, guideID string) (JobState, error) {
	if !c.IsAdmin {
		return s, ErrNotPermitted
	}
	if guideID == "" {
		return s, ErrUnknownAssignee
	}
	id := guideID
	return JobState{Status: JobStatusAssigned, ClaimedBy: &id}, nil
}

// Complete marks an assigned job done, keeping the claimant. Completing a
// complete job is a no-op success.
func Complete(s JobState, c Caller) (JobState, error) {
	if !c.IsAdmin && !s.claimedBy(c.ID) {
		return s, ErrNotPermitted
	}
	if s.Status != JobStatusAssigned && s.Status != JobStatusComplete {
		return s, ErrInvalidState
	}
	return JobState{Status: JobStatusComplete, ClaimedBy: s.ClaimedBy}, nil
}

// Cancel withdraws the job and clears the claimant. Admins only; idempotent.
func Cancel(s JobState, c Caller) (JobState, error) {
	if !c.IsAdmin {
		return s, ErrNotPermitted
	}
	return JobState{Status: JobStatusCanceled}, nil
}
