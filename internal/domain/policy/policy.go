// Package policy decides what a principal may read or change. Every service
// call that touches the store asks Authorize first; anything not granted
// below is denied.
package policy

import (
	"fmt"

	"guideboard/internal/common"
	"guideboard/internal/domain/model"
)

// Principal is the authenticated caller. Role is loaded from the profile
// store for every request and never taken from the client.
type Principal struct {
	ID   string
	Role string
}

func (p Principal) IsAdmin() bool {
	return p.Role == model.RoleAdmin
}

// Caller converts the principal into the identity the state machine evaluates.
func (p Principal) Caller() model.Caller {
	return model.Caller{ID: p.ID, IsAdmin: p.IsAdmin()}
}

type Action string

const (
	ReadJob       Action = "job:read"
	CreateJob     Action = "job:create"
	UpdateJob     Action = "job:update"
	ReadContact   Action = "contact:read"
	WriteContact  Action = "contact:write"
	ReadProfile   Action = "profile:read"
	UpdateProfile Action = "profile:update"
	ListProfiles  Action = "profile:list"
)

// hidden actions answer a denial with not found so the caller cannot probe
// for rows it may not see.
func (a Action) hidden() bool {
	return a == ReadJob || a == ReadContact || a == ReadProfile
}

// Authorize checks action against job. job may be nil for actions that do
// not target a job row.
func Authorize(p Principal, action Action, job *model.Job) error {
	if allowed(p, action, job) {
		return nil
	}
	if action.hidden() {
		return common.ErrNotFound
	}
	return fmt.Errorf("%s: %w", action, common.ErrForbidden)
}

// AuthorizeProfile checks a profile action against the target profile id.
func AuthorizeProfile(p Principal, action Action, profileID string) error {
	ok := false
	switch action {
	case ReadProfile:
		ok = p.IsAdmin() || (p.ID != "" && p.ID == profileID)
	case UpdateProfile:
		ok = p.ID != "" && p.ID == profileID
	case ListProfiles:
		ok = p.IsAdmin()
	}
	if ok {
		return nil
	}
	if action.hidden() {
		return common.ErrNotFound
	}
	return fmt.Errorf("%s: %w", action, common.ErrForbidden)
}

func allowed(p Principal, action Action, job *model.Job) bool {
	if p.ID == "" {
		return false
	}
	switch action {
	case CreateJob:
		return p.IsAdmin()
	case UpdateJob, WriteContact:
		return p.IsAdmin() && job != nil
	case ReadJob:
		if job == nil {
			return false
		}
		return p.IsAdmin() || job.Status == model.JobStatusOpen || job.IsClaimedBy(p.ID)
	case ReadContact:
		if job == nil {
			return false
		}
		return p.IsAdmin() || job.IsClaimedBy(p.ID)
	}
	return false
}

// Scope is the row filter a list query must apply for a principal.
// Unrestricted scopes see every job; otherwise a row is visible when it is
// open or claimed by VisibleTo.
type Scope struct {
	Unrestricted bool
	VisibleTo    string
}

func Visibility(p Principal) Scope {
	if p.IsAdmin() {
		return Scope{Unrestricted: true}
	}
	return Scope{VisibleTo: p.ID}
}
