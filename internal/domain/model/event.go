package model

import "time"

type JobEventKind string

const (
	JobEventCreated        JobEventKind = "created"
	JobEventUpdated        JobEventKind = "updated"
	JobEventClaimed        JobEventKind = "claimed"
	JobEventUnclaimed      JobEventKind = "unclaimed"
	JobEventAssigned       JobEventKind = "assigned"
	JobEventCompleted      JobEventKind = "completed"
	JobEventCanceled       JobEventKind = "canceled"
	JobEventContactUpdated JobEventKind = "contact_updated"
)

// JobEvent is a change notification. It carries no customer data and no
// claimant identity; subscribers reload through the normal read path.
type JobEvent struct {
	JobID  string       `json:"job_id"`
	Kind   JobEventKind `json:"kind"`
	Status JobStatus    `json:"status"`
	At     time.Time    `json:"at"`
}
