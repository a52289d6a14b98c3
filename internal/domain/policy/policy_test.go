package policy

import (
	"testing"

	"guideboard/internal/common"
	"guideboard/internal/domain/model"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

var (
	adminP = Principal{ID: "admin-1", Role: model.RoleAdmin}
	guideA = Principal{ID: "guide-a", Role: model.RoleGuide}
	guideB = Principal{ID: "guide-b", Role: model.RoleGuide}
	anon   = Principal{}
)

func TestAuthorize_ReadJob(t *testing.T) {
	openJob := &model.Job{ID: "j1", Status: model.JobStatusOpen}
	heldByA := &model.Job{ID: "j2", Status: model.JobStatusAssigned, ClaimedBy: strPtr("guide-a")}
	canceled := &model.Job{ID: "j3", Status: model.JobStatusCanceled}

	assert.NoError(t, Authorize(guideB, ReadJob, openJob))
	assert.NoError(t, Authorize(guideA, ReadJob, heldByA))
	assert.NoError(t, Authorize(adminP, ReadJob, canceled))

	assert.ErrorIs(t, Authorize(guideB, ReadJob, heldByA), common.ErrNotFound)
	assert.ErrorIs(t, Authorize(guideA, ReadJob, canceled), common.ErrNotFound)
	assert.ErrorIs(t, Authorize(anon, ReadJob, openJob), common.ErrNotFound)
	assert.ErrorIs(t, Authorize(adminP, ReadJob, nil), common.ErrNotFound)
}

func TestAuthorize_Contact(t *testing.T) {
	heldByA := &model.Job{ID: "j2", Status: model.JobStatusComplete, ClaimedBy: strPtr("guide-a")}
	openJob := &model.Job{ID: "j1", Status: model.JobStatusOpen}

	assert.NoError(t, Authorize(guideA, ReadContact, heldByA))
	assert.NoError(t, Authorize(adminP, ReadContact, openJob))
	assert.ErrorIs(t, Authorize(guideB, ReadContact, heldByA), common.ErrNotFound)
	assert.ErrorIs(t, Authorize(guideA, ReadContact, openJob), common.ErrNotFound, "open jobs do not expose the customer")

	assert.NoError(t, Authorize(adminP, WriteContact, openJob))
	assert.ErrorIs(t, Authorize(guideA, WriteContact, heldByA), common.ErrForbidden, "claimant may read but not write")
}

func TestAuthorize_JobWrites(t *testing.T) {
	job := &model.Job{ID: "j1", Status: model.JobStatusOpen}

	assert.NoError(t, Authorize(adminP, CreateJob, nil))
	assert.NoError(t, Authorize(adminP, UpdateJob, job))
	assert.ErrorIs(t, Authorize(guideA, CreateJob, nil), common.ErrForbidden)
	assert.ErrorIs(t, Authorize(guideA, UpdateJob, job), common.ErrForbidden)
	assert.ErrorIs(t, Authorize(adminP, Action("job:delete"), job), common.ErrForbidden, "unknown actions are denied")
}

func TestAuthorizeProfile(t *testing.T) {
	assert.NoError(t, AuthorizeProfile(guideA, ReadProfile, "guide-a"))
	assert.NoError(t, AuthorizeProfile(adminP, ReadProfile, "guide-a"))
	assert.ErrorIs(t, AuthorizeProfile(guideB, ReadProfile, "guide-a"), common.ErrNotFound)

	assert.NoError(t, AuthorizeProfile(guideA, UpdateProfile, "guide-a"))
	assert.ErrorIs(t, AuthorizeProfile(adminP, UpdateProfile, "guide-a"), common.ErrForbidden)

	assert.NoError(t, AuthorizeProfile(adminP, ListProfiles, ""))
	assert.ErrorIs(t, AuthorizeProfile(guideA, ListProfiles, ""), common.ErrForbidden)
}

func TestVisibility(t *testing.T) {
	assert.Equal(t, Scope{Unrestricted: true}, Visibility(adminP))
	assert.Equal(t, Scope{VisibleTo: "guide-a"}, Visibility(guideA))
}

func TestPrincipalCaller(t *testing.T) {
	assert.Equal(t, model.Caller{ID: "admin-1", IsAdmin: true}, adminP.Caller())
	assert.Equal(t, model.Caller{ID: "guide-a"}, guideA.Caller())
}
