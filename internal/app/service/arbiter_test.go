package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"guideboard/internal/common"
	"guideboard/internal/dbx"
	"guideboard/internal/domain/model"
	"guideboard/internal/domain/policy"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	setLockTimeout = `SELECT set_config\('lock_timeout', \$1, true\), set_config\('statement_timeout', \$2, true\)`
	selectRole     = `SELECT role FROM profiles WHERE id = \$1`
	lockJob        = `SELECT status, claimed_by FROM jobs WHERE id = \$1 FOR UPDATE`
	setState       = `UPDATE jobs SET status = \$1, claimed_by = \$2, updated_at = now\(\) WHERE id = \$3`
)

func expectPrelude(mock sqlmock.Sqlmock, callerID, role string) {
	mock.ExpectBegin()
	mock.ExpectExec(setLockTimeout).WithArgs("5000ms", "5000ms").WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"role"})
	if role != "" {
		rows.AddRow(role)
	}
	mock.ExpectQuery(selectRole).WithArgs(callerID).WillReturnRows(rows)
}

func expectLock(mock sqlmock.Sqlmock, status model.JobStatus, claimedBy any) {
	mock.ExpectQuery(lockJob).WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows([]string{"status", "claimed_by"}).AddRow(string(status), claimedBy))
}

func TestClaim_OpenJob(t *testing.T) {
	svc, mock, pub := newJobService(t)

	expectPrelude(mock, guideA, model.RoleGuide)
	expectLock(mock, model.JobStatusOpen, nil)
	mock.ExpectExec(setState).WithArgs("assigned", guideA, jobID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := svc.Claim(context.Background(), guideA, jobID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []model.JobEventKind{model.JobEventClaimed}, pub.kinds())
	assert.Equal(t, model.JobStatusAssigned, pub.events[0].Status)
}

func TestClaim_AlreadyTakenRollsBack(t *testing.T) {
	svc, mock, pub := newJobService(t)

	expectPrelude(mock, guideB, model.RoleGuide)
	expectLock(mock, model.JobStatusAssigned, guideA)
	mock.ExpectRollback()

	ok, err := svc.Claim(context.Background(), guideB, jobID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, pub.kinds())
}

func TestClaim_UnknownCaller(t *testing.T) {
	svc, mock, _ := newJobService(t)

	expectPrelude(mock, guideA, "")
	mock.ExpectRollback()

	ok, err := svc.Claim(context.Background(), guideA, jobID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaim_MissingJob(t *testing.T) {
	svc, mock, _ := newJobService(t)

	expectPrelude(mock, guideA, model.RoleGuide)
	mock.ExpectQuery(lockJob).WithArgs(jobID).WillReturnRows(sqlmock.NewRows([]string{"status", "claimed_by"}))
	mock.ExpectRollback()

	ok, err := svc.Claim(context.Background(), guideA, jobID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaim_MalformedIDsNeverReachTheStore(t *testing.T) {
	svc, _, _ := newJobService(t)

	ok, err := svc.Claim(context.Background(), guideA, "not-a-uuid")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.Claim(context.Background(), "", jobID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaim_LockTimeoutIsAnError(t *testing.T) {
	svc, mock, _ := newJobService(t)

	expectPrelude(mock, guideA, model.RoleGuide)
	mock.ExpectQuery(lockJob).WithArgs(jobID).
		WillReturnError(&pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"})
	mock.ExpectRollback()

	ok, err := svc.Claim(context.Background(), guideA, jobID)
	assert.False(t, ok)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrServiceUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, common.HTTPStatusFromError(err))
}

func TestClaim_BeginFailureIsAnError(t *testing.T) {
	svc, mock, _ := newJobService(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	ok, err := svc.Claim(context.Background(), guideA, jobID)
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestClaim_CommitFailureIsAnError(t *testing.T) {
	svc, mock, pub := newJobService(t)

	expectPrelude(mock, guideA, model.RoleGuide)
	expectLock(mock, model.JobStatusOpen, nil)
	mock.ExpectExec(setState).WithArgs("assigned", guideA, jobID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("server closed the connection"))

	ok, err := svc.Claim(context.Background(), guideA, jobID)
	assert.False(t, ok)
	require.Error(t, err)
	assert.Empty(t, pub.kinds(), "nothing is announced for an uncommitted change")
}

func TestClaim_PublishFailureDoesNotFailTheClaim(t *testing.T) {
	svc, mock, pub := newJobService(t)
	pub.err = errors.New("redis down")

	expectPrelude(mock, guideA, model.RoleGuide)
	expectLock(mock, model.JobStatusOpen, nil)
	mock.ExpectExec(setState).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := svc.Claim(context.Background(), guideA, jobID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnclaim_ByClaimant(t *testing.T) {
	svc, mock, pub := newJobService(t)

	expectPrelude(mock, guideA, model.RoleGuide)
	expectLock(mock, model.JobStatusAssigned, guideA)
	mock.ExpectExec(setState).WithArgs("open", nil, jobID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := svc.Unclaim(context.Background(), guideA, jobID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []model.JobEventKind{model.JobEventUnclaimed}, pub.kinds())
}

func TestUnclaim_ByOtherGuide(t *testing.T) {
	svc, mock, _ := newJobService(t)

	expectPrelude(mock, guideB, model.RoleGuide)
	expectLock(mock, model.JobStatusAssigned, guideA)
	mock.ExpectRollback()

	ok, err := svc.Unclaim(context.Background(), guideB, jobID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAssignTo_AdminOverride(t *testing.T) {
	svc, mock, pub := newJobService(t)

	expectPrelude(mock, adminID, model.RoleAdmin)
	expectLock(mock, model.JobStatusAssigned, guideA)
	mock.ExpectQuery(selectRole).WithArgs(guideB).WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(model.RoleGuide))
	mock.ExpectExec(setState).WithArgs("assigned", guideB, jobID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := svc.AssignTo(context.Background(), adminID, jobID, guideB)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []model.JobEventKind{model.JobEventAssigned}, pub.kinds())
}

func TestAssignTo_UnknownGuide(t *testing.T) {
	svc, mock, _ := newJobService(t)

	expectPrelude(mock, adminID, model.RoleAdmin)
	expectLock(mock, model.JobStatusOpen, nil)
	mock.ExpectQuery(selectRole).WithArgs(guideB).WillReturnRows(sqlmock.NewRows([]string{"role"}))
	mock.ExpectRollback()

	ok, err := svc.AssignTo(context.Background(), adminID, jobID, guideB)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAssignTo_GuideCaller(t *testing.T) {
	svc, mock, _ := newJobService(t)

	expectPrelude(mock, guideA, model.RoleGuide)
	expectLock(mock, model.JobStatusOpen, nil)
	mock.ExpectRollback()

	ok, err := svc.AssignTo(context.Background(), guideA, jobID, guideA)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestComplete_ByClaimant(t *testing.T) {
	svc, mock, _ := newJobService(t)

	expectPrelude(mock, guideA, model.RoleGuide)
	expectLock(mock, model.JobStatusAssigned, guideA)
	mock.ExpectExec(setState).WithArgs("complete", guideA, jobID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := svc.Complete(context.Background(), guideA, jobID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestComplete_OpenJobRefused(t *testing.T) {
	svc, mock, _ := newJobService(t)

	expectPrelude(mock, adminID, model.RoleAdmin)
	expectLock(mock, model.JobStatusOpen, nil)
	mock.ExpectRollback()

	ok, err := svc.Complete(context.Background(), adminID, jobID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCancel_ClearsClaimant(t *testing.T) {
	svc, mock, pub := newJobService(t)

	expectPrelude(mock, adminID, model.RoleAdmin)
	expectLock(mock, model.JobStatusAssigned, guideA)
	mock.ExpectExec(setState).WithArgs("canceled", nil, jobID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := svc.Cancel(context.Background(), adminID, jobID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []model.JobEventKind{model.JobEventCanceled}, pub.kinds())
}

func TestCancel_AlreadyCanceledIsNoOp(t *testing.T) {
	svc, mock, pub := newJobService(t)

	expectPrelude(mock, adminID, model.RoleAdmin)
	expectLock(mock, model.JobStatusCanceled, nil)
	mock.ExpectCommit()

	ok, err := svc.Cancel(context.Background(), adminID, jobID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, pub.kinds())
}

func TestCancel_GuideRefused(t *testing.T) {
	svc, mock, _ := newJobService(t)

	expectPrelude(mock, guideA, model.RoleGuide)
	expectLock(mock, model.JobStatusAssigned, guideA)
	mock.ExpectRollback()

	ok, err := svc.Cancel(context.Background(), guideA, jobID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArbiter_NoLockTimeoutConfigured(t *testing.T) {
	svc, mock, _ := newJobService(t)
	svc.lockTimeout = 0

	mock.ExpectBegin()
	mock.ExpectQuery(selectRole).WithArgs(guideA).WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(model.RoleGuide))
	expectLock(mock, model.JobStatusOpen, nil)
	mock.ExpectExec(setState).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := svc.Claim(context.Background(), guideA, jobID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExplainRefusal(t *testing.T) {
	tests := []struct {
		name   string
		p      policy.Principal
		op     Transition
		status model.JobStatus
		holder any
		want   string
	}{
		{"claim on a job held by me", policy.Principal{ID: guideA, Role: model.RoleGuide}, TransitionClaim, model.JobStatusAssigned, guideA, ReasonAlreadyTaken},
		{"admin claim on taken job", policy.Principal{ID: adminID, Role: model.RoleAdmin}, TransitionClaim, model.JobStatusAssigned, guideB, ReasonAlreadyTaken},
		{"admin claim on canceled job", policy.Principal{ID: adminID, Role: model.RoleAdmin}, TransitionClaim, model.JobStatusCanceled, nil, ReasonInvalidState},
		{"guide cancels", policy.Principal{ID: guideA, Role: model.RoleGuide}, TransitionCancel, model.JobStatusAssigned, guideA, ReasonForbidden},
		{"claimant unclaims complete job", policy.Principal{ID: guideA, Role: model.RoleGuide}, TransitionUnclaim, model.JobStatusComplete, guideA, ReasonInvalidState},
		{"admin assigns to missing guide", policy.Principal{ID: adminID, Role: model.RoleAdmin}, TransitionAssign, model.JobStatusOpen, nil, ReasonUnknownGuide},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock, _ := newJobService(t)
			mock.ExpectQuery(`WHERE j.id = \$1`).WithArgs(jobID).WillReturnRows(jobRow(tt.status, tt.holder))

			got, err := svc.ExplainRefusal(context.Background(), tt.p, tt.op, jobID, guideB)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExplainRefusal_LostClaimRace(t *testing.T) {
	svc, mock, pub := newJobService(t)
	loser := policy.Principal{ID: guideB, Role: model.RoleGuide}

	expectPrelude(mock, guideB, model.RoleGuide)
	expectLock(mock, model.JobStatusAssigned, guideA)
	mock.ExpectRollback()
	ok, err := svc.Claim(context.Background(), guideB, jobID)
	require.NoError(t, err)
	require.False(t, ok)
	assert.Empty(t, pub.kinds())

	mock.ExpectQuery(`WHERE j.id = \$1`).WithArgs(jobID).WillReturnRows(jobRow(model.JobStatusAssigned, guideA))
	reason, err := svc.ExplainRefusal(context.Background(), loser, TransitionClaim, jobID, "")
	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyTaken, reason)
}

func TestExplainRefusal_ClaimOnCanceledHiddenJob(t *testing.T) {
	svc, mock, _ := newJobService(t)
	mock.ExpectQuery(`WHERE j.id = \$1`).WithArgs(jobID).WillReturnRows(jobRow(model.JobStatusCanceled, nil))

	reason, err := svc.ExplainRefusal(context.Background(), policy.Principal{ID: guideB, Role: model.RoleGuide}, TransitionClaim, jobID, "")
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidState, reason)
}

func TestExplainRefusal_HiddenJobOtherOps(t *testing.T) {
	svc, mock, _ := newJobService(t)
	mock.ExpectQuery(`WHERE j.id = \$1`).WithArgs(jobID).WillReturnRows(jobRow(model.JobStatusAssigned, guideA))

	_, err := svc.ExplainRefusal(context.Background(), policy.Principal{ID: guideB, Role: model.RoleGuide}, TransitionComplete, jobID, "")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestExplainRefusal_MissingJob(t *testing.T) {
	svc, mock, _ := newJobService(t)
	mock.ExpectQuery(`WHERE j.id = \$1`).WithArgs(jobID).WillReturnRows(sqlmock.NewRows(jobCols))

	_, err := svc.ExplainRefusal(context.Background(), policy.Principal{ID: guideB, Role: model.RoleGuide}, TransitionClaim, jobID, "")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = svc.ExplainRefusal(context.Background(), policy.Principal{ID: guideB, Role: model.RoleGuide}, TransitionClaim, "not-a-uuid", "")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestArbitrate_InconsistentStepNeverWrites(t *testing.T) {
	svc, mock, pub := newJobService(t)

	expectPrelude(mock, adminID, model.RoleAdmin)
	expectLock(mock, model.JobStatusOpen, nil)
	mock.ExpectRollback()

	ok, err := svc.arbitrate(context.Background(), TransitionAssign, adminID, jobID, model.JobEventAssigned,
		func(_ context.Context, _ dbx.DBTX, _ model.JobState, _ model.Caller) (model.JobState, error) {
			return model.JobState{Status: model.JobStatusAssigned}, nil
		})
	require.ErrorIs(t, err, errInconsistentState)
	assert.False(t, ok)
	assert.Empty(t, pub.kinds())
}
