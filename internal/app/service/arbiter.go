package service

import (
	"context"
	"errors"
	"fmt"

	"guideboard/internal/common"
	"guideboard/internal/dbx"
	"guideboard/internal/domain/model"
	"guideboard/internal/domain/policy"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transition names an arbitrated state change.
type Transition string

const (
	TransitionClaim    Transition = "claim"
	TransitionUnclaim  Transition = "unclaim"
	TransitionAssign   Transition = "assign"
	TransitionComplete Transition = "complete"
	TransitionCancel   Transition = "cancel"
)

var errInconsistentState = errors.New("transition produced an inconsistent job state")

// refusal aborts the transaction without being an operational failure.
type refusal struct{ reason error }

func (r *refusal) Error() string { return "refused: " + r.reason.Error() }

type stepFunc func(ctx context.Context, tx dbx.DBTX, cur model.JobState, caller model.Caller) (model.JobState, error)

// Claim gives an open job to the caller. It returns false when the job is
// missing, not open or already claimed.
func (s *JobService) Claim(ctx context.Context, callerID, jobID string) (bool, error) {
	return s.arbitrate(ctx, TransitionClaim, callerID, jobID, model.JobEventClaimed,
		func(_ context.Context, _ dbx.DBTX, cur model.JobState, c model.Caller) (model.JobState, error) {
			return model.Claim(cur, c)
		})
}

// Unclaim puts an assigned job back to open. Admins and the claimant only.
func (s *JobService) Unclaim(ctx context.Context, callerID, jobID string) (bool, error) {
	return s.arbitrate(ctx, TransitionUnclaim, callerID, jobID, model.JobEventUnclaimed,
		func(_ context.Context, _ dbx.DBTX, cur model.JobState, c model.Caller) (model.JobState, error) {
			return model.Unclaim(cur, c)
		})
}

// AssignTo hands the job to guideID whatever its current state. Admins only;
// guideID must have a profile.
func (s *JobService) AssignTo(ctx context.Context, callerID, jobID, guideID string) (bool, error) {
	return s.arbitrate(ctx, TransitionAssign, callerID, jobID, model.JobEventAssigned,
		func(ctx context.Context, tx dbx.DBTX, cur model.JobState, c model.Caller) (model.JobState, error) {
			if !c.IsAdmin {
				return cur, model.ErrNotPermitted
			}
			if uuid.Validate(guideID) != nil {
				return cur, model.ErrUnknownAssignee
			}
			if _, err := s.repos.Profiles(tx).FindRole(ctx, guideID); err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return cur, model.ErrUnknownAssignee
				}
				return cur, err
			}
			return model.AssignTo(cur, c, guideID)
		})
}

// Complete marks an assigned job as done. Admins and the claimant only.
func (s *JobService) Complete(ctx context.Context, callerID, jobID string) (bool, error) {
	return s.arbitrate(ctx, TransitionComplete, callerID, jobID, model.JobEventCompleted,
		func(_ context.Context, _ dbx.DBTX, cur model.JobState, c model.Caller) (model.JobState, error) {
			return model.Complete(cur, c)
		})
}

// Cancel withdraws a job and releases its claimant. Admins only.
func (s *JobService) Cancel(ctx context.Context, callerID, jobID string) (bool, error) {
	return s.arbitrate(ctx, TransitionCancel, callerID, jobID, model.JobEventCanceled,
		func(_ context.Context, _ dbx.DBTX, cur model.JobState, c model.Caller) (model.JobState, error) {
			return model.Cancel(cur, c)
		})
}

// arbitrate runs one transition under the job's row lock. The caller's role
// and the job's state are read inside the same transaction that writes the
// result. A false result means nothing was changed.
func (s *JobService) arbitrate(ctx context.Context, op Transition, callerID, jobID string, kind model.JobEventKind, step stepFunc) (bool, error) {
	log := s.logger.With(zap.String("op", string(op)), zap.String("job_id", jobID), zap.String("caller_id", callerID))
	if uuid.Validate(callerID) != nil || uuid.Validate(jobID) != nil {
		log.Debug("transition refused", zap.String("reason", "malformed id"))
		return false, nil
	}

	var next model.JobState
	changed := false
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.boundLockWait(ctx, tx); err != nil {
			return err
		}

		role, err := s.repos.Profiles(tx).FindRole(ctx, callerID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return &refusal{reason: errors.New("caller has no profile")}
			}
			return err
		}
		caller := model.Caller{ID: callerID, IsAdmin: role == model.RoleAdmin}

		jobs := s.repos.Jobs(tx)
		cur, err := jobs.LockState(ctx, jobID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return &refusal{reason: errors.New("job not found")}
			}
			return err
		}

		next, err = step(ctx, tx, cur, caller)
		if err != nil {
			if isTransitionRefusal(err) {
				return &refusal{reason: err}
			}
			return err
		}
		if sameState(cur, next) {
			return nil
		}
		if !next.Consistent() {
			return fmt.Errorf("%w: status %s with claimant %v", errInconsistentState, next.Status, next.ClaimedBy != nil)
		}
		if err := jobs.SetState(ctx, jobID, next); err != nil {
			return err
		}
		changed = true
		return nil
	})

	var r *refusal
	switch {
	case err == nil:
	case errors.As(err, &r):
		log.Debug("transition refused", zap.String("reason", r.reason.Error()))
		return false, nil
	case common.IsLockTimeout(err):
		log.Warn("transition timed out waiting for job lock", zap.Error(err))
		return false, fmt.Errorf("%s job %s: %w: %w", op, jobID, common.ErrServiceUnavailable, err)
	default:
		log.Error("transition failed", zap.Error(err))
		return false, fmt.Errorf("%s job %s: %w", op, jobID, err)
	}

	if changed {
		log.Info("job transitioned", zap.String("status", string(next.Status)))
		s.publish(ctx, jobID, kind, next.Status)
	}
	return true, nil
}

// boundLockWait caps how long this transaction may wait for the job row lock
// and how long any statement in it may run.
func (s *JobService) boundLockWait(ctx context.Context, tx dbx.DBTX) error {
	if s.lockTimeout <= 0 {
		return nil
	}
	ms := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx,
		`SELECT set_config('lock_timeout', $1, true), set_config('statement_timeout', $2, true)`, ms, ms); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}
	return nil
}

func isTransitionRefusal(err error) bool {
	return errors.Is(err, model.ErrJobNotOpen) ||
		errors.Is(err, model.ErrJobTaken) ||
		errors.Is(err, model.ErrNotPermitted) ||
		errors.Is(err, model.ErrInvalidState) ||
		errors.Is(err, model.ErrUnknownAssignee)
}

func sameState(a, b model.JobState) bool {
	if a.Status != b.Status || (a.ClaimedBy == nil) != (b.ClaimedBy == nil) {
		return false
	}
	return a.ClaimedBy == nil || *a.ClaimedBy == *b.ClaimedBy
}

// Refusal reasons reported to clients after a transition returned false.
const (
	ReasonAlreadyTaken = "already_taken"
	ReasonInvalidState = "invalid_state"
	ReasonForbidden    = "forbidden"
	ReasonUnknownGuide = "unknown_guide"
)

// ExplainRefusal re-reads the job as p and reports why op would not apply
// now. It returns common.ErrNotFound when p may not see the job at all. A
// failed claim on a job that left the open state is still explained: the
// reason says only that the job is gone, never who holds it.
func (s *JobService) ExplainRefusal(ctx context.Context, p policy.Principal, op Transition, jobID, guideID string) (string, error) {
	if uuid.Validate(jobID) != nil {
		return "", common.ErrNotFound
	}
	job, err := s.repos.Jobs(s.db).FindByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	cur, caller := job.State(), p.Caller()
	if err := policy.Authorize(p, policy.ReadJob, job); err != nil {
		if op != TransitionClaim {
			return "", err
		}
		if cur.ClaimedBy != nil {
			return ReasonAlreadyTaken, nil
		}
		return ReasonInvalidState, nil
	}

	var stepErr error
	switch op {
	case TransitionClaim:
		_, stepErr = model.Claim(cur, caller)
	case TransitionUnclaim:
		_, stepErr = model.Unclaim(cur, caller)
	case TransitionAssign:
		_, stepErr = model.AssignTo(cur, caller, guideID)
		if stepErr == nil {
			stepErr = model.ErrUnknownAssignee
		}
	case TransitionComplete:
		_, stepErr = model.Complete(cur, caller)
	case TransitionCancel:
		_, stepErr = model.Cancel(cur, caller)
	}

	switch {
	case errors.Is(stepErr, model.ErrNotPermitted):
		return ReasonForbidden, nil
	case errors.Is(stepErr, model.ErrUnknownAssignee):
		return ReasonUnknownGuide, nil
	case op == TransitionClaim && cur.ClaimedBy != nil:
		return ReasonAlreadyTaken, nil
	}
	return ReasonInvalidState, nil
}
