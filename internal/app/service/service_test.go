package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"testing"
	"time"

	"guideboard/internal/common/security"
	"guideboard/internal/domain/model"
	"guideboard/internal/domain/repository"
	"guideboard/internal/platform/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	adminID = "0b7c8a52-9d49-4a7e-8f1e-8d0d6f0a0001"
	guideA  = "0b7c8a52-9d49-4a7e-8f1e-8d0d6f0a000a"
	guideB  = "0b7c8a52-9d49-4a7e-8f1e-8d0d6f0a000b"
	jobID   = "5f0e2d6c-1b7a-4c43-9a55-3e0c2b7d0001"
)

type passArrays struct{}

func (passArrays) ConvertValue(v any) (driver.Value, error) {
	if s, ok := v.([]string); ok {
		return s, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.ValueConverterOption(passArrays{}),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.JobEvent
	err    error
}

func (p *recordingPublisher) PublishJobEvent(_ context.Context, ev model.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) kinds() []model.JobEventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.JobEventKind, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

func newJobService(t *testing.T) (*JobService, sqlmock.Sqlmock, *recordingPublisher) {
	t.Helper()
	db, mock := newMockDB(t)
	pub := &recordingPublisher{}
	svc := NewJobService(db, repository.NewPostgresManager(), pub, 5*time.Second, zap.NewNop())
	return svc, mock, pub
}

func initTestJWT(t *testing.T) {
	t.Helper()
	orig := config.AppConfig
	t.Cleanup(func() { config.AppConfig = orig })
	config.AppConfig = &config.Config{JWTKey: []byte("test-secret"), JWTExp: time.Hour}
	security.InitJWT()
}

func strPtr(s string) *string { return &s }

var jobCols = []string{
	"id", "title", "job_date", "call_time", "location", "boat", "pay", "requirements", "notes",
	"status", "claimed_by", "created_by", "created_at", "updated_at", "display_name",
}

func jobRow(status model.JobStatus, claimedBy any) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(jobCols).AddRow(
		jobID, "Wreck dive", "2026-11-02", "07:30", "Blue Hole", nil, nil, "{nitrox}", nil,
		string(status), claimedBy, adminID, now, now, nil,
	)
}
