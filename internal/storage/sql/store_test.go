package sql

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(sqlx.NewDb(db, "sqlmock"), "postgres"), mock
}

func TestCreateCourseMappingDuplicate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO course_mappings").
		WithArgs("m1", "CS101 -> cs101", "alice", sqlmock.AnyArg()).
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "course_mappings_course_key"`))

	err := s.CreateCourseMapping(context.Background(), &domain.CourseMapping{
		ID: "m1", Course: "CS101 -> cs101", CreatedBy: "alice", CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCourseMappingNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .* FROM course_mappings WHERE course = \\$1").
		WithArgs("missing -> x").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetCourseMapping(context.Background(), "missing -> x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCourseMappingsOrdered(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM course_mappings ORDER BY created_at, course").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course", "created_by", "created_at"}).
			AddRow("m1", "CS101 -> cs101", "alice", now).
			AddRow("m2", "CS102 -> cs102", "bob", now.Add(time.Minute)))

	mappings, err := s.ListCourseMappings(context.Background())
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, "CS101 -> cs101", mappings[0].Course)
	assert.Equal(t, "bob", mappings[1].CreatedBy)
}

func TestDeleteCourseMappingMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM course_mappings").
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.DeleteCourseMapping(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPutAccessTokenUpserts(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO access_tokens .* ON CONFLICT \\(principal\\) DO UPDATE").
		WithArgs("alice", "sealed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.PutAccessToken(context.Background(), &domain.AccessToken{
		Principal: "alice", EncryptedToken: "sealed", UpdatedAt: time.Now(),
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSyncRunsPaging(t *testing.T) {
	s, mock := newMockStore(t)
	started := time.Now()
	cols := []string{"id", "course", "team_name", "trigger_kind", "principal", "status", "added", "failed_users", "error", "started_at", "finished_at"}
	mock.ExpectQuery("SELECT .* FROM sync_runs ORDER BY started_at DESC LIMIT \\$1 OFFSET \\$2").
		WithArgs(10, 20).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("r1", "CS101 -> cs101", "cs101", "scheduled", "", "success", 3, 1, "", started, started))

	runs, err := s.ListSyncRuns(context.Background(), 10, 20)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.TriggerScheduled, runs[0].Trigger)
	assert.Equal(t, 3, runs[0].Added)
	assert.Equal(t, 1, runs[0].FailedUsers)
	require.NotNil(t, runs[0].FinishedAt)
}

func TestUpdateSyncRunMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE sync_runs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateSyncRun(context.Background(), &domain.SyncRun{ID: "gone"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteRoundTrip(t *testing.T) {
	s, err := New("sqlite3", filepath.Join(t.TempDir(), "teamsync.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.CreateCourseMapping(ctx, &domain.CourseMapping{ID: "m1", Course: "CS101 -> cs101", CreatedAt: now}))
	err = s.CreateCourseMapping(ctx, &domain.CourseMapping{ID: "m2", Course: "CS101 -> cs101", CreatedAt: now})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	require.NoError(t, s.PutAccessToken(ctx, &domain.AccessToken{Principal: "alice", EncryptedToken: "v1", UpdatedAt: now}))
	require.NoError(t, s.PutAccessToken(ctx, &domain.AccessToken{Principal: "alice", EncryptedToken: "v2", UpdatedAt: now}))
	tok, err := s.GetAccessToken(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "v2", tok.EncryptedToken)

	run := &domain.SyncRun{ID: "r1", Course: "CS101 -> cs101", Trigger: domain.TriggerAdHoc, Status: domain.RunStatusRunning, StartedAt: now}
	require.NoError(t, s.CreateSyncRun(ctx, run))
	finished := now.Add(time.Second)
	run.Status, run.Added, run.FinishedAt = domain.RunStatusSuccess, 4, &finished
	require.NoError(t, s.UpdateSyncRun(ctx, run))

	got, err := s.GetSyncRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, got.Status)
	assert.Equal(t, 4, got.Added)

	require.NoError(t, s.DeleteCourseMapping(ctx, "CS101 -> cs101"))
	mappings, err := s.ListCourseMappings(ctx)
	require.NoError(t, err)
	assert.Empty(t, mappings)

	key := &domain.APIKey{ID: "k1", Name: "ops", KeyHash: "h1", KeyPrefix: "tsk_abcdefgh", CreatedBy: "bootstrap", CreatedAt: now}
	require.NoError(t, s.CreateAPIKey(ctx, key))
	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, "k1"))
	gotKey, err := s.GetAPIKeyByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "ops", gotKey.Name)
	assert.Equal(t, "bootstrap", gotKey.CreatedBy)
	assert.NotNil(t, gotKey.LastUsedAt)
	n, err := s.CountAPIKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
