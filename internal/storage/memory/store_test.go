package memory

import (
	"context"
	"testing"
	"time"

	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourseMappings(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.CreateCourseMapping(ctx, &domain.CourseMapping{ID: "2", Course: "B -> b", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, s.CreateCourseMapping(ctx, &domain.CourseMapping{ID: "1", Course: "A -> a", CreatedAt: base}))
	assert.ErrorIs(t, s.CreateCourseMapping(ctx, &domain.CourseMapping{ID: "3", Course: "A -> a"}), domain.ErrAlreadyExists)

	list, err := s.ListCourseMappings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A -> a", list[0].Course)

	assert.NoError(t, s.DeleteCourseMapping(ctx, "A -> a"))
	assert.ErrorIs(t, s.DeleteCourseMapping(ctx, "A -> a"), domain.ErrNotFound)
	_, err = s.GetCourseMapping(ctx, "A -> a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAccessTokensReplace(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.PutAccessToken(ctx, &domain.AccessToken{Principal: "bob", EncryptedToken: "x"}))
	require.NoError(t, s.PutAccessToken(ctx, &domain.AccessToken{Principal: "alice", EncryptedToken: "y"}))
	require.NoError(t, s.PutAccessToken(ctx, &domain.AccessToken{Principal: "bob", EncryptedToken: "z"}))

	tok, err := s.GetAccessToken(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "z", tok.EncryptedToken)

	list, err := s.ListAccessTokens(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].Principal)
}

func TestSyncRunsAreCopied(t *testing.T) {
	s := New()
	ctx := context.Background()
	run := &domain.SyncRun{ID: "r1", Status: domain.RunStatusRunning, StartedAt: time.Now()}
	require.NoError(t, s.CreateSyncRun(ctx, run))

	run.Status = domain.RunStatusSuccess
	got, err := s.GetSyncRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, got.Status)

	require.NoError(t, s.UpdateSyncRun(ctx, run))
	got, err = s.GetSyncRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, got.Status)

	assert.ErrorIs(t, s.UpdateSyncRun(ctx, &domain.SyncRun{ID: "nope"}), domain.ErrNotFound)
}

func TestListSyncRunsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateSyncRun(ctx, &domain.SyncRun{ID: id, StartedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	runs, err := s.ListSyncRuns(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	runs, err = s.ListSyncRuns(ctx, 2, 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestAPIKeys(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateAPIKey(ctx, &domain.APIKey{ID: "k1", KeyHash: "h1"}))

	key, err := s.GetAPIKeyByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "k1", key.ID)

	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, "k1"))
	key, _ = s.GetAPIKeyByHash(ctx, "h1")
	assert.NotNil(t, key.LastUsedAt)

	n, _ := s.CountAPIKeys(ctx)
	assert.Equal(t, 1, n)
	require.NoError(t, s.DeleteAPIKey(ctx, "k1"))
	_, err = s.GetAPIKeyByHash(ctx, "h1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
