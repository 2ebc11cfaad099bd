package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bcnelson/teamsync/internal/directory"
	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/bcnelson/teamsync/internal/platform"
	"github.com/bcnelson/teamsync/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func people(usernames ...string) []domain.Member {
	out := make([]domain.Member, len(usernames))
	for i, u := range usernames {
		out[i] = domain.Member{ExternalID: "ext-" + u, Attributes: map[string]string{domain.AttrUsername: u}}
	}
	return out
}

// fakeDirectory serves groups from a file shim and fails chosen groups.
type fakeDirectory struct {
	*directory.FileShim
	errs map[string]error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		FileShim: &directory.FileShim{Groups: map[string][]domain.Member{
			"CS101":     people("alice", "bob"),
			"CS102":     people("carol"),
			"CS103":     people("dave", "erin", "frank"),
			"CPSC 1 01": people("gina"),
			"CPSC 1 02": people("gina", "hank"),
		}},
		errs: map[string]error{},
	}
}

func (d *fakeDirectory) Resolve(ctx context.Context, base string, queries []domain.GroupQuery) ([]domain.Member, error) {
	for _, q := range queries {
		if err := d.errs[q.String()]; err != nil {
			return nil, err
		}
	}
	return d.FileShim.Resolve(ctx, base, queries)
}

// failingClient fails team creation for the listed names.
type failingClient struct {
	platform.Client
	failCreate map[string]bool
}

func (c *failingClient) CreateTeam(ctx context.Context, name, displayName string, teamType domain.TeamType) (*domain.Team, error) {
	if c.failCreate[name] {
		return nil, &platform.Error{Op: "create team", StatusCode: 403, Err: errors.New("permission denied")}
	}
	return c.Client.CreateTeam(ctx, name, displayName, teamType)
}

func newShim(t *testing.T) *platform.Shim {
	t.Helper()
	shim, err := platform.NewShim("", nil)
	require.NoError(t, err)
	return shim
}

func newTestDriver(dir directory.Directory, client platform.Client) *Driver {
	return NewDriver(dir, reconcile.New(client, reconcile.Options{}, nil), "ou=courses,dc=example,dc=com", nil)
}

func drain(ch <-chan domain.ProgressEvent) []domain.ProgressEvent {
	var out []domain.ProgressEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func byCourse(events []domain.ProgressEvent, course string) []domain.ProgressEvent {
	var out []domain.ProgressEvent
	for _, ev := range events {
		if ev.Course == course {
			out = append(out, ev)
		}
	}
	return out
}

func terminalOf(t *testing.T, events []domain.ProgressEvent) domain.ProgressEvent {
	t.Helper()
	var found []domain.ProgressEvent
	for _, ev := range events {
		if ev.Terminal() {
			found = append(found, ev)
		}
	}
	require.Len(t, found, 1, "exactly one terminal event per course")
	return found[0]
}

func TestDriverBatchContinuesPastMissingGroup(t *testing.T) {
	d := newTestDriver(newFakeDirectory(), newShim(t))
	specs := []string{"CS101 -> cs101", "MISSING -> cs102", "CS103 -> cs103"}

	events := drain(d.Run(context.Background(), specs, nil, RunOptions{}))

	first := byCourse(events, specs[0])
	assert.Equal(t, "OK, syncing course(s) [CS101] to team cs101.", first[0].Message)
	assert.Equal(t, domain.EventSucceeded, terminalOf(t, first).Kind)
	assert.Equal(t, 2, terminalOf(t, first).Count)
	assert.Equal(t, "Finished syncing course CS101 -> cs101.", first[len(first)-1].Message)

	second := byCourse(events, specs[1])
	fail := terminalOf(t, second)
	assert.Equal(t, domain.EventFailed, fail.Kind)
	assert.ErrorIs(t, fail.Err, domain.ErrGroupNotFound)
	assert.Contains(t, fail.Message, "MISSING")

	third := byCourse(events, specs[2])
	assert.Equal(t, domain.EventSucceeded, terminalOf(t, third).Kind)
	assert.Equal(t, 3, terminalOf(t, third).Count)

	summary := events[len(events)-1]
	assert.Equal(t, domain.EventSummary, summary.Kind)
	assert.Equal(t, "Sync finished: 2 succeeded, 1 failed.", summary.Message)
	assert.Equal(t, 1, summary.Count)
	assert.Empty(t, summary.Course)
}

func TestDriverStopOnFailure(t *testing.T) {
	d := newTestDriver(newFakeDirectory(), newShim(t))
	specs := []string{"CS101 -> cs101", "MISSING -> cs102", "CS103 -> cs103"}

	events := drain(d.Run(context.Background(), specs, nil, RunOptions{StopOnFailure: true}))

	assert.Empty(t, byCourse(events, specs[2]))
	assert.Equal(t, "Sync finished: 1 succeeded, 1 failed.", events[len(events)-1].Message)
}

func TestDriverContinuesPastEngineFailure(t *testing.T) {
	client := &failingClient{Client: newShim(t), failCreate: map[string]bool{"cs101": true}}
	d := newTestDriver(newFakeDirectory(), client)
	specs := []string{"CS101 -> cs101", "CS102 -> cs102"}

	events := drain(d.Run(context.Background(), specs, nil, RunOptions{}))

	fail := terminalOf(t, byCourse(events, specs[0]))
	assert.Equal(t, domain.EventFailed, fail.Kind)
	assert.ErrorIs(t, fail.Err, domain.ErrPlatform)
	assert.Equal(t, domain.EventSucceeded, terminalOf(t, byCourse(events, specs[1])).Kind)
}

func TestDriverContinuesPastUnavailableDirectory(t *testing.T) {
	dir := newFakeDirectory()
	dir.errs["CS101"] = errors.Join(domain.ErrDirectoryUnavailable, errors.New("connection refused"))
	d := newTestDriver(dir, newShim(t))

	events := drain(d.Run(context.Background(), []string{"CS101 -> cs101", "CS102 -> cs102"}, nil, RunOptions{}))

	fail := terminalOf(t, byCourse(events, "CS101 -> cs101"))
	assert.ErrorIs(t, fail.Err, domain.ErrDirectoryUnavailable)
	assert.Contains(t, fail.Message, "connection refused")
	assert.Equal(t, "Sync finished: 1 succeeded, 1 failed.", events[len(events)-1].Message)
}

func TestDriverReportsMalformedSpec(t *testing.T) {
	d := newTestDriver(newFakeDirectory(), newShim(t))

	events := drain(d.Run(context.Background(), []string{"CS101", "CS102 -> cs102"}, nil, RunOptions{}))

	fail := terminalOf(t, byCourse(events, "CS101"))
	assert.ErrorIs(t, fail.Err, domain.ErrMalformedSpec)
	assert.Equal(t, domain.EventSucceeded, terminalOf(t, byCourse(events, "CS102 -> cs102")).Kind)
}

func TestDriverMergesSourceGroups(t *testing.T) {
	shim := newShim(t)
	d := newTestDriver(newFakeDirectory(), shim)

	events := drain(d.Run(context.Background(), []string{"CPSC 1 01, CPSC 1 02 -> cpsc1"}, nil, RunOptions{}))

	term := terminalOf(t, events)
	assert.Equal(t, 2, term.Count, "gina is deduplicated across groups")
	assert.Equal(t, "OK, syncing course(s) [CPSC 1 01; CPSC 1 02] to team cpsc1.", events[0].Message)
}

type countingMappings struct {
	mu       sync.Mutex
	mappings []*domain.CourseMapping
	calls    int
}

func (c *countingMappings) ListCourseMappings(context.Context) ([]*domain.CourseMapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.mappings, nil
}

func TestDriverExpandsAllOnce(t *testing.T) {
	src := &countingMappings{mappings: []*domain.CourseMapping{
		{Course: "CS101 -> cs101"},
		{Course: "CS102 -> cs102"},
	}}
	d := newTestDriver(newFakeDirectory(), newShim(t))

	var started []string
	events := drain(d.Run(context.Background(), []string{"all", "ALL"}, src, RunOptions{
		OnStart: func(course string) { started = append(started, course) },
	}))

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, []string{"CS101 -> cs101", "CS102 -> cs102"}, started)
	assert.Equal(t, "Sync finished: 2 succeeded, 0 failed.", events[len(events)-1].Message)
}

func TestDriverNoMappings(t *testing.T) {
	d := newTestDriver(newFakeDirectory(), newShim(t))

	events := drain(d.Run(context.Background(), []string{"all"}, &countingMappings{}, RunOptions{}))

	require.Len(t, events, 2)
	assert.Equal(t, "No course to sync.", events[0].Message)
	assert.Equal(t, "Sync finished: 0 succeeded, 0 failed.", events[1].Message)
}

func TestDriverAllWithoutSource(t *testing.T) {
	d := newTestDriver(newFakeDirectory(), newShim(t))

	events := drain(d.Run(context.Background(), []string{"all"}, nil, RunOptions{}))

	require.Len(t, events, 1)
	assert.Equal(t, domain.EventFailed, events[0].Kind)
}

func TestDriverOnFinishResults(t *testing.T) {
	dir := newFakeDirectory()
	dir.Groups["CS104"] = append(people("ivan"), domain.Member{ExternalID: "nameless", Attributes: map[string]string{}})
	d := newTestDriver(dir, newShim(t))

	var results []CourseResult
	drain(d.Run(context.Background(), []string{"CS104 -> cs104", "NOPE -> cs105"}, nil, RunOptions{
		OnFinish: func(r CourseResult) { results = append(results, r) },
	}))

	require.Len(t, results, 2)
	assert.True(t, results[0].Succeeded)
	assert.Equal(t, "cs104", results[0].Team)
	assert.Equal(t, 1, results[0].Added)
	assert.Equal(t, 1, results[0].FailedUsers)
	assert.False(t, results[0].FinishedAt.Before(results[0].StartedAt))

	assert.False(t, results[1].Succeeded)
	assert.ErrorIs(t, results[1].Err, domain.ErrGroupNotFound)
}

func TestDriverCancellation(t *testing.T) {
	d := newTestDriver(newFakeDirectory(), newShim(t))
	ctx, cancel := context.WithCancel(context.Background())

	ch := d.Run(ctx, []string{"CS101 -> cs101", "CS102 -> cs102", "CS103 -> cs103"}, nil, RunOptions{})
	first := <-ch
	assert.True(t, strings.HasPrefix(first.Message, "OK, syncing"))
	cancel()

	for ev := range ch {
		assert.NotEqual(t, domain.EventSummary, ev.Kind)
	}
}
