package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/bcnelson/teamsync/internal/credential"
	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/bcnelson/teamsync/internal/platform"
	"github.com/bcnelson/teamsync/internal/storage/memory"
	"github.com/bcnelson/teamsync/internal/telemetry"
	"github.com/bcnelson/teamsync/internal/validation"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrincipal = "alice"

type syncFixture struct {
	svc     *SyncService
	store   *memory.Store
	shim    *platform.Shim
	dir     *fakeDirectory
	cipher  *credential.Cipher
	metrics *telemetry.Metrics
	calls   int
}

func newSyncFixture(t *testing.T, opts Options) *syncFixture {
	t.Helper()
	cipher, err := credential.New(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	f := &syncFixture{
		store:   memory.New(),
		shim:    newShim(t),
		dir:     newFakeDirectory(),
		cipher:  cipher,
		metrics: telemetry.NewMetrics(nil),
	}
	shimClients := platform.ShimFactory(f.shim)
	clients := func(token string) (platform.Client, error) {
		f.calls++
		return shimClients(token)
	}
	f.svc = NewSyncService(f.store, f.dir, clients, cipher, f.metrics, opts, nil)
	return f
}

func (f *syncFixture) seal(t *testing.T, plaintext string) string {
	t.Helper()
	sealed, err := f.cipher.Seal(plaintext)
	require.NoError(t, err)
	return sealed
}

func (f *syncFixture) withToken(t *testing.T) *syncFixture {
	t.Helper()
	require.NoError(t, f.svc.SetToken(context.Background(), testPrincipal, f.seal(t, "mm-token")))
	return f
}

func (f *syncFixture) sync(t *testing.T, course string, once bool) []domain.ProgressEvent {
	t.Helper()
	ch, err := f.svc.Sync(context.Background(), testPrincipal, course, once)
	require.NoError(t, err)
	return drain(ch)
}

func messages(events []domain.ProgressEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Message
	}
	return out
}

func TestSyncRejectsMalformedInput(t *testing.T) {
	f := newSyncFixture(t, Options{}).withToken(t)

	_, err := f.svc.Sync(context.Background(), testPrincipal, "CS101 cs101", false)
	assert.ErrorIs(t, err, domain.ErrMalformedSpec)

	_, err = f.svc.Sync(context.Background(), testPrincipal, "CS101 -> Bad_Team", false)
	var verr *validation.ValidationError
	assert.True(t, errors.As(err, &verr))

	assert.Zero(t, f.calls, "no platform client before validation passes")
}

func TestSyncMissingToken(t *testing.T) {
	f := newSyncFixture(t, Options{})

	events := f.sync(t, "CS101 -> cs101", false)

	require.Len(t, events, 1)
	assert.Equal(t, domain.EventFailed, events[0].Kind)
	assert.ErrorIs(t, events[0].Err, domain.ErrMissingToken)
	assert.Contains(t, events[0].Message, "teamsync token set")
	assert.Zero(t, f.calls)
}

func TestSyncInvalidToken(t *testing.T) {
	f := newSyncFixture(t, Options{})
	require.NoError(t, f.store.PutAccessToken(context.Background(), &domain.AccessToken{
		Principal:      testPrincipal,
		EncryptedToken: "plaintext-token",
	}))

	events := f.sync(t, "CS101 -> cs101", false)

	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].Err, domain.ErrInvalidToken)
	assert.Equal(t, "Hmmm, it seems you have an incorrect token. Have you encrypted it?", events[0].Message)
}

func TestSyncRegistersMapping(t *testing.T) {
	f := newSyncFixture(t, Options{}).withToken(t)

	events := f.sync(t, "CS101->cs101", false)

	assert.Equal(t, []string{
		"OK, syncing course(s) [CS101] to team cs101.",
		"Team cs101 is created.",
		"Now adding members to the team...",
		"Added 2 members to the team cs101.",
		"Finished syncing course CS101->cs101.",
		"Sync finished: 1 succeeded, 0 failed.",
		"Course CS101 -> cs101 is added to course mappings. We have 1 courses in the mapping.",
	}, messages(events))

	mappings, err := f.svc.ListMappings(context.Background())
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "CS101 -> cs101", mappings[0].Course)
	assert.Equal(t, testPrincipal, mappings[0].CreatedBy)

	// A second run changes nothing and does not register again.
	events = f.sync(t, "CS101 -> cs101", false)
	assert.Contains(t, messages(events), "No new member to add. Roster is up-to-date.")
	assert.NotContains(t, messages(events)[len(events)-1], "course mappings")
}

func TestSyncOncePolicy(t *testing.T) {
	tests := []struct {
		name             string
		registerWhenOnce bool
		once             bool
		wantRegistered   bool
	}{
		{"skip policy, regular run", false, false, true},
		{"skip policy, once run", false, true, false},
		{"register policy, once run", true, true, true},
		{"register policy, regular run", true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSyncFixture(t, Options{RegisterWhenOnce: tt.registerWhenOnce}).withToken(t)

			f.sync(t, "CS101 -> cs101", tt.once)

			mappings, err := f.svc.ListMappings(context.Background())
			require.NoError(t, err)
			if tt.wantRegistered {
				assert.Len(t, mappings, 1)
			} else {
				assert.Empty(t, mappings)
			}
		})
	}
}

func TestSyncFailureIsNotRegistered(t *testing.T) {
	f := newSyncFixture(t, Options{}).withToken(t)

	events := f.sync(t, "MISSING -> cs109", false)

	assert.Equal(t, "Sync finished: 0 succeeded, 1 failed.", events[len(events)-1].Message)
	mappings, err := f.svc.ListMappings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mappings)

	runs, err := f.svc.ListSyncRuns(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "group not found")
	assert.Equal(t, domain.TriggerAdHoc, runs[0].Trigger)
	assert.Equal(t, testPrincipal, runs[0].Principal)
}

func TestSyncAllContinuesAndRecords(t *testing.T) {
	f := newSyncFixture(t, Options{}).withToken(t)
	ctx := context.Background()
	for _, c := range []string{"CS101 -> cs101", "MISSING -> cs102", "CS103 -> cs103"} {
		_, err := f.svc.AddMapping(ctx, testPrincipal, c)
		require.NoError(t, err)
	}

	events := f.sync(t, "all", false)

	assert.Equal(t, "Sync finished: 2 succeeded, 1 failed.", events[len(events)-1].Message)

	runs, err := f.svc.ListSyncRuns(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	status := map[string]string{}
	added := map[string]int{}
	for _, r := range runs {
		status[r.Course] = r.Status
		added[r.Course] = r.Added
		assert.NotNil(t, r.FinishedAt)
	}
	assert.Equal(t, domain.RunStatusSuccess, status["CS101 -> cs101"])
	assert.Equal(t, domain.RunStatusFailed, status["MISSING -> cs102"])
	assert.Equal(t, domain.RunStatusSuccess, status["CS103 -> cs103"])
	assert.Equal(t, 3, added["CS103 -> cs103"])

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CoursesSynced.WithLabelValues("adhoc", domain.RunStatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CoursesSynced.WithLabelValues("adhoc", domain.RunStatusFailed)))
	assert.Equal(t, 5.0, testutil.ToFloat64(f.metrics.MembersAdded))
	assert.Equal(t, 5.0, testutil.ToFloat64(f.metrics.UsersCreated))

	mappings, err := f.svc.ListMappings(ctx)
	require.NoError(t, err)
	assert.Len(t, mappings, 3, "all never registers anything")
}

func TestSyncCancelled(t *testing.T) {
	f := newSyncFixture(t, Options{}).withToken(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := f.svc.Sync(ctx, testPrincipal, "CS101 -> cs101", false)
	require.NoError(t, err)
	<-ch
	cancel()
	for range ch {
	}

	mappings, err := f.svc.ListMappings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mappings)
}

func TestRefresh(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		f := newSyncFixture(t, Options{})
		assert.False(t, f.svc.SchedulerConfigured())
		assert.ErrorIs(t, f.svc.Refresh(context.Background()), domain.ErrSchedulerUnconfigured)
	})

	t.Run("undecryptable token", func(t *testing.T) {
		f := newSyncFixture(t, Options{ScheduledToken: "nope"})
		assert.ErrorIs(t, f.svc.Refresh(context.Background()), domain.ErrInvalidToken)
	})

	t.Run("syncs every mapping", func(t *testing.T) {
		f := newSyncFixture(t, Options{})
		f.svc.opts.ScheduledToken = f.seal(t, "bot-token")
		ctx := context.Background()
		for _, c := range []string{"CS101 -> cs101", "CS102 -> cs102"} {
			_, err := f.svc.AddMapping(ctx, testPrincipal, c)
			require.NoError(t, err)
		}

		require.NoError(t, f.svc.Refresh(ctx))

		for _, name := range []string{"cs101", "cs102"} {
			_, err := f.shim.GetTeamByName(ctx, name)
			assert.NoError(t, err, name)
		}
		runs, err := f.svc.ListSyncRuns(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		for _, r := range runs {
			assert.Equal(t, domain.TriggerScheduled, r.Trigger)
			assert.Empty(t, r.Principal)
		}
	})
}

func TestSetToken(t *testing.T) {
	f := newSyncFixture(t, Options{})
	ctx := context.Background()

	err := f.svc.SetToken(ctx, testPrincipal, "not-encrypted")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	sealed := f.seal(t, "first")
	require.NoError(t, f.svc.SetToken(ctx, testPrincipal, " "+sealed+"\n"))
	got, err := f.svc.GetToken(ctx, testPrincipal)
	require.NoError(t, err)
	assert.Equal(t, sealed, got.EncryptedToken)

	replaced := f.seal(t, "second")
	require.NoError(t, f.svc.SetToken(ctx, testPrincipal, replaced))
	tokens, err := f.svc.ListTokens(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, replaced, tokens[0].EncryptedToken)
}

func TestMappings(t *testing.T) {
	f := newSyncFixture(t, Options{})
	ctx := context.Background()

	m, err := f.svc.AddMapping(ctx, testPrincipal, " CPSC 1 01 ,CPSC  1 02->cpsc1 ")
	require.NoError(t, err)
	assert.Equal(t, "CPSC 1 01, CPSC 1 02 -> cpsc1", m.Course)

	_, err = f.svc.AddMapping(ctx, testPrincipal, "CPSC 1 01, CPSC 1 02 -> cpsc1")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = f.svc.AddMapping(ctx, testPrincipal, "all")
	assert.Error(t, err)

	assert.ErrorIs(t, f.svc.RemoveMapping(ctx, "CS101 -> cs101"), domain.ErrNotFound)
	require.NoError(t, f.svc.RemoveMapping(ctx, "CPSC 1 01,CPSC 1 02->cpsc1"))

	mappings, err := f.svc.ListMappings(ctx)
	require.NoError(t, err)
	assert.Empty(t, mappings)
}

func TestCreateAndListTeams(t *testing.T) {
	f := newSyncFixture(t, Options{TeamType: domain.TeamOpen}).withToken(t)
	ctx := context.Background()

	team, err := f.svc.CreateTeam(ctx, testPrincipal, &domain.CreateTeamRequest{Name: "staff"})
	require.NoError(t, err)
	assert.Equal(t, "staff", team.DisplayName)
	assert.Equal(t, domain.TeamOpen, team.Type)

	_, err = f.svc.CreateTeam(ctx, testPrincipal, &domain.CreateTeamRequest{Name: "lab", DisplayName: "Lab", Type: "invite"})
	require.NoError(t, err)

	_, err = f.svc.CreateTeam(ctx, testPrincipal, &domain.CreateTeamRequest{Name: "staff"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = f.svc.CreateTeam(ctx, testPrincipal, &domain.CreateTeamRequest{Name: "No Spaces"})
	var verrs validation.ValidationErrors
	assert.True(t, errors.As(err, &verrs))

	teams, err := f.svc.ListTeams(ctx, testPrincipal)
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, "lab", teams[0].Name)
	assert.Equal(t, domain.TeamInvite, teams[0].Type)

	_, err = f.svc.ListTeams(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrMissingToken)
}

func TestAddAndRemoveUser(t *testing.T) {
	f := newSyncFixture(t, Options{}).withToken(t)
	ctx := context.Background()
	team, err := f.svc.CreateTeam(ctx, testPrincipal, &domain.CreateTeamRequest{Name: "staff"})
	require.NoError(t, err)

	m, err := f.svc.AddUser(ctx, testPrincipal, "staff", &domain.AddTeamMemberRequest{Username: "carol", Role: "admin"})
	require.NoError(t, err)
	assert.True(t, m.Roles.Has(domain.RoleAdmin))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.UsersCreated), "carol was provisioned from the directory")

	members, err := f.shim.GetTeamMembers(ctx, team.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.True(t, members[0].Roles.Has(domain.RoleAdmin))

	_, err = f.svc.AddUser(ctx, testPrincipal, "staff", &domain.AddTeamMemberRequest{Username: "zelda"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.AddUser(ctx, testPrincipal, "ghost-team", &domain.AddTeamMemberRequest{Username: "carol"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.AddUser(ctx, testPrincipal, "staff", &domain.AddTeamMemberRequest{Username: "carol", Role: "owner"})
	var verrs validation.ValidationErrors
	assert.True(t, errors.As(err, &verrs))

	require.NoError(t, f.svc.RemoveUser(ctx, testPrincipal, "staff", "carol"))
	assert.ErrorIs(t, f.svc.RemoveUser(ctx, testPrincipal, "staff", "carol"), domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.RemoveUser(ctx, testPrincipal, "staff", "nobody"), domain.ErrNotFound)
}
