package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bcnelson/teamsync/internal/coursespec"
	"github.com/bcnelson/teamsync/internal/credential"
	"github.com/bcnelson/teamsync/internal/directory"
	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/bcnelson/teamsync/internal/platform"
	"github.com/bcnelson/teamsync/internal/reconcile"
	"github.com/bcnelson/teamsync/internal/storage"
	"github.com/bcnelson/teamsync/internal/telemetry"
	"github.com/bcnelson/teamsync/internal/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configures a SyncService.
type Options struct {
	// SearchBase is the directory subtree groups are searched under.
	SearchBase string
	PageSize   int
	MaxPages   int
	TeamType   domain.TeamType
	// RegisterWhenOnce selects the once-flag policy: an ad-hoc course is
	// registered for recurring sync when its once flag equals this value.
	// false registers everything not run with once; true registers only
	// once runs.
	RegisterWhenOnce bool
	// ScheduledToken is the encrypted token scheduled syncs run with.
	ScheduledToken string
}

// SyncService hosts ad-hoc and scheduled syncs and the operator commands
// around them: tokens, course mappings, teams and memberships.
type SyncService struct {
	store   storage.Storage
	dir     directory.Directory
	clients platform.Factory
	cipher  *credential.Cipher
	metrics *telemetry.Metrics
	opts    Options
	logger  *zap.Logger
}

// NewSyncService creates a new SyncService.
func NewSyncService(
	store storage.Storage,
	dir directory.Directory,
	clients platform.Factory,
	cipher *credential.Cipher,
	metrics *telemetry.Metrics,
	opts Options,
	logger *zap.Logger,
) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = platform.DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = platform.DefaultMaxPages
	}
	return &SyncService{
		store:   store,
		dir:     dir,
		clients: clients,
		cipher:  cipher,
		metrics: metrics,
		opts:    opts,
		logger:  logger,
	}
}

// ============================================
// Syncing
// ============================================

// Sync runs an ad-hoc sync of course ("all" or one course spec) on behalf
// of principal with the principal's stored token. Malformed input is
// rejected before anything else happens; every later failure, including a
// missing or undecryptable token, is reported on the returned stream. A
// single course stops at its first fatal event. After a successful single
// course the mapping is registered according to the once policy.
func (s *SyncService) Sync(ctx context.Context, principal, course string, once bool) (<-chan domain.ProgressEvent, error) {
	course = strings.TrimSpace(course)
	all := coursespec.IsAll(course)
	if !all {
		if _, err := validation.ValidateCourseSpec(course); err != nil {
			return nil, err
		}
	}

	ch := make(chan domain.ProgressEvent)
	go func() {
		defer close(ch)
		send := func(ev domain.ProgressEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		client, err := s.principalClient(ctx, principal)
		if err != nil {
			send(tokenFailure(err))
			return
		}

		rec := s.recorder(ctx, domain.TriggerAdHoc, principal)
		opts := RunOptions{StopOnFailure: !all, OnStart: rec.start, OnFinish: rec.finish}
		for ev := range s.driver(client).Run(ctx, []string{course}, s.store, opts) {
			send(ev)
		}

		if all || ctx.Err() != nil || !rec.allSucceeded() || once != s.opts.RegisterWhenOnce {
			return
		}
		if msg, ok := s.register(ctx, principal, course); ok {
			send(domain.Info(msg))
		}
	}()
	return ch, nil
}

// Refresh syncs every registered mapping with the configured scheduled
// token. Progress goes to the logger.
func (s *SyncService) Refresh(ctx context.Context) error {
	if !s.SchedulerConfigured() {
		return domain.ErrSchedulerUnconfigured
	}
	token, err := s.cipher.Open(s.opts.ScheduledToken)
	if err != nil {
		s.logger.Error("scheduled sync token cannot be decrypted", zap.Error(err))
		return err
	}
	client, err := s.clients(token)
	if err != nil {
		return err
	}

	rec := s.recorder(ctx, domain.TriggerScheduled, "")
	opts := RunOptions{OnStart: rec.start, OnFinish: rec.finish}
	for ev := range s.driver(client).Run(ctx, []string{coursespec.All}, s.store, opts) {
		logEvent(s.logger, ev)
	}
	return ctx.Err()
}

// SchedulerConfigured reports whether scheduled syncs have a token.
func (s *SyncService) SchedulerConfigured() bool {
	return s.opts.ScheduledToken != ""
}

// ListSyncRuns returns recorded course runs, newest first.
func (s *SyncService) ListSyncRuns(ctx context.Context, limit, offset int) ([]*domain.SyncRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListSyncRuns(ctx, limit, offset)
}

func (s *SyncService) driver(client platform.Client) *Driver {
	engine := reconcile.New(client, reconcile.Options{
		PageSize: s.opts.PageSize,
		MaxPages: s.opts.MaxPages,
		TeamType: s.opts.TeamType,
		OnUserCreated: func(*domain.RemoteUser) {
			if s.metrics != nil {
				s.metrics.UsersCreated.Inc()
			}
		},
	}, s.logger)
	return NewDriver(s.dir, engine, s.opts.SearchBase, s.logger)
}

// register stores course as a mapping. It reports the confirmation message
// and whether a new mapping was added.
func (s *SyncService) register(ctx context.Context, principal, course string) (string, bool) {
	m, err := s.AddMapping(ctx, principal, course)
	if errors.Is(err, domain.ErrAlreadyExists) {
		return "", false
	}
	if err != nil {
		s.logger.Warn("failed to register course mapping", zap.String("course", course), zap.Error(err))
		return "", false
	}
	n := 0
	if all, err := s.store.ListCourseMappings(ctx); err == nil {
		n = len(all)
	}
	return fmt.Sprintf("Course %s is added to course mappings. We have %d courses in the mapping.", m.Course, n), true
}

func tokenFailure(err error) domain.ProgressEvent {
	switch {
	case errors.Is(err, domain.ErrMissingToken):
		return domain.Failed("Please set a Mattermost access token with `teamsync token set ENCRYPTED_ACCESS_TOKEN` before syncing.", err)
	case errors.Is(err, domain.ErrInvalidToken):
		return domain.Failed("Hmmm, it seems you have an incorrect token. Have you encrypted it?", err)
	}
	return domain.Failed(fmt.Sprintf("Cannot connect to Mattermost: %v", err), err)
}

func logEvent(logger *zap.Logger, ev domain.ProgressEvent) {
	fields := []zap.Field{zap.String("course", ev.Course), zap.String("team", ev.Team)}
	if ev.Count != 0 {
		fields = append(fields, zap.Int("count", ev.Count))
	}
	switch ev.Kind {
	case domain.EventWarning:
		logger.Warn(ev.Message, fields...)
	case domain.EventFailed:
		logger.Error(ev.Message, append(fields, zap.Error(ev.Err))...)
	default:
		logger.Info(ev.Message, fields...)
	}
}

// runRecorder stores one SyncRun per course and feeds the metrics. Its
// hooks run on the driver goroutine, one course at a time.
type runRecorder struct {
	s         *SyncService
	ctx       context.Context
	trigger   domain.SyncTrigger
	principal string

	current  *domain.SyncRun
	finished int
	failed   int
}

func (s *SyncService) recorder(ctx context.Context, trigger domain.SyncTrigger, principal string) *runRecorder {
	return &runRecorder{s: s, ctx: context.WithoutCancel(ctx), trigger: trigger, principal: principal}
}

func (r *runRecorder) start(course string) {
	r.current = &domain.SyncRun{
		ID:        uuid.New().String(),
		Course:    course,
		Trigger:   r.trigger,
		Principal: r.principal,
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now(),
	}
	if err := r.s.store.CreateSyncRun(r.ctx, r.current); err != nil {
		r.s.logger.Warn("failed to record sync run", zap.String("course", course), zap.Error(err))
	}
}

func (r *runRecorder) finish(res CourseResult) {
	r.finished++
	run := r.current
	if run == nil || run.Course != res.Course {
		return
	}
	finished := res.FinishedAt
	run.TeamName = res.Team
	run.Added = res.Added
	run.FailedUsers = res.FailedUsers
	run.FinishedAt = &finished
	run.Status = domain.RunStatusSuccess
	if !res.Succeeded {
		r.failed++
		run.Status = domain.RunStatusFailed
		if res.Err != nil {
			run.Error = res.Err.Error()
		}
	}
	if err := r.s.store.UpdateSyncRun(r.ctx, run); err != nil {
		r.s.logger.Warn("failed to update sync run", zap.String("id", run.ID), zap.Error(err))
	}
	r.s.metrics.ObserveCourse(string(r.trigger), run.Status, res.Added, res.FailedUsers, res.FinishedAt.Sub(res.StartedAt))
}

func (r *runRecorder) allSucceeded() bool {
	return r.finished > 0 && r.failed == 0
}

// ============================================
// Tokens
// ============================================

// principalClient opens the platform with principal's stored token.
func (s *SyncService) principalClient(ctx context.Context, principal string) (platform.Client, error) {
	stored, err := s.store.GetAccessToken(ctx, principal)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w for %s", domain.ErrMissingToken, principal)
	}
	if err != nil {
		return nil, err
	}
	token, err := s.cipher.Open(stored.EncryptedToken)
	if err != nil {
		return nil, err
	}
	return s.clients(token)
}

// SetToken stores an encrypted access token for principal after checking
// it decrypts under the configured key.
func (s *SyncService) SetToken(ctx context.Context, principal, encrypted string) error {
	encrypted = strings.TrimSpace(encrypted)
	if _, err := s.cipher.Open(encrypted); err != nil {
		return err
	}
	return s.store.PutAccessToken(ctx, &domain.AccessToken{
		Principal:      principal,
		EncryptedToken: encrypted,
		UpdatedAt:      time.Now(),
	})
}

// GetToken returns principal's stored encrypted token.
func (s *SyncService) GetToken(ctx context.Context, principal string) (*domain.AccessToken, error) {
	return s.store.GetAccessToken(ctx, principal)
}

// ListTokens returns every stored encrypted token.
func (s *SyncService) ListTokens(ctx context.Context) ([]*domain.AccessToken, error) {
	return s.store.ListAccessTokens(ctx)
}

// ============================================
// Course Mappings
// ============================================

// AddMapping registers course for recurring sync in its canonical form.
func (s *SyncService) AddMapping(ctx context.Context, principal, course string) (*domain.CourseMapping, error) {
	spec, err := validation.ValidateCourseSpec(course)
	if err != nil {
		return nil, err
	}
	m := &domain.CourseMapping{
		ID:        uuid.New().String(),
		Course:    spec.String(),
		CreatedBy: principal,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateCourseMapping(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Info("course mapping added", zap.String("course", m.Course), zap.String("by", principal))
	return m, nil
}

// RemoveMapping unregisters course. Both the stored text and any
// equivalent spelling of it are accepted.
func (s *SyncService) RemoveMapping(ctx context.Context, course string) error {
	course = strings.TrimSpace(course)
	err := s.store.DeleteCourseMapping(ctx, course)
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	spec, perr := coursespec.Parse(course)
	if perr != nil || spec.String() == course {
		return err
	}
	return s.store.DeleteCourseMapping(ctx, spec.String())
}

// ListMappings returns the registered mappings, oldest first.
func (s *SyncService) ListMappings(ctx context.Context) ([]*domain.CourseMapping, error) {
	return s.store.ListCourseMappings(ctx)
}

// ============================================
// Teams and Members
// ============================================

// CreateTeam creates a team unless one with the name exists.
func (s *SyncService) CreateTeam(ctx context.Context, principal string, req *domain.CreateTeamRequest) (*domain.Team, error) {
	if err := validation.ValidateCreateTeam(req).Err(); err != nil {
		return nil, err
	}
	client, err := s.principalClient(ctx, principal)
	if err != nil {
		return nil, err
	}
	if _, err := client.GetTeamByName(ctx, req.Name); err == nil {
		return nil, fmt.Errorf("%w: team %s", domain.ErrAlreadyExists, req.Name)
	} else if !platform.IsNotFound(err) {
		return nil, err
	}

	teamType, _ := domain.ParseTeamType(req.Type)
	if strings.TrimSpace(req.Type) == "" && s.opts.TeamType != "" {
		teamType = s.opts.TeamType
	}
	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Name
	}
	team, err := client.CreateTeam(ctx, req.Name, displayName, teamType)
	if err != nil {
		s.logger.Error("failed to create team", zap.String("team", req.Name), zap.Error(err))
		return nil, err
	}
	s.logger.Info("team created", zap.String("team", team.Name), zap.String("by", principal))
	return team, nil
}

// ListTeams lists every team on the platform.
func (s *SyncService) ListTeams(ctx context.Context, principal string) ([]*domain.Team, error) {
	client, err := s.principalClient(ctx, principal)
	if err != nil {
		return nil, err
	}
	teams, _, err := platform.Paginate(ctx, s.opts.PageSize, s.opts.MaxPages,
		func(ctx context.Context, page, perPage int) ([]*domain.Team, error) {
			return client.ListTeams(ctx, page, perPage)
		})
	return teams, err
}

// AddUser adds username to team with role. A user missing on the platform
// is provisioned from the directory first. Admins are promoted with a
// separate role update after the membership exists.
func (s *SyncService) AddUser(ctx context.Context, principal, team string, req *domain.AddTeamMemberRequest) (*domain.Membership, error) {
	if err := validation.ValidateAddTeamMember(req).Err(); err != nil {
		return nil, err
	}
	role, _ := domain.ParseRole(req.Role)

	client, err := s.principalClient(ctx, principal)
	if err != nil {
		return nil, err
	}
	t, err := client.GetTeamByName(ctx, team)
	if err != nil {
		return nil, teamLookupError(team, err)
	}

	user, err := client.GetUserByUsername(ctx, req.Username)
	if platform.IsNotFound(err) {
		user, err = s.provisionFromDirectory(ctx, client, req.Username)
	}
	if err != nil {
		return nil, err
	}

	if err := client.AddTeamMembers(ctx, t.ID, []string{user.ID}); err != nil {
		return nil, err
	}
	roles := domain.RolesFor(role)
	if roles.Has(domain.RoleAdmin) {
		if err := client.UpdateTeamMemberRoles(ctx, t.ID, user.ID, roles); err != nil {
			return nil, err
		}
	}
	s.logger.Info("user added to team",
		zap.String("team", team), zap.String("username", req.Username),
		zap.Stringer("role", role), zap.String("by", principal))
	return &domain.Membership{TeamID: t.ID, UserID: user.ID, Roles: roles}, nil
}

func (s *SyncService) provisionFromDirectory(ctx context.Context, client platform.Client, username string) (*domain.RemoteUser, error) {
	member, err := s.dir.LookupUser(ctx, s.opts.SearchBase, username)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: user %s in the directory", domain.ErrNotFound, username)
	}
	if err != nil {
		return nil, err
	}
	user, err := client.CreateUser(ctx, *member)
	if err != nil {
		return nil, fmt.Errorf("creating user %s: %w", username, err)
	}
	if s.metrics != nil {
		s.metrics.UsersCreated.Inc()
	}
	return user, nil
}

// RemoveUser removes username from team. The reconciliation engine never
// does this; it is only an explicit operator action.
func (s *SyncService) RemoveUser(ctx context.Context, principal, team, username string) error {
	client, err := s.principalClient(ctx, principal)
	if err != nil {
		return err
	}
	t, err := client.GetTeamByName(ctx, team)
	if err != nil {
		return teamLookupError(team, err)
	}
	user, err := client.GetUserByUsername(ctx, username)
	if platform.IsNotFound(err) {
		return fmt.Errorf("%w: user %s", domain.ErrNotFound, username)
	}
	if err != nil {
		return err
	}

	teams, err := client.GetUserTeams(ctx, user.ID)
	if err != nil {
		return err
	}
	member := false
	for _, ut := range teams {
		if ut.ID == t.ID {
			member = true
			break
		}
	}
	if !member {
		return fmt.Errorf("%w: user %s is not in team %s", domain.ErrNotFound, username, team)
	}

	if err := client.RemoveTeamMember(ctx, t.ID, user.ID); err != nil {
		return err
	}
	s.logger.Info("user removed from team",
		zap.String("team", team), zap.String("username", username), zap.String("by", principal))
	return nil
}

func teamLookupError(team string, err error) error {
	if platform.IsNotFound(err) {
		return fmt.Errorf("%w: team %s", domain.ErrNotFound, team)
	}
	return err
}
