// Package reconcile converges one platform team toward a directory-resolved
// member set. It only ever adds: it creates the team when missing, provisions
// missing accounts and adds missing members, and never removes or demotes.
package reconcile

import (
	"context"
	"fmt"

	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/bcnelson/teamsync/internal/platform"
	"go.uber.org/zap"
)

// Options tunes a reconciliation pass.
type Options struct {
	PageSize int
	MaxPages int
	// TeamType is used when a team has to be created.
	TeamType domain.TeamType
	// OnUserCreated, when set, is called for every account provisioned.
	OnUserCreated func(*domain.RemoteUser)
}

// Engine reconciles team membership against one platform client.
type Engine struct {
	client platform.Client
	opts   Options
	logger *zap.Logger
}

// New creates an Engine.
func New(client platform.Client, opts Options, logger *zap.Logger) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = platform.DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = platform.DefaultMaxPages
	}
	if opts.TeamType == "" {
		opts.TeamType = domain.TeamInvite
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{client: client, opts: opts, logger: logger}
}

// Reconcile runs one pass for target and streams its progress. The channel
// is closed after the terminal (Succeeded or Failed) event, or as soon as
// ctx is cancelled. Callers must either drain the channel or cancel ctx.
// Mutations already issued when ctx is cancelled are not rolled back.
func (e *Engine) Reconcile(ctx context.Context, target domain.TeamTarget, members []domain.Member) <-chan domain.ProgressEvent {
	ch := make(chan domain.ProgressEvent)
	go func() {
		defer close(ch)
		e.run(ctx, target, members, &emitter{ctx: ctx, ch: ch, team: target.Name})
	}()
	return ch
}

func (e *Engine) run(ctx context.Context, target domain.TeamTarget, members []domain.Member, out *emitter) {
	team, ok := e.ensureTeam(ctx, target, out)
	if !ok {
		return
	}

	if !out.emit(domain.Info("Now adding members to the team...")) {
		return
	}
	users, failed := e.provisionUsers(ctx, members)
	if ctx.Err() != nil {
		return
	}
	if failed > 0 {
		warning := domain.ProgressEvent{
			Kind:    domain.EventWarning,
			Message: fmt.Sprintf("Warning: failed to provision %d users on the platform. Please check the logs for details.", failed),
			Count:   failed,
		}
		if !out.emit(warning) {
			return
		}
	}

	current, err := e.currentMemberIDs(ctx, team.ID)
	if err != nil {
		e.logger.Error("failed to list team members", zap.String("team", team.Name), zap.Error(err))
		out.emit(domain.Failed(fmt.Sprintf("Failed to sync team %s: %v", team.Name, err), err))
		return
	}

	toAdd := Diff(users, current)
	if len(toAdd) == 0 {
		out.emit(domain.ProgressEvent{
			Kind:    domain.EventSucceeded,
			Message: "No new member to add. Roster is up-to-date.",
		})
		return
	}

	ids := make([]string, len(toAdd))
	for i, u := range toAdd {
		ids[i] = u.ID
	}
	if err := e.client.AddTeamMembers(ctx, team.ID, ids); err != nil {
		e.logger.Error("failed to add team members", zap.String("team", team.Name), zap.Int("users", len(ids)), zap.Error(err))
		out.emit(domain.Failed(fmt.Sprintf("Failed to sync team %s: %v", team.Name, err), err))
		return
	}
	out.emit(domain.ProgressEvent{
		Kind:    domain.EventSucceeded,
		Message: fmt.Sprintf("Added %d members to the team %s.", len(ids), team.Name),
		Count:   len(ids),
	})
}

// ensureTeam looks the team up by exact name and creates it when absent.
func (e *Engine) ensureTeam(ctx context.Context, target domain.TeamTarget, out *emitter) (*domain.Team, bool) {
	team, err := e.client.GetTeamByName(ctx, target.Name)
	switch {
	case err == nil:
		return team, out.emit(domain.Info(fmt.Sprintf("Team %s already exists.", target.Name)))
	case !platform.IsNotFound(err):
		e.logger.Error("failed to look up team", zap.String("team", target.Name), zap.Error(err))
		out.emit(domain.Failed(fmt.Sprintf("Failed to sync team %s: %v", target.Name, err), err))
		return nil, false
	}

	displayName := target.DisplayName
	if displayName == "" {
		displayName = target.Name
	}
	teamType := target.Type
	if teamType == "" {
		teamType = e.opts.TeamType
	}

	team, err = e.client.CreateTeam(ctx, target.Name, displayName, teamType)
	if err != nil {
		e.logger.Error("failed to create team", zap.String("team", target.Name), zap.Error(err))
		out.emit(domain.Failed(fmt.Sprintf("Failed to create team %s: %v", target.Name, err), err))
		return nil, false
	}
	e.logger.Info("team created", zap.String("team", team.Name), zap.String("id", team.ID))
	return team, out.emit(domain.Info(fmt.Sprintf("Team %s is created.", target.Name)))
}

// provisionUsers resolves every member to a platform account, creating the
// missing ones. Failures are counted, not fatal. The result is unique by id.
func (e *Engine) provisionUsers(ctx context.Context, members []domain.Member) ([]*domain.RemoteUser, int) {
	users := make([]*domain.RemoteUser, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	failed := 0

	for _, m := range members {
		if ctx.Err() != nil {
			return users, failed
		}
		user, err := e.provisionUser(ctx, m)
		if err != nil {
			failed++
			e.logger.Warn("failed to provision user",
				zap.String("external_id", m.ExternalID),
				zap.String("username", m.Username()),
				zap.Error(err))
			continue
		}
		if _, dup := seen[user.ID]; dup {
			continue
		}
		seen[user.ID] = struct{}{}
		users = append(users, user)
	}
	return users, failed
}

func (e *Engine) provisionUser(ctx context.Context, m domain.Member) (*domain.RemoteUser, error) {
	username := m.Username()
	if username == "" {
		return nil, fmt.Errorf("%w: member %q has no username", domain.ErrInvalidInput, m.ExternalID)
	}
	user, err := e.client.GetUserByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !platform.IsNotFound(err) {
		return nil, err
	}
	user, err = e.client.CreateUser(ctx, m)
	if err != nil {
		return nil, err
	}
	e.logger.Info("user created", zap.String("username", user.Username), zap.String("id", user.ID))
	if e.opts.OnUserCreated != nil {
		e.opts.OnUserCreated(user)
	}
	return user, nil
}

func (e *Engine) currentMemberIDs(ctx context.Context, teamID string) (map[string]struct{}, error) {
	fetch := func(ctx context.Context, page, perPage int) ([]*domain.Membership, error) {
		return e.client.GetTeamMembers(ctx, teamID, page, perPage)
	}
	memberships, _, err := platform.Paginate(ctx, e.opts.PageSize, e.opts.MaxPages, fetch)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(memberships))
	for _, m := range memberships {
		ids[m.UserID] = struct{}{}
	}
	return ids, nil
}

// Diff returns the users whose id is not in memberIDs, in input order.
func Diff(users []*domain.RemoteUser, memberIDs map[string]struct{}) []*domain.RemoteUser {
	var out []*domain.RemoteUser
	for _, u := range users {
		if _, ok := memberIDs[u.ID]; !ok {
			out = append(out, u)
		}
	}
	return out
}

type emitter struct {
	ctx  context.Context
	ch   chan<- domain.ProgressEvent
	team string
}

// emit delivers ev unless ctx is cancelled first.
func (o *emitter) emit(ev domain.ProgressEvent) bool {
	ev.Team = o.team
	select {
	case o.ch <- ev:
		return true
	case <-o.ctx.Done():
		return false
	}
}
