package platform

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/google/uuid"
	"github.com/mattermost/mattermost/server/public/model"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// MattermostOptions configures the Mattermost client.
type MattermostOptions struct {
	URL string
	// AuthService is stamped on provisioned users ("ldap", "saml", ...).
	// Empty creates password users with a random password.
	AuthService string
	Timeout     time.Duration
	Debug       bool
	Logger      *zap.Logger
}

// Mattermost implements Client against the Mattermost v4 REST API.
type Mattermost struct {
	api         *model.Client4
	authService string
}

// Ensure Mattermost implements Client.
var _ Client = (*Mattermost)(nil)

// NewMattermost creates a client authenticated with a personal access token.
func NewMattermost(opts MattermostOptions, token string) (*Mattermost, error) {
	if token == "" {
		return nil, domain.ErrMissingToken
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = opts.Timeout
	if opts.Debug && opts.Logger != nil {
		httpClient.Transport = &debugTransport{next: httpClient.Transport, logger: opts.Logger}
	}

	api := model.NewAPIv4Client(opts.URL)
	api.HTTPClient = httpClient

	return &Mattermost{api: api, authService: opts.AuthService}, nil
}

// MattermostFactory returns a Factory producing Mattermost clients.
func MattermostFactory(opts MattermostOptions) Factory {
	return func(token string) (Client, error) {
		return NewMattermost(opts, token)
	}
}

// GetTeamByName looks a team up by its exact name.
func (m *Mattermost) GetTeamByName(ctx context.Context, name string) (*domain.Team, error) {
	team, resp, err := m.api.GetTeamByName(ctx, name, "")
	if err != nil {
		return nil, wrap("get team by name", resp, err)
	}
	return toTeam(team), nil
}

// CreateTeam creates a team.
func (m *Mattermost) CreateTeam(ctx context.Context, name, displayName string, teamType domain.TeamType) (*domain.Team, error) {
	team, resp, err := m.api.CreateTeam(ctx, &model.Team{
		Name:        name,
		DisplayName: displayName,
		Type:        string(teamType),
	})
	if err != nil {
		return nil, wrap("create team", resp, err)
	}
	return toTeam(team), nil
}

// ListTeams returns one page of teams.
func (m *Mattermost) ListTeams(ctx context.Context, page, perPage int) ([]*domain.Team, error) {
	teams, resp, err := m.api.GetAllTeams(ctx, "", page, perPage)
	if err != nil {
		return nil, wrap("list teams", resp, err)
	}
	out := make([]*domain.Team, 0, len(teams))
	for _, t := range teams {
		out = append(out, toTeam(t))
	}
	return out, nil
}

// GetUserByUsername looks a user up by username.
func (m *Mattermost) GetUserByUsername(ctx context.Context, username string) (*domain.RemoteUser, error) {
	user, resp, err := m.api.GetUserByUsername(ctx, username, "")
	if err != nil {
		return nil, wrap("get user by username", resp, err)
	}
	return toUser(user), nil
}

// CreateUser provisions an account from a directory member.
func (m *Mattermost) CreateUser(ctx context.Context, member domain.Member) (*domain.RemoteUser, error) {
	u := &model.User{
		Username:  member.Username(),
		Email:     member.Attr(domain.AttrEmail),
		FirstName: member.Attr(domain.AttrFirstName),
		LastName:  member.Attr(domain.AttrLastName),
		Nickname:  member.Attr(domain.AttrDisplayName),
	}
	if m.authService != "" {
		authData := member.ExternalID
		u.AuthService = m.authService
		u.AuthData = &authData
	} else {
		u.Password = uuid.NewString()
	}

	created, resp, err := m.api.CreateUser(ctx, u)
	if err != nil {
		return nil, wrap("create user", resp, err)
	}
	return toUser(created), nil
}

// GetUserTeams lists the teams a user belongs to.
func (m *Mattermost) GetUserTeams(ctx context.Context, userID string) ([]*domain.Team, error) {
	teams, resp, err := m.api.GetTeamsForUser(ctx, userID, "")
	if err != nil {
		return nil, wrap("get user teams", resp, err)
	}
	out := make([]*domain.Team, 0, len(teams))
	for _, t := range teams {
		out = append(out, toTeam(t))
	}
	return out, nil
}

// GetTeamMembers returns one page of team memberships.
func (m *Mattermost) GetTeamMembers(ctx context.Context, teamID string, page, perPage int) ([]*domain.Membership, error) {
	members, resp, err := m.api.GetTeamMembers(ctx, teamID, page, perPage, "")
	if err != nil {
		return nil, wrap("get team members", resp, err)
	}
	out := make([]*domain.Membership, 0, len(members))
	for _, tm := range members {
		out = append(out, &domain.Membership{
			TeamID: tm.TeamId,
			UserID: tm.UserId,
			Roles:  domain.ParsePlatformRoles(tm.Roles),
		})
	}
	return out, nil
}

// AddTeamMembers adds users to a team in one request.
func (m *Mattermost) AddTeamMembers(ctx context.Context, teamID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, resp, err := m.api.AddTeamMembers(ctx, teamID, userIDs)
	if err != nil {
		return wrap("add team members", resp, err)
	}
	return nil
}

// UpdateTeamMemberRoles replaces a member's team roles.
func (m *Mattermost) UpdateTeamMemberRoles(ctx context.Context, teamID, userID string, roles domain.RoleSet) error {
	resp, err := m.api.UpdateTeamMemberRoles(ctx, teamID, userID, roles.PlatformRoles())
	if err != nil {
		return wrap("update team member roles", resp, err)
	}
	return nil
}

// RemoveTeamMember removes a user from a team.
func (m *Mattermost) RemoveTeamMember(ctx context.Context, teamID, userID string) error {
	resp, err := m.api.RemoveTeamMember(ctx, teamID, userID)
	if err != nil {
		return wrap("remove team member", resp, err)
	}
	return nil
}

func wrap(op string, resp *model.Response, err error) error {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	var appErr *model.AppError
	if errors.As(err, &appErr) && status == 0 {
		status = appErr.StatusCode
	}
	if status == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return &Error{Op: op, StatusCode: status, Err: err}
}

func toTeam(t *model.Team) *domain.Team {
	return &domain.Team{
		ID:          t.Id,
		Name:        t.Name,
		DisplayName: t.DisplayName,
		Type:        domain.TeamType(t.Type),
	}
}

func toUser(u *model.User) *domain.RemoteUser {
	return &domain.RemoteUser{ID: u.Id, Username: u.Username}
}

// debugTransport logs every request when MM_DEBUG is set.
type debugTransport struct {
	next   http.RoundTripper
	logger *zap.Logger
}

func (t *debugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		t.logger.Debug("mattermost request failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	t.logger.Debug("mattermost request", append(fields, zap.Int("status", resp.StatusCode))...)
	return resp, nil
}
