package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Shim is an in-memory platform for local runs and tests. When a file path
// is set, state is loaded from and written back to that JSON file.
type Shim struct {
	filePath string
	logger   *zap.Logger

	mu    sync.RWMutex
	state shimState
}

type shimState struct {
	Teams   map[string]*domain.Team       `json:"teams"`   // key: id
	Users   map[string]*domain.RemoteUser `json:"users"`   // key: id
	Members map[string]domain.RoleSet     `json:"members"` // key: teamID/userID
}

// Ensure Shim implements Client.
var _ Client = (*Shim)(nil)

// NewShim creates a shim. An empty filePath keeps state in memory only.
func NewShim(filePath string, logger *zap.Logger) (*Shim, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Shim{
		filePath: filePath,
		logger:   logger,
		state: shimState{
			Teams:   make(map[string]*domain.Team),
			Users:   make(map[string]*domain.RemoteUser),
			Members: make(map[string]domain.RoleSet),
		},
	}
	if filePath == "" {
		return s, nil
	}

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading shim file: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("parsing shim file: %w", err)
	}
	// null sections decode as nil maps
	if s.state.Teams == nil {
		s.state.Teams = make(map[string]*domain.Team)
	}
	if s.state.Users == nil {
		s.state.Users = make(map[string]*domain.RemoteUser)
	}
	if s.state.Members == nil {
		s.state.Members = make(map[string]domain.RoleSet)
	}
	return s, nil
}

// ShimFactory returns a Factory that hands out the same shim for any token.
func ShimFactory(s *Shim) Factory {
	return func(token string) (Client, error) {
		if token == "" {
			return nil, domain.ErrMissingToken
		}
		return s, nil
	}
}

func memberKey(teamID, userID string) string {
	return teamID + "/" + userID
}

// persist writes state to the file. Callers hold the write lock.
func (s *Shim) persist() error {
	if s.filePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling shim state: %w", err)
	}
	if err := os.WriteFile(s.filePath, data, 0644); err != nil {
		return fmt.Errorf("writing shim file: %w", err)
	}
	return nil
}

func (s *Shim) GetTeamByName(ctx context.Context, name string) (*domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.state.Teams {
		if t.Name == name {
			c := *t
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Shim) CreateTeam(ctx context.Context, name, displayName string, teamType domain.TeamType) (*domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.state.Teams {
		if t.Name == name {
			return nil, &Error{Op: "create team", StatusCode: 400, Err: fmt.Errorf("a team with name %q already exists", name)}
		}
	}
	t := &domain.Team{ID: uuid.NewString(), Name: name, DisplayName: displayName, Type: teamType}
	s.state.Teams[t.ID] = t
	s.logger.Info("shim team created", zap.String("team", name))
	c := *t
	return &c, s.persist()
}

func (s *Shim) ListTeams(ctx context.Context, page, perPage int) ([]*domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*domain.Team, 0, len(s.state.Teams))
	for _, t := range s.state.Teams {
		c := *t
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return pageOf(all, page, perPage), nil
}

func (s *Shim) GetUserByUsername(ctx context.Context, username string) (*domain.RemoteUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.state.Users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Shim) CreateUser(ctx context.Context, member domain.Member) (*domain.RemoteUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	username := member.Username()
	if username == "" {
		return nil, &Error{Op: "create user", StatusCode: 400, Err: fmt.Errorf("member %q has no username", member.ExternalID)}
	}
	for _, u := range s.state.Users {
		if u.Username == username {
			return nil, &Error{Op: "create user", StatusCode: 400, Err: fmt.Errorf("username %q is taken", username)}
		}
	}
	u := &domain.RemoteUser{ID: uuid.NewString(), Username: username}
	s.state.Users[u.ID] = u
	c := *u
	return &c, s.persist()
}

func (s *Shim) GetUserTeams(ctx context.Context, userID string) ([]*domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var teams []*domain.Team
	for id, t := range s.state.Teams {
		if _, ok := s.state.Members[memberKey(id, userID)]; ok {
			c := *t
			teams = append(teams, &c)
		}
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams, nil
}

func (s *Shim) GetTeamMembers(ctx context.Context, teamID string, page, perPage int) ([]*domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.state.Teams[teamID]; !ok {
		return nil, domain.ErrNotFound
	}
	var all []*domain.Membership
	for userID := range s.state.Users {
		if roles, ok := s.state.Members[memberKey(teamID, userID)]; ok {
			all = append(all, &domain.Membership{TeamID: teamID, UserID: userID, Roles: roles})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UserID < all[j].UserID })
	return pageOf(all, page, perPage), nil
}

func (s *Shim) AddTeamMembers(ctx context.Context, teamID string, userIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Teams[teamID]; !ok {
		return domain.ErrNotFound
	}
	for _, id := range userIDs {
		if _, ok := s.state.Users[id]; !ok {
			return &Error{Op: "add team members", StatusCode: 400, Err: fmt.Errorf("unknown user %q", id)}
		}
	}
	for _, id := range userIDs {
		key := memberKey(teamID, id)
		if _, ok := s.state.Members[key]; !ok {
			s.state.Members[key] = domain.RolesFor(domain.RoleUser)
		}
	}
	return s.persist()
}

func (s *Shim) UpdateTeamMemberRoles(ctx context.Context, teamID, userID string, roles domain.RoleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey(teamID, userID)
	if _, ok := s.state.Members[key]; !ok {
		return domain.ErrNotFound
	}
	s.state.Members[key] = roles
	return s.persist()
}

func (s *Shim) RemoveTeamMember(ctx context.Context, teamID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey(teamID, userID)
	if _, ok := s.state.Members[key]; !ok {
		return domain.ErrNotFound
	}
	delete(s.state.Members, key)
	return s.persist()
}

func pageOf[T any](all []T, page, perPage int) []T {
	start := page * perPage
	if start >= len(all) {
		return []T{}
	}
	end := min(start+perPage, len(all))
	return all[start:end]
}
