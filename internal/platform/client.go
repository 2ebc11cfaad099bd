// Package platform wraps the collaboration platform's team and user API.
package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/bcnelson/teamsync/internal/domain"
)

// Client defines the platform operations the sync needs.
// Lookups of absent resources return domain.ErrNotFound; every other remote
// failure is an *Error.
type Client interface {
	GetTeamByName(ctx context.Context, name string) (*domain.Team, error)
	CreateTeam(ctx context.Context, name, displayName string, teamType domain.TeamType) (*domain.Team, error)
	ListTeams(ctx context.Context, page, perPage int) ([]*domain.Team, error)

	GetUserByUsername(ctx context.Context, username string) (*domain.RemoteUser, error)
	CreateUser(ctx context.Context, member domain.Member) (*domain.RemoteUser, error)
	GetUserTeams(ctx context.Context, userID string) ([]*domain.Team, error)

	GetTeamMembers(ctx context.Context, teamID string, page, perPage int) ([]*domain.Membership, error)
	// AddTeamMembers adds users as plain members in one batched call.
	AddTeamMembers(ctx context.Context, teamID string, userIDs []string) error
	UpdateTeamMemberRoles(ctx context.Context, teamID, userID string, roles domain.RoleSet) error
	RemoveTeamMember(ctx context.Context, teamID, userID string) error
}

// Factory builds a Client authenticated with a plaintext access token.
type Factory func(token string) (Client, error)

// Error is a failed platform request.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every *Error match domain.ErrPlatform.
func (e *Error) Is(target error) bool {
	return target == domain.ErrPlatform
}

// IsNotFound reports whether err means the resource does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
