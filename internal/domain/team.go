package domain

import (
	"fmt"
	"strings"
)

// TeamType controls who may join a team.
type TeamType string

const (
	TeamOpen   TeamType = "O"
	TeamInvite TeamType = "I"
)

// ParseTeamType parses "O"/"I" (or "open"/"invite").
func ParseTeamType(s string) (TeamType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "o", "open":
		return TeamOpen, nil
	case "i", "invite", "":
		return TeamInvite, nil
	}
	return "", fmt.Errorf("%w: unknown team type %q", ErrInvalidInput, s)
}

// Team is a platform team.
type Team struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Type        TeamType `json:"type"`
}

// TeamTarget describes the team a reconciliation pass converges.
type TeamTarget struct {
	Name        string
	DisplayName string
	Type        TeamType
}

// Membership relates a user to a team.
type Membership struct {
	TeamID string  `json:"team_id"`
	UserID string  `json:"user_id"`
	Roles  RoleSet `json:"roles"`
}

// CreateTeamRequest is the request body for creating a team.
type CreateTeamRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
}

// AddTeamMemberRequest is the request body for adding a user to a team.
type AddTeamMemberRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}
