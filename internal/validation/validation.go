// Package validation checks operator input against Mattermost's naming rules
// before anything is sent to the platform.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bcnelson/teamsync/internal/coursespec"
	"github.com/bcnelson/teamsync/internal/domain"
)

const (
	teamNameMinLength   = 2
	teamNameMaxLength   = 64
	displayNameMaxRunes = 64
	usernameMinLength   = 3
	usernameMaxLength   = 22
	apiKeyNameMaxLength = 100
)

// reservedTeamNames are URL segments Mattermost refuses as team names.
var reservedTeamNames = map[string]bool{
	"admin":     true,
	"api":       true,
	"channel":   true,
	"claim":     true,
	"error":     true,
	"files":     true,
	"help":      true,
	"landing":   true,
	"login":     true,
	"mfa":       true,
	"oauth":     true,
	"plug":      true,
	"plugins":   true,
	"post":      true,
	"signup":    true,
	"boards":    true,
	"playbooks": true,
}

// isLower returns true if the byte is a lowercase ASCII letter.
func isLower(b byte) bool {
	return b >= 'a' && b <= 'z'
}

// isNum returns true if the byte is an ASCII digit.
func isNum(b byte) bool {
	return b >= '0' && b <= '9'
}

// ValidateTeamName validates a team URL name.
// Names are 2 to 64 characters, start with a lowercase letter and contain
// only lowercase letters, numbers, or hyphens.
func ValidateTeamName(name string) error {
	if len(name) < teamNameMinLength || len(name) > teamNameMaxLength {
		return fmt.Errorf("team name must be between %d and %d characters", teamNameMinLength, teamNameMaxLength)
	}
	if !isLower(name[0]) {
		return fmt.Errorf("team name must start with a lowercase letter")
	}
	for _, b := range []byte(name) {
		if !isLower(b) && !isNum(b) && b != '-' {
			return fmt.Errorf("team names can only contain lowercase letters, numbers, or hyphens")
		}
	}
	if reservedTeamNames[name] {
		return fmt.Errorf("team name %q is reserved", name)
	}
	return nil
}

// ValidateDisplayName validates a team display name. Empty means "use the
// team name".
func ValidateDisplayName(name string) error {
	if utf8.RuneCountInString(name) > displayNameMaxRunes {
		return fmt.Errorf("display name must be at most %d characters", displayNameMaxRunes)
	}
	if name != "" && strings.TrimSpace(name) == "" {
		return fmt.Errorf("display name must not be blank")
	}
	return nil
}

// ValidateUsername validates a platform username.
func ValidateUsername(username string) error {
	if len(username) < usernameMinLength || len(username) > usernameMaxLength {
		return fmt.Errorf("username must be between %d and %d characters", usernameMinLength, usernameMaxLength)
	}
	if !isLower(username[0]) {
		return fmt.Errorf("username must start with a lowercase letter")
	}
	for _, b := range []byte(username) {
		if !isLower(b) && !isNum(b) && b != '.' && b != '-' && b != '_' {
			return fmt.Errorf("usernames can only contain lowercase letters, numbers, '.', '-' or '_'")
		}
	}
	return nil
}

// ValidateTeamType validates a team type flag.
func ValidateTeamType(t string) error {
	if _, err := domain.ParseTeamType(t); err != nil {
		return fmt.Errorf("team type must be O (open) or I (invite only)")
	}
	return nil
}

// ValidateRole validates a membership role name.
func ValidateRole(role string) error {
	if _, err := domain.ParseRole(role); err != nil {
		return fmt.Errorf("role must be user or admin")
	}
	return nil
}

// ValidateAPIKeyName validates an API key label.
func ValidateAPIKeyName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name must not be empty")
	}
	if len(name) > apiKeyNameMaxLength {
		return fmt.Errorf("name must be at most %d characters", apiKeyNameMaxLength)
	}
	return nil
}

// ValidateCourseSpec parses course and checks that its team name is one
// the platform accepts. Parse failures keep domain.ErrMalformedSpec in
// their chain.
func ValidateCourseSpec(course string) (domain.CourseSpec, error) {
	spec, err := coursespec.Parse(course)
	if err != nil {
		return domain.CourseSpec{}, err
	}
	if err := ValidateTeamName(spec.TeamName); err != nil {
		return domain.CourseSpec{}, NewValidationError("course", course, err.Error())
	}
	return spec, nil
}

// ValidateCreateTeam validates a team creation request.
func ValidateCreateTeam(req *domain.CreateTeamRequest) ValidationErrors {
	var errs ValidationErrors
	if err := ValidateTeamName(req.Name); err != nil {
		errs.Add("name", req.Name, err.Error())
	}
	if err := ValidateDisplayName(req.DisplayName); err != nil {
		errs.Add("display_name", req.DisplayName, err.Error())
	}
	if err := ValidateTeamType(req.Type); err != nil {
		errs.Add("type", req.Type, err.Error())
	}
	return errs
}

// ValidateAddTeamMember validates a request to add one user to a team.
func ValidateAddTeamMember(req *domain.AddTeamMemberRequest) ValidationErrors {
	var errs ValidationErrors
	if err := ValidateUsername(req.Username); err != nil {
		errs.Add("username", req.Username, err.Error())
	}
	if err := ValidateRole(req.Role); err != nil {
		errs.Add("role", req.Role, err.Error())
	}
	return errs
}
