// Package coursespec parses course specifications of the form
//
//	CPSC 101 001, CPSC 101 002 -> cpsc101
//
// into the directory groups to read and the team to populate.
package coursespec

import (
	"fmt"
	"strings"

	"github.com/bcnelson/teamsync/internal/domain"
)

const (
	// All is the reserved selector for every registered mapping.
	All = "all"

	teamSeparator  = "->"
	groupSeparator = ","
)

// IsAll reports whether spec is the reserved "all" selector.
func IsAll(spec string) bool {
	return strings.EqualFold(strings.TrimSpace(spec), All)
}

// Parse parses a course spec. It never touches the network.
func Parse(spec string) (domain.CourseSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return domain.CourseSpec{}, malformed(spec, "empty course spec")
	}
	if IsAll(spec) {
		return domain.CourseSpec{}, malformed(spec, `"all" is not a course`)
	}

	left, team, ok := strings.Cut(spec, teamSeparator)
	if !ok {
		return domain.CourseSpec{}, malformed(spec, fmt.Sprintf("missing %q before the team name", teamSeparator))
	}
	if strings.Contains(team, teamSeparator) {
		return domain.CourseSpec{}, malformed(spec, fmt.Sprintf("more than one %q", teamSeparator))
	}

	team = strings.TrimSpace(team)
	if team == "" {
		return domain.CourseSpec{}, malformed(spec, "missing team name")
	}
	if strings.ContainsAny(team, " \t\r\n") {
		return domain.CourseSpec{}, malformed(spec, "team name must not contain whitespace")
	}

	var sources []domain.GroupQuery
	for _, group := range strings.Split(left, groupSeparator) {
		selectors := strings.Fields(group)
		if len(selectors) == 0 {
			return domain.CourseSpec{}, malformed(spec, "empty group selector")
		}
		if len(selectors) == 1 && IsAll(selectors[0]) {
			return domain.CourseSpec{}, malformed(spec, `"all" is not a group`)
		}
		sources = append(sources, domain.GroupQuery{Selectors: selectors})
	}

	return domain.CourseSpec{Sources: sources, TeamName: team}, nil
}

func malformed(spec, reason string) error {
	return fmt.Errorf("%w %q: %s", domain.ErrMalformedSpec, spec, reason)
}
