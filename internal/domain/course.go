package domain

import (
	"fmt"
	"strings"
	"time"
)

// GroupQuery is an ordered tuple of directory selectors identifying one
// source group (e.g. ["CPSC", "101", "001"]). It is never empty.
type GroupQuery struct {
	Selectors []string `json:"selectors"`
}

// String renders the selectors space separated.
func (q GroupQuery) String() string {
	return strings.Join(q.Selectors, " ")
}

// CourseSpec is the parsed form of a course specification string.
type CourseSpec struct {
	Sources  []GroupQuery `json:"sources"`
	TeamName string       `json:"team_name"`
}

// String renders the canonical course spec.
func (c CourseSpec) String() string {
	parts := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		parts[i] = s.String()
	}
	return fmt.Sprintf("%s -> %s", strings.Join(parts, ", "), c.TeamName)
}

// SourceList renders the source groups for status messages.
func (c CourseSpec) SourceList() string {
	parts := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		parts[i] = s.String()
	}
	return "[" + strings.Join(parts, "; ") + "]"
}

// CourseMapping is a course spec registered for recurring sync.
type CourseMapping struct {
	ID        string    `json:"id" db:"id"`
	Course    string    `json:"course" db:"course"`
	CreatedBy string    `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CreateCourseMappingRequest is the request body for registering a mapping.
type CreateCourseMappingRequest struct {
	Course string `json:"course"`
}
