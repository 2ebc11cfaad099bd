// Package directory resolves course groups to their members in an LDAP
// directory.
package directory

import (
	"context"

	"github.com/bcnelson/teamsync/internal/domain"
)

// Directory is the read side of the identity source.
type Directory interface {
	// Resolve returns the deduplicated members of every group. Any group
	// matching nothing fails the whole call with domain.ErrGroupNotFound.
	Resolve(ctx context.Context, base string, queries []domain.GroupQuery) ([]domain.Member, error)
	// LookupUser finds a single person by username.
	LookupUser(ctx context.Context, base, username string) (*domain.Member, error)
}

// dedupe keeps the first member seen for every external id.
func dedupe(members []domain.Member) []domain.Member {
	seen := make(map[string]struct{}, len(members))
	out := make([]domain.Member, 0, len(members))
	for _, m := range members {
		if _, ok := seen[m.ExternalID]; ok {
			continue
		}
		seen[m.ExternalID] = struct{}{}
		out = append(out, m)
	}
	return out
}
