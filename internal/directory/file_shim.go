package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/bcnelson/teamsync/internal/domain"
)

// FileShim is a Directory read from a JSON file, for local runs without an
// LDAP server:
//
//	{"groups": {"CPSC 101 001": [{"external_id": "1", "attributes": {"username": "alice"}}]}}
//
// Group keys are the selectors joined by single spaces.
type FileShim struct {
	Groups map[string][]domain.Member `json:"groups"`
}

// Ensure FileShim implements Directory.
var _ Directory = (*FileShim)(nil)

// LoadFileShim reads a file shim.
func LoadFileShim(path string) (*FileShim, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory shim: %w", err)
	}
	var shim FileShim
	if err := json.Unmarshal(data, &shim); err != nil {
		return nil, fmt.Errorf("parsing directory shim: %w", err)
	}
	return &shim, nil
}

// Resolve returns the members of every listed group.
func (f *FileShim) Resolve(ctx context.Context, base string, queries []domain.GroupQuery) ([]domain.Member, error) {
	var members []domain.Member
	for _, q := range queries {
		found, ok := f.Groups[q.String()]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrGroupNotFound, q)
		}
		members = append(members, found...)
	}
	return dedupe(members), nil
}

// LookupUser scans every group for the username.
func (f *FileShim) LookupUser(ctx context.Context, base, username string) (*domain.Member, error) {
	for _, members := range f.Groups {
		for _, m := range members {
			if strings.EqualFold(m.Username(), username) {
				found := m
				return &found, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}
