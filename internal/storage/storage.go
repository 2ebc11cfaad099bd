package storage

import (
	"context"

	"github.com/bcnelson/teamsync/internal/domain"
)

// Storage defines the interface for the storage layer.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// API Keys
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
	CountAPIKeys(ctx context.Context) (int, error)

	// Course mappings are unique by course string and listed oldest first.
	CreateCourseMapping(ctx context.Context, mapping *domain.CourseMapping) error
	GetCourseMapping(ctx context.Context, course string) (*domain.CourseMapping, error)
	ListCourseMappings(ctx context.Context) ([]*domain.CourseMapping, error)
	DeleteCourseMapping(ctx context.Context, course string) error

	// Access tokens, one per principal. PutAccessToken replaces.
	PutAccessToken(ctx context.Context, token *domain.AccessToken) error
	GetAccessToken(ctx context.Context, principal string) (*domain.AccessToken, error)
	ListAccessTokens(ctx context.Context) ([]*domain.AccessToken, error)

	// Sync runs are listed newest first.
	CreateSyncRun(ctx context.Context, run *domain.SyncRun) error
	GetSyncRun(ctx context.Context, id string) (*domain.SyncRun, error)
	ListSyncRuns(ctx context.Context, limit, offset int) ([]*domain.SyncRun, error)
	UpdateSyncRun(ctx context.Context, run *domain.SyncRun) error
}
