package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/bcnelson/teamsync/internal/storage"
)

var _ storage.Storage = (*Store)(nil)

// Store is an in-memory implementation of the storage interface for testing.
// Values are copied in and out so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	apiKeys  map[string]*domain.APIKey        // key: id
	mappings map[string]*domain.CourseMapping // key: course
	tokens   map[string]*domain.AccessToken   // key: principal
	syncRuns map[string]*domain.SyncRun       // key: id
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		apiKeys:  make(map[string]*domain.APIKey),
		mappings: make(map[string]*domain.CourseMapping),
		tokens:   make(map[string]*domain.AccessToken),
		syncRuns: make(map[string]*domain.SyncRun),
	}
}

func (s *Store) Close() error { return nil }

func clone[T any](v *T) *T {
	c := *v
	return &c
}

// ============================================
// API Keys
// ============================================

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apiKeys[key.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.apiKeys[key.ID] = clone(key)
	return nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range s.apiKeys {
		if key.KeyHash == keyHash {
			return clone(key), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]*domain.APIKey, 0, len(s.apiKeys))
	for _, key := range s.apiKeys {
		keys = append(keys, clone(key))
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
	return keys, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apiKeys[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.apiKeys, id)
	return nil
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, exists := s.apiKeys[id]
	if !exists {
		return domain.ErrNotFound
	}
	now := time.Now()
	key.LastUsedAt = &now
	return nil
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.apiKeys), nil
}

// ============================================
// Course Mappings
// ============================================

func (s *Store) CreateCourseMapping(ctx context.Context, mapping *domain.CourseMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.mappings[mapping.Course]; exists {
		return domain.ErrAlreadyExists
	}
	s.mappings[mapping.Course] = clone(mapping)
	return nil
}

func (s *Store) GetCourseMapping(ctx context.Context, course string) (*domain.CourseMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mapping, exists := s.mappings[course]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return clone(mapping), nil
}

func (s *Store) ListCourseMappings(ctx context.Context) ([]*domain.CourseMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mappings := make([]*domain.CourseMapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		mappings = append(mappings, clone(m))
	}
	sort.Slice(mappings, func(i, j int) bool {
		if !mappings[i].CreatedAt.Equal(mappings[j].CreatedAt) {
			return mappings[i].CreatedAt.Before(mappings[j].CreatedAt)
		}
		return mappings[i].Course < mappings[j].Course
	})
	return mappings, nil
}

func (s *Store) DeleteCourseMapping(ctx context.Context, course string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.mappings[course]; !exists {
		return domain.ErrNotFound
	}
	delete(s.mappings, course)
	return nil
}

// ============================================
// Access Tokens
// ============================================

func (s *Store) PutAccessToken(ctx context.Context, token *domain.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.Principal] = clone(token)
	return nil
}

func (s *Store) GetAccessToken(ctx context.Context, principal string) (*domain.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, exists := s.tokens[principal]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return clone(token), nil
}

func (s *Store) ListAccessTokens(ctx context.Context) ([]*domain.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens := make([]*domain.AccessToken, 0, len(s.tokens))
	for _, t := range s.tokens {
		tokens = append(tokens, clone(t))
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].Principal < tokens[j].Principal
	})
	return tokens, nil
}

// ============================================
// Sync Runs
// ============================================

func (s *Store) CreateSyncRun(ctx context.Context, run *domain.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.syncRuns[run.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.syncRuns[run.ID] = clone(run)
	return nil
}

func (s *Store) GetSyncRun(ctx context.Context, id string) (*domain.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, exists := s.syncRuns[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return clone(run), nil
}

func (s *Store) ListSyncRuns(ctx context.Context, limit, offset int) ([]*domain.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]*domain.SyncRun, 0, len(s.syncRuns))
	for _, r := range s.syncRuns {
		runs = append(runs, clone(r))
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if offset >= len(runs) {
		return []*domain.SyncRun{}, nil
	}
	end := offset + limit
	if end > len(runs) {
		end = len(runs)
	}
	return runs[offset:end], nil
}

func (s *Store) UpdateSyncRun(ctx context.Context, run *domain.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.syncRuns[run.ID]; !exists {
		return domain.ErrNotFound
	}
	s.syncRuns[run.ID] = clone(run)
	return nil
}
