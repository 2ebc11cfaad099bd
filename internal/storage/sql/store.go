package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/bcnelson/teamsync/internal/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

var _ storage.Storage = (*Store)(nil)

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to domain.ErrAlreadyExists.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// notFound converts sql.ErrNoRows to domain.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// requireRow reports domain.ErrNotFound when a write touched nothing.
func requireRow(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New connects to the database and runs migrations.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return NewWithDB(db, driver), nil
}

// NewWithDB wraps an already migrated connection.
func NewWithDB(db *sqlx.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ============================================
// API Keys
// ============================================

const apiKeyColumns = `id, name, key_hash, key_prefix, created_by, created_at, last_used_at`

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (`+apiKeyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedBy, key.CreatedAt, key.LastUsedAt)
	return wrapUniqueError(err)
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := s.db.GetContext(ctx, &key,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, keyHash)
	if err != nil {
		return nil, notFound(err)
	}
	return &key, nil
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	keys := []*domain.APIKey{}
	err := s.db.SelectContext(ctx, &keys,
		`SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	return requireRow(s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id))
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, time.Now(), id)
	return err
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM api_keys`)
	return count, err
}

// ============================================
// Course Mappings
// ============================================

const mappingColumns = `id, course, created_by, created_at`

func (s *Store) CreateCourseMapping(ctx context.Context, mapping *domain.CourseMapping) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO course_mappings (`+mappingColumns+`) VALUES ($1, $2, $3, $4)`,
		mapping.ID, mapping.Course, mapping.CreatedBy, mapping.CreatedAt)
	return wrapUniqueError(err)
}

func (s *Store) GetCourseMapping(ctx context.Context, course string) (*domain.CourseMapping, error) {
	var mapping domain.CourseMapping
	err := s.db.GetContext(ctx, &mapping,
		`SELECT `+mappingColumns+` FROM course_mappings WHERE course = $1`, course)
	if err != nil {
		return nil, notFound(err)
	}
	return &mapping, nil
}

func (s *Store) ListCourseMappings(ctx context.Context) ([]*domain.CourseMapping, error) {
	mappings := []*domain.CourseMapping{}
	err := s.db.SelectContext(ctx, &mappings,
		`SELECT `+mappingColumns+` FROM course_mappings ORDER BY created_at, course`)
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

func (s *Store) DeleteCourseMapping(ctx context.Context, course string) error {
	return requireRow(s.db.ExecContext(ctx, `DELETE FROM course_mappings WHERE course = $1`, course))
}

// ============================================
// Access Tokens
// ============================================

func (s *Store) PutAccessToken(ctx context.Context, token *domain.AccessToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_tokens (principal, encrypted_token, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (principal) DO UPDATE
		 SET encrypted_token = excluded.encrypted_token, updated_at = excluded.updated_at`,
		token.Principal, token.EncryptedToken, token.UpdatedAt)
	return err
}

func (s *Store) GetAccessToken(ctx context.Context, principal string) (*domain.AccessToken, error) {
	var token domain.AccessToken
	err := s.db.GetContext(ctx, &token,
		`SELECT principal, encrypted_token, updated_at FROM access_tokens WHERE principal = $1`, principal)
	if err != nil {
		return nil, notFound(err)
	}
	return &token, nil
}

func (s *Store) ListAccessTokens(ctx context.Context) ([]*domain.AccessToken, error) {
	tokens := []*domain.AccessToken{}
	err := s.db.SelectContext(ctx, &tokens,
		`SELECT principal, encrypted_token, updated_at FROM access_tokens ORDER BY principal`)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// ============================================
// Sync Runs
// ============================================

const syncRunColumns = `id, course, team_name, trigger_kind, principal, status, added, failed_users, error, started_at, finished_at`

func (s *Store) CreateSyncRun(ctx context.Context, run *domain.SyncRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (`+syncRunColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.Course, run.TeamName, run.Trigger, run.Principal, run.Status,
		run.Added, run.FailedUsers, run.Error, run.StartedAt, run.FinishedAt)
	return wrapUniqueError(err)
}

func (s *Store) GetSyncRun(ctx context.Context, id string) (*domain.SyncRun, error) {
	var run domain.SyncRun
	err := s.db.GetContext(ctx, &run,
		`SELECT `+syncRunColumns+` FROM sync_runs WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

func (s *Store) ListSyncRuns(ctx context.Context, limit, offset int) ([]*domain.SyncRun, error) {
	runs := []*domain.SyncRun{}
	err := s.db.SelectContext(ctx, &runs,
		`SELECT `+syncRunColumns+` FROM sync_runs ORDER BY started_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *Store) UpdateSyncRun(ctx context.Context, run *domain.SyncRun) error {
	return requireRow(s.db.ExecContext(ctx,
		`UPDATE sync_runs
		 SET team_name = $1, status = $2, added = $3, failed_users = $4, error = $5, finished_at = $6
		 WHERE id = $7`,
		run.TeamName, run.Status, run.Added, run.FailedUsers, run.Error, run.FinishedAt, run.ID))
}
