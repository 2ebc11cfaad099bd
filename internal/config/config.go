package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
)

// Once-flag policies for SYNC_ONCE_SEMANTICS.
const (
	// OnceSkip registers every ad-hoc course except those run with once.
	OnceSkip = "skip"
	// OnceRegister registers only the courses run with once.
	OnceRegister = "register"
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Mattermost  MattermostConfig
	LDAP        LDAPConfig
	Sync        SyncConfig
	Credentials CredentialsConfig
	Log         LogConfig
	OIDC        OIDCConfig
	Admin       AdminConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/teamsync.db"`
}

// MattermostConfig holds platform API configuration.
type MattermostConfig struct {
	URL     string        `env:"MM_URL"`
	Debug   bool          `env:"MM_DEBUG" envDefault:"false"`
	Timeout time.Duration `env:"MM_TIMEOUT" envDefault:"30s"`
	// UserAuthService is set on provisioned accounts; empty creates
	// password accounts instead.
	UserAuthService string `env:"MM_USER_AUTH_SERVICE" envDefault:"ldap"`
	TeamType        string `env:"MM_TEAM_TYPE" envDefault:"I"`
	// EncryptedAccessToken is used by scheduled syncs.
	EncryptedAccessToken string `env:"MM_ENCRYPTED_ACCESS_TOKEN"`
	FileShim             string `env:"MM_FILE_SHIM"` // Path to file for testing shim (disables real API)
}

// LDAPConfig holds directory configuration.
type LDAPConfig struct {
	URI                   string `env:"LDAP_URI"`
	BindUser              string `env:"LDAP_BIND_USER"`
	BindEncryptedPassword string `env:"LDAP_BIND_ENCRYPTED_PASSWORD"`
	SearchBase            string `env:"LDAP_SEARCH_BASE"`
	GroupFilter           string `env:"LDAP_GROUP_FILTER" envDefault:"(&(objectClass=groupOfNames)(cn={group}))"`
	GroupSeparator        string `env:"LDAP_GROUP_SEPARATOR" envDefault:"_"`
	MemberFilter          string `env:"LDAP_MEMBER_FILTER" envDefault:"(memberOf={dn})"`
	UserFilter            string `env:"LDAP_USER_FILTER" envDefault:"(uid={username})"`
	AttrExternalID        string `env:"LDAP_ATTR_EXTERNAL_ID" envDefault:"uid"`
	AttrUsername          string `env:"LDAP_ATTR_USERNAME" envDefault:"uid"`
	AttrEmail             string `env:"LDAP_ATTR_EMAIL" envDefault:"mail"`
	AttrFirstName         string `env:"LDAP_ATTR_FIRST_NAME" envDefault:"givenName"`
	AttrLastName          string `env:"LDAP_ATTR_LAST_NAME" envDefault:"sn"`
	AttrDisplayName       string `env:"LDAP_ATTR_DISPLAY_NAME" envDefault:"displayName"`
	FileShim              string `env:"LDAP_FILE_SHIM"` // Path to JSON groups file (disables LDAP)
}

// SyncConfig holds sync behavior configuration.
type SyncConfig struct {
	Frequency     time.Duration `env:"SYNC_FREQUENCY" envDefault:"600s"`
	AutoStart     bool          `env:"SYNC_AUTOSTART" envDefault:"true"`
	PageSize      int           `env:"SYNC_PAGE_SIZE" envDefault:"60"`
	MaxPages      int           `env:"SYNC_MAX_PAGES" envDefault:"1000"`
	OnceSemantics string        `env:"SYNC_ONCE_SEMANTICS" envDefault:"skip"`
}

// CredentialsConfig holds the key that seals stored tokens.
type CredentialsConfig struct {
	EncryptionKey  string `env:"ENCRYPTION_KEY"`
	EncryptionSalt string `env:"ENCRYPTION_SALT"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// OIDCConfig holds OIDC bearer token verification configuration.
type OIDCConfig struct {
	Enabled        bool   `env:"OIDC_ENABLED" envDefault:"false"`
	IssuerURL      string `env:"OIDC_ISSUER_URL"`
	ClientID       string `env:"OIDC_CLIENT_ID"`
	UsernameClaim  string `env:"OIDC_USERNAME_CLAIM" envDefault:"preferred_username"`
	AllowedDomains string `env:"OIDC_ALLOWED_DOMAINS"`
}

// GetAllowedDomains returns the allowed domains as a slice.
func (c *OIDCConfig) GetAllowedDomains() []string {
	if c.AllowedDomains == "" {
		return nil
	}
	domains := strings.Split(c.AllowedDomains, ",")
	for i := range domains {
		domains[i] = strings.TrimSpace(domains[i])
	}
	return domains
}

// AdminConfig lists who may run admin operations.
type AdminConfig struct {
	Admins          []string `env:"ADMINS" envSeparator:","`
	BootstrapAPIKey string   `env:"BOOTSTRAP_API_KEY"`
}

// IsAdmin reports whether principal is listed in ADMINS. A leading @ is
// ignored on both sides.
func (c *AdminConfig) IsAdmin(principal string) bool {
	p := strings.TrimPrefix(strings.TrimSpace(principal), "@")
	if p == "" {
		return false
	}
	for _, a := range c.Admins {
		if strings.EqualFold(strings.TrimPrefix(strings.TrimSpace(a), "@"), p) {
			return true
		}
	}
	return false
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	sections := []struct {
		name string
		v    any
	}{
		{"server", &cfg.Server},
		{"database", &cfg.Database},
		{"mattermost", &cfg.Mattermost},
		{"ldap", &cfg.LDAP},
		{"sync", &cfg.Sync},
		{"credentials", &cfg.Credentials},
		{"log", &cfg.Log},
		{"oidc", &cfg.OIDC},
		{"admin", &cfg.Admin},
	}
	for _, s := range sections {
		if err := env.Parse(s.v); err != nil {
			return nil, fmt.Errorf("parsing %s config: %w", s.name, err)
		}
	}

	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Mattermost.FileShim == "" && c.Mattermost.URL == "" {
		return fmt.Errorf("MM_URL is required (or set MM_FILE_SHIM for testing)")
	}
	if c.LDAP.FileShim == "" {
		if c.LDAP.URI == "" {
			return fmt.Errorf("LDAP_URI is required (or set LDAP_FILE_SHIM for testing)")
		}
		if c.LDAP.SearchBase == "" {
			return fmt.Errorf("LDAP_SEARCH_BASE is required (or set LDAP_FILE_SHIM for testing)")
		}
		if !strings.Contains(c.LDAP.GroupFilter, "{group}") {
			return fmt.Errorf("LDAP_GROUP_FILTER must contain the {group} placeholder")
		}
		if !strings.Contains(c.LDAP.MemberFilter, "{dn}") {
			return fmt.Errorf("LDAP_MEMBER_FILTER must contain the {dn} placeholder")
		}
		if c.LDAP.BindUser != "" && c.LDAP.BindEncryptedPassword == "" {
			return fmt.Errorf("LDAP_BIND_ENCRYPTED_PASSWORD is required when LDAP_BIND_USER is set")
		}
	}

	if c.Credentials.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required to open stored access tokens")
	}

	switch strings.ToUpper(c.Mattermost.TeamType) {
	case "O", "I":
	default:
		return fmt.Errorf("MM_TEAM_TYPE must be O or I, got %q", c.Mattermost.TeamType)
	}

	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("SYNC_PAGE_SIZE must be positive")
	}
	if c.Sync.MaxPages <= 0 {
		return fmt.Errorf("SYNC_MAX_PAGES must be positive")
	}
	if c.Sync.Frequency <= 0 {
		return fmt.Errorf("SYNC_FREQUENCY must be positive")
	}
	switch c.Sync.OnceSemantics {
	case OnceSkip, OnceRegister:
	default:
		return fmt.Errorf("SYNC_ONCE_SEMANTICS must be %q or %q, got %q", OnceSkip, OnceRegister, c.Sync.OnceSemantics)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Log.Format)
	}

	// Validate OIDC config when enabled
	if c.OIDC.Enabled {
		if c.OIDC.IssuerURL == "" {
			return fmt.Errorf("OIDC_ISSUER_URL is required when OIDC is enabled")
		}
		if c.OIDC.ClientID == "" {
			return fmt.Errorf("OIDC_CLIENT_ID is required when OIDC is enabled")
		}
	}

	return nil
}

// UseMattermostShim returns true if the platform file shim replaces the real API.
func (c *Config) UseMattermostShim() bool {
	return c.Mattermost.FileShim != ""
}

// UseLDAPShim returns true if the directory file shim replaces LDAP.
func (c *Config) UseLDAPShim() bool {
	return c.LDAP.FileShim != ""
}

// SchedulerConfigured reports whether scheduled syncs have a token to use.
func (c *Config) SchedulerConfigured() bool {
	return c.Mattermost.EncryptedAccessToken != ""
}
