package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MM_URL", "https://mm.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 600*time.Second, cfg.Sync.Frequency)
	assert.Equal(t, 60, cfg.Sync.PageSize)
	assert.Equal(t, 1000, cfg.Sync.MaxPages)
	assert.Equal(t, OnceSkip, cfg.Sync.OnceSemantics)
	assert.True(t, cfg.Sync.AutoStart)
	assert.Equal(t, "ldap", cfg.Mattermost.UserAuthService)
	assert.Equal(t, "I", cfg.Mattermost.TeamType)
	assert.Equal(t, "(memberOf={dn})", cfg.LDAP.MemberFilter)
	assert.Equal(t, "_", cfg.LDAP.GroupSeparator)
	assert.False(t, cfg.SchedulerConfigured())
}

func TestLoadAdmins(t *testing.T) {
	t.Setenv("ADMINS", "@mmadmin,alice")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"@mmadmin", "alice"}, cfg.Admin.Admins)
	assert.True(t, cfg.Admin.IsAdmin("mmadmin"))
	assert.True(t, cfg.Admin.IsAdmin("@Alice"))
	assert.False(t, cfg.Admin.IsAdmin("bob"))
	assert.False(t, cfg.Admin.IsAdmin(""))
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("SYNC_FREQUENCY", "often")
	_, err := Load()
	assert.ErrorContains(t, err, "parsing sync config")
}

func validConfig() *Config {
	return &Config{
		Mattermost:  MattermostConfig{FileShim: "mm.json", TeamType: "I"},
		LDAP:        LDAPConfig{FileShim: "groups.json"},
		Sync:        SyncConfig{Frequency: time.Minute, PageSize: 60, MaxPages: 1000, OnceSemantics: OnceSkip},
		Credentials: CredentialsConfig{EncryptionKey: "key"},
		Log:         LogConfig{Format: "json"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid with shims", func(c *Config) {}, ""},
		{"missing mattermost", func(c *Config) { c.Mattermost.FileShim = "" }, "MM_URL"},
		{"missing ldap", func(c *Config) { c.LDAP.FileShim = "" }, "LDAP_URI"},
		{"missing search base", func(c *Config) {
			c.LDAP = LDAPConfig{URI: "ldaps://ldap", GroupFilter: "(cn={group})", MemberFilter: "(memberOf={dn})"}
		}, "LDAP_SEARCH_BASE"},
		{"group filter placeholder", func(c *Config) {
			c.LDAP = LDAPConfig{URI: "ldaps://ldap", SearchBase: "dc=x", GroupFilter: "(cn=x)", MemberFilter: "(memberOf={dn})"}
		}, "{group}"},
		{"bind password", func(c *Config) {
			c.LDAP = LDAPConfig{URI: "ldaps://ldap", SearchBase: "dc=x", GroupFilter: "(cn={group})", MemberFilter: "(memberOf={dn})", BindUser: "cn=bot"}
		}, "LDAP_BIND_ENCRYPTED_PASSWORD"},
		{"missing key", func(c *Config) { c.Credentials.EncryptionKey = "" }, "ENCRYPTION_KEY"},
		{"team type", func(c *Config) { c.Mattermost.TeamType = "X" }, "MM_TEAM_TYPE"},
		{"page size", func(c *Config) { c.Sync.PageSize = 0 }, "SYNC_PAGE_SIZE"},
		{"max pages", func(c *Config) { c.Sync.MaxPages = -1 }, "SYNC_MAX_PAGES"},
		{"once semantics", func(c *Config) { c.Sync.OnceSemantics = "sometimes" }, "SYNC_ONCE_SEMANTICS"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "LOG_FORMAT"},
		{"oidc issuer", func(c *Config) { c.OIDC.Enabled = true }, "OIDC_ISSUER_URL"},
		{"oidc client", func(c *Config) {
			c.OIDC = OIDCConfig{Enabled: true, IssuerURL: "https://idp"}
		}, "OIDC_CLIENT_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestGetAllowedDomains(t *testing.T) {
	c := OIDCConfig{AllowedDomains: "example.com, example.org"}
	assert.Equal(t, []string{"example.com", "example.org"}, c.GetAllowedDomains())
	assert.Nil(t, (&OIDCConfig{}).GetAllowedDomains())
}
