// Package app wires configuration into the components both binaries run.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bcnelson/teamsync/internal/api"
	"github.com/bcnelson/teamsync/internal/auth"
	"github.com/bcnelson/teamsync/internal/config"
	"github.com/bcnelson/teamsync/internal/credential"
	"github.com/bcnelson/teamsync/internal/directory"
	"github.com/bcnelson/teamsync/internal/domain"
	"github.com/bcnelson/teamsync/internal/platform"
	"github.com/bcnelson/teamsync/internal/service"
	"github.com/bcnelson/teamsync/internal/storage"
	"github.com/bcnelson/teamsync/internal/storage/sql"
	"github.com/bcnelson/teamsync/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// App holds the wired components.
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	Store       storage.Storage
	Cipher      *credential.Cipher
	Directory   directory.Directory
	Clients     platform.Factory
	Registry    *prometheus.Registry
	Metrics     *telemetry.Metrics
	SyncService *service.SyncService
	Scheduler   *service.Scheduler
}

// New builds every component from cfg. The caller owns Close.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	cipher, err := credential.FromConfig(cfg.Credentials.EncryptionKey, cfg.Credentials.EncryptionSalt)
	if err != nil {
		return nil, fmt.Errorf("initializing credential cipher: %w", err)
	}

	dir, err := newDirectory(cfg, cipher, logger)
	if err != nil {
		return nil, err
	}

	clients, err := newClients(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Create data directory if needed (for SQLite)
	if cfg.Database.Driver == "sqlite3" {
		if d := filepath.Dir(cfg.Database.DSN); d != "." && !strings.HasPrefix(cfg.Database.DSN, "file:") {
			if err := os.MkdirAll(d, 0755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
	}
	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	teamType, _ := domain.ParseTeamType(cfg.Mattermost.TeamType)
	syncService := service.NewSyncService(store, dir, clients, cipher, metrics, service.Options{
		SearchBase:       cfg.LDAP.SearchBase,
		PageSize:         cfg.Sync.PageSize,
		MaxPages:         cfg.Sync.MaxPages,
		TeamType:         teamType,
		RegisterWhenOnce: cfg.Sync.OnceSemantics == config.OnceRegister,
		ScheduledToken:   cfg.Mattermost.EncryptedAccessToken,
	}, logger)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Store:       store,
		Cipher:      cipher,
		Directory:   dir,
		Clients:     clients,
		Registry:    reg,
		Metrics:     metrics,
		SyncService: syncService,
		Scheduler:   service.NewScheduler(syncService, logger),
	}, nil
}

func newDirectory(cfg *config.Config, cipher *credential.Cipher, logger *zap.Logger) (directory.Directory, error) {
	if cfg.UseLDAPShim() {
		logger.Info("using file shim for the directory", zap.String("path", cfg.LDAP.FileShim))
		return directory.LoadFileShim(cfg.LDAP.FileShim)
	}

	var password string
	if cfg.LDAP.BindEncryptedPassword != "" {
		p, err := cipher.Open(cfg.LDAP.BindEncryptedPassword)
		if err != nil {
			return nil, fmt.Errorf("decrypting LDAP_BIND_ENCRYPTED_PASSWORD: %w", err)
		}
		password = p
	}
	return directory.NewLDAP(directory.Options{
		URI:            cfg.LDAP.URI,
		BindDN:         cfg.LDAP.BindUser,
		BindPassword:   password,
		GroupFilter:    cfg.LDAP.GroupFilter,
		GroupSeparator: cfg.LDAP.GroupSeparator,
		MemberFilter:   cfg.LDAP.MemberFilter,
		UserFilter:     cfg.LDAP.UserFilter,
		Attributes: directory.Attributes{
			ExternalID:  cfg.LDAP.AttrExternalID,
			Username:    cfg.LDAP.AttrUsername,
			Email:       cfg.LDAP.AttrEmail,
			FirstName:   cfg.LDAP.AttrFirstName,
			LastName:    cfg.LDAP.AttrLastName,
			DisplayName: cfg.LDAP.AttrDisplayName,
		},
	}, logger), nil
}

func newClients(cfg *config.Config, logger *zap.Logger) (platform.Factory, error) {
	if cfg.UseMattermostShim() {
		logger.Info("using file shim for the Mattermost API", zap.String("path", cfg.Mattermost.FileShim))
		shim, err := platform.NewShim(cfg.Mattermost.FileShim, logger)
		if err != nil {
			return nil, fmt.Errorf("initializing Mattermost shim: %w", err)
		}
		return platform.ShimFactory(shim), nil
	}
	return platform.MattermostFactory(platform.MattermostOptions{
		URL:         cfg.Mattermost.URL,
		AuthService: cfg.Mattermost.UserAuthService,
		Timeout:     cfg.Mattermost.Timeout,
		Debug:       cfg.Mattermost.Debug,
		Logger:      logger,
	}), nil
}

// Authenticator builds the API authenticator, discovering the OIDC
// provider when OIDC is enabled.
func (a *App) Authenticator(ctx context.Context) (*auth.Authenticator, error) {
	var verifier auth.TokenVerifier
	if a.Config.OIDC.Enabled {
		v, err := auth.NewOIDCVerifier(ctx,
			a.Config.OIDC.IssuerURL,
			a.Config.OIDC.ClientID,
			a.Config.OIDC.UsernameClaim,
			a.Config.OIDC.GetAllowedDomains(),
		)
		if err != nil {
			return nil, err
		}
		a.Logger.Info("OIDC bearer tokens enabled", zap.String("issuer", a.Config.OIDC.IssuerURL))
		verifier = v
	}
	return auth.NewAuthenticator(a.Store, a.Config.Admin.BootstrapAPIKey, verifier, a.Config.Admin.IsAdmin, a.Logger), nil
}

// Router builds the HTTP API.
func (a *App) Router(authn *auth.Authenticator) http.Handler {
	return api.NewRouter(api.Deps{
		Store:         a.Store,
		SyncService:   a.SyncService,
		Scheduler:     a.Scheduler,
		Authenticator: authn,
		Metrics:       a.Metrics,
		Gatherer:      a.Registry,
		SyncFrequency: a.Config.Sync.Frequency,
		Logger:        a.Logger,
	})
}

// Close stops the scheduler and releases storage.
func (a *App) Close() error {
	a.Scheduler.Stop()
	return a.Store.Close()
}
