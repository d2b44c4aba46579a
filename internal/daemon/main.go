// Package daemon wires configuration, policy, providers and the web service together.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/auth"
	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/config"
	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/policy"
	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/web"
	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/web/handler/oauth"
	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/web/session"
)

// ErrNilConfig is returned by New without a configuration.
var ErrNilConfig = errors.New("config is nil")

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	registry   *auth.Registry
	webService *web.Service
}

// Start serves until SIGINT or SIGTERM.
func (d *Daemon) Start() error {
	go d.webService.WaitShutdown()

	return d.webService.Start(fmt.Sprintf(":%d", d.cfg.Webserver.Port))
}

// Registry returns the active providers.
func (d *Daemon) Registry() *auth.Registry {
	return d.registry
}

// New creates a new Daemon instance with the provided configuration.
func New(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	pol, reg := Registry(cfg)
	if reg.Empty() {
		log.Warn().Msg("no identity provider configured, nobody can sign in")
	}

	codec, err := session.NewCodec(
		cfg.Session.Secret,
		cfg.Session.MaxAge,
		cfg.Session.CookieName,
		!cfg.DevMode && strings.HasPrefix(cfg.Webserver.URL, "https://"),
	)
	if err != nil {
		return nil, err
	}

	exchangers := oauth.NewExchangers(ctx, cfg.Webserver.URL, reg)

	return &Daemon{
		cfg:        cfg,
		registry:   reg,
		webService: web.New(cfg, reg, auth.NewGate(pol), codec, exchangers),
	}, nil
}

// Registry builds the policy and the provider registry from cfg.
func Registry(cfg *config.Config) (policy.Policy, *auth.Registry) {
	pol := policy.New(cfg.Policy.AdminEmails, cfg.Policy.AllowedPrincipals)

	return pol, auth.NewRegistry(Credentials(cfg.Providers), pol, NewResolver(cfg.Directory, pol))
}

// Credentials converts the configured provider credentials.
func Credentials(p config.Providers) auth.Credentials {
	return auth.Credentials{
		GitHub: auth.GitHubCredentials{
			ClientID:     p.GitHub.ClientID,
			ClientSecret: p.GitHub.ClientSecret,
		},
		AzureAD: auth.AzureADCredentials{
			ClientID:     p.AzureAD.ClientID,
			ClientSecret: p.AzureAD.ClientSecret,
			TenantID:     p.AzureAD.TenantID,
		},
	}
}

// NewResolver creates the membership resolver of the configured backend,
// wrapped in a cache when a cache TTL is set.
func NewResolver(dir config.Directory, pol policy.Policy) auth.Resolver {
	var resolver auth.Resolver

	switch dir.Backend {
	case config.BackendLDAP:
		resolver = auth.NewLDAPResolver(auth.LDAPConfig{
			URL:          dir.LDAP.URL,
			StartTLS:     dir.LDAP.StartTLS,
			SkipVerify:   dir.LDAP.SkipVerify,
			BindDN:       dir.LDAP.BindDN,
			BindPassword: dir.LDAP.BindPassword,
			BaseDN:       dir.LDAP.BaseDN,
			GroupBaseDN:  dir.LDAP.GroupBaseDN,
			UserFilter:   dir.LDAP.UserFilter,
			Timeout:      dir.Timeout,
		})
	default:
		resolver = auth.NewGraphResolver(auth.GraphConfig{
			Endpoint: dir.GraphEndpoint,
			Timeout:  dir.Timeout,
		})
	}

	if dir.CacheTTL > 0 {
		log.Info().Dur("ttl", dir.CacheTTL).Int("size", dir.CacheSize).Msg("membership cache enabled")

		resolver = auth.NewCachingResolver(resolver, pol.AllowedPrincipals, dir.CacheTTL, dir.CacheSize)
	}

	return resolver
}
