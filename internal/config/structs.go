package config

import (
	"time"

	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/logger"
)

// Config overall data structure.
type Config struct {
	DevMode   bool       `mapstructure:"devMode"` // enable dev mode for development
	Log       logger.Log `mapstructure:"log"`
	Webserver Webserver  `mapstructure:"webserver"`
	Session   Session    `mapstructure:"session"`
	Policy    Policy     `mapstructure:"policy"`
	Providers Providers  `mapstructure:"providers"`
	Directory Directory  `mapstructure:"directory"`
}

// Webserver implement webserver settings.
type Webserver struct {
	Port         int           `mapstructure:"port"`         // listening port for the webserver
	URL          string        `mapstructure:"url"`          // public base url, used for OAuth redirect urls
	ShutDownTime time.Duration `mapstructure:"shutDownTime"` // wait time for shutdown
	CheckAlive   string        `mapstructure:"checkAlive"`   // health check path
}

// Session settings.
type Session struct {
	Secret     string        `mapstructure:"secret"`     // HS256 signing secret of the session token
	MaxAge     time.Duration `mapstructure:"maxAge"`     // session token lifetime
	CookieName string        `mapstructure:"cookieName"` // name of the session cookie
}

// Policy holds the raw, comma separated allow-lists.
type Policy struct {
	AdminEmails       string `mapstructure:"adminEmails"`
	AllowedPrincipals string `mapstructure:"allowedPrincipals"`
}

// GitHub OAuth app credentials.
type GitHub struct {
	ClientID     string `mapstructure:"clientId"`
	ClientSecret string `mapstructure:"clientSecret"`
}

// AzureAD app registration credentials.
type AzureAD struct {
	ClientID     string `mapstructure:"clientId"`
	ClientSecret string `mapstructure:"clientSecret"`
	TenantID     string `mapstructure:"tenantId"`
}

// Providers holds the credential sets of all identity providers.
type Providers struct {
	GitHub  GitHub  `mapstructure:"github"`
	AzureAD AzureAD `mapstructure:"azureAd"`
}

// LDAP settings of the ldap directory backend.
type LDAP struct {
	URL          string `mapstructure:"url"`
	StartTLS     bool   `mapstructure:"startTls"`
	SkipVerify   bool   `mapstructure:"skipVerify"`
	BindDN       string `mapstructure:"bindDn"`
	BindPassword string `mapstructure:"bindPassword"`
	BaseDN       string `mapstructure:"baseDn"`
	GroupBaseDN  string `mapstructure:"groupBaseDn"`
	UserFilter   string `mapstructure:"userFilter"`
}

// Directory configures the membership lookup.
type Directory struct {
	Backend       string        `mapstructure:"backend"` // graph or ldap
	Timeout       time.Duration `mapstructure:"timeout"`
	GraphEndpoint string        `mapstructure:"graphEndpoint"`
	CacheTTL      time.Duration `mapstructure:"cacheTtl"` // 0 disables the membership cache
	CacheSize     int           `mapstructure:"cacheSize"`
	LDAP          LDAP          `mapstructure:"ldap"`
}
