// Package config reads the configuration from an optional file and the environment.
package config

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/auth"
)

const (
	// BackendGraph selects Microsoft Graph for membership lookups.
	BackendGraph = auth.BackendGraph
	// BackendLDAP selects LDAP/Active Directory for membership lookups.
	BackendLDAP = auth.BackendLDAP

	// EnvPrefix prefixes environment overrides of keys without a dedicated variable.
	EnvPrefix = "GO_AUTH_GATE"

	redacted = "*****"

	defaultShutDownTime = 5 * time.Second
)

// envBindings maps config keys to their dedicated environment variables.
var envBindings = map[string]string{ //nolint:gochecknoglobals
	"devMode":                        "DEV_MODE",
	"log.level":                      "LOG_LEVEL",
	"log.reportCaller":               "LOG_REPORT_CALLER",
	"log.accessLogToConsole":         "LOG_ACCESS_TO_CONSOLE",
	"log.console.enabled":            "LOG_CONSOLE_ENABLED",
	"log.console.useConsoleWriter":   "LOG_CONSOLE_WRITER",
	"log.file.enabled":               "LOG_FILE_ENABLED",
	"log.file.path":                  "LOG_FILE_PATH",
	"webserver.port":                 "WEBSERVER_PORT",
	"webserver.url":                  "WEBSERVER_URL",
	"session.secret":                 "AUTH_SECRET",
	"session.maxAge":                 "SESSION_MAX_AGE",
	"policy.adminEmails":             "ADMIN_EMAIL_ADDRESS",
	"policy.allowedPrincipals":       "AZURE_AD_ALLOWED_PRINCIPALS",
	"providers.github.clientId":      "AUTH_GITHUB_ID",
	"providers.github.clientSecret":  "AUTH_GITHUB_SECRET",
	"providers.azureAd.clientId":     "AZURE_AD_CLIENT_ID",
	"providers.azureAd.clientSecret": "AZURE_AD_CLIENT_SECRET",
	"providers.azureAd.tenantId":     "AZURE_AD_TENANT_ID",
	"directory.backend":              "DIRECTORY_BACKEND",
	"directory.timeout":              "DIRECTORY_TIMEOUT",
	"directory.graphEndpoint":        "GRAPH_ENDPOINT",
	"directory.cacheTtl":             "MEMBERSHIP_CACHE_TTL",
	"directory.cacheSize":            "MEMBERSHIP_CACHE_SIZE",
	"directory.ldap.url":             "LDAP_URL",
	"directory.ldap.startTls":        "LDAP_START_TLS",
	"directory.ldap.skipVerify":      "LDAP_SKIP_VERIFY",
	"directory.ldap.bindDn":          "LDAP_BIND_DN",
	"directory.ldap.bindPassword":    "LDAP_BIND_PASSWORD",
	"directory.ldap.baseDn":          "LDAP_BASE_DN",
	"directory.ldap.groupBaseDn":     "LDAP_GROUP_BASE_DN",
	"directory.ldap.userFilter":      "LDAP_USER_FILTER",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("devMode", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.appName", "go-auth-gate")
	v.SetDefault("log.serviceName", "go-auth-gate")
	v.SetDefault("log.reportCaller", false)
	v.SetDefault("log.accessLogToConsole", true)
	v.SetDefault("log.disableCheckAlive", true)
	v.SetDefault("log.console.enabled", true)
	v.SetDefault("log.console.useConsoleWriter", false)
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "./log")
	v.SetDefault("log.file.access.filename", "access.log")
	v.SetDefault("log.file.error.filename", "error.log")
	v.SetDefault("log.file.info.filename", "info.log")
	v.SetDefault("log.file.warn.filename", "warn.log")
	v.SetDefault("log.file.trace.filename", "trace.log")

	for _, level := range []string{"access", "error", "info", "warn", "trace"} {
		v.SetDefault("log.file."+level+".maxSize", 100)  //nolint:mnd
		v.SetDefault("log.file."+level+".maxBackups", 5) //nolint:mnd
		v.SetDefault("log.file."+level+".maxAge", 30)    //nolint:mnd
	}

	v.SetDefault("webserver.port", 3000)
	v.SetDefault("webserver.url", "http://localhost:3000")
	v.SetDefault("webserver.shutDownTime", defaultShutDownTime)
	v.SetDefault("webserver.checkAlive", "/healthz")

	v.SetDefault("session.secret", "")
	v.SetDefault("session.maxAge", 30*24*time.Hour) //nolint:mnd
	v.SetDefault("session.cookieName", "go-auth-gate.session-token")

	v.SetDefault("policy.adminEmails", "")
	v.SetDefault("policy.allowedPrincipals", "")

	v.SetDefault("directory.backend", BackendGraph)
	v.SetDefault("directory.timeout", auth.DefaultDirectoryTimeout)
	v.SetDefault("directory.graphEndpoint", auth.DefaultGraphEndpoint)
	v.SetDefault("directory.cacheTtl", time.Duration(0))
	v.SetDefault("directory.cacheSize", auth.DefaultMembershipCacheSize)
}

// ReadConfig reads the config file at path, if any, and applies environment overrides.
// Supported file formats are the ones viper detects from the extension (toml, yaml, json).
func ReadConfig(path string) (Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, errors.Wrapf(err, "failed to bind %s", env)
		}
	}

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "failed to read config file")
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}

	normalize(&c)

	return c, validate(&c)
}

// normalize trims credentials so that whitespace-only values count as missing
// and replaces a non-positive shutdown time with the default.
func normalize(c *Config) {
	for _, s := range []*string{
		&c.Session.Secret,
		&c.Providers.GitHub.ClientID,
		&c.Providers.GitHub.ClientSecret,
		&c.Providers.AzureAD.ClientID,
		&c.Providers.AzureAD.ClientSecret,
		&c.Providers.AzureAD.TenantID,
		&c.Webserver.URL,
	} {
		*s = strings.TrimSpace(*s)
	}

	c.Webserver.URL = strings.TrimRight(c.Webserver.URL, "/")
	c.Directory.Backend = strings.ToLower(strings.TrimSpace(c.Directory.Backend))

	if c.Webserver.ShutDownTime <= 0 {
		c.Webserver.ShutDownTime = defaultShutDownTime
	}
}

// DumpConfigJSON config as JSON String with secrets redacted.
func DumpConfigJSON(c *Config) (string, error) {
	var buffer bytes.Buffer

	j := json.NewEncoder(&buffer)
	j.SetIndent("", "  ")

	if err := j.Encode(Redacted(c)); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// Redacted returns a copy of c with every secret masked.
func Redacted(c *Config) Config {
	out := *c

	for _, s := range []*string{
		&out.Session.Secret,
		&out.Providers.GitHub.ClientSecret,
		&out.Providers.AzureAD.ClientSecret,
		&out.Directory.LDAP.BindPassword,
	} {
		if *s != "" {
			*s = redacted
		}
	}

	return out
}

// validate minimal config settings.
func validate(c *Config) error {
	invalidErrMessage := "invalid config"

	if c.Webserver.Port == 0 {
		return errors.Wrap(ErrWebServerPortCanNotBeZero, invalidErrMessage)
	}

	if c.Webserver.URL == "" {
		return errors.Wrap(ErrEmptyURL, invalidErrMessage)
	}

	if c.Session.Secret == "" {
		return errors.Wrap(ErrEmptySessionSecret, invalidErrMessage)
	}

	if c.Session.MaxAge <= 0 {
		return errors.Wrap(ErrInvalidSessionMaxAge, invalidErrMessage)
	}

	switch c.Directory.Backend {
	case BackendGraph:
	case BackendLDAP:
		if c.Directory.LDAP.URL == "" {
			return errors.Wrap(ErrLDAPURLRequired, invalidErrMessage)
		}

		if c.Directory.LDAP.BaseDN == "" {
			return errors.Wrap(ErrLDAPBaseDNRequired, invalidErrMessage)
		}
	default:
		return errors.Wrap(ErrUnknownDirectoryBackend, invalidErrMessage)
	}

	return nil
}
