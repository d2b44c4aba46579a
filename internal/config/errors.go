package config

import (
	"errors"
)

var (
	// ErrEmptyURL error if config webserver.url is empty.
	ErrEmptyURL = errors.New("config webserver.url can not be empty")

	// ErrWebServerPortCanNotBeZero error if config webserver listening port is 0.
	ErrWebServerPortCanNotBeZero = errors.New("config webserver.port listening port can not be 0")

	// ErrEmptySessionSecret error if no session signing secret is configured.
	ErrEmptySessionSecret = errors.New("config session.secret (AUTH_SECRET) can not be empty")

	// ErrInvalidSessionMaxAge error if the session lifetime is not positive.
	ErrInvalidSessionMaxAge = errors.New("config session.maxAge must be positive")

	// ErrUnknownDirectoryBackend error if directory.backend is neither graph nor ldap.
	ErrUnknownDirectoryBackend = errors.New("config directory.backend must be graph or ldap")

	// ErrLDAPURLRequired error if the ldap backend is selected without a server url.
	ErrLDAPURLRequired = errors.New("config directory.ldap.url is required for the ldap backend")

	// ErrLDAPBaseDNRequired error if the ldap backend is selected without a base dn.
	ErrLDAPBaseDNRequired = errors.New("config directory.ldap.baseDn is required for the ldap backend")
)
