package auth

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"
)

const (
	// BackendLDAP labels the LDAP resolver in logs and metrics.
	BackendLDAP = "ldap"

	// DefaultLDAPUserFilter finds Active Directory users by UPN or mail.
	DefaultLDAPUserFilter = "(&(objectClass=user)(|(userPrincipalName={username})(mail={username})))"

	// matchingRuleInChain is the Active Directory LDAP_MATCHING_RULE_IN_CHAIN OID.
	// It walks nested group membership server side.
	matchingRuleInChain = "1.2.840.113556.1.4.1941"

	objectGUIDAttr = "objectGUID"
	guidLength     = 16
)

// LDAPConfig holds the LDAP/Active Directory settings for membership lookups.
type LDAPConfig struct {
	// URL is the directory URL (e.g. "ldaps://dc.example.com:636").
	URL string
	// StartTLS upgrades a plain ldap:// connection to TLS.
	StartTLS bool
	// SkipVerify skips TLS certificate verification (insecure, for testing only).
	SkipVerify bool
	// BindDN is the service account used for searches.
	BindDN string
	// BindPassword is the password for BindDN.
	BindPassword string
	// BaseDN is the base for user searches.
	BaseDN string
	// GroupBaseDN is the base for group searches. Default: BaseDN.
	GroupBaseDN string
	// UserFilter finds the user entry. The {username} placeholder is replaced
	// with the principal's login identifier. Default: DefaultLDAPUserFilter.
	UserFilter string
	// Timeout bounds one lookup. Default: DefaultDirectoryTimeout.
	Timeout time.Duration
	// OnFailure receives every failure. Default: LogFailure.
	OnFailure FailureHook
}

// LDAPResolver resolves transitive group membership from Active Directory over LDAP.
// It authenticates with a service account, so the access token is not used.
type LDAPResolver struct {
	config LDAPConfig
}

// NewLDAPResolver creates an LDAP resolver, applying defaults for unset fields.
func NewLDAPResolver(config LDAPConfig) *LDAPResolver {
	if config.UserFilter == "" {
		config.UserFilter = DefaultLDAPUserFilter
	}

	if config.GroupBaseDN == "" {
		config.GroupBaseDN = config.BaseDN
	}

	if config.Timeout <= 0 {
		config.Timeout = DefaultDirectoryTimeout
	}

	if config.OnFailure == nil {
		config.OnFailure = LogFailure
	}

	return &LDAPResolver{config: config}
}

// Resolve returns the ids of all groups the principal transitively belongs to plus its own id.
// Group ids are objectGUIDs in canonical form when present, otherwise DNs.
func (r *LDAPResolver) Resolve(ctx context.Context, _ string, p Principal) (Closure, error) {
	start := time.Now()
	closure, err := r.resolve(ctx, p)

	directoryLatency.WithLabelValues(BackendLDAP).Observe(time.Since(start).Seconds())

	if err != nil {
		r.config.OnFailure(ctx, BackendLDAP, err)
		return Closure{}, err
	}

	return closure, nil
}

func (r *LDAPResolver) resolve(ctx context.Context, p Principal) (Closure, error) {
	login := firstNonEmpty(p.SecondaryID, p.Email)
	if login == "" {
		return Closure{}, ErrNoLoginIdentifier
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	conn, err := r.connect(ctx)
	if err != nil {
		return Closure{}, err
	}

	// closing the connection aborts any in-flight operation
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})

	defer func() {
		stop()

		if errClose := conn.Close(); errClose != nil {
			log.Debug().Err(errClose).Msg("failed to close LDAP connection")
		}
	}()

	closure, err := r.lookup(conn, login, p.StableID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Closure{}, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, ctxErr)
		}

		return Closure{}, err
	}

	return closure, nil
}

func (r *LDAPResolver) lookup(conn *ldap.Conn, login, stableID string) (Closure, error) {
	if r.config.BindDN != "" {
		if err := conn.Bind(r.config.BindDN, r.config.BindPassword); err != nil {
			return Closure{}, fmt.Errorf("%w: failed to bind with service account: %w", ErrDirectoryUnavailable, err)
		}
	}

	userDN, err := r.searchUserDN(conn, login)
	if err != nil {
		return Closure{}, err
	}

	ids, err := r.searchGroupIDs(conn, userDN)
	if err != nil {
		return Closure{}, err
	}

	return NewClosure(ids...).With(stableID), nil
}

// connect dials the directory. The dial itself is bounded by ctx.
func (r *LDAPResolver) connect(ctx context.Context) (*ldap.Conn, error) {
	u, err := url.Parse(r.config.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid LDAP URL: %w", ErrDirectoryUnavailable, err)
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: r.config.SkipVerify, //nolint:gosec // opt-in for test directories
		ServerName:         u.Hostname(),
		MinVersion:         tls.VersionTLS12,
	}

	dialer := &net.Dialer{}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	conn, err := ldap.DialURL(r.config.URL, ldap.DialWithTLSConfig(tlsConfig), ldap.DialWithDialer(dialer))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to LDAP server: %w", ErrDirectoryUnavailable, err)
	}

	if r.config.StartTLS && u.Scheme == "ldap" {
		if errStartTLS := conn.StartTLS(tlsConfig); errStartTLS != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w: failed to start TLS: %w", ErrDirectoryUnavailable, errStartTLS)
		}
	}

	conn.SetTimeout(r.config.Timeout)

	return conn, nil
}

func (r *LDAPResolver) searchUserDN(conn *ldap.Conn, login string) (string, error) {
	searchRequest := ldap.NewSearchRequest(
		r.config.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		2, // more than one is already an error
		r.timeLimit(),
		false,
		r.userFilter(login),
		[]string{"dn"},
		nil,
	)

	result, err := conn.Search(searchRequest)
	if err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
		return "", fmt.Errorf("%w: failed to search for user: %w", ErrDirectoryUnavailable, err)
	}

	if result == nil {
		return "", ErrMultipleUsersFound
	}

	switch len(result.Entries) {
	case 0:
		return "", ErrUserNotFound
	case 1:
		return result.Entries[0].DN, nil
	default:
		return "", ErrMultipleUsersFound
	}
}

func (r *LDAPResolver) searchGroupIDs(conn *ldap.Conn, userDN string) ([]string, error) {
	searchRequest := ldap.NewSearchRequest(
		r.config.GroupBaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		r.timeLimit(),
		false,
		groupFilter(userDN),
		[]string{objectGUIDAttr},
		nil,
	)

	result, err := conn.SearchWithPaging(searchRequest, 500) //nolint:mnd
	if err != nil {
		return nil, fmt.Errorf("%w: failed to search for groups: %w", ErrDirectoryUnavailable, err)
	}

	ids := make([]string, 0, len(result.Entries))
	for _, entry := range result.Entries {
		ids = append(ids, groupID(entry))
	}

	return ids, nil
}

func (r *LDAPResolver) userFilter(login string) string {
	return strings.ReplaceAll(r.config.UserFilter, "{username}", ldap.EscapeFilter(login))
}

func (r *LDAPResolver) timeLimit() int {
	return int(r.config.Timeout / time.Second)
}

// groupFilter matches every group that contains userDN directly or through nesting.
func groupFilter(userDN string) string {
	return fmt.Sprintf("(&(objectClass=group)(member:%s:=%s))", matchingRuleInChain, ldap.EscapeFilter(userDN))
}

func groupID(entry *ldap.Entry) string {
	if raw := entry.GetRawAttributeValue(objectGUIDAttr); len(raw) == guidLength {
		return formatGUID(raw)
	}

	return entry.DN
}

// formatGUID renders an Active Directory objectGUID in the canonical string form
// used by Azure AD and Graph. The first three groups are stored little-endian.
func formatGUID(b []byte) string {
	return fmt.Sprintf("%08x-%04x-%04x-%x-%x",
		binary.LittleEndian.Uint32(b[0:4]),
		binary.LittleEndian.Uint16(b[4:6]),
		binary.LittleEndian.Uint16(b[6:8]),
		b[8:10],
		b[10:16],
	)
}
