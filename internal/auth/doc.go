// Package auth decides whether a federated sign-in may proceed and whether the
// signed-in user is an administrator.
//
// # Providers
//
// Two provider kinds are supported:
//   - GitHub (OAuth2), trusted statically: every authenticated user may sign in
//   - Azure AD (OIDC), checked against directory membership when an allow-list is configured
//
// NewRegistry activates the providers whose credential set is complete and
// wires each one to a profile hook. The hook normalizes the raw profile into a
// Principal, evaluates the admin allow-list and, for Azure AD, resolves the
// principal's transitive group membership.
//
// # Membership
//
// A Resolver returns the closure of directory object ids a principal belongs
// to, including its own id. GraphResolver calls Microsoft Graph
// getMemberObjects with the user's access token, LDAPResolver queries Active
// Directory with a service account. CachingResolver memoizes successful
// lookups for a short TTL.
//
// Every lookup failure (transport, timeout, non-2xx status, malformed body)
// is reported to a FailureHook and turned into a denied Membership.
//
// # Decision
//
// DecideAllowed is the only place where access is decided. Gate implements the
// Callbacks the host invokes:
//
//	user, err := descriptor.Profile(ctx, raw, tokens)
//	allowed, err := gate.SignIn(ctx, user)   // error means deny
//	token := gate.JWT(auth.Token{}, user)     // once, after sign-in
//	session := gate.Session(session, token)   // on every session read
//
// Admin status and access are independent: an administrator can be denied and
// a non-administrator can be allowed.
package auth
