package auth

import (
	"maps"
	"strconv"
	"time"
)

// ClaimIsAdmin is the token claim carrying the administrator flag.
const ClaimIsAdmin = "isAdmin"

// Token is the claim set of the long-lived session token. Only isAdmin has a
// meaning here; every other claim is carried through untouched.
type Token map[string]any

// SessionUser is the user as exposed to the application.
type SessionUser struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Image   string `json:"image,omitempty"`
	IsAdmin bool   `json:"isAdmin"`
}

// Session is the externally visible session.
type Session struct {
	User    SessionUser `json:"user"`
	Expires time.Time   `json:"expires"`
}

// EnrichToken copies the admin flag of a freshly signed-in user onto the token.
// A false or absent flag leaves the token's existing value alone, so a refresh
// without a user never revokes a previously granted flag. The input is not modified.
func EnrichToken(token Token, user *EnrichedProfile) Token {
	out := make(Token, len(token)+1)
	maps.Copy(out, token)

	if user != nil && user.IsAdmin {
		out[ClaimIsAdmin] = true
	}

	return out
}

// MaterializeSession projects the token's admin flag onto the session.
// It never fails: unreadable values count as false.
func MaterializeSession(session Session, token Token) Session {
	session.User.IsAdmin = claimBool(token, ClaimIsAdmin)

	return session
}

func claimBool(token Token, claim string) bool {
	switch v := token[claim].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	default:
		return false
	}
}
