// Package session encodes the session token into a signed cookie value.
package session

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/auth"
)

// Standard claims written by the codec next to the application claims.
const (
	ClaimSubject   = "sub"
	ClaimName      = "name"
	ClaimEmail     = "email"
	ClaimPicture   = "picture"
	ClaimProvider  = "provider"
	ClaimIssuedAt  = "iat"
	ClaimExpiresAt = "exp"
)

var (
	// ErrNoSession is returned when the request carries no session cookie.
	ErrNoSession = errors.New("no session cookie")

	// ErrEmptySecret is returned by NewCodec without a signing secret.
	ErrEmptySecret = errors.New("session secret can not be empty")
)

// Codec signs and verifies session tokens with HS256.
type Codec struct {
	secret     []byte
	maxAge     time.Duration
	cookieName string
	secure     bool
	now        func() time.Time
}

// NewCodec returns a codec for tokens valid for maxAge.
// secure marks the cookie as https only.
func NewCodec(secret string, maxAge time.Duration, cookieName string, secure bool) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	return &Codec{
		secret:     []byte(secret),
		maxAge:     maxAge,
		cookieName: cookieName,
		secure:     secure,
		now:        time.Now,
	}, nil
}

// TokenFor builds the initial claim set of a freshly signed-in user.
func TokenFor(user *auth.EnrichedProfile) auth.Token {
	return auth.Token{
		ClaimSubject:  user.StableID,
		ClaimName:     user.DisplayName,
		ClaimEmail:    user.Email,
		ClaimPicture:  user.Image,
		ClaimProvider: user.Provider.String(),
	}
}

// Encode signs token. iat and exp are set by the codec.
func (c *Codec) Encode(token auth.Token) (string, error) {
	now := c.now()

	claims := make(jwt.MapClaims, len(token)+2) //nolint:mnd
	maps.Copy(claims, token)
	claims[ClaimIssuedAt] = now.Unix()
	claims[ClaimExpiresAt] = now.Add(c.maxAge).Unix()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, nil
}

// Decode verifies raw and returns its claims.
func (c *Codec) Decode(raw string) (auth.Token, error) {
	parsed, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid session token: unexpected claims type %T", parsed.Claims)
	}

	return auth.Token(claims), nil
}

// Session builds the visible session from token, without the admin flag.
func Session(token auth.Token) auth.Session {
	var s auth.Session

	s.User.Name = stringClaim(token, ClaimName)
	s.User.Email = stringClaim(token, ClaimEmail)
	s.User.Image = stringClaim(token, ClaimPicture)

	if exp, err := jwt.MapClaims(token).GetExpirationTime(); err == nil && exp != nil {
		s.Expires = exp.UTC()
	}

	return s
}

// FromRequest reads and verifies the session cookie of the request.
func (c *Codec) FromRequest(ctx fiber.Ctx) (auth.Token, error) {
	raw := ctx.Cookies(c.cookieName)
	if raw == "" {
		return nil, ErrNoSession
	}

	return c.Decode(raw)
}

// SetCookie stores the signed token in the session cookie.
func (c *Codec) SetCookie(ctx fiber.Ctx, signed string) {
	ctx.Cookie(&fiber.Cookie{
		Name:     c.cookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(c.maxAge.Seconds()),
		Secure:   c.secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (c *Codec) ClearCookie(ctx fiber.Ctx) {
	ctx.Cookie(&fiber.Cookie{
		Name:     c.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   c.secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func stringClaim(token auth.Token, claim string) string {
	s, _ := token[claim].(string)
	return s
}
