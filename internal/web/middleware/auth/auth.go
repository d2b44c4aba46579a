package auth

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/auth"
	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/web/session"
)

// LocalsSession is the fiber.Locals key holding the current auth.Session.
const LocalsSession = "session"

// RequireSession rejects requests without a valid session cookie and stores
// the session in fiber.Locals for the handlers behind it.
func RequireSession(codec *session.Codec, callbacks auth.Callbacks) fiber.Handler {
	return func(c fiber.Ctx) error {
		token, err := codec.FromRequest(c)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				log.Warn().Err(err).Str("path", c.Path()).Msg("rejected session cookie")
			}

			return fiber.ErrUnauthorized
		}

		token = callbacks.JWT(token, nil)
		c.Locals(LocalsSession, callbacks.Session(session.Session(token), token))

		return c.Next()
	}
}

// RequireAdmin rejects sessions without the administrator flag.
// It must run behind RequireSession.
func RequireAdmin() fiber.Handler {
	return func(c fiber.Ctx) error {
		s, ok := Current(c)
		if !ok {
			return fiber.ErrUnauthorized
		}

		if !s.User.IsAdmin {
			log.Warn().Str("email", s.User.Email).Str("path", c.Path()).Msg("user lacks administrator flag")
			return fiber.ErrForbidden
		}

		return c.Next()
	}
}

// Current returns the session stored by RequireSession.
func Current(c fiber.Ctx) (auth.Session, bool) {
	s, ok := c.Locals(LocalsSession).(auth.Session)
	return s, ok
}
