// Package account serves the signed-in user's own endpoints.
package account

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/auth"
	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/web/handler"
	authmiddleware "github.com/GoPowerDNS-Admin/GoAuthGate/internal/web/middleware/auth"
	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/web/session"
)

const (
	// MePath returns the current session.
	MePath = handler.RootPath + "me"

	// AdminStatusPath is reachable by administrators only.
	AdminStatusPath = handler.RootPath + "admin/status"
)

// Service is the account handler service.
type Service struct {
	codec     *session.Codec
	callbacks auth.Callbacks
}

var _ handler.Service = (*Service)(nil)

// New creates the account handler.
func New(codec *session.Codec, callbacks auth.Callbacks) *Service {
	if codec == nil || callbacks == nil {
		log.Fatal().Msg(handler.ErrNilFatalLogMsg)
	}

	return &Service{codec: codec, callbacks: callbacks}
}

// Init registers the routes.
func (s *Service) Init(router fiber.Router) {
	requireSession := authmiddleware.RequireSession(s.codec, s.callbacks)

	router.Get(MePath, requireSession, s.Me)
	router.Get(AdminStatusPath, requireSession, authmiddleware.RequireAdmin(), s.AdminStatus)
}

// Me returns the session of the caller.
func (s *Service) Me(c fiber.Ctx) error {
	current, _ := authmiddleware.Current(c)
	return c.JSON(current)
}

// AdminStatus confirms administrator access.
func (s *Service) AdminStatus(c fiber.Ctx) error {
	current, _ := authmiddleware.Current(c)

	return c.JSON(fiber.Map{
		"admin": true,
		"email": current.User.Email,
	})
}
