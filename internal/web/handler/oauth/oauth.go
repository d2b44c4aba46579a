// Package oauth serves the sign-in endpoints: provider list, redirect to the
// provider, the callback that runs the gate, sign-out and the session read.
package oauth

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/auth"
	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/web/handler"
	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/web/session"
)

const (
	// ProvidersPath lists the active providers.
	ProvidersPath = handler.AuthPath + "providers"

	// SignInPath redirects to the provider.
	SignInPath = handler.AuthPath + "signin/"

	// CallbackPath receives the provider's redirect.
	CallbackPath = handler.AuthPath + "callback/"

	// SignOutPath clears the session. POST only, so other sites can not sign users out with a link.
	SignOutPath = handler.AuthPath + "signout"

	// SessionPath returns the current session.
	SessionPath = handler.AuthPath + "session"

	// ErrorPath reports a failed sign-in.
	ErrorPath = handler.AuthPath + "error"
)

// Error codes passed to ErrorPath.
const (
	ErrorAccessDenied  = "AccessDenied"
	ErrorOAuthCallback = "OAuthCallback"
)

// CallbackURL returns the absolute callback URL of provider.
func CallbackURL(baseURL, provider string) string {
	return baseURL + CallbackPath + provider
}

// ProviderInfo is one entry of the provider list.
type ProviderInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	SignInURL   string `json:"signinUrl"`
	CallbackURL string `json:"callbackUrl"`
}

// Service is the sign-in handler service.
type Service struct {
	baseURL    string
	registry   *auth.Registry
	callbacks  auth.Callbacks
	codec      *session.Codec
	exchangers map[string]Exchanger
	states     *StateStore
}

var _ handler.Service = (*Service)(nil)

// New creates the sign-in handler. Providers without an exchanger can not sign in.
func New(
	baseURL string,
	reg *auth.Registry,
	callbacks auth.Callbacks,
	codec *session.Codec,
	exchangers map[string]Exchanger,
) *Service {
	if reg == nil || callbacks == nil || codec == nil {
		log.Fatal().Msg(handler.ErrNilFatalLogMsg)
	}

	return &Service{
		baseURL:    baseURL,
		registry:   reg,
		callbacks:  callbacks,
		codec:      codec,
		exchangers: exchangers,
		states:     NewStateStore(DefaultStateTTL),
	}
}

// Init registers the routes.
func (s *Service) Init(router fiber.Router) {
	router.Get(ProvidersPath, s.Providers)
	router.Get(SignInPath+":provider", s.SignIn)
	router.Get(CallbackPath+":provider", s.Callback)
	router.Post(SignOutPath, s.SignOut)
	router.Get(SessionPath, s.Session)
	router.Get(ErrorPath, s.Error)
}

// Providers lists the providers a user can sign in with.
func (s *Service) Providers(c fiber.Ctx) error {
	out := make(map[string]ProviderInfo)

	for _, d := range s.registry.Providers() {
		if _, ok := s.exchangers[d.ID]; !ok {
			continue
		}

		out[d.ID] = ProviderInfo{
			ID:          d.ID,
			Name:        d.Name,
			Type:        "oauth",
			SignInURL:   s.baseURL + SignInPath + d.ID,
			CallbackURL: CallbackURL(s.baseURL, d.ID),
		}
	}

	return c.JSON(out)
}

func (s *Service) provider(id string) (*auth.Descriptor, Exchanger, bool) {
	d, ok := s.registry.Lookup(id)
	if !ok {
		return nil, nil, false
	}

	ex, ok := s.exchangers[id]

	return d, ex, ok
}

// SignIn redirects to the provider's authorization page.
func (s *Service) SignIn(c fiber.Ctx) error {
	id := c.Params("provider")

	_, ex, ok := s.provider(id)
	if !ok {
		return fiber.ErrNotFound
	}

	state, err := s.states.Issue(id)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate state token")
		return fiber.ErrInternalServerError
	}

	return c.Redirect().Status(fiber.StatusFound).To(ex.AuthCodeURL(state))
}

// Callback completes the sign-in. The session cookie is only set when the gate allows it.
func (s *Service) Callback(c fiber.Ctx) error {
	id := c.Params("provider")

	d, ex, ok := s.provider(id)
	if !ok {
		return fiber.ErrNotFound
	}

	if e := c.Query("error"); e != "" {
		log.Warn().Str("provider", id).Str("error", e).Msg("provider returned an error")
		return s.redirectError(c, ErrorOAuthCallback)
	}

	if !s.states.Consume(c.Query("state"), id) {
		log.Warn().Str("provider", id).Msg("invalid or expired state token")
		return s.redirectError(c, ErrorOAuthCallback)
	}

	code := c.Query("code")
	if code == "" {
		log.Warn().Str("provider", id).Msg("missing code in callback")
		return s.redirectError(c, ErrorOAuthCallback)
	}

	ctx := c.Context()

	raw, tokens, err := ex.Authenticate(ctx, code)
	if err != nil {
		log.Error().Err(err).Str("provider", id).Msg("authentication failed")
		return s.redirectError(c, ErrorOAuthCallback)
	}

	user, err := d.Profile(ctx, raw, tokens)
	if err != nil {
		log.Error().Err(err).Str("provider", id).Msg("failed to map profile")
		return s.redirectError(c, ErrorOAuthCallback)
	}

	allowed, err := s.callbacks.SignIn(ctx, user)
	if err != nil || !allowed {
		return s.redirectError(c, ErrorAccessDenied)
	}

	signed, err := s.codec.Encode(s.callbacks.JWT(session.TokenFor(user), user))
	if err != nil {
		log.Error().Err(err).Msg("failed to sign session token")
		return fiber.ErrInternalServerError
	}

	s.codec.SetCookie(c, signed)

	log.Info().Str("provider", id).Str("id", user.StableID).Msg("user signed in")

	return c.Redirect().Status(fiber.StatusFound).To(s.baseURL + "/")
}

// SignOut clears the session cookie.
func (s *Service) SignOut(c fiber.Ctx) error {
	s.codec.ClearCookie(c)

	return c.Redirect().Status(fiber.StatusFound).To(s.baseURL + "/")
}

// Session returns the current session, or an empty object without one.
func (s *Service) Session(c fiber.Ctx) error {
	token, err := s.codec.FromRequest(c)
	if err != nil {
		return c.JSON(fiber.Map{})
	}

	token = s.callbacks.JWT(token, nil)

	return c.JSON(s.callbacks.Session(session.Session(token), token))
}

// Error reports why a sign-in failed.
func (s *Service) Error(c fiber.Ctx) error {
	code := c.Query("error", ErrorOAuthCallback)

	status := fiber.StatusBadRequest
	if code == ErrorAccessDenied {
		status = fiber.StatusForbidden
	}

	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (s *Service) redirectError(c fiber.Ctx, code string) error {
	return c.Redirect().Status(fiber.StatusFound).To(s.baseURL + ErrorPath + "?error=" + code)
}
