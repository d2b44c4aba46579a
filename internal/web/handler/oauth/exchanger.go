package oauth

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/auth"
)

var (
	// ErrNoIDToken is returned when the token response carries no id_token.
	ErrNoIDToken = errors.New("no id_token in token response")

	// ErrUnexpectedStatus is returned when a provider API answers with a non-200 status.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrUnknownProvider is returned for a provider kind without an exchanger.
	ErrUnknownProvider = errors.New("unknown provider kind")
)

// Exchanger runs the provider side of the authorization code flow.
type Exchanger interface {
	// AuthCodeURL returns the provider's authorization URL for state.
	AuthCodeURL(state string) string
	// Authenticate exchanges code for tokens and fetches the raw profile.
	Authenticate(ctx context.Context, code string) (auth.RawProfile, *oauth2.Token, error)
}

// NewExchanger creates the exchanger matching the descriptor's kind.
// redirectURL is the callback URL registered with the provider.
func NewExchanger(ctx context.Context, d *auth.Descriptor, redirectURL string) (Exchanger, error) {
	switch d.Kind {
	case auth.KindGitHub:
		return NewGitHub(d, redirectURL), nil
	case auth.KindAzureAD:
		return NewAzureAD(ctx, d, redirectURL, AzureADIssuer(d.TenantID))
	default:
		return nil, ErrUnknownProvider
	}
}

// NewExchangers creates an exchanger for every active provider. A provider whose
// exchanger can not be created is logged and left out.
func NewExchangers(ctx context.Context, baseURL string, reg *auth.Registry) map[string]Exchanger {
	out := make(map[string]Exchanger)

	for _, d := range reg.Providers() {
		ex, err := NewExchanger(ctx, d, CallbackURL(baseURL, d.ID))
		if err != nil {
			log.Warn().Err(err).Str("provider", d.ID).Msg("failed to initialize provider, sign-in disabled")
			continue
		}

		out[d.ID] = ex
	}

	return out
}
