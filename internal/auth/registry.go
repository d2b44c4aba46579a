package auth

import (
	"context"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/policy"
)

const (
	// GitHubScope is the authorization scope requested from GitHub.
	GitHubScope = "read:user user:email"
	// AzureADScope is the authorization scope requested from Azure AD. User.Read
	// lets the access token call the membership endpoint.
	AzureADScope = "openid profile email User.Read"
)

// GitHubCredentials is the GitHub OAuth app credential set.
type GitHubCredentials struct {
	ClientID     string `validate:"required"`
	ClientSecret string `validate:"required"`
}

// AzureADCredentials is the Azure AD app registration credential set.
type AzureADCredentials struct {
	ClientID     string `validate:"required"`
	ClientSecret string `validate:"required"`
	TenantID     string `validate:"required"`
}

// Credentials holds the credential sets of all supported providers.
type Credentials struct {
	GitHub  GitHubCredentials
	AzureAD AzureADCredentials
}

// ProfileFunc maps a raw provider profile into an enriched profile.
// tokens may be nil for providers that do not need them.
type ProfileFunc func(ctx context.Context, raw RawProfile, tokens *oauth2.Token) (*EnrichedProfile, error)

// Descriptor is one active provider as handed to the host.
type Descriptor struct {
	Kind         Kind
	ID           string
	Name         string
	ClientID     string
	ClientSecret string
	// TenantID is set for Azure AD only.
	TenantID string
	// Scope is the space separated authorization scope.
	Scope string
	// Profile is the profile-mapping hook.
	Profile ProfileFunc
}

// Scopes returns Scope split into individual scopes.
func (d *Descriptor) Scopes() []string {
	return strings.Fields(d.Scope)
}

// Registry is the ordered list of providers with complete credentials.
type Registry struct {
	providers []*Descriptor
}

// NewRegistry activates every provider whose credential set is complete.
// Incomplete providers are left out.
func NewRegistry(creds Credentials, pol policy.Policy, resolver Resolver) *Registry {
	validate := validator.New()
	reg := &Registry{}

	if err := validate.Struct(creds.GitHub); err != nil {
		log.Info().Str("provider", KindGitHub.String()).Msg("credentials incomplete, provider disabled")
	} else {
		reg.providers = append(reg.providers, &Descriptor{
			Kind:         KindGitHub,
			ID:           KindGitHub.String(),
			Name:         "GitHub",
			ClientID:     creds.GitHub.ClientID,
			ClientSecret: creds.GitHub.ClientSecret,
			Scope:        GitHubScope,
			Profile:      profileFunc(KindGitHub, pol, resolver),
		})
	}

	if err := validate.Struct(creds.AzureAD); err != nil {
		log.Info().Str("provider", KindAzureAD.String()).Msg("credentials incomplete, provider disabled")
	} else {
		reg.providers = append(reg.providers, &Descriptor{
			Kind:         KindAzureAD,
			ID:           KindAzureAD.String(),
			Name:         "Azure Active Directory",
			ClientID:     creds.AzureAD.ClientID,
			ClientSecret: creds.AzureAD.ClientSecret,
			TenantID:     creds.AzureAD.TenantID,
			Scope:        AzureADScope,
			Profile:      profileFunc(KindAzureAD, pol, resolver),
		})
	}

	return reg
}

// Providers returns the active providers in presentation order.
func (r *Registry) Providers() []*Descriptor {
	return slices.Clone(r.providers)
}

// Lookup returns the active provider with the given id.
func (r *Registry) Lookup(id string) (*Descriptor, bool) {
	for _, d := range r.providers {
		if d.ID == id {
			return d, true
		}
	}

	return nil, false
}

// Empty reports whether no provider is active.
func (r *Registry) Empty() bool {
	return len(r.providers) == 0
}

func profileFunc(kind Kind, pol policy.Policy, resolver Resolver) ProfileFunc {
	return func(ctx context.Context, raw RawProfile, tokens *oauth2.Token) (*EnrichedProfile, error) {
		p := kind.Normalize(raw)
		p.IsAdmin = IsAdmin(p, pol.AdminEmails)

		user := &EnrichedProfile{Principal: p, Provider: kind}

		if kind.Trust() == TrustDirectory {
			var accessToken string
			if tokens != nil {
				accessToken = tokens.AccessToken
			}

			user.Membership = ResolveMembership(ctx, resolver, accessToken, p, pol.AllowedPrincipals)
		}

		user.IsAllowed = DecideAllowed(user.Principal, kind, user.Membership, pol.AllowedPrincipals)

		return user, nil
	}
}
