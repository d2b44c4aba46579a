package oauth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/auth"
)

// AzureADIssuer returns the v2.0 issuer URL of tenant.
func AzureADIssuer(tenant string) string {
	return "https://login.microsoftonline.com/" + tenant + "/v2.0"
}

// AzureAD runs the OpenID Connect flow against an Azure AD tenant.
type AzureAD struct {
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
}

var _ Exchanger = (*AzureAD)(nil)

// NewAzureAD discovers issuer and creates the Azure AD exchanger.
func NewAzureAD(ctx context.Context, d *auth.Descriptor, redirectURL, issuer string) (*AzureAD, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return &AzureAD{
		oauth: oauth2.Config{
			ClientID:     d.ClientID,
			ClientSecret: d.ClientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       d.Scopes(),
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: d.ClientID}),
	}, nil
}

// AuthCodeURL returns the Azure AD authorization URL.
func (a *AzureAD) AuthCodeURL(state string) string {
	return a.oauth.AuthCodeURL(state)
}

// Authenticate exchanges code and returns the verified ID token claims as profile.
// The returned token's access token is used for the membership lookup.
func (a *AzureAD) Authenticate(ctx context.Context, code string) (auth.RawProfile, *oauth2.Token, error) {
	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, nil, ErrNoIDToken
	}

	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims auth.RawProfile
	if err = idToken.Claims(&claims); err != nil {
		return nil, nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	return claims, token, nil
}
