package auth

import (
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog/log"
)

// Kind identifies an identity provider class. Each kind carries its own
// profile normalization and trust policy.
type Kind string

const (
	// KindGitHub is the GitHub OAuth2 provider. Its users are trusted statically.
	KindGitHub Kind = "github"
	// KindAzureAD is the Azure Active Directory (Entra ID) OIDC provider.
	// Its users are checked against directory membership.
	KindAzureAD Kind = "azure-ad"
)

// TrustPolicy describes how the gate decides whether a provider's users may sign in.
type TrustPolicy int

const (
	// TrustUnknown is the policy of unrecognised kinds. It never allows.
	TrustUnknown TrustPolicy = iota
	// TrustStatic allows every authenticated user of the provider.
	TrustStatic
	// TrustDirectory requires directory membership when an allow-list is configured.
	TrustDirectory
)

// String returns the provider identifier used in routes, logs and metrics.
func (k Kind) String() string {
	return string(k)
}

// Trust returns the trust policy of the provider kind.
func (k Kind) Trust() TrustPolicy {
	switch k {
	case KindGitHub:
		return TrustStatic
	case KindAzureAD:
		return TrustDirectory
	default:
		return TrustUnknown
	}
}

// RawProfile is the provider profile as returned by the provider's user endpoint
// or ID token claims. Field names and presence vary per provider.
type RawProfile map[string]any

// Principal is the authenticated user within one sign-in attempt.
type Principal struct {
	// StableID is the provider-issued subject or object identifier.
	StableID string `json:"id"`
	// Email is the user's email address as reported by the provider.
	Email string `json:"email"`
	// SecondaryID is a login identifier distinct from Email (Azure AD preferred_username).
	SecondaryID string `json:"secondaryId,omitempty"`
	// DisplayName is the user's human readable name.
	DisplayName string `json:"name"`
	// Image is an avatar URL, if the provider has one.
	Image string `json:"image,omitempty"`
	// IsAdmin is derived from the admin email allow-list only.
	IsAdmin bool `json:"isAdmin"`
	// IsAllowed is the gate verdict for this sign-in attempt.
	IsAllowed bool `json:"isAllowed"`
}

type githubProfile struct {
	ID        string `mapstructure:"id"`
	NodeID    string `mapstructure:"node_id"`
	Login     string `mapstructure:"login"`
	Name      string `mapstructure:"name"`
	Email     string `mapstructure:"email"`
	AvatarURL string `mapstructure:"avatar_url"`
}

type azureADProfile struct {
	OID               string `mapstructure:"oid"`
	Sub               string `mapstructure:"sub"`
	Email             string `mapstructure:"email"`
	UPN               string `mapstructure:"upn"`
	PreferredUsername string `mapstructure:"preferred_username"`
	Name              string `mapstructure:"name"`
	Picture           string `mapstructure:"picture"`
}

// Normalize maps a raw provider profile into a Principal.
// Missing or mistyped fields degrade to empty strings.
func (k Kind) Normalize(raw RawProfile) Principal {
	switch k {
	case KindGitHub:
		var gp githubProfile

		decodeProfile(k, raw, &gp)

		return Principal{
			StableID:    firstNonEmpty(gp.ID, gp.NodeID),
			Email:       strings.TrimSpace(gp.Email),
			DisplayName: firstNonEmpty(gp.Name, gp.Login),
			Image:       gp.AvatarURL,
		}
	case KindAzureAD:
		var ap azureADProfile

		decodeProfile(k, raw, &ap)

		// Some tokens carry only one of oid/sub; never let an empty id through
		// when the other one is present.
		return Principal{
			StableID:    firstNonEmpty(ap.OID, ap.Sub),
			Email:       firstNonEmpty(ap.Email, ap.UPN),
			SecondaryID: strings.TrimSpace(ap.PreferredUsername),
			DisplayName: ap.Name,
			Image:       ap.Picture,
		}
	default:
		return Principal{}
	}
}

// decodeProfile decodes raw into out. Numeric ids are rendered as decimal strings.
// Decoding continues past fields of the wrong type so partial profiles still normalize.
func decodeProfile(k Kind, raw RawProfile, out any) {
	if len(raw) == 0 {
		return
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		log.Error().Err(err).Str("provider", k.String()).Msg("failed to create profile decoder")
		return
	}

	if err = dec.Decode(map[string]any(raw)); err != nil {
		log.Debug().Err(err).Str("provider", k.String()).Msg("profile contains fields of unexpected type")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	return ""
}
