package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/auth"
)

// DefaultGitHubAPI is the GitHub REST API base URL.
const DefaultGitHubAPI = "https://api.github.com"

const maxProfileBytes = 1 << 20

// GitHub exchanges codes with GitHub and reads the user from the REST API.
type GitHub struct {
	oauth  oauth2.Config
	apiURL string
}

var _ Exchanger = (*GitHub)(nil)

// NewGitHub creates the GitHub exchanger.
func NewGitHub(d *auth.Descriptor, redirectURL string) *GitHub {
	return &GitHub{
		oauth: oauth2.Config{
			ClientID:     d.ClientID,
			ClientSecret: d.ClientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     github.Endpoint,
			Scopes:       d.Scopes(),
		},
		apiURL: DefaultGitHubAPI,
	}
}

// AuthCodeURL returns the GitHub authorization URL.
func (g *GitHub) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Authenticate exchanges code and fetches /user. A hidden email is taken from
// /user/emails; when that fails the profile has no email.
func (g *GitHub) Authenticate(ctx context.Context, code string) (auth.RawProfile, *oauth2.Token, error) {
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	client := g.oauth.Client(ctx, token)

	var profile auth.RawProfile
	if err = g.get(ctx, client, "/user", &profile); err != nil {
		return nil, nil, err
	}

	if email, _ := profile["email"].(string); strings.TrimSpace(email) == "" {
		var emails []githubEmail
		if err = g.get(ctx, client, "/user/emails", &emails); err != nil {
			log.Warn().Err(err).Msg("failed to fetch GitHub emails, continuing without email")
		} else if email = pickEmail(emails); email != "" {
			profile["email"] = email
		}
	}

	return profile, token, nil
}

func (g *GitHub) get(ctx context.Context, client *http.Client, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch %s: %w %d", path, ErrUnexpectedStatus, resp.StatusCode)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	if err = dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return nil
}

// pickEmail prefers the primary verified address, then any verified one, then the first.
func pickEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}

	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}

	if len(emails) > 0 {
		return emails[0].Email
	}

	return ""
}
