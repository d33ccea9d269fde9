// Package oauth drives the authorization-code flow for the supported
// providers. One generic client handles URL construction, the code
// exchange and the user-info fetch; provider differences live in a
// config record plus a pure mapping function selected by the Provider
// tag.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	oagithub "golang.org/x/oauth2/github"
	oagoogle "golang.org/x/oauth2/google"

	"github.com/agentplan/apiserver/config"
)

// Provider tags one of the supported OAuth providers.
type Provider string

const (
	ProviderGitHub  Provider = "github"
	ProviderGoogle  Provider = "google"
	ProviderDiscord Provider = "discord"
)

// ParseProvider validates a provider tag from a request path.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderGitHub, ProviderGoogle, ProviderDiscord:
		return Provider(s), nil
	default:
		return "", fmt.Errorf("unsupported oauth provider %q", s)
	}
}

// UserInfo is the normalized identity produced from a provider's
// user-info payload.
type UserInfo struct {
	ProviderAccountID string
	Email             string
	Name              string
	Avatar            string
	Provider          Provider
	AccessToken       string
	Raw               map[string]any
}

// mapFunc normalizes a provider-specific user-info payload. Each
// provider enforces its own validity preconditions and fails the whole
// operation when they are unmet.
type mapFunc func(ctx context.Context, c *Client, data map[string]any, accessToken string) (*UserInfo, error)

const defaultHTTPTimeout = 10 * time.Second

// Client exchanges authorization codes and fetches user info for a
// single provider.
type Client struct {
	provider    Provider
	cfg         *oauth2.Config
	userInfoURL string
	// emailsURL is the GitHub secondary email-list endpoint. Unused by
	// the other providers.
	emailsURL   string
	mapUserInfo mapFunc
	httpClient  *http.Client
}

// NewClient constructs the client for one provider. The redirect URI
// follows the fixed pattern {appURL}/api/auth/callback/{provider}.
func NewClient(provider Provider, creds config.ProviderConfig, appURL string) (*Client, error) {
	c := &Client{
		provider:   provider,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}

	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  fmt.Sprintf("%s/api/auth/callback/%s", appURL, provider),
	}

	switch provider {
	case ProviderGitHub:
		cfg.Endpoint = oagithub.Endpoint
		cfg.Scopes = []string{"read:user", "user:email"}
		c.userInfoURL = "https://api.github.com/user"
		c.emailsURL = "https://api.github.com/user/emails"
		c.mapUserInfo = mapGitHubUserInfo
	case ProviderGoogle:
		cfg.Endpoint = oagoogle.Endpoint
		cfg.Scopes = []string{"openid", "email", "profile"}
		c.userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
		c.mapUserInfo = mapGoogleUserInfo
	case ProviderDiscord:
		cfg.Endpoint = oauth2.Endpoint{
			AuthURL:  "https://discord.com/api/oauth2/authorize",
			TokenURL: "https://discord.com/api/oauth2/token",
		}
		cfg.Scopes = []string{"identify", "email"}
		c.userInfoURL = "https://discord.com/api/users/@me"
		c.mapUserInfo = mapDiscordUserInfo
	default:
		return nil, fmt.Errorf("unsupported oauth provider %q", provider)
	}

	c.cfg = cfg
	return c, nil
}

// Provider returns the client's provider tag.
func (c *Client) Provider() Provider {
	return c.provider
}

// AuthURL builds the provider authorization URL for the given encoded
// state. Pure construction; no network call.
func (c *Client) AuthURL(state string) string {
	return c.cfg.AuthCodeURL(state)
}

// Exchange trades the authorization code for an access token with a
// single POST to the provider's token endpoint. No retries.
func (c *Client) Exchange(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("failed to get access token: empty token in response")
	}
	return tok.AccessToken, nil
}

// UserInfo fetches the provider's user-info endpoint with a bearer
// header and normalizes the payload through the provider mapping.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	data, err := c.getJSON(ctx, c.userInfoURL, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}

	info, err := c.mapUserInfo(ctx, c, payload, accessToken)
	if err != nil {
		return nil, err
	}
	info.Provider = c.provider
	info.AccessToken = accessToken
	info.Raw = payload
	return info, nil
}

func (c *Client) getJSON(ctx context.Context, url, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}
