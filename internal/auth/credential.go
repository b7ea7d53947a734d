// Package auth owns the process credential used by every API call.
//
// A [Credential] is either a static personal access token (refresh is a
// no-op) or an OAuth2 refresh-token grant whose access token is replaced
// in place by [Credential.Refresh]. The credential is passed explicitly
// to the API client and to the engine's watchdog; there is no package
// level state.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// DefaultTokenURL is Asana's OAuth token endpoint.
const DefaultTokenURL = "https://app.asana.com/-/oauth_token"

// DefaultAuthURL is Asana's OAuth authorization endpoint.
const DefaultAuthURL = "https://app.asana.com/-/oauth_authorize"

// OAuthConfig describes a refresh-token grant.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	RedirectURL  string

	// TokenURL overrides DefaultTokenURL (tests point it at httptest).
	TokenURL string

	// HTTPClient is used for token requests. Nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// Credential is the single-writer, many-reader access token.
//
// Refresh may be called redundantly; every call exchanges the refresh
// token for a fresh access token.
type Credential struct {
	mu           sync.RWMutex
	token        *oauth2.Token
	config       *oauth2.Config
	refreshToken string
	httpClient   *http.Client
	refreshes    int
}

// NewStatic returns a credential backed by a personal access token.
func NewStatic(accessToken string) *Credential {
	return &Credential{
		token: &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"},
	}
}

// NewOAuth returns a credential that obtains access tokens from a refresh
// token. No request is made until the first Refresh.
func NewOAuth(cfg OAuthConfig) (*Credential, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("oauth credential requires client_id, client_secret and refresh_token")
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &Credential{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   DefaultAuthURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		refreshToken: cfg.RefreshToken,
		httpClient:   cfg.HTTPClient,
	}, nil
}

// AccessToken returns the current access token ("" before the first
// successful OAuth refresh).
func (c *Credential) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return ""
	}
	return c.token.AccessToken
}

// Refresh replaces the access token. Static credentials only count the
// call.
func (c *Credential) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refreshes++
	if c.config == nil {
		return nil
	}

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}

	// An expired seed token forces the TokenSource to hit the endpoint.
	seed := &oauth2.Token{RefreshToken: c.refreshToken}
	tok, err := c.config.TokenSource(ctx, seed).Token()
	if err != nil {
		return fmt.Errorf("refresh access token: %w", err)
	}

	c.token = tok
	if tok.RefreshToken != "" {
		c.refreshToken = tok.RefreshToken
	}
	return nil
}

// Refreshes returns how many times Refresh has been called.
func (c *Credential) Refreshes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshes
}
