package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/fanvue/fanvue-app-starter/internal/model"
)

// baselineScopes are always requested; the refresh flow depends on them.
var baselineScopes = []string{"openid", "offline_access", "offline"}

// Scopes returns the baseline scopes followed by the space-separated extra
// scopes, without duplicates and in first-seen order.
func Scopes(extra string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range append(append([]string{}, baselineScopes...), strings.Fields(extra)...) {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ProviderConfig describes the identity provider and this client's registration.
type ProviderConfig struct {
	IssuerBaseURL string
	ClientID      string
	ClientSecret  string
	Scopes        []string
}

// Endpoint returns the provider's authorize and token endpoints. Client
// credentials go in an HTTP Basic Authorization header.
func (p ProviderConfig) Endpoint() oauth2.Endpoint {
	issuer := strings.TrimRight(p.IssuerBaseURL, "/")
	return oauth2.Endpoint{
		AuthURL:   issuer + "/oauth2/auth",
		TokenURL:  issuer + "/oauth2/token",
		AuthStyle: oauth2.AuthStyleInHeader,
	}
}

// TokenClient talks to the provider's token endpoint. Each call is a single
// round trip: no retries and no caching.
type TokenClient struct {
	oauthConfig *oauth2.Config
	httpClient  *http.Client
	logger      *slog.Logger
	now         func() time.Time
}

// NewTokenClient creates a TokenClient. httpClient carries the per-call timeout.
func NewTokenClient(p ProviderConfig, httpClient *http.Client, logger *slog.Logger) *TokenClient {
	return &TokenClient{
		oauthConfig: &oauth2.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			Scopes:       p.Scopes,
			Endpoint:     p.Endpoint(),
		},
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// AuthCodeURL builds the provider authorize URL for one login attempt.
func (c *TokenClient) AuthCodeURL(state, challenge, redirectURI string, opts ...oauth2.AuthCodeOption) string {
	cfg := c.withRedirect(redirectURI)
	opts = append([]oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", ChallengeMethodS256),
	}, opts...)
	return cfg.AuthCodeURL(state, opts...)
}

// ExchangeCode trades an authorization code and its PKCE verifier for a token set.
func (c *TokenClient) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*model.TokenSet, error) {
	cfg := c.withRedirect(redirectURI)
	issued := c.now()

	tok, err := cfg.Exchange(c.clientContext(ctx), code,
		oauth2.VerifierOption(codeVerifier),
		oauth2.SetAuthURLParam("client_id", cfg.ClientID),
	)
	if err != nil {
		status, body := retrieveDetail(err)
		c.logger.Warn("token exchange failed",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		return nil, &TokenExchangeError{Status: status, Body: body, Err: err}
	}

	ts := tokenSet(tok, issued)
	c.logger.Info("token exchange successful", slog.Time("expiry", ts.ExpiresAt))
	return &ts, nil
}

// Refresh redeems a refresh token. When the provider omits a new refresh
// token the old one is carried over.
func (c *TokenClient) Refresh(ctx context.Context, refreshToken string) (*model.TokenSet, error) {
	issued := c.now()

	src := c.oauthConfig.TokenSource(c.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		status, body := retrieveDetail(err)
		c.logger.Warn("token refresh failed",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		return nil, &TokenRefreshError{Status: status, Body: body, Err: err}
	}

	ts := tokenSet(tok, issued)
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	c.logger.Info("token refreshed", slog.Time("expiry", ts.ExpiresAt))
	return &ts, nil
}

func (c *TokenClient) withRedirect(redirectURI string) *oauth2.Config {
	cfg := *c.oauthConfig
	cfg.RedirectURL = redirectURI
	return &cfg
}

func (c *TokenClient) clientContext(ctx context.Context) context.Context {
	if c.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// tokenSet converts a provider token. ExpiresAt is always issued + expires_in;
// a missing lifetime makes the set due for refresh immediately.
func tokenSet(tok *oauth2.Token, issued time.Time) model.TokenSet {
	ts := model.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    issued.Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		ts.Scope = scope
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		ts.IDToken = idToken
	}
	return ts
}

func retrieveDetail(err error) (int, string) {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode, string(re.Body)
	}
	return 0, ""
}
