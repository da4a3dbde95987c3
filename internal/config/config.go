// Package config loads application settings from the environment and
// resolves secrets through the parameter store.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/fanvue/fanvue-app-starter/internal/secret"
)

// Session store backends.
const (
	StoreCookie   = "cookie"
	StoreDynamoDB = "dynamodb"
)

// Config is the process-wide configuration. It is read-only after Load.
type Config struct {
	ClientID          string `env:"OAUTH_CLIENT_ID"`
	ClientSecret      string `env:"OAUTH_CLIENT_SECRET"`
	ClientSecretParam string `env:"OAUTH_CLIENT_SECRET_PARAM" envDefault:"/fanvue-app/oauth-client-secret"`
	IssuerBaseURL     string `env:"OAUTH_ISSUER_BASE_URL"     envDefault:"https://auth.fanvue.com"`
	RedirectURI       string `env:"OAUTH_REDIRECT_URI"`
	Scopes            string `env:"OAUTH_SCOPES"`
	ResponseMode      string `env:"OAUTH_RESPONSE_MODE"`
	Prompt            string `env:"OAUTH_PROMPT"`

	// BaseURL is where users land after login and logout. Empty means
	// redirects are relative to the current host.
	BaseURL string `env:"BASE_URL"`

	SessionCookieName  string `env:"SESSION_COOKIE_NAME"  envDefault:"fanvue_oauth"`
	SessionSecret      string `env:"SESSION_SECRET"`
	SessionSecretParam string `env:"SESSION_SECRET_PARAM" envDefault:"/fanvue-app/session-secret"`
	SessionStore       string `env:"SESSION_STORE"        envDefault:"cookie"`
	SessionsTable      string `env:"SESSIONS_TABLE"       envDefault:"FanvueSessions"`
	KMSKeyID           string `env:"KMS_KEY_ID"           envDefault:"alias/fanvue-session-key"`

	APIBaseURL string `env:"API_BASE_URL"       envDefault:"https://api.fanvue.com"`
	APIVersion string `env:"FANVUE_API_VERSION"`

	// OriginVerifySecret, when set, must arrive in X-Origin-Verify on every
	// request (CDN-to-origin shared secret).
	OriginVerifySecret string `env:"ORIGIN_VERIFY_SECRET"`

	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	ListenAddr  string        `env:"LISTEN_ADDR"  envDefault:":8080"`
	DevMode     bool          `env:"DEV_MODE"`
	LogLevel    string        `env:"LOG_LEVEL"    envDefault:"info"`
}

// Parse reads the process environment. Secrets are not resolved yet.
func Parse() (*Config, error) {
	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

// ResolverFunc picks the secret backend once the plain settings are known.
type ResolverFunc func(ctx context.Context, cfg *Config) (secret.Resolver, error)

// Load parses the environment, resolves secrets through the resolver
// newResolver returns and validates the result.
func Load(ctx context.Context, newResolver ResolverFunc) (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	r, err := newResolver(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("secret resolver: %w", err)
	}
	if err := cfg.ResolveSecrets(ctx, r); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveSecrets fills ClientSecret and SessionSecret from the parameter
// store unless they were set directly.
func (c *Config) ResolveSecrets(ctx context.Context, r secret.Resolver) error {
	var err error
	if c.ClientSecret, err = secret.ResolveOr(ctx, r, c.ClientSecretParam, c.ClientSecret); err != nil {
		return fmt.Errorf("resolve client secret: %w", err)
	}
	if c.SessionSecret, err = secret.ResolveOr(ctx, r, c.SessionSecretParam, c.SessionSecret); err != nil {
		return fmt.Errorf("resolve session secret: %w", err)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.ClientID == "" {
		errs = append(errs, errors.New("OAUTH_CLIENT_ID is required"))
	}
	if c.ClientSecret == "" {
		errs = append(errs, errors.New("OAUTH_CLIENT_SECRET is required"))
	}
	if len(c.SessionSecret) < 16 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 16 characters"))
	}
	switch c.ResponseMode {
	case "", "query", "form_post":
	default:
		errs = append(errs, fmt.Errorf("OAUTH_RESPONSE_MODE %q is not query or form_post", c.ResponseMode))
	}
	switch c.SessionStore {
	case StoreCookie, StoreDynamoDB:
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE %q is not cookie or dynamodb", c.SessionStore))
	}
	if c.SessionCookieName == "" {
		errs = append(errs, errors.New("SESSION_COOKIE_NAME must not be empty"))
	}

	for name, v := range map[string]string{
		"OAUTH_ISSUER_BASE_URL": c.IssuerBaseURL,
		"API_BASE_URL":          c.APIBaseURL,
	} {
		if err := absoluteURL(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	for name, v := range map[string]string{
		"OAUTH_REDIRECT_URI": c.RedirectURI,
		"BASE_URL":           c.BaseURL,
	} {
		if v == "" {
			continue
		}
		if err := absoluteURL(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SecureCookies reports whether cookies get the Secure attribute.
func (c *Config) SecureCookies() bool {
	return !c.DevMode
}

func (c *Config) normalize() {
	c.IssuerBaseURL = strings.TrimRight(c.IssuerBaseURL, "/")
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.SessionStore = strings.ToLower(c.SessionStore)
}

// ParseLevel maps LOG_LEVEL to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func absoluteURL(v string) error {
	u, err := url.Parse(v)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute URL", v)
	}
	return nil
}
