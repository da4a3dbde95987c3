package auth

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/fanvue/fanvue-app-starter/internal/model"
	"github.com/fanvue/fanvue-app-starter/internal/session"
)

// Redirect error codes placed in the ?error= query parameter.
const (
	ReasonStateMismatch       = "oauth_state_mismatch"
	ReasonTokenExchangeFailed = "oauth_token_exchange_failed"
)

// State is the position of one login attempt in the authorization code flow.
type State int

const (
	StateIdle State = iota
	StateAttemptStarted
	StateCallbackReceived
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttemptStarted:
		return "attempt_started"
	case StateCallbackReceived:
		return "callback_received"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Provider is the part of the identity provider the flow talks to.
// *TokenClient implements it.
type Provider interface {
	AuthCodeURL(state, challenge, redirectURI string, opts ...oauth2.AuthCodeOption) string
	ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*model.TokenSet, error)
}

// FlowConfig holds the settings that shape the authorize request and the
// post-login redirects.
type FlowConfig struct {
	// BaseURL is where the user lands after login, logout or failure.
	BaseURL string
	// ResponseMode is sent as response_mode when non-empty ("form_post").
	ResponseMode string
	// Prompt is sent as prompt when non-empty.
	Prompt string
}

// Flow drives login attempts from authorize redirect to stored session.
type Flow struct {
	cfg      FlowConfig
	provider Provider
	store    session.Store
	logger   *slog.Logger
}

// NewFlow creates a Flow.
func NewFlow(cfg FlowConfig, provider Provider, store session.Store, logger *slog.Logger) *Flow {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Flow{cfg: cfg, provider: provider, store: store, logger: logger}
}

// LoginResult is a started attempt. The caller persists Attempt and
// redirects the browser to AuthURL.
type LoginResult struct {
	Attempt model.Attempt
	AuthURL string
	State   State
}

// Login starts a fresh attempt with its own state and PKCE pair.
func (f *Flow) Login(redirectURI string) *LoginResult {
	pkce := GeneratePKCE()
	attempt := model.Attempt{
		State:         NewState(),
		CodeVerifier:  pkce.Verifier,
		CodeChallenge: pkce.Challenge,
	}

	var opts []oauth2.AuthCodeOption
	if f.cfg.ResponseMode != "" {
		opts = append(opts, oauth2.SetAuthURLParam("response_mode", f.cfg.ResponseMode))
	}
	if f.cfg.Prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", f.cfg.Prompt))
	}

	return &LoginResult{
		Attempt: attempt,
		AuthURL: f.provider.AuthCodeURL(attempt.State, attempt.CodeChallenge, redirectURI, opts...),
		State:   StateAttemptStarted,
	}
}

// CallbackParams are the values the provider sent back to the redirect URI.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	// RedirectURI must equal the one used by Login.
	RedirectURI string
}

// CallbackResult tells the caller where to send the browser. SessionValue
// is set only when State is StateAuthenticated.
type CallbackResult struct {
	State        State
	Reason       string
	Redirect     string
	SessionValue string
	Err          error
}

// Callback completes an attempt. stored is the attempt read back from the
// browser, nil when absent. The caller must discard the stored attempt
// whatever the outcome.
func (f *Flow) Callback(ctx context.Context, p CallbackParams, stored *model.Attempt) CallbackResult {
	if p.Error != "" {
		f.logger.Warn("provider returned an error",
			slog.String("error", p.Error),
			slog.String("error_description", p.ErrorDescription),
		)
		q := url.Values{"error": {p.Error}}
		if p.ErrorDescription != "" {
			q.Set("error_description", p.ErrorDescription)
		}
		return CallbackResult{State: StateFailed, Reason: p.Error, Redirect: f.redirect(q)}
	}

	if !attemptMatches(p, stored) {
		f.logger.Warn("oauth state mismatch")
		return f.failed(ReasonStateMismatch, ErrStateMismatch)
	}

	ts, err := f.provider.ExchangeCode(ctx, p.Code, stored.CodeVerifier, p.RedirectURI)
	if err != nil {
		return f.failed(ReasonTokenExchangeFailed, err)
	}

	value, err := f.store.Save(ctx, "", *ts)
	if err != nil {
		f.logger.Error("failed to save session", slog.String("error", err.Error()))
		return f.failed(ReasonTokenExchangeFailed, err)
	}

	f.logger.Info("login completed")
	return CallbackResult{
		State:        StateAuthenticated,
		Redirect:     f.cfg.BaseURL + "/",
		SessionValue: value,
	}
}

// Logout destroys the session and returns where to send the browser.
// A missing or already-deleted session is not an error.
func (f *Flow) Logout(ctx context.Context, value string) string {
	if value != "" {
		if err := f.store.Delete(ctx, value); err != nil {
			f.logger.Warn("failed to delete session", slog.String("error", err.Error()))
		}
	}
	return f.cfg.BaseURL + "/"
}

func (f *Flow) failed(reason string, err error) CallbackResult {
	return CallbackResult{
		State:    StateFailed,
		Reason:   reason,
		Redirect: f.redirect(url.Values{"error": {reason}}),
		Err:      err,
	}
}

func (f *Flow) redirect(q url.Values) string {
	return f.cfg.BaseURL + "/?" + q.Encode()
}

func attemptMatches(p CallbackParams, stored *model.Attempt) bool {
	if stored == nil || p.Code == "" || p.State == "" || stored.State == "" || stored.CodeVerifier == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(p.State), []byte(stored.State)) == 1
}
