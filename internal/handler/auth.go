package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/fanvue/fanvue-app-starter/internal/auth"
	"github.com/fanvue/fanvue-app-starter/internal/mediaapi"
	"github.com/fanvue/fanvue-app-starter/internal/model"
	"github.com/fanvue/fanvue-app-starter/internal/session"
)

// CallbackPath is where the provider sends the browser back to.
const CallbackPath = "/api/oauth/callback"

// AuthHandler serves login, callback, logout and the current user.
type AuthHandler struct {
	flow        *auth.Flow
	fetcher     *auth.Fetcher
	api         *mediaapi.Client
	cookies     CookieConfig
	redirectURI string
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler. An empty redirectURI is derived
// from the request host.
func NewAuthHandler(flow *auth.Flow, fetcher *auth.Fetcher, api *mediaapi.Client, cookies CookieConfig, redirectURI string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		flow:        flow,
		fetcher:     fetcher,
		api:         api,
		cookies:     cookies,
		redirectURI: redirectURI,
		logger:      logger,
	}
}

// Login starts an attempt and sends the browser to the provider.
func (h *AuthHandler) Login(_ context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	res := h.flow.Login(h.callbackURI(req))

	return redirect(res.AuthURL,
		h.cookies.cookie(StateCookie, res.Attempt.State, AttemptMaxAge),
		h.cookies.cookie(VerifierCookie, res.Attempt.CodeVerifier, AttemptMaxAge),
	), nil
}

// Callback completes an attempt. GET carries the parameters in the query,
// POST (response_mode=form_post) in a form body. The attempt cookies are
// cleared on every response.
func (h *AuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	cleared := []string{h.cookies.expired(StateCookie), h.cookies.expired(VerifierCookie)}

	params := req.QueryStringParameters
	if req.HTTPMethod == http.MethodPost {
		form, err := formValues(req)
		if err != nil {
			h.logger.Warn("unreadable callback form", slog.String("error", err.Error()))
			form = nil
		}
		params = map[string]string{}
		for _, k := range []string{"code", "state", "error", "error_description"} {
			params[k] = form.Get(k)
		}
	}

	var stored *model.Attempt
	if state := getCookie(req, StateCookie); state != "" {
		stored = &model.Attempt{State: state, CodeVerifier: getCookie(req, VerifierCookie)}
	}

	res := h.flow.Callback(ctx, auth.CallbackParams{
		Code:             params["code"],
		State:            params["state"],
		Error:            params["error"],
		ErrorDescription: params["error_description"],
		RedirectURI:      h.callbackURI(req),
	}, stored)

	if res.State != auth.StateAuthenticated {
		h.logger.Info("login failed", slog.String("reason", res.Reason))
		return redirect(res.Redirect, cleared...), nil
	}

	return redirect(res.Redirect, append(cleared, h.cookies.session(res.SessionValue))...), nil
}

// Logout destroys the session and clears its cookie.
func (h *AuthHandler) Logout(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	location := h.flow.Logout(ctx, getCookie(req, h.cookies.SessionName))
	return redirect(location, h.cookies.expired(h.cookies.SessionName)), nil
}

// Me returns the current user's profile from the backend API.
func (h *AuthHandler) Me(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	fresh, err := h.fetcher.WithFreshSession(ctx, getCookie(req, h.cookies.SessionName))
	if err != nil {
		return sessionError(h.logger, err), nil
	}

	var rotated []string
	if fresh.Rotated {
		rotated = append(rotated, h.cookies.session(fresh.Value))
	}

	profile, err := h.api.CurrentUser(ctx, fresh.Tokens.AccessToken)
	if err != nil {
		return withCookies(upstreamError(h.logger, err), rotated...), nil
	}

	return withCookies(events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Body:       string(profile),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}, rotated...), nil
}

// callbackURI returns the configured redirect URI or one built from the
// request's host.
func (h *AuthHandler) callbackURI(req events.APIGatewayProxyRequest) string {
	if h.redirectURI != "" {
		return h.redirectURI
	}

	scheme := getHeader(req, "X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if h.cookies.Secure {
			scheme = "https"
		}
	}
	host := getHeader(req, "X-Forwarded-Host")
	if host == "" {
		host = getHeader(req, "Host")
	}
	return strings.ToLower(scheme) + "://" + host + CallbackPath
}

// sessionError maps a session lookup failure to a response.
func sessionError(logger *slog.Logger, err error) events.APIGatewayProxyResponse {
	if errors.Is(err, session.ErrNoSession) {
		return errorResponse(http.StatusUnauthorized, "Unauthorized")
	}
	logger.Error("session lookup failed", slog.String("error", err.Error()))
	return errorResponse(http.StatusInternalServerError, "Internal Server Error")
}

// upstreamError relays a backend failure with its status and text.
func upstreamError(logger *slog.Logger, err error) events.APIGatewayProxyResponse {
	var uerr *mediaapi.UpstreamError
	if errors.As(err, &uerr) {
		return errorResponse(uerr.Status, uerr.Message())
	}
	logger.Error("backend request failed", slog.String("error", err.Error()))
	return errorResponse(http.StatusBadGateway, "Upstream error")
}
