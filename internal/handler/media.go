package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/fanvue/fanvue-app-starter/internal/auth"
	"github.com/fanvue/fanvue-app-starter/internal/mediaapi"
)

// MediaHandler relays multipart upload calls from the browser to the
// backend API, adding the session's access token.
type MediaHandler struct {
	fetcher *auth.Fetcher
	api     *mediaapi.Client
	cookies CookieConfig
	logger  *slog.Logger
}

// NewMediaHandler creates a MediaHandler.
func NewMediaHandler(fetcher *auth.Fetcher, api *mediaapi.Client, cookies CookieConfig, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{fetcher: fetcher, api: api, cookies: cookies, logger: logger}
}

// Initiate relays POST /api/media/multipart/initiate.
func (h *MediaHandler) Initiate(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.relay(ctx, req, mediaapi.PathInitiate, "application/json"), nil
}

// PartURL relays POST /api/media/multipart/part-url. The signed URL is
// returned as plain text.
func (h *MediaHandler) PartURL(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.relay(ctx, req, mediaapi.PathPartURL, "text/plain"), nil
}

// Finalise relays POST /api/media/multipart/finalise.
func (h *MediaHandler) Finalise(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.relay(ctx, req, mediaapi.PathFinalise, "application/json"), nil
}

func (h *MediaHandler) relay(ctx context.Context, req events.APIGatewayProxyRequest, path, contentType string) events.APIGatewayProxyResponse {
	h.logger.Debug("relay request", slog.String("path", path), slog.String("method", req.HTTPMethod))

	payload, err := jsonObject(req)
	if err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid JSON body")
	}

	fresh, err := h.fetcher.WithFreshSession(ctx, getCookie(req, h.cookies.SessionName))
	if err != nil {
		return sessionError(h.logger, err)
	}

	var rotated []string
	if fresh.Rotated {
		rotated = append(rotated, h.cookies.session(fresh.Value))
	}

	out, err := h.api.Post(ctx, fresh.Tokens.AccessToken, path, payload)
	if err != nil {
		return withCookies(upstreamError(h.logger, err), rotated...)
	}

	return withCookies(events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Body:       string(out),
		Headers:    map[string]string{"Content-Type": contentType},
	}, rotated...)
}
