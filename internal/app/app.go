package app

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/fanvue/fanvue-app-starter/internal/auth"
	"github.com/fanvue/fanvue-app-starter/internal/config"
	"github.com/fanvue/fanvue-app-starter/internal/crypto"
	"github.com/fanvue/fanvue-app-starter/internal/handler"
	"github.com/fanvue/fanvue-app-starter/internal/mediaapi"
	"github.com/fanvue/fanvue-app-starter/internal/secret"
	"github.com/fanvue/fanvue-app-starter/internal/session"
)

// HandlerFunc is the shape of every route handler.
type HandlerFunc func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// App holds the dependencies for the Lambda function.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	routes map[string]map[string]HandlerFunc
}

// NewLogger returns the process logger writing text records to w.
func NewLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// NewApp loads configuration and wires every dependency.
func NewApp(ctx context.Context, logger *slog.Logger) (*App, error) {
	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		c, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("unable to load SDK config: %w", err)
		}
		awsCfg = &c
		return c, nil
	}

	cfg, err := config.Load(ctx, func(_ context.Context, c *config.Config) (secret.Resolver, error) {
		if c.DevMode {
			logger.Info("using EnvResolver (DEV_MODE=true)")
			return secret.NewEnvResolver(), nil
		}
		ac, err := loadAWS()
		if err != nil {
			return nil, err
		}
		logger.Info("using SSMResolver (SSM Parameter Store)")
		return secret.NewSSMResolver(ssm.NewFromConfig(ac)), nil
	})
	if err != nil {
		return nil, err
	}

	codec, err := session.NewCodec(cfg.SessionSecret)
	if err != nil {
		return nil, err
	}

	var store session.Store
	switch cfg.SessionStore {
	case config.StoreDynamoDB:
		ac, err := loadAWS()
		if err != nil {
			return nil, err
		}
		var encryptor crypto.Encryptor
		if cfg.DevMode {
			encryptor = crypto.NewMockEncryptor()
			logger.Info("using MockEncryptor (DEV_MODE=true)")
		} else {
			encryptor = crypto.NewKMSService(kms.NewFromConfig(ac), cfg.KMSKeyID)
		}
		store = session.NewDynamoStore(dynamodb.NewFromConfig(ac), cfg.SessionsTable, codec, encryptor, logger)
		logger.Info("using DynamoDB session store", slog.String("table", cfg.SessionsTable))
	default:
		store = session.NewCookieStore(codec)
	}

	return New(cfg, store, logger), nil
}

// New wires the handlers for an already loaded configuration and store.
func New(cfg *config.Config, store session.Store, logger *slog.Logger) *App {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	tokens := auth.NewTokenClient(auth.ProviderConfig{
		IssuerBaseURL: cfg.IssuerBaseURL,
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		Scopes:        auth.Scopes(cfg.Scopes),
	}, httpClient, logger)

	flow := auth.NewFlow(auth.FlowConfig{
		BaseURL:      cfg.BaseURL,
		ResponseMode: cfg.ResponseMode,
		Prompt:       cfg.Prompt,
	}, tokens, store, logger)
	fetcher := auth.NewFetcher(store, tokens, logger)
	api := mediaapi.NewClient(cfg.APIBaseURL, cfg.APIVersion, httpClient, logger)

	cookies := handler.CookieConfig{
		SessionName:   cfg.SessionCookieName,
		SessionMaxAge: session.DefaultMaxAge,
		Secure:        cfg.SecureCookies(),
	}
	authHandler := handler.NewAuthHandler(flow, fetcher, api, cookies, cfg.RedirectURI, logger)
	mediaHandler := handler.NewMediaHandler(fetcher, api, cookies, logger)

	a := &App{cfg: cfg, logger: logger, routes: make(map[string]map[string]HandlerFunc)}
	a.handle(http.MethodGet, "/api/oauth/login", authHandler.Login)
	a.handle(http.MethodGet, "/api/oauth/callback", authHandler.Callback)
	a.handle(http.MethodPost, "/api/oauth/callback", authHandler.Callback)
	a.handle(http.MethodGet, "/callback", authHandler.Callback)
	a.handle(http.MethodPost, "/callback", authHandler.Callback)
	a.handle(http.MethodPost, "/api/oauth/logout", authHandler.Logout)
	a.handle(http.MethodGet, "/api/me", authHandler.Me)
	a.handle(http.MethodPost, "/api/media/multipart/initiate", mediaHandler.Initiate)
	a.handle(http.MethodPost, "/api/media/multipart/part-url", mediaHandler.PartURL)
	a.handle(http.MethodPost, "/api/media/multipart/finalise", mediaHandler.Finalise)
	return a
}

func (a *App) handle(method, path string, h HandlerFunc) {
	if a.routes[path] == nil {
		a.routes[path] = make(map[string]HandlerFunc)
	}
	a.routes[path][method] = h
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (a *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := req.Path
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	method := req.HTTPMethod

	a.logger.Debug("request", slog.String("method", method), slog.String("path", path))

	if method == http.MethodOptions {
		return a.corsResponse(events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}), nil
	}

	if want := a.cfg.OriginVerifySecret; want != "" {
		got := req.Headers["X-Origin-Verify"]
		if got == "" {
			got = req.Headers["x-origin-verify"]
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			a.logger.Warn("missing or invalid X-Origin-Verify header", slog.String("path", path))
			return events.APIGatewayProxyResponse{
				StatusCode: http.StatusForbidden,
				Body:       "Forbidden: Access denied",
			}, nil
		}
	}

	methods, ok := a.routes[path]
	if !ok {
		return a.corsResponse(events.APIGatewayProxyResponse{
			StatusCode: http.StatusNotFound,
			Body:       fmt.Sprintf("Not Found: %s %s", method, path),
		}), nil
	}
	h, ok := methods[method]
	if !ok {
		return a.corsResponse(events.APIGatewayProxyResponse{
			StatusCode: http.StatusMethodNotAllowed,
			Body:       fmt.Sprintf("Method Not Allowed: %s %s", method, path),
		}), nil
	}

	return a.corsResponse(a.must(h(ctx, req))), nil
}

// corsResponse adds CORS headers for the configured front-end origin.
func (a *App) corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if a.cfg.BaseURL == "" {
		return resp
	}
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = a.cfg.BaseURL
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type"
	return resp
}

// must unwraps a handler response, turning an error into a 500.
func (a *App) must(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		a.logger.Error("handler error", slog.String("error", err.Error()))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
