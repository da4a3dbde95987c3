package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fanvue/fanvue-app-starter/internal/mediaapi"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagToken      string
	flagAPIBaseURL string
	flagAPIVersion string
	flagVerbose    bool
	flagQuiet      bool
)

// tokenEnvVar supplies the bearer token when --token is not given.
const tokenEnvVar = "FANVUE_ACCESS_TOKEN"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fanvue-upload",
		Short:         "Upload media to Fanvue in parts",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagToken, "token", "", "access token (default $"+tokenEnvVar+")")
	cmd.PersistentFlags().StringVar(&flagAPIBaseURL, "api-base-url", envOr("API_BASE_URL", "https://api.fanvue.com"), "backend API base URL")
	cmd.PersistentFlags().StringVar(&flagAPIVersion, "api-version", os.Getenv("FANVUE_API_VERSION"), "value for the X-Fanvue-API-Version header")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress progress output")

	cmd.AddCommand(newPutCmd())

	return cmd
}

func buildLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newAPIClient(logger *slog.Logger) *mediaapi.Client {
	return mediaapi.NewClient(flagAPIBaseURL, flagAPIVersion, &http.Client{Timeout: mediaapi.DefaultTimeout}, logger)
}

func accessToken() string {
	if flagToken != "" {
		return flagToken
	}
	return os.Getenv(tokenEnvVar)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// partPutClient has no overall timeout; each PUT carries its own deadline.
func partPutClient() *http.Client {
	return &http.Client{Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}}
}
