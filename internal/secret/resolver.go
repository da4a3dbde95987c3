// Package secret resolves credentials such as the OAuth client secret and the
// session signing secret from SSM Parameter Store or the environment.
package secret

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// DefaultPrefix is the parameter path under which the app's secrets live.
const DefaultPrefix = "/fanvue-app/"

// SSMClient is the subset of *ssm.Client methods used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver retrieves secret values by parameter name.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SSMResolver fetches secrets from AWS Systems Manager Parameter Store.
type SSMResolver struct {
	client SSMClient
}

// NewSSMResolver returns a Resolver backed by SSM Parameter Store.
func NewSSMResolver(client SSMClient) Resolver {
	return &SSMResolver{client: client}
}

// GetSecret retrieves a SecureString parameter with decryption.
func (r *SSMResolver) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("ssm get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil || *out.Parameter.Value == "" {
		return "", fmt.Errorf("ssm parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}

// EnvResolver reads secrets from environment variables. The variable name is
// the last path segment of the parameter, uppercased with hyphens turned into
// underscores: "/fanvue-app/session-secret" reads SESSION_SECRET.
type EnvResolver struct {
	lookup func(string) (string, bool)
}

// NewEnvResolver returns a Resolver that reads from the process environment.
func NewEnvResolver() Resolver {
	return &EnvResolver{lookup: os.LookupEnv}
}

// GetSecret reads the environment variable derived from the parameter name.
func (r *EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	envName := ParamNameToEnvVar(name)
	val, ok := r.lookup(envName)
	if !ok || val == "" {
		return "", fmt.Errorf("environment variable %q (from param %q) is not set", envName, name)
	}
	return val, nil
}

// ParamNameToEnvVar converts a parameter path to an environment variable name.
//
//	"/fanvue-app/session-secret"      -> "SESSION_SECRET"
//	"/fanvue-app/oauth-client-secret" -> "OAUTH_CLIENT_SECRET"
func ParamNameToEnvVar(name string) string {
	parts := strings.Split(strings.TrimRight(name, "/"), "/")
	last := parts[len(parts)-1]
	return strings.ToUpper(strings.ReplaceAll(last, "-", "_"))
}

// ResolveOr returns the secret for name, or fallback when fallback is
// already set. Values supplied directly (e.g. through the environment in
// tests) win over the parameter store so local runs need no AWS access.
func ResolveOr(ctx context.Context, r Resolver, name, fallback string) (string, error) {
	if fallback != "" {
		return fallback, nil
	}
	return r.GetSecret(ctx, name)
}
