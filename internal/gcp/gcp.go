// Package gcp builds the credentials shared by the Google Cloud clients.
package gcp

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

type Credentials struct {
	// CredentialsPath is a service account key file. Empty means application default credentials.
	CredentialsPath string
	// ServiceAccountEmail, when set, is impersonated for every call.
	ServiceAccountEmail string
}

// Auth holds the resolved client options and, when impersonating, the token source.
type Auth struct {
	opts   []option.ClientOption
	tokens oauth2.TokenSource
}

func NewAuth(ctx context.Context, c Credentials) (*Auth, error) {
	var base []option.ClientOption
	if c.CredentialsPath != "" {
		base = append(base, option.WithCredentialsFile(c.CredentialsPath))
	}
	if c.ServiceAccountEmail == "" {
		return &Auth{opts: base}, nil
	}

	ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
		TargetPrincipal: c.ServiceAccountEmail,
		Scopes:          []string{cloudPlatformScope},
	}, base...)
	if err != nil {
		return nil, fmt.Errorf("failed to impersonate %s: %w", c.ServiceAccountEmail, err)
	}
	return &Auth{
		opts:   []option.ClientOption{option.WithTokenSource(ts)},
		tokens: ts,
	}, nil
}

// ClientOptions returns options for the cloud.google.com/go clients, plus any extra ones.
func (a *Auth) ClientOptions(extra ...option.ClientOption) []option.ClientOption {
	out := make([]option.ClientOption, 0, len(a.opts)+len(extra))
	out = append(out, a.opts...)
	return append(out, extra...)
}

// HTTPClient returns an authenticated client for libraries that take one directly.
// It returns nil when application default credentials should be used as-is.
func (a *Auth) HTTPClient(ctx context.Context) *http.Client {
	if a.tokens == nil {
		return nil
	}
	return oauth2.NewClient(ctx, a.tokens)
}

// RegionalEndpoint is the Vertex AI API endpoint for a location.
func RegionalEndpoint(location string) string {
	return fmt.Sprintf("%s-aiplatform.googleapis.com:443", location)
}

// Parent is the resource name prefix for a project location.
func Parent(project, location string) string {
	return fmt.Sprintf("projects/%s/locations/%s", project, location)
}
