package decompose

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Auth describes how requests to the decomposition service are
// authenticated. A static Token wins over client credentials; with neither
// set requests go out unauthenticated.
type Auth struct {
	Token        string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Enabled reports whether any credentials are configured.
func (a Auth) Enabled() bool {
	return strings.TrimSpace(a.Token) != "" || strings.TrimSpace(a.TokenURL) != ""
}

// AuthClient returns an HTTP client that attaches bearer tokens according to
// a. The context governs token fetches for the client-credentials flow.
func AuthClient(ctx context.Context, a Auth) (*http.Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if token := strings.TrimSpace(a.Token); token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		return oauth2.NewClient(ctx, src), nil
	}
	if strings.TrimSpace(a.TokenURL) == "" {
		return http.DefaultClient, nil
	}
	if strings.TrimSpace(a.ClientID) == "" {
		return nil, fmt.Errorf("decompose: oauth client_id is required with token_url")
	}
	cfg := clientcredentials.Config{
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		TokenURL:     a.TokenURL,
		Scopes:       a.Scopes,
	}
	return cfg.Client(ctx), nil
}
