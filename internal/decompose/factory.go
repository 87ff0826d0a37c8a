package decompose

import (
	"context"
	"fmt"

	"github.com/kingrea/thinkpilot/internal/config"
)

// FromConfig builds the Decomposer selected by cfg. A nil config or kind
// "none" yields Nop.
func FromConfig(ctx context.Context, cfg *config.Config) (Decomposer, error) {
	if cfg == nil {
		return Nop{}, nil
	}
	dc := cfg.Settings.Decomposer
	switch dc.Kind {
	case "", config.DecomposerNone:
		return Nop{}, nil
	case config.DecomposerHTTP:
		client, err := AuthClient(ctx, Auth{
			Token:        cfg.DecomposerToken(),
			TokenURL:     dc.OAuth.TokenURL,
			ClientID:     dc.OAuth.ClientID,
			ClientSecret: cfg.DecomposerClientSecret(),
			Scopes:       dc.OAuth.Scopes,
		})
		if err != nil {
			return nil, err
		}
		return NewHTTP(HTTPOptions{
			Endpoint: dc.Endpoint,
			Timeout:  cfg.DecomposerTimeout(),
			MaxSteps: dc.MaxSteps,
			Client:   client,
		})
	default:
		return nil, fmt.Errorf("decompose: unknown kind %q", dc.Kind)
	}
}
