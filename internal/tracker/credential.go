package tracker

import (
	"context"
	"errors"
	"fmt"

	"basegraph.app/trackersync/core/config"
	"basegraph.app/trackersync/internal/store"
)

var ErrNoCredential = errors.New("no jira credential configured")

type Credential struct {
	BaseURL  string
	Email    string
	APIToken string
}

func (c Credential) Validate() error {
	if c.BaseURL == "" || c.Email == "" || c.APIToken == "" {
		return ErrNoCredential
	}
	return nil
}

// ResolveCredential prefers the credential given in the environment and
// falls back to the named row in the credential store.
func ResolveCredential(ctx context.Context, cfg config.TrackerConfig, creds store.CredentialStore) (Credential, error) {
	if cfg.HasStaticCredential() {
		return Credential{BaseURL: cfg.BaseURL, Email: cfg.Email, APIToken: cfg.APIToken}, nil
	}
	if creds == nil {
		return Credential{}, ErrNoCredential
	}

	row, err := creds.GetByName(ctx, cfg.CredentialName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Credential{}, fmt.Errorf("%w: credential %q not found", ErrNoCredential, cfg.CredentialName)
		}
		return Credential{}, fmt.Errorf("loading credential %q: %w", cfg.CredentialName, err)
	}

	cred := Credential{BaseURL: row.BaseURL, Email: row.Email, APIToken: row.APIToken}
	if cfg.BaseURL != "" {
		cred.BaseURL = cfg.BaseURL
	}
	return cred, cred.Validate()
}
