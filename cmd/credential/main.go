// Command credential stores the Jira API credential the worker uses for
// reconciliation. The token is encrypted before it reaches the database.
//
//	JIRA_API_TOKEN=... credential -name default -base-url https://acme.atlassian.net -email bot@acme.io
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"basegraph.app/trackersync/common"
	"basegraph.app/trackersync/common/id"
	"basegraph.app/trackersync/core/config"
	"basegraph.app/trackersync/internal/app"
	"basegraph.app/trackersync/internal/crypto"
	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/tracker"
)

func main() {
	ctx := context.Background()

	rt, err := app.Start(ctx, config.ServiceTypeWorker, app.Options{})
	if err != nil {
		slog.ErrorContext(ctx, "credential startup failed", "error", err)
		os.Exit(1)
	}
	cfg := rt.Config

	name := flag.String("name", cfg.Tracker.CredentialName, "credential name the worker looks up")
	baseURL := flag.String("base-url", cfg.Tracker.BaseURL, "Jira site URL")
	email := flag.String("email", cfg.Tracker.Email, "Jira account email")
	flag.Parse()

	err = run(ctx, rt, *name, *baseURL, *email, os.Getenv("JIRA_API_TOKEN"))
	rt.Close(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "storing credential failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, rt *app.Runtime, name, baseURL, email, token string) error {
	key := rt.Config.Tracker.EncryptionKey
	if len(key) == 0 {
		return fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY is required")
	}

	slug, err := common.SlugOr(name, "default")
	if err != nil {
		return err
	}

	cred := tracker.Credential{BaseURL: baseURL, Email: email, APIToken: token}
	if err := cred.Validate(); err != nil {
		return fmt.Errorf("base url, email and JIRA_API_TOKEN must all be set: %w", err)
	}

	codec, err := crypto.NewAEADCodec(key)
	if err != nil {
		return err
	}

	saved, err := rt.Stores.Credentials(codec).Upsert(ctx, &model.TrackerCredential{
		ID:       id.New(),
		Name:     slug,
		BaseURL:  cred.BaseURL,
		Email:    cred.Email,
		APIToken: cred.APIToken,
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "credential stored", "name", saved.Name, "id", saved.ID, "base_url", saved.BaseURL)
	return nil
}
