package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.app/trackersync/core/db"
	"basegraph.app/trackersync/internal/crypto"
	"basegraph.app/trackersync/internal/model"
)

type credentialStore struct {
	queries db.Querier
	codec   crypto.Codec
}

func newCredentialStore(queries db.Querier, codec crypto.Codec) CredentialStore {
	return &credentialStore{queries: queries, codec: codec}
}

// The credential name is bound as associated data so a ciphertext copied to
// another row fails to decrypt.
func (s *credentialStore) Upsert(ctx context.Context, cred *model.TrackerCredential) (*model.TrackerCredential, error) {
	sealed, err := s.codec.Encrypt([]byte(cred.APIToken), []byte(cred.Name))
	if err != nil {
		return nil, fmt.Errorf("encrypting api token: %w", err)
	}

	row := s.queries.QueryRow(ctx, `
		INSERT INTO tracker_credentials (id, name, base_url, email, api_token_ciphertext)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			base_url = EXCLUDED.base_url,
			email = EXCLUDED.email,
			api_token_ciphertext = EXCLUDED.api_token_ciphertext,
			updated_at = now()
		RETURNING id, name, base_url, email, api_token_ciphertext, created_at, updated_at`,
		cred.ID, cred.Name, cred.BaseURL, cred.Email, sealed,
	)
	return s.scan(row)
}

func (s *credentialStore) GetByName(ctx context.Context, name string) (*model.TrackerCredential, error) {
	row := s.queries.QueryRow(ctx, `
		SELECT id, name, base_url, email, api_token_ciphertext, created_at, updated_at
		FROM tracker_credentials WHERE name = $1`, name)
	cred, err := s.scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return cred, err
}

func (s *credentialStore) scan(row pgx.Row) (*model.TrackerCredential, error) {
	var c model.TrackerCredential
	var sealed []byte
	if err := row.Scan(&c.ID, &c.Name, &c.BaseURL, &c.Email, &sealed, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}

	token, err := s.codec.Decrypt(sealed, []byte(c.Name))
	if err != nil {
		return nil, fmt.Errorf("decrypting api token for %q: %w", c.Name, err)
	}
	c.APIToken = string(token)
	return &c, nil
}
