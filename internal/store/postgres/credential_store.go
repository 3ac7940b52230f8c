package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkwiatkowski/tradebot/internal/domain"
)

// CredentialStore implements domain.CredentialStore using PostgreSQL. Each
// sealed secret's three envelope fields are stored in their own columns so
// a row can be read back without any application-side concatenation.
type CredentialStore struct {
	pool *pgxpool.Pool
}

// NewCredentialStore creates a new CredentialStore backed by the given connection pool.
func NewCredentialStore(pool *pgxpool.Pool) *CredentialStore {
	return &CredentialStore{pool: pool}
}

// Get retrieves the sealed credential row for (userID, exchange). Opening
// the sealed fields is the caller's (internal/credential) job.
func (s *CredentialStore) Get(ctx context.Context, userID int64, exchange string) (domain.SealedCredentials, error) {
	const query = `
		SELECT
			user_id, exchange,
			api_key_wrapped_key, api_key_nonce, api_key_ciphertext,
			api_secret_wrapped_key, api_secret_nonce, api_secret_ciphertext,
			passphrase_wrapped_key, passphrase_nonce, passphrase_ciphertext
		FROM sealed_credentials
		WHERE user_id = $1 AND exchange = $2`

	var creds domain.SealedCredentials
	var passWrapped, passNonce, passCiphertext []byte

	err := s.pool.QueryRow(ctx, query, userID, exchange).Scan(
		&creds.UserID, &creds.Exchange,
		&creds.APIKey.WrappedDataKey, &creds.APIKey.Nonce, &creds.APIKey.Ciphertext,
		&creds.APISecret.WrappedDataKey, &creds.APISecret.Nonce, &creds.APISecret.Ciphertext,
		&passWrapped, &passNonce, &passCiphertext,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SealedCredentials{}, fmt.Errorf("postgres: credentials for user %d exchange %s: %w", userID, exchange, domain.ErrCredentialMissing)
		}
		return domain.SealedCredentials{}, fmt.Errorf("postgres: get credentials: %w", err)
	}

	if passCiphertext != nil {
		creds.Passphrase = &domain.SealedSecret{
			WrappedDataKey: passWrapped,
			Nonce:          passNonce,
			Ciphertext:     passCiphertext,
		}
	}

	return creds, nil
}

// Upsert stores or replaces the sealed credential row for (userID, exchange).
func (s *CredentialStore) Upsert(ctx context.Context, creds domain.SealedCredentials) error {
	var passWrapped, passNonce, passCiphertext []byte
	if creds.Passphrase != nil {
		passWrapped = creds.Passphrase.WrappedDataKey
		passNonce = creds.Passphrase.Nonce
		passCiphertext = creds.Passphrase.Ciphertext
	}

	const query = `
		INSERT INTO sealed_credentials (
			user_id, exchange,
			api_key_wrapped_key, api_key_nonce, api_key_ciphertext,
			api_secret_wrapped_key, api_secret_nonce, api_secret_ciphertext,
			passphrase_wrapped_key, passphrase_nonce, passphrase_ciphertext,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (user_id, exchange) DO UPDATE SET
			api_key_wrapped_key    = EXCLUDED.api_key_wrapped_key,
			api_key_nonce          = EXCLUDED.api_key_nonce,
			api_key_ciphertext     = EXCLUDED.api_key_ciphertext,
			api_secret_wrapped_key = EXCLUDED.api_secret_wrapped_key,
			api_secret_nonce       = EXCLUDED.api_secret_nonce,
			api_secret_ciphertext  = EXCLUDED.api_secret_ciphertext,
			passphrase_wrapped_key = EXCLUDED.passphrase_wrapped_key,
			passphrase_nonce       = EXCLUDED.passphrase_nonce,
			passphrase_ciphertext  = EXCLUDED.passphrase_ciphertext,
			updated_at             = NOW()`

	_, err := s.pool.Exec(ctx, query,
		creds.UserID, creds.Exchange,
		creds.APIKey.WrappedDataKey, creds.APIKey.Nonce, creds.APIKey.Ciphertext,
		creds.APISecret.WrappedDataKey, creds.APISecret.Nonce, creds.APISecret.Ciphertext,
		passWrapped, passNonce, passCiphertext,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert credentials: %w", err)
	}
	return nil
}

var _ domain.CredentialStore = (*CredentialStore)(nil)
