// Package credential combines the persisted SealedCredentials row with the
// Envelope Crypto seal/open primitives to hand the Trading Engine
// plaintext, scope-limited Credentials for a single outbound call.
//
// Grounded on original_source/services/trading_engine.rs's execute_trade
// (fetch ApiKey row -> decrypt via GLOBAL_CRYPTO -> construct exchange
// client) and the teacher's internal/crypto/keymanager.go resolution-order
// style.
package credential

import (
	"context"
	"fmt"

	"github.com/mkwiatkowski/tradebot/internal/crypto"
	"github.com/mkwiatkowski/tradebot/internal/domain"
)

// Store resolves (user, exchange) to plaintext Credentials by reading a
// SealedCredentials row and opening each field with an Envelope.
type Store struct {
	rows domain.CredentialStore
	env  *crypto.Envelope
}

// New returns a Store backed by rows, opening fields with env.
func New(rows domain.CredentialStore, env *crypto.Envelope) *Store {
	return &Store{rows: rows, env: env}
}

// Get resolves and decrypts the credentials for (userID, exchange). The
// returned Credentials must not be retained past the single call it scopes.
func (s *Store) Get(ctx context.Context, userID int64, exchange string) (domain.Credentials, error) {
	sealed, err := s.rows.Get(ctx, userID, exchange)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("credential: fetching sealed row: %w", err)
	}

	apiKey, err := s.env.Open(sealed.APIKey)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("%w: api key: %v", domain.ErrCredentialMissing, err)
	}
	apiSecret, err := s.env.Open(sealed.APISecret)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("%w: api secret: %v", domain.ErrCredentialMissing, err)
	}

	creds := domain.Credentials{
		APIKey:    string(apiKey),
		APISecret: string(apiSecret),
	}

	if sealed.Passphrase != nil {
		passphrase, err := s.env.Open(*sealed.Passphrase)
		if err != nil {
			return domain.Credentials{}, fmt.Errorf("%w: passphrase: %v", domain.ErrCredentialMissing, err)
		}
		creds.Passphrase = string(passphrase)
	}

	return creds, nil
}
