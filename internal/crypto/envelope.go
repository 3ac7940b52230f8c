// Package crypto implements the envelope-encryption scheme the Credential
// Store uses to keep exchange API secrets at rest: each secret is
// encrypted under a random, single-use data key (AES-256-GCM), and that
// data key is in turn sealed against a long-lived master keypair
// (anonymous NaCl box) so the master private key never has to touch the
// bulk ciphertext directly.
//
// Grounded on the teacher's internal/crypto/keymanager.go (PBKDF2 +
// AES-256-GCM local-key-file pattern) and original_source/services/crypto.rs
// (EnvelopeCrypto::seal/open, master keypair from base64 env vars). Unlike
// the original's GLOBAL_CRYPTO process-global, LoadMasterKeyPair returns an
// explicitly constructed value that callers thread through — see
// SPEC_FULL.md's redesign note on this point.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/box"

	"github.com/mkwiatkowski/tradebot/internal/domain"
)

// dataKeyLen is the AES-256 data-key size in bytes.
const dataKeyLen = 32

// MasterKeyPair is the long-lived keypair the Envelope seals data keys
// against. PublicKey may be distributed freely; PrivateKey must not leave
// the process that calls Open.
type MasterKeyPair struct {
	PublicKey  [32]byte
	PrivateKey [32]byte
}

// Envelope is a constructed seal/open handle bound to one MasterKeyPair.
// Build one with NewEnvelope during app wiring and pass it to the
// credential store; do not hold it in a package-level variable.
type Envelope struct {
	keys MasterKeyPair
}

// NewEnvelope returns an Envelope bound to keys.
func NewEnvelope(keys MasterKeyPair) *Envelope {
	return &Envelope{keys: keys}
}

// Seal encrypts plaintext under a fresh random data key and wraps that
// data key against the envelope's master public key.
func (e *Envelope) Seal(plaintext []byte) (domain.SealedSecret, error) {
	dataKey := make([]byte, dataKeyLen)
	if _, err := rand.Read(dataKey); err != nil {
		return domain.SealedSecret{}, fmt.Errorf("%w: generating data key: %v", domain.ErrSealFailed, err)
	}
	defer zero(dataKey)

	block, err := aes.NewCipher(dataKey)
	if err != nil {
		return domain.SealedSecret{}, fmt.Errorf("%w: %v", domain.ErrSealFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return domain.SealedSecret{}, fmt.Errorf("%w: %v", domain.ErrSealFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return domain.SealedSecret{}, fmt.Errorf("%w: generating nonce: %v", domain.ErrSealFailed, err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	wrapped, err := box.SealAnonymous(nil, dataKey, &e.keys.PublicKey, rand.Reader)
	if err != nil {
		return domain.SealedSecret{}, fmt.Errorf("%w: wrapping data key: %v", domain.ErrSealFailed, err)
	}

	return domain.SealedSecret{
		WrappedDataKey: wrapped,
		Nonce:          nonce,
		Ciphertext:     ciphertext,
	}, nil
}

// Open reverses Seal. Any tampering with WrappedDataKey, Nonce, or
// Ciphertext makes Open fail: the wrap step authenticates the data key and
// the GCM tag authenticates the payload.
func (e *Envelope) Open(sealed domain.SealedSecret) ([]byte, error) {
	dataKey, ok := box.OpenAnonymous(nil, sealed.WrappedDataKey, &e.keys.PublicKey, &e.keys.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: unwrapping data key", domain.ErrOpenFailed)
	}
	defer zero(dataKey)

	block, err := aes.NewCipher(dataKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOpenFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOpenFailed, err)
	}

	plaintext, err := gcm.Open(nil, sealed.Nonce, sealed.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decryption failed: %v", domain.ErrOpenFailed, err)
	}
	return plaintext, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
