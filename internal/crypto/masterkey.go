package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations matches the teacher's local-key-file derivation.
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	localFileVersion = 1
)

// MasterKeyConfig carries the information LoadMasterKeyPair needs to
// resolve a MasterKeyPair. Populate from config/env, never hardcode.
type MasterKeyConfig struct {
	// PublicKeyB64/PrivateKeyB64 are raw standard-base64-encoded 32-byte
	// keys. If both are set, LoadMasterKeyPair uses them directly.
	PublicKeyB64  string
	PrivateKeyB64 string

	// LocalFilePath is a JSON file produced by EncryptMasterKey. Used when
	// the raw env vars are absent.
	LocalFilePath string
	// LocalFilePassword decrypts LocalFilePath.
	LocalFilePassword string
}

// localKeyJSON is the on-disk format for a password-protected master
// private key, mirroring the teacher's encryptedKeyJSON shape.
type localKeyJSON struct {
	Version    int    `json:"version"`
	PublicKey  string `json:"public_key"` // base64, not encrypted
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"` // encrypted private key
}

// GenerateMasterKeyPair creates a fresh NaCl box keypair for provisioning;
// callers persist the result with EncryptMasterKey or as raw base64 env
// vars before the private key goes out of scope.
func GenerateMasterKeyPair() (MasterKeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return MasterKeyPair{}, fmt.Errorf("crypto: generating master keypair: %w", err)
	}
	return MasterKeyPair{PublicKey: *pub, PrivateKey: *priv}, nil
}

// EncryptMasterKey password-protects a MasterKeyPair for on-disk storage,
// using the same PBKDF2-HMAC-SHA256 + AES-256-GCM construction the teacher
// uses for its local private-key file.
func EncryptMasterKey(keys MasterKeyPair, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, keys.PrivateKey[:], nil)

	out := localKeyJSON{
		Version:    localFileVersion,
		PublicKey:  base64.StdEncoding.EncodeToString(keys.PublicKey[:]),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}
	return json.MarshalIndent(out, "", "  ")
}

// decryptMasterKey reverses EncryptMasterKey.
func decryptMasterKey(data []byte, password string) (MasterKeyPair, error) {
	if password == "" {
		return MasterKeyPair{}, errors.New("crypto: password must not be empty")
	}

	var stored localKeyJSON
	if err := json.Unmarshal(data, &stored); err != nil {
		return MasterKeyPair{}, fmt.Errorf("crypto: parsing local key file: %w", err)
	}
	if stored.Version != localFileVersion {
		return MasterKeyPair{}, fmt.Errorf("crypto: unsupported local key file version %d", stored.Version)
	}

	pubBytes, err := base64.StdEncoding.DecodeString(stored.PublicKey)
	if err != nil || len(pubBytes) != 32 {
		return MasterKeyPair{}, fmt.Errorf("crypto: decoding public key: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return MasterKeyPair{}, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return MasterKeyPair{}, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return MasterKeyPair{}, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return MasterKeyPair{}, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return MasterKeyPair{}, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	privBytes, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return MasterKeyPair{}, fmt.Errorf("crypto: decrypting local key file (wrong password?): %w", err)
	}

	var keys MasterKeyPair
	copy(keys.PublicKey[:], pubBytes)
	copy(keys.PrivateKey[:], privBytes)
	return keys, nil
}

// LoadMasterKeyPair resolves a MasterKeyPair from cfg.
//
// Resolution order:
//  1. PublicKeyB64/PrivateKeyB64, if both set.
//  2. LocalFilePath, decrypted with LocalFilePassword.
//  3. Otherwise, an error.
//
// The caller owns the returned value and threads it into NewEnvelope; it
// is never stored in a package-level variable.
func LoadMasterKeyPair(cfg MasterKeyConfig) (MasterKeyPair, error) {
	if cfg.PublicKeyB64 != "" && cfg.PrivateKeyB64 != "" {
		pubBytes, err := base64.StdEncoding.DecodeString(cfg.PublicKeyB64)
		if err != nil || len(pubBytes) != 32 {
			return MasterKeyPair{}, fmt.Errorf("crypto: invalid master public key: %w", err)
		}
		privBytes, err := base64.StdEncoding.DecodeString(cfg.PrivateKeyB64)
		if err != nil || len(privBytes) != 32 {
			return MasterKeyPair{}, fmt.Errorf("crypto: invalid master private key: %w", err)
		}
		var keys MasterKeyPair
		copy(keys.PublicKey[:], pubBytes)
		copy(keys.PrivateKey[:], privBytes)
		return keys, nil
	}

	if cfg.LocalFilePath != "" {
		data, err := os.ReadFile(cfg.LocalFilePath)
		if err != nil {
			return MasterKeyPair{}, fmt.Errorf("crypto: reading local key file: %w", err)
		}
		return decryptMasterKey(data, cfg.LocalFilePassword)
	}

	return MasterKeyPair{}, errors.New("crypto: no master key source configured (set PublicKeyB64/PrivateKeyB64 or LocalFilePath)")
}
