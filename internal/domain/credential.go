package domain

// Credentials are plaintext exchange API credentials. Scope is a single
// outbound call; callers must not retain them past that call.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// Zero overwrites the credential fields in place so a stale copy does not
// linger in memory after use.
func (c *Credentials) Zero() {
	c.APIKey = ""
	c.APISecret = ""
	c.Passphrase = ""
}

// SealedSecret is the envelope-encrypted on-disk/in-row representation of a
// single credential field. Tampering with any of the three fields makes
// Open fail.
type SealedSecret struct {
	WrappedDataKey []byte
	Nonce          []byte
	Ciphertext     []byte
}

// SealedCredentials is the per-(user,exchange) row stored by the
// credential store: each field sealed independently so a partial leak of
// one field's key material cannot be used to derive another.
type SealedCredentials struct {
	UserID     int64
	Exchange   string
	APIKey     SealedSecret
	APISecret  SealedSecret
	Passphrase *SealedSecret // optional
}
