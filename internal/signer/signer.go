// Package signer implements Blowfin's HMAC-SHA256 request signing for both
// the REST API and the private WebSocket login handshake.
//
// Grounded on the teacher's internal/crypto/hmac.go (HMACAuth, the
// hmacSHA256Base64 helper, and the "...At" deterministic-timestamp
// testing pattern) and original_source/services/blowfin/auth.rs (the
// exact prehash field order and the fixed WS login path).
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// wsLoginPath is the fixed path Blowfin's WS login prehash uses regardless
// of which stream the client subscribes to afterward.
const wsLoginPath = "/users/self/verify"

// Signer holds the exchange API secret used to sign requests. Construct
// one per (user, exchange) credential set; never share across users.
type Signer struct {
	Secret string
}

// New returns a Signer bound to secret.
func New(secret string) *Signer {
	return &Signer{Secret: secret}
}

// NewNonce returns a fresh request nonce.
func NewNonce() string {
	return uuid.NewString()
}

// CurrentTimestampMillis returns the current time as a millisecond Unix
// epoch string, the format Blowfin's prehash expects.
func CurrentTimestampMillis() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// SignREST signs a REST request. The prehash is
// path||method||timestamp||nonce||body, HMAC-SHA256'd with Secret and
// base64-standard-encoded.
func (s *Signer) SignREST(method, path, timestamp, nonce, body string) string {
	return sign(s.Secret, path+method+timestamp+nonce+body)
}

// SignRESTNow is SignREST using the current timestamp and a fresh nonce; it
// returns the timestamp and nonce alongside the signature so the caller can
// place all three into request headers.
func (s *Signer) SignRESTNow(method, path, body string) (signature, timestamp, nonce string) {
	timestamp = CurrentTimestampMillis()
	nonce = NewNonce()
	return s.SignREST(method, path, timestamp, nonce, body), timestamp, nonce
}

// SignWS signs a private WebSocket login request. The prehash uses the
// fixed path "/users/self/verify" and method "GET" with no body.
func (s *Signer) SignWS(timestamp, nonce string) string {
	return sign(s.Secret, wsLoginPath+"GET"+timestamp+nonce)
}

// SignWSNow is SignWS using the current timestamp and a fresh nonce.
func (s *Signer) SignWSNow() (signature, timestamp, nonce string) {
	timestamp = CurrentTimestampMillis()
	nonce = NewNonce()
	return s.SignWS(timestamp, nonce), timestamp, nonce
}

func sign(secret, prehash string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(prehash))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
