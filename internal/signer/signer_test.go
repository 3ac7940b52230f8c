package signer

import "testing"

func TestSignREST_ReferenceVector(t *testing.T) {
	s := New("mysecret")
	got := s.SignREST("POST", "/api/v1/order", "1690000000000", "nonce123", `{"foo":1}`)
	want := "Jg5/kwP/ixremCZCe9Wzb8e0jA/FXxjJsFxEUJVrsx0="
	if got != want {
		t.Fatalf("SignREST: got %q, want %q", got, want)
	}
}

func TestSignWS_ReferenceVector(t *testing.T) {
	s := New("mysecret")
	got := s.SignWS("1690000000000", "nonce123")
	want := "XhySSqNux/AAnb1u41Alg7M1l0Aoc/ltBbJl08AAjJg="
	if got != want {
		t.Fatalf("SignWS: got %q, want %q", got, want)
	}
}

func TestSignREST_TamperedBodyChangesSignature(t *testing.T) {
	s := New("mysecret")
	base := s.SignREST("POST", "/api/v1/order", "1690000000000", "nonce123", `{"foo":1}`)
	tampered := s.SignREST("POST", "/api/v1/order", "1690000000000", "nonce123", `{"foo":2}`)
	if base == tampered {
		t.Fatal("expected different signatures for different bodies")
	}
}

func TestSignRESTNow_ProducesVerifiableSignature(t *testing.T) {
	s := New("mysecret")
	sig, ts, nonce := s.SignRESTNow("GET", "/api/v1/asset/balances", "")
	if sig != s.SignREST("GET", "/api/v1/asset/balances", ts, nonce, "") {
		t.Fatal("SignRESTNow signature does not match recomputed SignREST")
	}
}
