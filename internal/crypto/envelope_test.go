package crypto

import "testing"

func TestSealOpenRoundTrip(t *testing.T) {
	keys, err := GenerateMasterKeyPair()
	if err != nil {
		t.Fatalf("GenerateMasterKeyPair: %v", err)
	}
	env := NewEnvelope(keys)

	plaintext := []byte("super-secret-api-key")
	sealed, err := env.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	opened, err := env.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(opened) != string(plaintext) {
		t.Fatalf("round trip mismatch: got %q, want %q", opened, plaintext)
	}
}

func TestOpenFailsOnTamperedCiphertext(t *testing.T) {
	keys, err := GenerateMasterKeyPair()
	if err != nil {
		t.Fatalf("GenerateMasterKeyPair: %v", err)
	}
	env := NewEnvelope(keys)

	sealed, err := env.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed.Ciphertext[0] ^= 0xFF

	if _, err := env.Open(sealed); err == nil {
		t.Fatal("expected Open to fail on tampered ciphertext")
	}
}

func TestOpenFailsOnTamperedWrappedDataKey(t *testing.T) {
	keys, err := GenerateMasterKeyPair()
	if err != nil {
		t.Fatalf("GenerateMasterKeyPair: %v", err)
	}
	env := NewEnvelope(keys)

	sealed, err := env.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed.WrappedDataKey[0] ^= 0xFF

	if _, err := env.Open(sealed); err == nil {
		t.Fatal("expected Open to fail on tampered wrapped data key")
	}
}

func TestOpenFailsWithWrongMasterKey(t *testing.T) {
	keys, err := GenerateMasterKeyPair()
	if err != nil {
		t.Fatalf("GenerateMasterKeyPair: %v", err)
	}
	other, err := GenerateMasterKeyPair()
	if err != nil {
		t.Fatalf("GenerateMasterKeyPair: %v", err)
	}

	sealed, err := NewEnvelope(keys).Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := NewEnvelope(other).Open(sealed); err == nil {
		t.Fatal("expected Open to fail with a mismatched master keypair")
	}
}

func TestEncryptDecryptMasterKeyRoundTrip(t *testing.T) {
	keys, err := GenerateMasterKeyPair()
	if err != nil {
		t.Fatalf("GenerateMasterKeyPair: %v", err)
	}

	blob, err := EncryptMasterKey(keys, "correct horse battery staple")
	if err != nil {
		t.Fatalf("EncryptMasterKey: %v", err)
	}

	got, err := decryptMasterKey(blob, "correct horse battery staple")
	if err != nil {
		t.Fatalf("decryptMasterKey: %v", err)
	}
	if got.PublicKey != keys.PublicKey || got.PrivateKey != keys.PrivateKey {
		t.Fatal("decrypted keypair does not match original")
	}

	if _, err := decryptMasterKey(blob, "wrong password"); err == nil {
		t.Fatal("expected decryptMasterKey to fail with the wrong password")
	}
}
