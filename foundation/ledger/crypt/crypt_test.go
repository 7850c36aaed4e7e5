package crypt_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/votelabs/voteledger/foundation/ledger/crypt"
)

func Test_RoundTrip(t *testing.T) {
	key, err := crypt.GenerateKey()
	if err != nil {
		t.Fatalf("Should be able to generate a key: %s", err)
	}

	msg := []byte("issuance records for safekeeping")

	ciphertext, err := crypt.Encrypt(key, msg)
	if err != nil {
		t.Fatalf("Should be able to encrypt data: %s", err)
	}

	if bytes.Contains(ciphertext, msg) {
		t.Fatalf("Should not find the plaintext inside the ciphertext.")
	}

	plaintext, err := crypt.Decrypt(key, ciphertext)
	if err != nil {
		t.Fatalf("Should be able to decrypt data: %s", err)
	}

	if !bytes.Equal(plaintext, msg) {
		t.Logf("got: %s", plaintext)
		t.Logf("exp: %s", msg)
		t.Fatalf("Should get back the original plaintext.")
	}
}

func Test_WrongKey(t *testing.T) {
	key1, err := crypt.GenerateKey()
	if err != nil {
		t.Fatalf("Should be able to generate a key: %s", err)
	}

	key2, err := crypt.GenerateKey()
	if err != nil {
		t.Fatalf("Should be able to generate a key: %s", err)
	}

	ciphertext, err := crypt.Encrypt(key1, []byte("sealed"))
	if err != nil {
		t.Fatalf("Should be able to encrypt data: %s", err)
	}

	if _, err := crypt.Decrypt(key2, ciphertext); err == nil {
		t.Fatalf("Should not be able to decrypt with the wrong key.")
	}
}

func Test_BadKeySize(t *testing.T) {
	if _, err := crypt.Encrypt([]byte("short"), []byte("data")); !errors.Is(err, crypt.ErrInvalidKeyFormat) {
		t.Fatalf("Should reject a short key: %v", err)
	}

	if _, err := crypt.Decrypt([]byte("short"), []byte("data")); !errors.Is(err, crypt.ErrInvalidKeyFormat) {
		t.Fatalf("Should reject a short key: %v", err)
	}
}

func Test_TamperDetection(t *testing.T) {
	key, err := crypt.GenerateKey()
	if err != nil {
		t.Fatalf("Should be able to generate a key: %s", err)
	}

	ciphertext, err := crypt.Encrypt(key, []byte("sealed"))
	if err != nil {
		t.Fatalf("Should be able to encrypt data: %s", err)
	}

	ciphertext[len(ciphertext)-1] ^= 0x01

	if _, err := crypt.Decrypt(key, ciphertext); err == nil {
		t.Fatalf("Should not be able to decrypt tampered data.")
	}
}
