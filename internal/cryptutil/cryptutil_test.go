package cryptutil

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jacs-project/jacs-go/internal/jacserr"
)

func TestSha256HexKnownVector(t *testing.T) {
	got := Sha256Hex([]byte(""))
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := []byte("super-secret-private-key-material")
	envelope, err := EncryptPrivateKey(key, "hunter2")
	if err != nil {
		t.Fatalf("EncryptPrivateKey: %v", err)
	}
	if len(envelope) <= saltLen+nonceLen {
		t.Fatalf("envelope too short: %d bytes", len(envelope))
	}

	got, err := DecryptPrivateKey(envelope, "hunter2")
	if err != nil {
		t.Fatalf("DecryptPrivateKey: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Errorf("round trip mismatch: got %q, want %q", got, key)
	}
}

func TestDecryptWrongPasswordFails(t *testing.T) {
	envelope, err := EncryptPrivateKey([]byte("data"), "correct-password")
	if err != nil {
		t.Fatalf("EncryptPrivateKey: %v", err)
	}
	if _, err := DecryptPrivateKey(envelope, "wrong-password"); err == nil {
		t.Fatal("expected decryption failure with wrong password")
	}
}

func TestDecryptTooShortFails(t *testing.T) {
	_, err := DecryptPrivateKey([]byte("short"), "x")
	if err == nil {
		t.Fatal("expected error for too-short envelope")
	}
	var jerr *jacserr.Error
	if !errors.As(err, &jerr) || jerr.Kind != jacserr.CiphertextTooShort {
		t.Fatalf("expected CiphertextTooShort, got %v", err)
	}
	if errors.Is(err, jacserr.New(jacserr.WrongPasswordOrCorrupted, nil)) {
		t.Error("too-short envelope must not be classified as WrongPasswordOrCorrupted")
	}
}

func TestHashDocumentExcludesHashFieldAndDetectsTamper(t *testing.T) {
	value := map[string]interface{}{"title": "t", "jacsSha256": "stale"}
	h1, err := HashDocument(value, "jacsSha256")
	if err != nil {
		t.Fatalf("HashDocument: %v", err)
	}

	value["jacsSha256"] = "different-stale-value"
	h2, err := HashDocument(value, "jacsSha256")
	if err != nil {
		t.Fatalf("HashDocument: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash depends on excluded field: %s != %s", h1, h2)
	}

	value["title"] = "t2"
	h3, err := HashDocument(value, "jacsSha256")
	if err != nil {
		t.Fatalf("HashDocument: %v", err)
	}
	if h3 == h1 {
		t.Error("hash did not change after content mutation")
	}
}
