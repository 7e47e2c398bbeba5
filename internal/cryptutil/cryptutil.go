// Package cryptutil provides the hashing and at-rest private-key encryption
// primitives shared by the rest of the module: SHA-256 digesting of
// canonicalized document text, and AES-256-GCM envelope encryption of
// private key material with a password-derived PBKDF2 key.
package cryptutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/jacs-project/jacs-go/internal/jacserr"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100_000
	saltLen          = 16
	nonceLen         = 12
	keyLen           = 32
)

// Sha256Hex returns the lowercase hex SHA-256 digest of data.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashDocument computes jacsSha256: the hex SHA-256 of the document's full
// JSON serialization with shaField removed. Unlike signature canonicalization
// (package canonical), this hashes the entire document, not a field
// selection, and operates on the compact (not pretty-printed) form.
func HashDocument(value map[string]interface{}, shaField string) (string, error) {
	copied := make(map[string]interface{}, len(value))
	for k, v := range value {
		if k == shaField {
			continue
		}
		copied[k] = v
	}
	b, err := json.Marshal(copied)
	if err != nil {
		return "", fmt.Errorf("cryptutil: serializing document for hashing: %w", err)
	}
	return Sha256Hex(b), nil
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyLen, sha256.New)
}

// EncryptPrivateKey wraps privateKey in an AES-256-GCM envelope keyed by a
// PBKDF2-HMAC-SHA256 derivation of password. The output layout is
// salt(16) || nonce(12) || ciphertext+tag, matching the format this module's
// key store reads back on load.
func EncryptPrivateKey(privateKey []byte, password string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("cryptutil: generating salt: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("cryptutil: building AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptutil: building GCM mode: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptutil: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, privateKey, nil)

	out := make([]byte, 0, saltLen+nonceLen+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// DecryptPrivateKey reverses EncryptPrivateKey. A wrong password or
// corrupted envelope surfaces as a GCM authentication failure.
func DecryptPrivateKey(envelope []byte, password string) ([]byte, error) {
	if len(envelope) < saltLen+nonceLen {
		return nil, jacserr.New(jacserr.CiphertextTooShort, fmt.Errorf("cryptutil: encrypted key data is %d bytes, need at least %d", len(envelope), saltLen+nonceLen))
	}
	salt, rest := envelope[:saltLen], envelope[saltLen:]
	nonce, ciphertext := rest[:nonceLen], rest[nonceLen:]

	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("cryptutil: building AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptutil: building GCM mode: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptutil: decryption failed (wrong password or corrupted data): %w", err)
	}
	return plaintext, nil
}
