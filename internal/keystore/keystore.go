package keystore

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/cloudflare/circl/sign/schemes"
)

// dilithiumScheme is the single post-quantum family this store supports.
// pq-dilithium and pq-dilithium-alt share it: the "alt" tag exists purely
// for detection/back-compat against a historical signature-length drift
// (see RefineFromSignature), not as a second scheme.
var dilithiumScheme = schemes.ByName("Dilithium5")

// KeyPair holds a generated or loaded key pair for one algorithm. Public is
// always populated; Private is nil for a verify-only (public-key-only) pair.
type KeyPair struct {
	Algorithm Algorithm
	Public    []byte
	Private   *SecretKey
}

// SecretKey wraps raw private key bytes so they can be zeroized once no
// longer needed, and so accidental logging/printing never leaks material.
type SecretKey struct {
	bytes []byte
}

// NewSecretKey takes ownership of b; callers should not reuse the slice.
func NewSecretKey(b []byte) *SecretKey {
	return &SecretKey{bytes: b}
}

// Bytes returns the wrapped key material.
func (s *SecretKey) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.bytes
}

// Zero overwrites the wrapped key material with zeros. Call this once a key
// pair is no longer needed, e.g. after re-encrypting it under a new
// password.
func (s *SecretKey) Zero() {
	if s == nil {
		return
	}
	for i := range s.bytes {
		s.bytes[i] = 0
	}
}

// String never reveals key material, including via fmt's default verbs.
func (s *SecretKey) String() string {
	return "keystore.SecretKey{REDACTED}"
}

// GoString satisfies fmt's %#v formatting with the same redaction.
func (s *SecretKey) GoString() string {
	return s.String()
}

// Generate creates a new key pair for algo.
func Generate(algo Algorithm) (*KeyPair, error) {
	switch algo {
	case RsaPss:
		key, err := rsa.GenerateKey(rand.Reader, 4096)
		if err != nil {
			return nil, fmt.Errorf("keystore: generating RSA-PSS key: %w", err)
		}
		pub, err := marshalRSAPublicKey(&key.PublicKey)
		if err != nil {
			return nil, err
		}
		return &KeyPair{Algorithm: algo, Public: pub, Private: NewSecretKey(marshalRSAPrivateKey(key))}, nil

	case RingEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("keystore: generating Ed25519 key: %w", err)
		}
		return &KeyPair{Algorithm: algo, Public: pub, Private: NewSecretKey(priv)}, nil

	case PqDilithium, PqDilithiumAlt:
		if dilithiumScheme == nil {
			return nil, fmt.Errorf("keystore: Dilithium5 scheme unavailable")
		}
		pub, priv, err := dilithiumScheme.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("keystore: generating Dilithium key: %w", err)
		}
		pubBytes, err := pub.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("keystore: marshaling Dilithium public key: %w", err)
		}
		privBytes, err := priv.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("keystore: marshaling Dilithium private key: %w", err)
		}
		return &KeyPair{Algorithm: algo, Public: pubBytes, Private: NewSecretKey(privBytes)}, nil

	default:
		return nil, fmt.Errorf("keystore: unsupported algorithm %q", algo)
	}
}

// SignString signs data with the given algorithm and private key, returning
// a base64-encoded detached signature.
func SignString(algo Algorithm, priv *SecretKey, data []byte) (string, error) {
	if priv == nil {
		return "", fmt.Errorf("keystore: no private key available to sign with")
	}
	switch algo {
	case RsaPss:
		key, err := parseRSAPrivateKey(priv.Bytes())
		if err != nil {
			return "", fmt.Errorf("keystore: parsing RSA-PSS private key: %w", err)
		}
		digest := sha256.Sum256(data)
		sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], nil)
		if err != nil {
			return "", fmt.Errorf("keystore: RSA-PSS signing: %w", err)
		}
		return base64.StdEncoding.EncodeToString(sig), nil

	case RingEd25519:
		if len(priv.Bytes()) != ed25519.PrivateKeySize {
			return "", fmt.Errorf("keystore: Ed25519 private key has wrong size %d", len(priv.Bytes()))
		}
		sig := ed25519.Sign(ed25519.PrivateKey(priv.Bytes()), data)
		return base64.StdEncoding.EncodeToString(sig), nil

	case PqDilithium, PqDilithiumAlt:
		if dilithiumScheme == nil {
			return "", fmt.Errorf("keystore: Dilithium5 scheme unavailable")
		}
		sk, err := dilithiumScheme.UnmarshalBinaryPrivateKey(priv.Bytes())
		if err != nil {
			return "", fmt.Errorf("keystore: parsing Dilithium private key: %w", err)
		}
		sig := dilithiumScheme.Sign(sk, data, nil)
		return base64.StdEncoding.EncodeToString(sig), nil

	default:
		return "", fmt.Errorf("keystore: unsupported algorithm %q", algo)
	}
}

// VerifyString checks a base64-encoded detached signature over data against
// publicKey under algo. For pq-dilithium-alt it reports a dedicated,
// more descriptive mismatch when the signature length falls in the
// historical alt window but verification under the shared scheme fails,
// since that combination usually means the signature was produced by a
// library version this store no longer carries.
func VerifyString(algo Algorithm, publicKey []byte, data []byte, signatureB64 string) error {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("keystore: decoding signature: %w", err)
	}

	switch algo {
	case RsaPss:
		key, err := parseRSAPublicKey(publicKey)
		if err != nil {
			return fmt.Errorf("keystore: parsing RSA-PSS public key: %w", err)
		}
		digest := sha256.Sum256(data)
		if err := rsa.VerifyPSS(key, crypto.SHA256, digest[:], sig, nil); err != nil {
			return fmt.Errorf("keystore: RSA-PSS verification failed: %w", err)
		}
		return nil

	case RingEd25519:
		if len(publicKey) != ed25519.PublicKeySize {
			return fmt.Errorf("keystore: Ed25519 public key has wrong size %d", len(publicKey))
		}
		if !ed25519.Verify(ed25519.PublicKey(publicKey), data, sig) {
			return fmt.Errorf("keystore: Ed25519 verification failed")
		}
		return nil

	case PqDilithium, PqDilithiumAlt:
		if dilithiumScheme == nil {
			return fmt.Errorf("keystore: Dilithium5 scheme unavailable")
		}
		pk, err := dilithiumScheme.UnmarshalBinaryPublicKey(publicKey)
		if err != nil {
			return fmt.Errorf("keystore: parsing Dilithium public key: %w", err)
		}
		if !dilithiumScheme.Verify(pk, data, sig, nil) {
			if algo == PqDilithiumAlt {
				return fmt.Errorf("keystore: Dilithium verification failed: signature length %d matches the pq-dilithium-alt window but does not verify under the current Dilithium5 scheme; it may have been produced by an incompatible library version", len(sig))
			}
			return fmt.Errorf("keystore: Dilithium verification failed")
		}
		return nil

	default:
		return fmt.Errorf("keystore: unsupported algorithm %q", algo)
	}
}
