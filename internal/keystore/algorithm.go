// Package keystore implements JACS's algorithm-agnostic signing key store:
// generation, signing, verification, and public-key-driven algorithm
// detection across RSA-PSS, ring-Ed25519, and two post-quantum Dilithium
// variants.
package keystore

import "fmt"

// Algorithm identifies one of the signing families a JACS key pair can use.
type Algorithm string

const (
	RsaPss         Algorithm = "RSA-PSS"
	RingEd25519    Algorithm = "ring-Ed25519"
	PqDilithium    Algorithm = "pq-dilithium"
	PqDilithiumAlt Algorithm = "pq-dilithium-alt"
)

// ParseAlgorithm validates s against the known algorithm names.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case RsaPss, RingEd25519, PqDilithium, PqDilithiumAlt:
		return Algorithm(s), nil
	default:
		return "", fmt.Errorf("keystore: unknown signing algorithm %q", s)
	}
}

func nonASCIIRatio(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	count := 0
	for _, c := range b {
		if c > 127 {
			count++
		}
	}
	return float64(count) / float64(len(b))
}

// DetectFromPublicKey infers the signing algorithm a public key belongs to
// from its raw length and byte distribution. This is a heuristic, not a
// format tag: it exists because JACS agent documents store raw public key
// bytes without an accompanying algorithm header in some legacy documents.
func DetectFromPublicKey(publicKey []byte) (Algorithm, error) {
	ratio := nonASCIIRatio(publicKey)

	if len(publicKey) == 32 && ratio > 0.5 {
		return RingEd25519, nil
	}
	if len(publicKey) > 100 && len(publicKey) > 0 && publicKey[0] == 0x30 && ratio < 0.2 {
		return RsaPss, nil
	}
	if len(publicKey) > 1000 && ratio > 0.3 {
		return PqDilithium, nil
	}
	if ratio > 0.5 {
		if len(publicKey) > 500 {
			return PqDilithium, nil
		}
		return RingEd25519, nil
	}
	return "", fmt.Errorf("keystore: could not detect signing algorithm from public key (length %d, non-ASCII ratio %.2f)", len(publicKey), ratio)
}

// RefineFromSignature re-examines a Dilithium detection against the actual
// signature length produced. JACS's Rust core once emitted Dilithium
// signatures in the 4640-4650 byte window under a different library version;
// this module recognizes that window for verification compatibility even
// though it no longer produces signatures in it (see dilithiumScheme).
func RefineFromSignature(detected Algorithm, signatureLen int) Algorithm {
	if detected != PqDilithium {
		return detected
	}
	if signatureLen >= 4640 && signatureLen <= 4650 {
		return PqDilithiumAlt
	}
	return PqDilithium
}
