// Package signer implements the algorithm-agnostic sign/verify procedures
// that sit between the canonicalizer and the key store: it assembles and
// consumes the structured Signature object embedded in JACS documents.
package signer

import (
	"fmt"
	"time"

	"github.com/jacs-project/jacs-go/internal/canonical"
	"github.com/jacs-project/jacs-go/internal/cryptutil"
	"github.com/jacs-project/jacs-go/internal/keystore"
)

// Signature is the object literal embedded at a document's placement field
// (usually jacsSignature, or an agreement field for agreement signatures).
type Signature struct {
	AgentID          string   `json:"agentID"`
	AgentVersion     string   `json:"agentVersion"`
	Date             string   `json:"date"`
	SignatureB64     string   `json:"signature"`
	SigningAlgorithm string   `json:"signingAlgorithm"`
	PublicKeyHash    string   `json:"publicKeyHash"`
	Fields           []string `json:"fields"`
}

// Status distinguishes a verification outcome that could not be checked at
// all (no key on hand) from one that was checked and found wrong. Conflating
// the two would let an unresolvable signature silently pass as "not invalid".
type Status int

const (
	StatusValid Status = iota
	StatusInvalid
	StatusUnverified
)

// SignInto canonicalizes value (restricted to fields and placementKey) and
// produces a Signature over the result using algo and priv. now is injected
// by the caller so callers control clock access and this package stays
// pure/testable.
func SignInto(raw []byte, value map[string]interface{}, fields []string, placementKey string, algo keystore.Algorithm, priv *keystore.SecretKey, publicKey []byte, agentID, agentVersion string, now time.Time) (Signature, error) {
	message, usedFields, err := canonical.Select(raw, value, placementKey, fields)
	if err != nil {
		return Signature{}, fmt.Errorf("signer: canonicalizing for signing: %w", err)
	}

	sigB64, err := keystore.SignString(algo, priv, []byte(message))
	if err != nil {
		return Signature{}, fmt.Errorf("signer: signing: %w", err)
	}

	return Signature{
		AgentID:          agentID,
		AgentVersion:     agentVersion,
		Date:             now.UTC().Format(time.RFC3339),
		SignatureB64:     sigB64,
		SigningAlgorithm: string(algo),
		PublicKeyHash:    cryptutil.Sha256Hex(publicKey),
		Fields:           usedFields,
	}, nil
}

// VerifyResult reports the outcome of Verify along with the status
// distinction callers must not collapse.
type VerifyResult struct {
	Status Status
	Err    error
}

// Verify re-canonicalizes value identically to how SignInto did, then checks
// sig against publicKey. If publicKey is nil (no key resolvable for the
// signer), the result is StatusUnverified, never StatusInvalid.
//
// algo, when empty, is taken from sig.SigningAlgorithm, or detected from
// publicKey when that tag is also empty. A Dilithium algorithm is then
// refined by the signature's decoded length.
func Verify(raw []byte, value map[string]interface{}, placementKey string, sig Signature, publicKey []byte, algo keystore.Algorithm, expectedPublicKeyHash string) VerifyResult {
	if publicKey == nil {
		return VerifyResult{Status: StatusUnverified, Err: fmt.Errorf("signer: no public key available to verify agent %s", sig.AgentID)}
	}

	message, _, err := canonical.Select(raw, value, placementKey, sig.Fields)
	if err != nil {
		return VerifyResult{Status: StatusInvalid, Err: fmt.Errorf("signer: canonicalizing for verification: %w", err)}
	}

	wantHash := expectedPublicKeyHash
	if wantHash == "" {
		wantHash = cryptutil.Sha256Hex(publicKey)
	}
	if sig.PublicKeyHash != wantHash {
		return VerifyResult{Status: StatusInvalid, Err: fmt.Errorf("signer: wrong public key: signature publicKeyHash %s does not match %s", sig.PublicKeyHash, wantHash)}
	}

	useAlgo := algo
	if useAlgo == "" {
		if sig.SigningAlgorithm != "" {
			a, err := keystore.ParseAlgorithm(sig.SigningAlgorithm)
			if err != nil {
				return VerifyResult{Status: StatusInvalid, Err: err}
			}
			useAlgo = a
		} else {
			detected, err := keystore.DetectFromPublicKey(publicKey)
			if err != nil {
				return VerifyResult{Status: StatusInvalid, Err: fmt.Errorf("signer: %w", err)}
			}
			useAlgo = detected
		}
	}

	if useAlgo == keystore.PqDilithium || useAlgo == keystore.PqDilithiumAlt {
		if decoded, derr := decodedSigLen(sig.SignatureB64); derr == nil {
			useAlgo = keystore.RefineFromSignature(keystore.PqDilithium, decoded)
		}
	}

	if err := keystore.VerifyString(useAlgo, publicKey, []byte(message), sig.SignatureB64); err != nil {
		return VerifyResult{Status: StatusInvalid, Err: fmt.Errorf("signer: invalid signature: %w", err)}
	}
	return VerifyResult{Status: StatusValid}
}
