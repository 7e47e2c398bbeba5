// Package payload implements JACS's one-shot signed envelope: an opaque
// value wrapped in a document, signed the same way any document is signed,
// but never updated. A receiver verifies it once, within a short replay
// window measured from the embedded signature date, and discards it.
package payload

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jacs-project/jacs-go/internal/docengine"
	"github.com/jacs-project/jacs-go/internal/jacserr"
	"github.com/jacs-project/jacs-go/internal/keystore"
	"github.com/jacs-project/jacs-go/internal/signer"
)

func marshalEnvelope(envelope map[string]interface{}) ([]byte, error) {
	return json.Marshal(envelope)
}

// Field is the top-level key a payload's opaque content lives under.
const Field = "jacs_payload"

// DefaultMaxReplay is the default window within which a verified payload is
// considered fresh, measured from its signature date to the verifier's now.
const DefaultMaxReplay = 1 * time.Second

// Send wraps value in a new document and signs it via the engine's ordinary
// create flow. The result is meant to be transmitted and verified exactly
// once; payload documents are never updated in place.
func Send(ctx context.Context, engine *docengine.Engine, s docengine.Signer, value interface{}) (*docengine.Document, error) {
	envelope := map[string]interface{}{Field: value}
	raw, err := marshalEnvelope(envelope)
	if err != nil {
		return nil, fmt.Errorf("payload: marshaling envelope: %w", err)
	}
	return engine.Create(ctx, s, raw, "payload")
}

// Verify checks doc's hash and embedded signature against publicKey, then
// enforces the replay window between the signature's date and now. A zero
// maxReplay defaults to DefaultMaxReplay.
func Verify(doc *docengine.Document, publicKey []byte, algo keystore.Algorithm, expectedPublicKeyHash string, now time.Time, maxReplay time.Duration) (interface{}, error) {
	if maxReplay <= 0 {
		maxReplay = DefaultMaxReplay
	}

	if err := docengine.VerifyHash(doc); err != nil {
		return nil, err
	}

	result := docengine.VerifyDocument(doc, docengine.FieldSignature, publicKey, algo, expectedPublicKeyHash)
	switch result.Status {
	case signer.StatusValid:
		// proceed
	case signer.StatusUnverified:
		return nil, jacserr.New(jacserr.Unverified, result.Err).WithDocument(doc.ID)
	default:
		return nil, jacserr.New(jacserr.InvalidSignature, result.Err).WithDocument(doc.ID)
	}

	sigMap, ok := doc.Value[docengine.FieldSignature].(map[string]interface{})
	if !ok {
		return nil, jacserr.New(jacserr.InvalidSignature, fmt.Errorf("payload: document has no signature block")).WithDocument(doc.ID)
	}
	dateStr, _ := sigMap["date"].(string)
	signedAt, err := time.Parse(time.RFC3339, dateStr)
	if err != nil {
		return nil, jacserr.New(jacserr.InvalidSignature, fmt.Errorf("payload: unparseable signature date %q: %w", dateStr, err)).WithDocument(doc.ID)
	}

	age := now.Sub(signedAt)
	if age < 0 {
		age = -age
	}
	if age > maxReplay {
		return nil, jacserr.New(jacserr.ReplayWindowExceeded, fmt.Errorf("payload: signed %s ago, exceeds max replay of %s", age, maxReplay)).WithDocument(doc.ID)
	}

	return doc.Value[Field], nil
}
