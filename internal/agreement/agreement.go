// Package agreement implements JACS's multi-signer agreement engine: a
// commitment block attached to a document, independent of the document's
// ordinary version churn, tracked via its own hash and a declared set of
// signing participants.
package agreement

import (
	"fmt"
	"strings"
	"time"

	"github.com/jacs-project/jacs-go/internal/canonical"
	"github.com/jacs-project/jacs-go/internal/cryptutil"
	"github.com/jacs-project/jacs-go/internal/docengine"
	"github.com/jacs-project/jacs-go/internal/jacserr"
	"github.com/jacs-project/jacs-go/internal/keystore"
	"github.com/jacs-project/jacs-go/internal/signer"
)

// DefaultField is the top-level field name an agreement lives at when the
// caller does not ask for a task-phase variant (jacsStartAgreement,
// jacsEndAgreement).
const DefaultField = "jacsAgreement"

// KeyResolver looks up a signer's public key and algorithm by the
// publicKeyHash embedded in one of their signatures. Agreement checking
// needs this to verify signatures from agents other than the caller.
type KeyResolver interface {
	ResolvePublicKey(publicKeyHash string) (publicKey []byte, algo keystore.Algorithm, ok bool)
}

func normalizeID(id string) string {
	if idx := strings.IndexByte(id, ':'); idx >= 0 {
		return id[:idx]
	}
	return id
}

func normalizeAll(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = normalizeID(id)
	}
	return out
}

func containsNormalized(ids []string, id string) bool {
	target := normalizeID(id)
	for _, existing := range ids {
		if normalizeID(existing) == target {
			return true
		}
	}
	return false
}

func mergeWithoutDuplicates(existing, add []string) []string {
	out := append([]string{}, existing...)
	for _, id := range add {
		if !containsNormalized(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func subtract(a, b []string) []string {
	var out []string
	for _, id := range a {
		if !containsNormalized(b, id) {
			out = append(out, id)
		}
	}
	return out
}

func agreementHash(value map[string]interface{}, raw []byte, field string) (string, error) {
	trimmed := canonical.Trim(value, field)
	trimmedRaw, err := marshalStable(trimmed)
	if err != nil {
		return "", err
	}
	message, _, err := canonical.Select(trimmedRaw, trimmed, field, nil)
	if err != nil {
		return "", fmt.Errorf("agreement: canonicalizing for agreement hash: %w", err)
	}
	return cryptutil.Sha256Hex([]byte(message)), nil
}

func agreementBlock(doc *docengine.Document, field string) (map[string]interface{}, bool) {
	v, ok := doc.Value[field]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}

// HasAgreement reports whether field is present on doc.
func HasAgreement(doc *docengine.Document, field string) bool {
	_, ok := agreementBlock(doc, field)
	return ok
}

// Create installs a fresh agreement block naming agentIDs as the requested
// signers, and bumps the document's version via the engine's update flow.
func Create(engine *docengine.Engine, s docengine.Signer, key string, agentIDs []string, question, context, field string) (*docengine.Document, error) {
	if field == "" {
		field = DefaultField
	}
	doc, ok := engine.Get(key)
	if !ok {
		return nil, jacserr.New(jacserr.Bootstrap, fmt.Errorf("no document loaded for key %q", key)).WithKey(key)
	}
	if HasAgreement(doc, field) {
		return nil, jacserr.New(jacserr.AgreementAlreadyPresent, fmt.Errorf("field %q already present on document", field)).WithDocument(doc.ID)
	}

	preHash, err := agreementHash(doc.Value, doc.Raw, field)
	if err != nil {
		return nil, err
	}

	next := cloneValue(doc.Value)
	next[field] = map[string]interface{}{
		"agentIDs":   toInterfaceSlice(agentIDs),
		"signatures": []interface{}{},
		"question":   question,
		"context":    context,
	}
	next["jacsAgreementHash"] = preHash

	updated, err := engine.Update(s, key, next)
	if err != nil {
		return nil, err
	}

	postHash, err := agreementHash(updated.Value, updated.Raw, field)
	if err != nil {
		return nil, err
	}
	if postHash != preHash {
		return nil, jacserr.New(jacserr.AgreementHashDrift, fmt.Errorf("agreement hash drifted on creation: %s != %s", preHash, postHash)).WithDocument(updated.ID)
	}
	return updated, nil
}

// AddAgents merges ids (normalized) into the agreement's agentIDs and bumps
// the document version.
func AddAgents(engine *docengine.Engine, s docengine.Signer, key string, ids []string, field string) (*docengine.Document, error) {
	return mutateMembership(engine, s, key, ids, field, mergeWithoutDuplicates)
}

// RemoveAgents removes ids (normalized) from the agreement's agentIDs and
// bumps the document version.
func RemoveAgents(engine *docengine.Engine, s docengine.Signer, key string, ids []string, field string) (*docengine.Document, error) {
	return mutateMembership(engine, s, key, ids, field, subtract)
}

func mutateMembership(engine *docengine.Engine, s docengine.Signer, key string, ids []string, field string, combine func(existing, ids []string) []string) (*docengine.Document, error) {
	if field == "" {
		field = DefaultField
	}
	doc, ok := engine.Get(key)
	if !ok {
		return nil, jacserr.New(jacserr.Bootstrap, fmt.Errorf("no document loaded for key %q", key)).WithKey(key)
	}
	block, ok := agreementBlock(doc, field)
	if !ok {
		return nil, jacserr.New(jacserr.AgreementNotFound, fmt.Errorf("field %q not present on document", field)).WithDocument(doc.ID)
	}

	existing := stringSlice(block["agentIDs"])
	updatedIDs := combine(existing, ids)

	next := cloneValue(doc.Value)
	nextBlock := cloneValue(block)
	nextBlock["agentIDs"] = toInterfaceSlice(updatedIDs)
	next[field] = nextBlock

	return engine.Update(s, key, next)
}

// Sign appends the caller's signature to the agreement at field, adding the
// caller to agentIDs first if not already (normalized) present.
func Sign(engine *docengine.Engine, s docengine.Signer, key string, field string) (*docengine.Document, error) {
	if field == "" {
		field = DefaultField
	}
	doc, ok := engine.Get(key)
	if !ok {
		return nil, jacserr.New(jacserr.Bootstrap, fmt.Errorf("no document loaded for key %q", key)).WithKey(key)
	}
	block, ok := agreementBlock(doc, field)
	if !ok {
		return nil, jacserr.New(jacserr.AgreementNotFound, fmt.Errorf("field %q not present on document; create_agreement must run first", field)).WithDocument(doc.ID)
	}

	storedHash, _ := doc.Value["jacsAgreementHash"].(string)
	recomputed, err := agreementHash(doc.Value, doc.Raw, field)
	if err != nil {
		return nil, err
	}
	if storedHash != recomputed {
		return nil, jacserr.New(jacserr.AgreementHashDrift, fmt.Errorf("stored %s, recomputed %s", storedHash, recomputed)).WithDocument(doc.ID)
	}

	trimmed := canonical.Trim(doc.Value, field)
	trimmedRaw, err := marshalStable(trimmed)
	if err != nil {
		return nil, err
	}
	sig, err := signer.SignInto(trimmedRaw, trimmed, nil, field, s.Algorithm(), s.PrivateKey(), s.PublicKey(), s.AgentID(), s.AgentVersion(), time.Now())
	if err != nil {
		return nil, fmt.Errorf("agreement: signing agreement: %w", err)
	}

	agentIDs := stringSlice(block["agentIDs"])
	if !containsNormalized(agentIDs, s.AgentID()) {
		agentIDs = append(agentIDs, normalizeID(s.AgentID()))
	}

	signatures := interfaceSlice(block["signatures"])
	signatures = append(signatures, sigMapFrom(sig))

	next := cloneValue(doc.Value)
	nextBlock := cloneValue(block)
	nextBlock["agentIDs"] = toInterfaceSlice(agentIDs)
	nextBlock["signatures"] = signatures
	next[field] = nextBlock

	updated, err := engine.Update(s, key, next)
	if err != nil {
		return nil, err
	}

	postHash, err := agreementHash(updated.Value, updated.Raw, field)
	if err != nil {
		return nil, err
	}
	if postHash != recomputed {
		return nil, jacserr.New(jacserr.AgreementHashDrift, fmt.Errorf("agreement hash drifted after signing")).WithDocument(updated.ID)
	}
	return updated, nil
}

// Check recomputes the agreement hash, confirms every declared agent has
// signed, and verifies every signature.
func Check(doc *docengine.Document, field string, resolver KeyResolver) error {
	if field == "" {
		field = DefaultField
	}
	block, ok := agreementBlock(doc, field)
	if !ok {
		return jacserr.New(jacserr.AgreementNotFound, fmt.Errorf("field %q not present on document", field)).WithDocument(doc.ID)
	}

	storedHash, _ := doc.Value["jacsAgreementHash"].(string)
	recomputed, err := agreementHash(doc.Value, doc.Raw, field)
	if err != nil {
		return err
	}
	if storedHash != recomputed {
		return jacserr.New(jacserr.AgreementHashDrift, fmt.Errorf("stored %s, recomputed %s", storedHash, recomputed)).WithDocument(doc.ID)
	}

	requested := normalizeAll(stringSlice(block["agentIDs"]))
	signatures := interfaceSlice(block["signatures"])
	var signed []string
	for _, sv := range signatures {
		sm, ok := sv.(map[string]interface{})
		if !ok {
			continue
		}
		signed = append(signed, normalizeID(strField(sm, "agentID")))
	}

	unsigned := subtract(requested, signed)
	if len(unsigned) > 0 {
		return jacserr.New(jacserr.AgreementUnsigned, fmt.Errorf("agents have not signed")).WithDocument(doc.ID).WithBlockedAgents(unsigned)
	}

	trimmed := canonical.Trim(doc.Value, field)
	trimmedRaw, err := marshalStable(trimmed)
	if err != nil {
		return err
	}

	for _, sv := range signatures {
		sm, _ := sv.(map[string]interface{})
		sig := sigFromMap(sm)

		publicKey, algo, ok := resolver.ResolvePublicKey(sig.PublicKeyHash)
		if !ok {
			return jacserr.New(jacserr.Unverified, fmt.Errorf("no public key resolvable for signer %s (hash %s)", sig.AgentID, sig.PublicKeyHash)).WithDocument(doc.ID)
		}

		result := signer.Verify(trimmedRaw, trimmed, field, sig, publicKey, algo, sig.PublicKeyHash)
		switch result.Status {
		case signer.StatusValid:
			continue
		case signer.StatusUnverified:
			return jacserr.New(jacserr.Unverified, result.Err).WithDocument(doc.ID)
		default:
			return jacserr.New(jacserr.InvalidSignature, result.Err).WithDocument(doc.ID)
		}
	}
	return nil
}
