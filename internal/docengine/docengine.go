// Package docengine implements JACS's document lifecycle: create, load,
// update, copy, save, and verify, plus the version-lineage and
// immutable-identity invariants that bind them together.
package docengine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jacs-project/jacs-go/internal/cryptutil"
	"github.com/jacs-project/jacs-go/internal/jacserr"
	"github.com/jacs-project/jacs-go/internal/keystore"
	"github.com/jacs-project/jacs-go/internal/schema"
	"github.com/jacs-project/jacs-go/internal/signer"
	"github.com/jacs-project/jacs-go/internal/storage"
)

// Document is one loaded or created version of a JACS document.
type Document struct {
	ID      string
	Version string
	Type    string
	Value   map[string]interface{}
	Raw     []byte
}

// Key returns the index/storage key "{id}:{version}" for d.
func (d *Document) Key() string {
	return fmt.Sprintf("%s:%s", d.ID, d.Version)
}

func newDocument(value map[string]interface{}) (*Document, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("docengine: serializing document: %w", err)
	}
	id, _ := value[FieldID].(string)
	version, _ := value[FieldVersion].(string)
	docType, _ := value[FieldType].(string)
	return &Document{ID: id, Version: version, Type: docType, Value: value, Raw: raw}, nil
}

// Signer is the identity a document operation is performed as. The façade
// Agent type implements this; docengine has no knowledge of Agent itself,
// avoiding an import cycle between the engine and the package that
// composes it.
type Signer interface {
	AgentID() string
	AgentVersion() string
	Algorithm() keystore.Algorithm
	PrivateKey() *keystore.SecretKey
	PublicKey() []byte
}

// Engine owns the in-memory document index and the storage/schema
// collaborators every document operation routes through.
type Engine struct {
	mu    sync.Mutex
	index map[string]*Document

	store     storage.Store
	validator *schema.Validator
}

// New constructs an Engine backed by store and validator.
func New(store storage.Store, validator *schema.Validator) *Engine {
	return &Engine{index: make(map[string]*Document), store: store, validator: validator}
}

func clone(value map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(value))
	for k, v := range value {
		out[k] = v
	}
	return out
}

// Create builds a new document from raw JSON input, attaches identity,
// signature, and hash, and inserts it into the in-memory index.
func (e *Engine) Create(ctx context.Context, s Signer, input []byte, docType string) (*Document, error) {
	var value map[string]interface{}
	if err := json.Unmarshal(input, &value); err != nil {
		return nil, fmt.Errorf("docengine: decoding input: %w", err)
	}

	if _, has := value[FieldID]; has {
		return nil, jacserr.New(jacserr.IdentityMismatch, fmt.Errorf("input document must not already carry %s", FieldID))
	}
	if _, has := value[FieldVersion]; has {
		return nil, jacserr.New(jacserr.IdentityMismatch, fmt.Errorf("input document must not already carry %s", FieldVersion))
	}

	now := time.Now().UTC().Format(time.RFC3339)
	id := uuid.NewString()
	version := uuid.NewString()

	value[FieldID] = id
	value[FieldVersion] = version
	value[FieldOriginalVersion] = version
	value[FieldVersionDate] = now
	value[FieldOriginalDate] = now
	if _, has := value[FieldLevel]; !has {
		value[FieldLevel] = DefaultLevel
	}
	if _, has := value[FieldSchemaURL]; !has {
		value[FieldSchemaURL] = fmt.Sprintf("schemas/%s/v1/%s.schema.json", docType, docType)
	}
	if docType != "" {
		value[FieldType] = docType
	}

	if err := e.validateHeader(value); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("docengine: serializing document before signing: %w", err)
	}

	sig, err := signer.SignInto(raw, value, nil, FieldSignature, s.Algorithm(), s.PrivateKey(), s.PublicKey(), s.AgentID(), s.AgentVersion(), time.Now())
	if err != nil {
		return nil, fmt.Errorf("docengine: signing new document: %w", err)
	}
	value[FieldSignature] = sigToMap(sig)

	hash, err := cryptutil.HashDocument(value, FieldSha256)
	if err != nil {
		return nil, err
	}
	value[FieldSha256] = hash

	doc, err := newDocument(value)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.index[doc.Key()] = doc
	e.mu.Unlock()
	return doc, nil
}

func (e *Engine) validateHeader(value map[string]interface{}) error {
	if e.validator == nil {
		return nil
	}
	if err := e.validator.Validate("header", value); err != nil {
		return jacserr.New(jacserr.SchemaValidation, err)
	}
	return nil
}

func sigToMap(sig signer.Signature) map[string]interface{} {
	return map[string]interface{}{
		"agentID":          sig.AgentID,
		"agentVersion":     sig.AgentVersion,
		"date":             sig.Date,
		"signature":        sig.SignatureB64,
		"signingAlgorithm": sig.SigningAlgorithm,
		"publicKeyHash":    sig.PublicKeyHash,
		"fields":           toInterfaceSlice(sig.Fields),
	}
}

func toInterfaceSlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func sigFromMap(m map[string]interface{}) signer.Signature {
	fields, _ := m["fields"].([]interface{})
	strFields := make([]string, 0, len(fields))
	for _, f := range fields {
		if s, ok := f.(string); ok {
			strFields = append(strFields, s)
		}
	}
	str := func(key string) string {
		s, _ := m[key].(string)
		return s
	}
	return signer.Signature{
		AgentID:          str("agentID"),
		AgentVersion:     str("agentVersion"),
		Date:             str("date"),
		SignatureB64:     str("signature"),
		SigningAlgorithm: str("signingAlgorithm"),
		PublicKeyHash:    str("publicKeyHash"),
		Fields:           strFields,
	}
}

// Get returns the currently indexed document for key.
func (e *Engine) Get(key string) (*Document, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.index[key]
	return d, ok
}

// Put inserts or replaces the indexed document for its own key, used by
// Load. Update maintains the index itself and does not call Put.
func (e *Engine) Put(doc *Document) {
	e.mu.Lock()
	e.index[doc.Key()] = doc
	e.mu.Unlock()
}

// Remove deletes key from the active index without touching storage.
func (e *Engine) Remove(key string) {
	e.mu.Lock()
	delete(e.index, key)
	e.mu.Unlock()
}

// VerifyHash recomputes jacsSha256 on doc and compares it to the stored
// value.
func VerifyHash(doc *Document) error {
	stored, _ := doc.Value[FieldSha256].(string)
	recomputed, err := cryptutil.HashDocument(doc.Value, FieldSha256)
	if err != nil {
		return err
	}
	if stored != recomputed {
		return jacserr.New(jacserr.HashMismatch, fmt.Errorf("stored %s, recomputed %s", stored, recomputed)).WithDocument(doc.ID).WithKey(doc.Key())
	}
	return nil
}

// Load decodes raw document bytes, validates against the header schema,
// verifies jacsSha256, and inserts the result into the index.
func (e *Engine) Load(raw []byte) (*Document, error) {
	var value map[string]interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("docengine: decoding document: %w", err)
	}
	if err := e.validateHeader(value); err != nil {
		return nil, err
	}
	doc, err := newDocument(value)
	if err != nil {
		return nil, err
	}
	if err := VerifyHash(doc); err != nil {
		return nil, err
	}
	e.Put(doc)
	return doc, nil
}

// Update mutates the document at key: replaces its body with newValue
// (carrying over jacsOriginalVersion/jacsOriginalDate when newValue lacks
// them; other fields absent from newValue are dropped), bumps the version,
// re-signs, and re-hashes. The old entry is removed from the active index;
// nothing is written to storage here, and archival of the prior saved
// version happens in Save.
func (e *Engine) Update(s Signer, key string, newValue map[string]interface{}) (*Document, error) {
	old, ok := e.Get(key)
	if !ok {
		return nil, jacserr.New(jacserr.Bootstrap, fmt.Errorf("no document loaded for key %q", key)).WithKey(key)
	}

	level, _ := old.Value[FieldLevel].(string)
	if !isEditableLevel(level) {
		return nil, jacserr.New(jacserr.ImmutableLevel, fmt.Errorf("level %q is not editable", level)).WithDocument(old.ID)
	}

	if err := e.validateHeader(newValue); err != nil {
		return nil, err
	}

	newID, _ := newValue[FieldID].(string)
	newVersion, _ := newValue[FieldVersion].(string)
	if newID != "" && newID != old.ID {
		return nil, jacserr.New(jacserr.IdentityMismatch, fmt.Errorf("jacsId changed from %q to %q", old.ID, newID)).WithDocument(old.ID)
	}
	if newVersion != "" && newVersion != old.Version {
		return nil, jacserr.New(jacserr.IdentityMismatch, fmt.Errorf("jacsVersion %q does not match loaded version %q", newVersion, old.Version)).WithDocument(old.ID)
	}

	merged := clone(newValue)
	merged[FieldID] = old.ID
	merged[FieldPreviousVersion] = old.Version
	merged[FieldVersion] = uuid.NewString()
	merged[FieldVersionDate] = time.Now().UTC().Format(time.RFC3339)
	if _, has := merged[FieldOriginalVersion]; !has {
		merged[FieldOriginalVersion] = old.Value[FieldOriginalVersion]
	}
	if _, has := merged[FieldOriginalDate]; !has {
		merged[FieldOriginalDate] = old.Value[FieldOriginalDate]
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("docengine: serializing updated document before signing: %w", err)
	}
	sig, err := signer.SignInto(raw, merged, nil, FieldSignature, s.Algorithm(), s.PrivateKey(), s.PublicKey(), s.AgentID(), s.AgentVersion(), time.Now())
	if err != nil {
		return nil, fmt.Errorf("docengine: signing updated document: %w", err)
	}
	merged[FieldSignature] = sigToMap(sig)

	hash, err := cryptutil.HashDocument(merged, FieldSha256)
	if err != nil {
		return nil, err
	}
	merged[FieldSha256] = hash

	newDoc, err := newDocument(merged)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	delete(e.index, old.Key())
	e.index[newDoc.Key()] = newDoc
	e.mu.Unlock()
	return newDoc, nil
}

// Copy produces a new version of the document at key with no content
// changes: fresh identity-version and signature over the same payload.
func (e *Engine) Copy(s Signer, key string) (*Document, error) {
	old, ok := e.Get(key)
	if !ok {
		return nil, jacserr.New(jacserr.Bootstrap, fmt.Errorf("no document loaded for key %q", key)).WithKey(key)
	}
	return e.Update(s, key, clone(old.Value))
}

// Save serializes doc (pretty-printed, two-space indent) and hands it to
// the storage collaborator under documents/{key}.json. If doc carries a
// jacsPreviousVersion, the previously saved copy of that version is moved
// into documents/archive/ first, so a save never silently strands the
// version it replaces.
func (e *Engine) Save(ctx context.Context, doc *Document) error {
	if prevVersion, _ := doc.Value[FieldPreviousVersion].(string); prevVersion != "" {
		if err := e.Archive(ctx, doc.ID+":"+prevVersion); err != nil {
			return err
		}
	}
	pretty, err := json.MarshalIndent(doc.Value, "", "  ")
	if err != nil {
		return fmt.Errorf("docengine: pretty-serializing document: %w", err)
	}
	if err := e.store.Put(ctx, "documents/"+doc.Key()+".json", pretty); err != nil {
		return jacserr.New(jacserr.StorageFailure, err).WithDocument(doc.ID).WithKey(doc.Key())
	}
	return nil
}

// Archive moves a previously saved document version out of the active
// documents/ path and into documents/archive/, preserving it without
// keeping it discoverable as the current version. A no-op when the key was
// never saved (created with noSave, or never persisted in the first
// place).
func (e *Engine) Archive(ctx context.Context, key string) error {
	from := "documents/" + key + ".json"
	ok, err := e.store.Exists(ctx, from)
	if err != nil {
		return jacserr.New(jacserr.StorageFailure, err).WithKey(key)
	}
	if !ok {
		return nil
	}
	if err := e.store.Rename(ctx, from, "documents/archive/"+key+".json"); err != nil {
		return jacserr.New(jacserr.StorageFailure, err).WithKey(key)
	}
	return nil
}

// ListVersions returns the version ids saved under jacsId, active or
// archived, for callers that need version history rather than just the
// document currently held in the index.
func (e *Engine) ListVersions(ctx context.Context, jacsId string) ([]string, error) {
	var versions []string
	for _, dir := range []string{"documents/", "documents/archive/"} {
		p := dir + jacsId + ":"
		paths, err := e.store.List(ctx, p)
		if err != nil {
			return nil, jacserr.New(jacserr.StorageFailure, err).WithDocument(jacsId)
		}
		for _, path := range paths {
			name := strings.TrimPrefix(path, p)
			name = strings.TrimSuffix(name, ".json")
			if name != "" {
				versions = append(versions, name)
			}
		}
	}
	return versions, nil
}

// VerifyDocument runs the verification procedure at signatureField (default
// jacsSignature) against publicKey. Attachment hashes under jacsFiles are
// not re-checked.
func VerifyDocument(doc *Document, signatureField string, publicKey []byte, algo keystore.Algorithm, expectedPublicKeyHash string) signer.VerifyResult {
	if signatureField == "" {
		signatureField = FieldSignature
	}
	sigValue, ok := doc.Value[signatureField]
	if !ok {
		return signer.VerifyResult{Status: signer.StatusInvalid, Err: fmt.Errorf("docengine: document has no %s field", signatureField)}
	}
	sigMap, ok := sigValue.(map[string]interface{})
	if !ok {
		return signer.VerifyResult{Status: signer.StatusInvalid, Err: fmt.Errorf("docengine: %s is not an object", signatureField)}
	}
	sig := sigFromMap(sigMap)
	return signer.Verify(doc.Raw, doc.Value, signatureField, sig, publicKey, algo, expectedPublicKeyHash)
}
