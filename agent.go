package jacs

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jacs-project/jacs-go/internal/agreement"
	"github.com/jacs-project/jacs-go/internal/cryptutil"
	"github.com/jacs-project/jacs-go/internal/dnsfp"
	"github.com/jacs-project/jacs-go/internal/docengine"
	"github.com/jacs-project/jacs-go/internal/jacserr"
	"github.com/jacs-project/jacs-go/internal/jacslog"
	"github.com/jacs-project/jacs-go/internal/keystore"
	"github.com/jacs-project/jacs-go/internal/payload"
	"github.com/jacs-project/jacs-go/internal/schema"
	"github.com/jacs-project/jacs-go/internal/signer"
	"github.com/jacs-project/jacs-go/internal/storage"
)

// Config mirrors the on-disk jacs.config.json surface. Load also accepts a
// YAML rendering of the same fields (.yaml/.yml extension) for deployments
// that manage agent config alongside other YAML-based infrastructure config.
type Config struct {
	UseSecurity         *string `json:"jacs_use_security,omitempty" yaml:"jacs_use_security,omitempty"`
	DataDirectory       *string `json:"jacs_data_directory,omitempty" yaml:"jacs_data_directory,omitempty"`
	KeyDirectory        *string `json:"jacs_key_directory,omitempty" yaml:"jacs_key_directory,omitempty"`
	AgentPrivateKeyFile *string `json:"jacs_agent_private_key_filename,omitempty" yaml:"jacs_agent_private_key_filename,omitempty"`
	AgentPublicKeyFile  *string `json:"jacs_agent_public_key_filename,omitempty" yaml:"jacs_agent_public_key_filename,omitempty"`
	AgentKeyAlgorithm   *string `json:"jacs_agent_key_algorithm,omitempty" yaml:"jacs_agent_key_algorithm,omitempty"`
	PrivateKeyPassword  *string `json:"jacs_private_key_password,omitempty" yaml:"jacs_private_key_password,omitempty"`
	AgentIDAndVersion   *string `json:"jacs_agent_id_and_version,omitempty" yaml:"jacs_agent_id_and_version,omitempty"`
	DefaultStorage      *string `json:"jacs_default_storage,omitempty" yaml:"jacs_default_storage,omitempty"`
	Domain              *string `json:"jacs_agent_domain,omitempty" yaml:"jacs_agent_domain,omitempty"`
	StrictDNS           *string `json:"jacs_strict_dns,omitempty" yaml:"jacs_strict_dns,omitempty"`
}

// decodeConfig parses config bytes as YAML when path carries a .yaml/.yml
// extension, JSON otherwise. jacs.config.json stays the default format for
// compatibility with CreateConfig's output.
func decodeConfig(path string, data []byte) (Config, error) {
	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func stringOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

// canonicalAlgorithm maps legacy/alias algorithm labels onto the names the
// key store understands. "pq2025" is the name the CLI tooling around this
// library has used for the post-quantum default; "pq-dilithium" is
// deprecated in favor of it but still accepted.
func canonicalAlgorithm(name string) string {
	if name == "pq2025" {
		return string(keystore.PqDilithium)
	}
	return name
}

// trustedKey is one entry in an agent's public-key trust store, keyed by
// publicKeyHash so agreement and external-document verification can resolve
// a signer's key without re-fetching it.
type trustedKey struct {
	publicKey []byte
	algo      keystore.Algorithm
	trustedAt string
}

// JacsAgent is one agent identity: its key material, its document/agreement
// engines, and the storage and schema collaborators they run against.
// Multiple JacsAgent instances can be used concurrently with independent
// state.
type JacsAgent struct {
	mu sync.Mutex

	id      string
	version string
	algo    keystore.Algorithm
	kp      *keystore.KeyPair

	dataDir   string
	keyDir    string
	privFile  string
	domain    string
	strictDNS bool

	engine    *docengine.Engine
	validator *schema.Validator
	store     storage.Store
	resolver  dnsfp.Resolver

	selfKey string // engine key of this agent's own identity document

	trust map[string]trustedKey
}

// NewJacsAgent constructs an empty agent. Call Load to populate it from a
// configuration file.
func NewJacsAgent() (*JacsAgent, error) {
	return &JacsAgent{trust: make(map[string]trustedKey)}, nil
}

// Close zeroes the agent's private key material. After Close the agent must
// not be used.
func (a *JacsAgent) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.kp != nil {
		a.kp.Private.Zero()
	}
}

// AgentID, AgentVersion, Algorithm, PrivateKey, and PublicKey implement
// docengine.Signer.
func (a *JacsAgent) AgentID() string              { return a.id }
func (a *JacsAgent) AgentVersion() string          { return a.version }
func (a *JacsAgent) Algorithm() keystore.Algorithm { return a.algo }
func (a *JacsAgent) PrivateKey() *keystore.SecretKey {
	if a.kp == nil {
		return nil
	}
	return a.kp.Private
}
func (a *JacsAgent) PublicKey() []byte {
	if a.kp == nil {
		return nil
	}
	return a.kp.Public
}

func (a *JacsAgent) resolvePublicKeyLocked(hash string) ([]byte, keystore.Algorithm, bool) {
	if a.kp != nil && cryptutil.Sha256Hex(a.kp.Public) == hash {
		return a.kp.Public, a.algo, true
	}
	if tk, ok := a.trust[hash]; ok {
		return tk.publicKey, tk.algo, true
	}
	return nil, "", false
}

// ResolvePublicKey implements agreement.KeyResolver by consulting the trust
// store, falling back to the agent's own key when the hash matches.
func (a *JacsAgent) ResolvePublicKey(publicKeyHash string) ([]byte, keystore.Algorithm, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resolvePublicKeyLocked(publicKeyHash)
}

// Trust registers a remote agent's public key so its signatures can be
// resolved during agreement checks and external document verification.
func (a *JacsAgent) Trust(publicKey []byte, algo keystore.Algorithm) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trust[cryptutil.Sha256Hex(publicKey)] = trustedKey{
		publicKey: publicKey,
		algo:      algo,
		trustedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// ListTrusted returns every agent key this agent currently trusts.
func (a *JacsAgent) ListTrusted() []TrustedAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]TrustedAgent, 0, len(a.trust))
	for hash, tk := range a.trust {
		out = append(out, TrustedAgent{
			PublicKeyPEM:  string(tk.publicKey),
			PublicKeyHash: hash,
			TrustedAt:     tk.trustedAt,
		})
	}
	return out
}

// Load initializes this agent from a configuration file: it reads key
// material, opens storage, and loads the agent's own identity document if
// one is on record.
func (a *JacsAgent) Load(configPath string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return NewSimpleErrorWithPath("load", configPath, err)
	}
	cfg, err := decodeConfig(configPath, data)
	if err != nil {
		return NewSimpleError("load", fmt.Errorf("%w: %v", ErrConfigInvalid, err))
	}

	a.dataDir = stringOr(cfg.DataDirectory, "./jacs_data")
	a.keyDir = stringOr(cfg.KeyDirectory, "./jacs_keys")
	if cfg.Domain != nil {
		a.domain = *cfg.Domain
	}
	a.strictDNS = stringOr(cfg.StrictDNS, "false") == "true"
	a.resolver = dnsfp.NewDNSResolver("")

	algo, err := keystore.ParseAlgorithm(canonicalAlgorithm(stringOr(cfg.AgentKeyAlgorithm, string(keystore.RingEd25519))))
	if err != nil {
		return NewSimpleError("load", err)
	}
	a.algo = algo

	privFile := stringOr(cfg.AgentPrivateKeyFile, "jacs.private.pem.enc")
	pubFile := stringOr(cfg.AgentPublicKeyFile, "jacs.public.pem")
	a.privFile = privFile

	password := stringOr(cfg.PrivateKeyPassword, os.Getenv("JACS_AGENT_PRIVATE_KEY_PASSWORD"))
	if password == "" {
		return NewSimpleError("load", fmt.Errorf("private key password not set: provide jacs_private_key_password or JACS_AGENT_PRIVATE_KEY_PASSWORD"))
	}

	privPath := filepath.Join(a.keyDir, privFile)
	encPriv, err := os.ReadFile(privPath)
	if err != nil {
		return NewSimpleErrorWithPath("load", privPath, ErrKeyNotFound)
	}
	privBytes, err := cryptutil.DecryptPrivateKey(encPriv, password)
	if err != nil {
		return NewSimpleError("load", fmt.Errorf("%w: %w", ErrWrongPasswordOrCorrupted, err))
	}

	pubPath := filepath.Join(a.keyDir, pubFile)
	pubBytes, err := os.ReadFile(pubPath)
	if err != nil {
		return NewSimpleErrorWithPath("load", pubPath, ErrKeyNotFound)
	}

	a.kp = &keystore.KeyPair{Algorithm: algo, Public: pubBytes, Private: keystore.NewSecretKey(privBytes)}

	validator, err := schema.New()
	if err != nil {
		return NewSimpleError("load", err)
	}
	a.validator = validator
	store, err := storage.NewFS(a.dataDir)
	if err != nil {
		return NewSimpleError("load", err)
	}
	a.store = store
	a.engine = docengine.New(a.store, a.validator)

	if cfg.AgentIDAndVersion != nil && *cfg.AgentIDAndVersion != "" {
		a.id, a.version = splitIDVersion(*cfg.AgentIDAndVersion)
		if raw, err := a.store.Get(context.Background(), "agent/"+*cfg.AgentIDAndVersion+".json"); err == nil {
			if doc, err := a.engine.Load(raw); err == nil {
				a.selfKey = doc.Key()
			}
		}
	}
	jacslog.Logger.Info("agent loaded", "agentID", a.id, "agentVersion", a.version, "algorithm", string(a.algo))
	return nil
}

func splitIDVersion(idAndVersion string) (id, version string) {
	for i := len(idAndVersion) - 1; i >= 0; i-- {
		if idAndVersion[i] == ':' {
			return idAndVersion[:i], idAndVersion[i+1:]
		}
	}
	return idAndVersion, ""
}

// SignString signs data with this agent's key, returning a base64-encoded
// detached signature. It does not build or sign a JACS document.
func (a *JacsAgent) SignString(data string) (string, error) {
	if a.kp == nil {
		return "", ErrAgentNotLoaded
	}
	return keystore.SignString(a.algo, a.kp.Private, []byte(data))
}

// VerifyString checks a detached signature produced by SignString.
func (a *JacsAgent) VerifyString(data, signatureBase64 string, publicKey []byte, publicKeyEncType string) error {
	algo := a.algo
	if publicKeyEncType != "" {
		parsed, err := keystore.ParseAlgorithm(canonicalAlgorithm(publicKeyEncType))
		if err == nil {
			algo = parsed
		}
	}
	return keystore.VerifyString(algo, publicKey, []byte(data), signatureBase64)
}

// SignRequest wraps payloadValue in a one-shot signed envelope.
func (a *JacsAgent) SignRequest(payloadValue interface{}) (string, error) {
	if a.engine == nil {
		return "", ErrAgentNotLoaded
	}
	doc, err := payload.Send(context.Background(), a.engine, a, payloadValue)
	if err != nil {
		return "", NewSimpleError("sign_request", err)
	}
	out, err := json.Marshal(doc.Value)
	if err != nil {
		return "", NewSimpleError("sign_request", err)
	}
	return string(out), nil
}

// VerifyResponse verifies a one-shot signed envelope and returns its
// payload, enforcing the default replay window.
func (a *JacsAgent) VerifyResponse(documentString string) (map[string]interface{}, error) {
	if a.engine == nil {
		return nil, ErrAgentNotLoaded
	}
	doc, err := a.engine.Load([]byte(documentString))
	if err != nil {
		return nil, NewSimpleError("verify_response", err)
	}
	sigMap, _ := doc.Value[docengine.FieldSignature].(map[string]interface{})
	hash, _ := sigMap["publicKeyHash"].(string)
	pub, algo, ok := a.ResolvePublicKey(hash)
	if !ok {
		return nil, NewSimpleError("verify_response", fmt.Errorf("no public key resolvable for signer (hash %s)", hash))
	}
	out, err := payload.Verify(doc, pub, algo, hash, time.Now(), 0)
	if err != nil {
		return nil, NewSimpleError("verify_response", err)
	}
	if m, ok := out.(map[string]interface{}); ok {
		return m, nil
	}
	return map[string]interface{}{"value": out}, nil
}

func (a *JacsAgent) loadOrGet(documentString string) (*docengine.Document, error) {
	var peek struct {
		ID      string `json:"jacsId"`
		Version string `json:"jacsVersion"`
	}
	if err := json.Unmarshal([]byte(documentString), &peek); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if peek.ID != "" && peek.Version != "" {
		if doc, ok := a.engine.Get(peek.ID + ":" + peek.Version); ok {
			return doc, nil
		}
	}
	return a.engine.Load([]byte(documentString))
}

// CreateAgreement installs a fresh agreement block on the given document,
// naming agentIDs as the requested signers.
func (a *JacsAgent) CreateAgreement(documentString string, agentIDs []string, question, context_ *string, agreementFieldname *string) (string, error) {
	if a.engine == nil {
		return "", ErrAgentNotLoaded
	}
	doc, err := a.loadOrGet(documentString)
	if err != nil {
		return "", NewSimpleError("create_agreement", err)
	}
	field, q, c := "", "", ""
	if agreementFieldname != nil {
		field = *agreementFieldname
	}
	if question != nil {
		q = *question
	}
	if context_ != nil {
		c = *context_
	}
	updated, err := agreement.Create(a.engine, a, doc.Key(), agentIDs, q, c, field)
	if err != nil {
		return "", NewSimpleError("create_agreement", err)
	}
	jacslog.Logger.Info("agreement created", "document", doc.Key(), "parties", agentIDs)
	out, err := json.Marshal(updated.Value)
	if err != nil {
		return "", NewSimpleError("create_agreement", err)
	}
	return string(out), nil
}

// SignAgreement appends this agent's signature to a document's agreement
// block.
func (a *JacsAgent) SignAgreement(documentString string, agreementFieldname *string) (string, error) {
	if a.engine == nil {
		return "", ErrAgentNotLoaded
	}
	doc, err := a.loadOrGet(documentString)
	if err != nil {
		return "", NewSimpleError("sign_agreement", err)
	}
	field := ""
	if agreementFieldname != nil {
		field = *agreementFieldname
	}
	updated, err := agreement.Sign(a.engine, a, doc.Key(), field)
	if err != nil {
		return "", NewSimpleError("sign_agreement", err)
	}
	jacslog.Logger.Info("agreement signed", "document", doc.Key(), "agentID", a.id)
	out, err := json.Marshal(updated.Value)
	if err != nil {
		return "", NewSimpleError("sign_agreement", err)
	}
	return string(out), nil
}

// CheckAgreement verifies that every declared participant in a document's
// agreement block has signed, and that every signature is valid.
func (a *JacsAgent) CheckAgreement(documentString string, agreementFieldname *string) (string, error) {
	if a.engine == nil {
		return "", ErrAgentNotLoaded
	}
	doc, err := a.loadOrGet(documentString)
	if err != nil {
		return "", NewSimpleError("check_agreement", err)
	}
	field := ""
	if agreementFieldname != nil {
		field = *agreementFieldname
	}
	if err := agreement.Check(doc, field, a); err != nil {
		return "", NewSimpleError("check_agreement", err)
	}
	out, err := json.Marshal(doc.Value)
	if err != nil {
		return "", NewSimpleError("check_agreement", err)
	}
	return string(out), nil
}

// VerifyAgent verifies an agent identity document's hash and self-signature:
// the loaded agent's own identity document if agentFile is nil, or the
// document read from agentFile otherwise.
func (a *JacsAgent) VerifyAgent(agentFile *string) error {
	if a.engine == nil {
		return ErrAgentNotLoaded
	}

	var doc *docengine.Document
	foreign := agentFile != nil && *agentFile != ""
	if foreign {
		raw, err := os.ReadFile(*agentFile)
		if err != nil {
			return NewSimpleErrorWithPath("verify_agent", *agentFile, ErrFileNotFound)
		}
		loaded, err := a.engine.Load(raw)
		if err != nil {
			return NewSimpleError("verify_agent", err)
		}
		doc = loaded
	} else {
		if a.selfKey == "" {
			return ErrAgentNotLoaded
		}
		d, ok := a.engine.Get(a.selfKey)
		if !ok {
			return NewSimpleError("verify_agent", fmt.Errorf("agent identity document not indexed"))
		}
		doc = d
	}

	sigMap, _ := doc.Value[docengine.FieldSignature].(map[string]interface{})
	hash, _ := sigMap["publicKeyHash"].(string)
	pub, algo, ok := a.ResolvePublicKey(hash)
	if !ok {
		return NewSimpleError("verify_agent", fmt.Errorf("no public key resolvable for signer (hash %s)", hash))
	}
	if err := docengine.VerifyHash(doc); err != nil {
		return NewSimpleError("verify_agent", err)
	}
	result := docengine.VerifyDocument(doc, docengine.FieldSignature, pub, algo, hash)
	if result.Status != signer.StatusValid {
		return NewSimpleError("verify_agent", result.Err)
	}

	// Loading a foreign agent document additionally binds its public key to
	// a DNS TXT fingerprint record (or the document's own embedded
	// fingerprint when no DNS lookup succeeds), per the agent lifecycle's
	// fingerprint-verification step.
	if foreign {
		domain := a.domain
		if docDomain, ok := doc.Value["jacsAgentDomain"].(string); ok && docDomain != "" {
			domain = docDomain
		}
		agentID, _ := doc.Value[docengine.FieldID].(string)
		sum := sha256.Sum256(pub)
		if err := dnsfp.VerifyPublicKey(context.Background(), a.resolver, pub, agentID, domain, hash, a.strictDNS, sum, hash); err != nil {
			return NewSimpleError("verify_agent", jacserr.New(jacserr.FingerprintMismatch, err).WithDocument(agentID))
		}
	}
	return nil
}

// CreateDocument signs documentString as a new document. attachments, when
// non-nil, names a single file to describe under jacsFiles; embed controls
// whether its content is gzip-compressed and base64-embedded or only
// referenced by hash.
func (a *JacsAgent) CreateDocument(documentString string, customSchema, outputFilename *string, noSave bool, attachments *string, embed *bool) (string, error) {
	if a.engine == nil {
		return "", ErrAgentNotLoaded
	}

	var value map[string]interface{}
	if err := json.Unmarshal([]byte(documentString), &value); err != nil {
		return "", NewSimpleError("create_document", fmt.Errorf("%w: %v", ErrInvalidDocument, err))
	}

	if attachments != nil && *attachments != "" {
		content, err := os.ReadFile(*attachments)
		if err != nil {
			return "", NewSimpleErrorWithPath("create_document", *attachments, ErrFileNotFound)
		}
		sum := sha256.Sum256(content)
		embedded := embed != nil && *embed
		entry := map[string]interface{}{
			"filename": filepath.Base(*attachments),
			"mimeType": "application/octet-stream",
			"hash":     hex.EncodeToString(sum[:]),
			"embedded": embedded,
		}
		if embedded {
			var gz bytes.Buffer
			zw := gzip.NewWriter(&gz)
			if _, err := zw.Write(content); err != nil {
				return "", NewSimpleError("create_document", err)
			}
			if err := zw.Close(); err != nil {
				return "", NewSimpleError("create_document", err)
			}
			entry["content"] = base64.StdEncoding.EncodeToString(gz.Bytes())
		}
		value["jacsFiles"] = []interface{}{entry}
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return "", NewSimpleError("create_document", err)
	}

	docType, _ := value[docengine.FieldType].(string)
	doc, err := a.engine.Create(context.Background(), a, raw, docType)
	if err != nil {
		return "", NewSimpleError("create_document", err)
	}

	if customSchema != nil && *customSchema != "" && a.validator != nil {
		if err := a.validator.Validate(*customSchema, doc.Value); err != nil {
			return "", NewSimpleError("create_document", jacserr.New(jacserr.SchemaValidation, err))
		}
	}

	if !noSave && a.store != nil {
		if err := a.engine.Save(context.Background(), doc); err != nil {
			return "", NewSimpleError("create_document", err)
		}
		if outputFilename != nil && *outputFilename != "" {
			if err := a.store.Put(context.Background(), *outputFilename, doc.Raw); err != nil {
				return "", NewSimpleError("create_document", err)
			}
		}
	}

	out, err := json.Marshal(doc.Value)
	if err != nil {
		return "", NewSimpleError("create_document", err)
	}
	return string(out), nil
}

// VerifyDocument parses documentString, loads it into the engine, and
// verifies its hash and signature against a resolvable public key.
func (a *JacsAgent) VerifyDocument(documentString string) error {
	if a.engine == nil {
		return ErrAgentNotLoaded
	}
	doc, err := a.engine.Load([]byte(documentString))
	if err != nil {
		return NewSimpleError("verify_document", err)
	}
	return a.verifyLoaded(doc)
}

// VerifyDocumentById verifies a previously created or loaded document by its
// "id:version" key, reading it from storage if it is not already indexed.
func (a *JacsAgent) VerifyDocumentById(documentID string) error {
	if a.engine == nil {
		return ErrAgentNotLoaded
	}
	doc, ok := a.engine.Get(documentID)
	if !ok {
		if a.store == nil {
			return NewSimpleError("verify_document_by_id", fmt.Errorf("document %q not found", documentID))
		}
		raw, err := a.store.Get(context.Background(), "documents/"+documentID+".json")
		if err != nil {
			return NewSimpleErrorWithPath("verify_document_by_id", documentID, err)
		}
		loaded, err := a.engine.Load(raw)
		if err != nil {
			return NewSimpleError("verify_document_by_id", err)
		}
		doc = loaded
	}
	return a.verifyLoaded(doc)
}

// ListVersions returns the version ids saved under jacsId, both the active
// version and any prior versions that Save moved into the archive.
func (a *JacsAgent) ListVersions(jacsId string) ([]string, error) {
	if a.engine == nil {
		return nil, ErrAgentNotLoaded
	}
	versions, err := a.engine.ListVersions(context.Background(), jacsId)
	if err != nil {
		return nil, NewSimpleError("list_versions", err)
	}
	return versions, nil
}

func (a *JacsAgent) verifyLoaded(doc *docengine.Document) error {
	sigMap, _ := doc.Value[docengine.FieldSignature].(map[string]interface{})
	hash, _ := sigMap["publicKeyHash"].(string)
	pub, algo, ok := a.ResolvePublicKey(hash)
	if !ok {
		return NewSimpleError("verify_document", fmt.Errorf("no public key resolvable for signer (hash %s)", hash))
	}
	result := docengine.VerifyDocument(doc, docengine.FieldSignature, pub, algo, hash)
	if result.Status != signer.StatusValid {
		jacslog.Logger.Warn("document verification failed", "status", string(result.Status), "publicKeyHash", hash)
		return NewSimpleError("verify_document", result.Err)
	}
	return nil
}

// ReencryptKey re-encrypts the agent's private key under a new password,
// verifying the old password against the on-disk envelope first.
func (a *JacsAgent) ReencryptKey(oldPassword, newPassword string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.kp == nil {
		return ErrAgentNotLoaded
	}
	keyPath := filepath.Join(a.keyDir, a.privFile)
	encrypted, err := os.ReadFile(keyPath)
	if err != nil {
		return NewSimpleErrorWithPath("reencrypt_key", keyPath, ErrKeyNotFound)
	}
	if _, err := cryptutil.DecryptPrivateKey(encrypted, oldPassword); err != nil {
		return NewSimpleError("reencrypt_key", fmt.Errorf("%w: %w", ErrWrongPasswordOrCorrupted, err))
	}
	reencrypted, err := cryptutil.EncryptPrivateKey(a.kp.Private.Bytes(), newPassword)
	if err != nil {
		return NewSimpleError("reencrypt_key", err)
	}
	if err := os.WriteFile(keyPath, reencrypted, 0o600); err != nil {
		return NewSimpleErrorWithPath("reencrypt_key", keyPath, err)
	}
	return nil
}

// GetJSON returns this agent's own identity document as a JSON string.
func (a *JacsAgent) GetJSON() (string, error) {
	if a.engine == nil || a.selfKey == "" {
		return "", ErrAgentNotLoaded
	}
	doc, ok := a.engine.Get(a.selfKey)
	if !ok {
		return "", NewSimpleError("get_json", fmt.Errorf("agent identity document not indexed"))
	}
	out, err := json.Marshal(doc.Value)
	if err != nil {
		return "", NewSimpleError("get_json", err)
	}
	return string(out), nil
}

// CreateConfig provisions a new agent: generates a key pair, encrypts and
// writes the private key, writes the public key, builds and signs a
// self-referential agent identity document, and writes jacs.config.json in
// the current directory. It returns the written config as a JSON string.
//
// The private key password is never persisted to the config file; callers
// must supply it again via Config.PrivateKeyPassword or
// JACS_AGENT_PRIVATE_KEY_PASSWORD when loading.
func CreateConfig(config Config) (string, error) {
	dataDir := stringOr(config.DataDirectory, "./jacs_data")
	keyDir := stringOr(config.KeyDirectory, "./jacs_keys")
	privFile := stringOr(config.AgentPrivateKeyFile, "jacs.private.pem.enc")
	pubFile := stringOr(config.AgentPublicKeyFile, "jacs.public.pem")
	defaultStorage := stringOr(config.DefaultStorage, "fs")

	algo, err := keystore.ParseAlgorithm(canonicalAlgorithm(stringOr(config.AgentKeyAlgorithm, string(keystore.RingEd25519))))
	if err != nil {
		return "", NewSimpleError("create_config", err)
	}

	password := stringOr(config.PrivateKeyPassword, os.Getenv("JACS_AGENT_PRIVATE_KEY_PASSWORD"))
	if password == "" {
		return "", NewSimpleError("create_config", fmt.Errorf("password is required: set Config.PrivateKeyPassword or JACS_AGENT_PRIVATE_KEY_PASSWORD"))
	}

	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return "", NewSimpleError("create_config", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", NewSimpleError("create_config", err)
	}

	kp, err := keystore.Generate(algo)
	if err != nil {
		return "", NewSimpleError("create_config", err)
	}

	encrypted, err := cryptutil.EncryptPrivateKey(kp.Private.Bytes(), password)
	if err != nil {
		return "", NewSimpleError("create_config", err)
	}
	if err := os.WriteFile(filepath.Join(keyDir, privFile), encrypted, 0o600); err != nil {
		return "", NewSimpleError("create_config", err)
	}
	if err := os.WriteFile(filepath.Join(keyDir, pubFile), kp.Public, 0o644); err != nil {
		return "", NewSimpleError("create_config", err)
	}

	id := uuid.NewString()
	version := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)
	value := map[string]interface{}{
		docengine.FieldID:              id,
		docengine.FieldVersion:         version,
		docengine.FieldOriginalVersion: version,
		docengine.FieldVersionDate:     now,
		docengine.FieldOriginalDate:    now,
		docengine.FieldType:            "agent",
		docengine.FieldLevel:           "config",
		docengine.FieldSchemaURL:       "schemas/agent/v1/agent.schema.json",
		"name":                        id,
	}
	if config.Domain != nil && *config.Domain != "" {
		value["jacsAgentDomain"] = *config.Domain
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return "", NewSimpleError("create_config", err)
	}
	sig, err := signer.SignInto(raw, value, nil, docengine.FieldSignature, algo, kp.Private, kp.Public, id, version, time.Now())
	if err != nil {
		return "", NewSimpleError("create_config", err)
	}
	value[docengine.FieldSignature] = map[string]interface{}{
		"agentID":          sig.AgentID,
		"agentVersion":     sig.AgentVersion,
		"date":             sig.Date,
		"signature":        sig.SignatureB64,
		"signingAlgorithm": sig.SigningAlgorithm,
		"publicKeyHash":    sig.PublicKeyHash,
		"fields":           sig.Fields,
	}

	hash, err := cryptutil.HashDocument(value, docengine.FieldSha256)
	if err != nil {
		return "", NewSimpleError("create_config", err)
	}
	value[docengine.FieldSha256] = hash

	finalRaw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", NewSimpleError("create_config", err)
	}
	store, err := storage.NewFS(dataDir)
	if err != nil {
		return "", NewSimpleError("create_config", err)
	}
	if err := store.Put(context.Background(), "agent/"+id+":"+version+".json", finalRaw); err != nil {
		return "", NewSimpleError("create_config", err)
	}

	idAndVersion := id + ":" + version
	algoName := string(algo)
	cfg := Config{
		DataDirectory:       &dataDir,
		KeyDirectory:        &keyDir,
		AgentPrivateKeyFile: &privFile,
		AgentPublicKeyFile:  &pubFile,
		AgentKeyAlgorithm:   &algoName,
		AgentIDAndVersion:   &idAndVersion,
		DefaultStorage:      &defaultStorage,
	}
	if config.Domain != nil {
		cfg.Domain = config.Domain
	}

	cfgJSON, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", NewSimpleError("create_config", err)
	}
	if err := os.WriteFile("./jacs.config.json", cfgJSON, 0o644); err != nil {
		return "", NewSimpleError("create_config", err)
	}

	jacslog.Logger.Info("agent config created", "agentID", id, "agentVersion", version, "algorithm", algoName)
	return string(cfgJSON), nil
}
