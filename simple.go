package jacs

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
)

// globalAgent backs the single-agent convenience API below: Load/Create
// install it, every other function in this file operates on it under
// globalMutex. Programs that need more than one identity at a time should
// construct JacsAgent values directly instead.
var (
	globalAgent *JacsAgent
	globalMutex sync.Mutex
	agentInfo   *AgentInfo
)

// CreateAgentOptions contains options for programmatic agent creation.
type CreateAgentOptions struct {
	// Password for encrypting the private key. Required unless JACS_AGENT_PRIVATE_KEY_PASSWORD is set.
	Password string
	// Algorithm is the signing algorithm: "pq2025" (default), "ring-Ed25519", or "RSA-PSS".
	// "pq-dilithium" is deprecated.
	Algorithm string
	// DataDirectory is the directory for agent data (default: "./jacs_data").
	DataDirectory string
	// KeyDirectory is the directory for cryptographic keys (default: "./jacs_keys").
	KeyDirectory string
	// ConfigPath is the config file Create loads after provisioning (default: "./jacs.config.json").
	// The config itself is always written to "./jacs.config.json".
	ConfigPath string
	// AgentType is the agent type: "ai" (default), "human", or "hybrid".
	AgentType string
	// Description of the agent's purpose.
	Description string
	// Domain for DNS-based agent discovery.
	Domain string
	// DefaultStorage is the storage backend: "fs" (default).
	DefaultStorage string
}

// Create provisions a new agent identity: writes a config file, generates a
// key pair under opts.KeyDirectory, and installs the result as the global
// agent. opts may be nil to take every default; the private key password
// must come from opts.Password or JACS_AGENT_PRIVATE_KEY_PASSWORD, whichever
// is set. name is stored only in the returned AgentInfo, not the identity
// document itself.
func Create(name string, opts *CreateAgentOptions) (*AgentInfo, error) {
	if opts == nil {
		opts = &CreateAgentOptions{}
	}

	algorithm := opts.Algorithm
	if algorithm == "" {
		algorithm = "pq2025"
	}

	password := opts.Password
	if password == "" {
		password = os.Getenv("JACS_AGENT_PRIVATE_KEY_PASSWORD")
	}
	if password == "" {
		return nil, NewSimpleError("create", errors.New(
			"password is required: provide it in CreateAgentOptions.Password or set JACS_AGENT_PRIVATE_KEY_PASSWORD env var",
		))
	}

	dataDir := opts.DataDirectory
	if dataDir == "" {
		dataDir = "./jacs_data"
	}
	keyDir := opts.KeyDirectory
	if keyDir == "" {
		keyDir = "./jacs_keys"
	}
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = "./jacs.config.json"
	}
	defaultStorage := opts.DefaultStorage
	if defaultStorage == "" {
		defaultStorage = "fs"
	}

	_, err := CreateConfig(Config{
		DataDirectory:      &dataDir,
		KeyDirectory:       &keyDir,
		AgentKeyAlgorithm:  &algorithm,
		PrivateKeyPassword: &password,
		DefaultStorage:     &defaultStorage,
	})
	if err != nil {
		return nil, NewSimpleError("create", err)
	}

	// Load the created agent
	if err := Load(&configPath); err != nil {
		return nil, NewSimpleError("create", err)
	}

	// Read the config file to extract the agent ID
	agentID := ""
	if cfgData, err := os.ReadFile(configPath); err == nil {
		var cfg map[string]interface{}
		if err := json.Unmarshal(cfgData, &cfg); err == nil {
			if idStr, ok := cfg["jacs_agent_id_and_version"].(string); ok {
				agentID, _ = splitIDVersion(idStr)
			}
		}
	}

	info := &AgentInfo{
		AgentID:       agentID,
		Name:          name,
		PublicKeyPath: keyDir + "/jacs.public.pem",
		ConfigPath:    configPath,
	}

	agentInfo = info
	return info, nil
}

// Load reads configPath (defaulting to "./jacs.config.json" when nil),
// decrypts the agent's private key, and installs the result as the global
// agent, replacing and closing whatever was loaded before it.
func Load(configPath *string) error {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	path := "./jacs.config.json"
	if configPath != nil {
		path = *configPath
	}

	// Check if config exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewSimpleErrorWithPath("load", path, ErrConfigNotFound)
	}

	// Create new agent instance
	agent, err := NewJacsAgent()
	if err != nil {
		return NewSimpleError("load", err)
	}

	// Load config
	if err := agent.Load(path); err != nil {
		agent.Close()
		return NewSimpleError("load", err)
	}

	// Close old agent if exists
	if globalAgent != nil {
		globalAgent.Close()
	}

	globalAgent = agent
	agentInfo = &AgentInfo{
		ConfigPath: path,
	}

	return nil
}

// VerifySelf re-checks the global agent's own identity document: its
// content hash and self-signature must still agree with its stored key
// material. A foreign document loaded through VerifyAgent would additionally
// bind to a DNS fingerprint; the agent's own identity is exempt from that
// step.
func VerifySelf() (*VerificationResult, error) {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalAgent == nil {
		return nil, ErrAgentNotLoaded
	}

	if err := globalAgent.VerifyAgent(nil); err != nil {
		return &VerificationResult{
			Valid:  false,
			Errors: []string{err.Error()},
		}, nil
	}

	return &VerificationResult{
		Valid:    true,
		SignerID: agentInfo.AgentID,
	}, nil
}

// SignMessage wraps data in a jacsType "message" document and signs it with
// the global agent. A string or []byte holding JSON is used as-is, and other
// text is stored as a JSON string; anything else is JSON-marshaled first.
// The returned document is never persisted (created with noSave).
func SignMessage(data interface{}) (*SignedDocument, error) {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalAgent == nil {
		return nil, ErrAgentNotLoaded
	}

	// Convert data to JSON if needed
	var jsonData string
	switch v := data.(type) {
	case string:
		jsonData = v
	case []byte:
		jsonData = string(v)
	default:
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return nil, NewSimpleError("sign_message", err)
		}
		jsonData = string(jsonBytes)
	}
	if !json.Valid([]byte(jsonData)) {
		quoted, _ := json.Marshal(jsonData)
		jsonData = string(quoted)
	}

	// Create document structure
	docStruct := map[string]interface{}{
		"jacsType":  "message",
		"jacsLevel": "raw",
		"content":   json.RawMessage(jsonData),
	}

	docJSON, err := json.Marshal(docStruct)
	if err != nil {
		return nil, NewSimpleError("sign_message", err)
	}

	// Sign using agent
	noSave := true
	result, err := globalAgent.CreateDocument(string(docJSON), nil, nil, noSave, nil, nil)
	if err != nil {
		return nil, NewSimpleError("sign_message", err)
	}

	// Parse result to extract fields
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(result), &doc); err != nil {
		return nil, NewSimpleError("sign_message", err)
	}

	signed := &SignedDocument{
		Raw:        result,
		DocumentID: getStringField(doc, "jacsId"),
		Timestamp:  getNestedStringField(doc, "jacsSignature", "date"),
		AgentID:    getNestedStringField(doc, "jacsSignature", "agentID"),
	}

	return signed, nil
}

// SignFile wraps filePath in a jacsType "file" document and signs it with
// the global agent. When embed is true the file's content is gzip-compressed
// and base64-encoded into the document's jacsFiles entry; otherwise only its path and hash are
// recorded and the bytes stay on disk.
func SignFile(filePath string, embed bool) (*SignedDocument, error) {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalAgent == nil {
		return nil, ErrAgentNotLoaded
	}

	// Check file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, NewSimpleErrorWithPath("sign_file", filePath, ErrFileNotFound)
	}

	// Create document structure
	docStruct := map[string]interface{}{
		"jacsType":  "file",
		"jacsLevel": "raw",
		"filename":  filePath,
	}

	docJSON, err := json.Marshal(docStruct)
	if err != nil {
		return nil, NewSimpleError("sign_file", err)
	}

	// Sign with attachment
	noSave := true
	result, err := globalAgent.CreateDocument(string(docJSON), nil, nil, noSave, &filePath, &embed)
	if err != nil {
		return nil, NewSimpleError("sign_file", err)
	}

	// Parse result to extract fields
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(result), &doc); err != nil {
		return nil, NewSimpleError("sign_file", err)
	}

	signed := &SignedDocument{
		Raw:        result,
		DocumentID: getStringField(doc, "jacsId"),
		Timestamp:  getNestedStringField(doc, "jacsSignature", "date"),
		AgentID:    getNestedStringField(doc, "jacsSignature", "agentID"),
	}

	return signed, nil
}

// Verify checks signedDocument's hash and signature against the global
// agent's trust store and returns the outcome along with the document's
// signer, timestamp, and content field. Malformed or non-JSON input is
// reported through the result's Errors rather than a returned error.
func Verify(signedDocument string) (*VerificationResult, error) {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalAgent == nil {
		return nil, ErrAgentNotLoaded
	}

	// Detect non-JSON input and provide helpful error
	trimmed := strings.TrimSpace(signedDocument)
	if len(trimmed) > 0 && trimmed[0] != '{' && trimmed[0] != '[' {
		preview := trimmed
		if len(preview) > 50 {
			preview = preview[:50] + "..."
		}
		return &VerificationResult{
			Valid: false,
			Errors: []string{
				"Input does not appear to be a JSON document. If you have a document ID (e.g., 'uuid:version'), use VerifyById() instead. Received: '" + preview + "'",
			},
		}, nil
	}

	// Parse document first
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(signedDocument), &doc); err != nil {
		return &VerificationResult{
			Valid:  false,
			Errors: []string{"invalid JSON: " + err.Error()},
		}, nil
	}

	// Verify using agent
	err := globalAgent.VerifyDocument(signedDocument)

	result := &VerificationResult{
		Valid:     err == nil,
		SignerID:  getNestedStringField(doc, "jacsSignature", "agentID"),
		Timestamp: getNestedStringField(doc, "jacsSignature", "date"),
		Data:      doc["content"],
	}

	if err != nil {
		result.Errors = []string{err.Error()}
	}

	return result, nil
}

// VerifyById verifies a previously saved document by its "id:version" key,
// loading it from the agent's storage backend if it is not already indexed
// in memory. Use Verify instead when the caller already has the document's
// JSON.
func VerifyById(documentId string) (*VerificationResult, error) {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalAgent == nil {
		return nil, ErrAgentNotLoaded
	}

	if !strings.Contains(documentId, ":") {
		return &VerificationResult{
			Valid: false,
			Errors: []string{
				"Document ID must be in 'uuid:version' format, got '" + documentId + "'. Use Verify() with the full JSON string instead.",
			},
		}, nil
	}

	err := globalAgent.VerifyDocumentById(documentId)
	if err != nil {
		return &VerificationResult{
			Valid:  false,
			Errors: []string{err.Error()},
		}, nil
	}

	return &VerificationResult{
		Valid: true,
	}, nil
}

// ReencryptKey re-wraps the global agent's private key envelope under
// newPassword, after confirming oldPassword still decrypts the key on disk.
// newPassword is not checked for strength; CreateConfig does not check its
// password either.
func ReencryptKey(oldPassword, newPassword string) error {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalAgent == nil {
		return ErrAgentNotLoaded
	}

	return globalAgent.ReencryptKey(oldPassword, newPassword)
}

// ExportAgent returns the global agent's own signed identity document,
// suitable for handing to a peer that will load it as a foreign agent.
func ExportAgent() (string, error) {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalAgent == nil {
		return "", ErrAgentNotLoaded
	}

	return globalAgent.GetJSON()
}

// GetPublicKeyPEM returns the raw bytes of the global agent's public key,
// read back from its jacs_keys/jacs.public.pem file (named for the teacher
// tooling's on-disk convention; the file holds the raw key, not an
// ASN.1/PEM envelope). The same bytes are what VerifyStandaloneOptions and
// Trust expect as a key argument.
func GetPublicKeyPEM() (string, error) {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalAgent == nil {
		return "", ErrAgentNotLoaded
	}

	// Read public key file
	keyPath := "./jacs_keys/jacs.public.pem"
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return "", NewSimpleErrorWithPath("get_public_key", keyPath, ErrKeyNotFound)
	}

	return string(data), nil
}

// ListTrustedAgents returns the remote keys the global agent currently
// trusts for agreement and foreign-document verification.
func ListTrustedAgents() ([]TrustedAgent, error) {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalAgent == nil {
		return nil, ErrAgentNotLoaded
	}
	return globalAgent.ListTrusted(), nil
}

// GetAgentInfo returns the AgentInfo recorded by the most recent Create or
// Load call, or nil if neither has run yet.
func GetAgentInfo() *AgentInfo {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	return agentInfo
}

// IsLoaded reports whether a global agent is currently installed.
func IsLoaded() bool {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	return globalAgent != nil
}

// getStringField and getNestedStringField pull optional string fields out
// of a decoded document without the caller needing a type assertion at
// every call site.

func getStringField(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getNestedStringField(m map[string]interface{}, keys ...string) string {
	current := m
	for i, key := range keys {
		if i == len(keys)-1 {
			return getStringField(current, key)
		}
		if nested, ok := current[key].(map[string]interface{}); ok {
			current = nested
		} else {
			return ""
		}
	}
	return ""
}
