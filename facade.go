package jacs

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jacs-project/jacs-go/internal/dnsfp"
	"github.com/jacs-project/jacs-go/internal/docengine"
	"github.com/jacs-project/jacs-go/internal/signer"
	"github.com/jacs-project/jacs-go/internal/storage"
)

// MaxVerifyURLLen bounds the total length of a link produced by
// GenerateVerifyLink, matching the query-length limits common reverse
// proxies and browsers enforce.
const MaxVerifyURLLen = 2048

// MaxVerifyDocumentBytes bounds the size of the document GenerateVerifyLink
// will encode. A document at this limit encodes to 2020 base64 characters,
// so with the default base URL its link is one character over
// MaxVerifyURLLen; the final length check rejects any such link.
const MaxVerifyDocumentBytes = 1515

// GenerateVerifyLink base64-encodes a signed document into a verification
// URL. baseUrl defaults to "https://hai.ai" when empty.
func GenerateVerifyLink(documentJSON string, baseUrl string) (string, error) {
	if len(documentJSON) > MaxVerifyDocumentBytes {
		return "", fmt.Errorf("document exceeds max length of %d bytes", MaxVerifyDocumentBytes)
	}
	if baseUrl == "" {
		baseUrl = "https://hai.ai"
	}
	encoded := base64.URLEncoding.EncodeToString([]byte(documentJSON))
	url := fmt.Sprintf("%s/jacs/verify?s=%s", baseUrl, encoded)
	if len(url) > MaxVerifyURLLen {
		return "", fmt.Errorf("generated verify link exceeds max length of %d characters", MaxVerifyURLLen)
	}
	return url, nil
}

// HaiRegistrationOptions configures RegisterWithHai.
type HaiRegistrationOptions struct {
	ApiKey string
	HaiUrl string
}

// RegisterWithHai registers the currently loaded agent with a HAI registry
// endpoint. The API key is taken from opts.ApiKey, falling back to the
// HAI_API_KEY environment variable.
func RegisterWithHai(opts *HaiRegistrationOptions) (*RegistrationResult, error) {
	globalMutex.Lock()
	agent := globalAgent
	globalMutex.Unlock()
	if agent == nil {
		return nil, ErrAgentNotLoaded
	}

	if opts == nil {
		opts = &HaiRegistrationOptions{}
	}
	apiKey := opts.ApiKey
	if apiKey == "" {
		apiKey = os.Getenv("HAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("HAI API key required: set HaiRegistrationOptions.ApiKey or HAI_API_KEY")
	}
	haiUrl := opts.HaiUrl
	if haiUrl == "" {
		haiUrl = "https://hai.ai"
	}

	agentJSON, err := agent.GetJSON()
	if err != nil {
		return nil, NewSimpleError("register_with_hai", err)
	}

	client := NewHaiClient(haiUrl, WithAPIKey(apiKey))
	return client.RegisterWithJSON(agentJSON)
}

// GetDnsRecord returns the DNS TXT record the loaded agent should publish
// under domain to bind its public key fingerprint to that domain. ttl is
// informational and included for parity with DNS provisioning tooling; it
// is not encoded into the record itself.
func GetDnsRecord(domain string, ttl int) (string, error) {
	globalMutex.Lock()
	agent := globalAgent
	globalMutex.Unlock()
	if agent == nil {
		return "", ErrAgentNotLoaded
	}

	sum := sha256.Sum256(agent.PublicKey())
	owner := dnsfp.RecordOwner(domain)
	value := dnsfp.BuildTXT(agent.AgentID(), dnsfp.PubkeyDigestBase64(sum), dnsfp.Base64)
	return fmt.Sprintf("%s %d IN TXT \"%s\"", owner, ttl, value), nil
}

// GetWellKnownJson returns the loaded agent's identity document, suitable
// for serving at a well-known discovery path.
func GetWellKnownJson() (string, error) {
	globalMutex.Lock()
	agent := globalAgent
	globalMutex.Unlock()
	if agent == nil {
		return "", ErrAgentNotLoaded
	}
	return agent.GetJSON()
}

// VerifyStandaloneOptions configures VerifyStandalone. An empty
// PublicKeyPEM falls back to extracting a signer ID only, without
// attempting signature verification.
type VerifyStandaloneOptions struct {
	// PublicKeyPEM is the signer's raw public key, in the same format
	// GetPublicKeyPEM returns and jacs.public.pem stores on disk.
	PublicKeyPEM string
}

// VerifyStandalone verifies a signed document without requiring a loaded
// agent. It never returns an error for malformed input; failures are
// reported through VerificationResult.Valid and VerificationResult.Errors.
func VerifyStandalone(documentJSON string, opts *VerifyStandaloneOptions) (*VerificationResult, error) {
	result := &VerificationResult{Valid: false}

	var value map[string]interface{}
	if err := json.Unmarshal([]byte(documentJSON), &value); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("invalid JSON: %v", err))
		return result, nil
	}

	if sigMap, ok := value["jacsSignature"].(map[string]interface{}); ok {
		if id, ok := sigMap["agentID"].(string); ok {
			result.SignerID = id
		}
		if date, ok := sigMap["date"].(string); ok {
			result.Timestamp = date
		}
	}

	if opts == nil || opts.PublicKeyPEM == "" {
		result.Errors = append(result.Errors, "no public key provided: cannot verify signature standalone")
		return result, nil
	}

	engine := docengine.New(storage.NewMemory(), nil)
	doc, err := engine.Load([]byte(documentJSON))
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("document hash verification failed: %v", err))
		return result, nil
	}

	verified := docengine.VerifyDocument(doc, docengine.FieldSignature, []byte(opts.PublicKeyPEM), "", "")
	if verified.Status != signer.StatusValid {
		result.Errors = append(result.Errors, fmt.Sprintf("signature verification failed: %v", verified.Err))
		return result, nil
	}

	result.Valid = true
	return result, nil
}

// AuditOptions configures Audit. Reserved for future filtering of which
// checks run; currently unused.
type AuditOptions struct{}

// Audit inspects the loaded agent's configuration and key material for
// common misconfigurations and returns a report keyed by category.
func Audit(opts *AuditOptions) (map[string]interface{}, error) {
	globalMutex.Lock()
	agent := globalAgent
	info := agentInfo
	globalMutex.Unlock()

	if agent == nil || info == nil {
		return nil, fmt.Errorf("%w: audit requires a loaded agent", ErrAgentNotLoaded)
	}

	var risks []string
	var checks []string

	configPath := info.ConfigPath
	if configPath == "" {
		configPath = "./jacs.config.json"
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, NewSimpleErrorWithPath("audit", configPath, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, NewSimpleError("audit", fmt.Errorf("%w: %v", ErrConfigInvalid, err))
	}
	checks = append(checks, "config file parses as valid JSON")

	if cfg.PrivateKeyPassword != nil && *cfg.PrivateKeyPassword != "" {
		risks = append(risks, "jacs_private_key_password is stored in plaintext in the config file")
	} else {
		checks = append(checks, "private key password is not persisted in the config file")
	}

	keyDir := stringOr(cfg.KeyDirectory, "./jacs_keys")
	privFile := stringOr(cfg.AgentPrivateKeyFile, "jacs.private.pem.enc")
	privPath := keyDir + "/" + privFile
	if fi, err := os.Stat(privPath); err != nil {
		risks = append(risks, fmt.Sprintf("private key file %s is missing or unreadable", privPath))
	} else {
		checks = append(checks, fmt.Sprintf("private key file %s is present", privPath))
		if fi.Mode().Perm()&0o077 != 0 {
			risks = append(risks, fmt.Sprintf("private key file %s is readable by group/other (mode %o)", privPath, fi.Mode().Perm()))
		} else {
			checks = append(checks, "private key file permissions restrict access to the owner")
		}
	}

	if err := agent.VerifyAgent(nil); err != nil {
		risks = append(risks, fmt.Sprintf("self-verification failed: %v", err))
	} else {
		checks = append(checks, "agent identity document self-verifies")
	}

	overallStatus := "ok"
	if len(risks) > 0 {
		overallStatus = "attention_needed"
	}

	return map[string]interface{}{
		"risks":          risks,
		"health_checks":  checks,
		"overall_status": overallStatus,
		"summary":        fmt.Sprintf("%d risk(s), %d check(s) passed", len(risks), len(checks)),
	}, nil
}
