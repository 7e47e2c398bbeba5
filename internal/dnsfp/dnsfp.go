// Package dnsfp implements JACS's public-key fingerprint verification
// against a DNS TXT record, with a fallback to an embedded fingerprint when
// no DNS domain is configured or the lookup fails.
package dnsfp

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// Encoding names the digest encoding carried in a TXT record's enc= field.
type Encoding string

const (
	Base64 Encoding = "base64"
	Hex    Encoding = "hex"
)

// Fields is the parsed content of an agent fingerprint TXT record.
type Fields struct {
	V       string
	AgentID string
	Alg     string
	Enc     Encoding
	Digest  string
}

// RecordOwner returns the owner name JACS publishes agent fingerprint TXT
// records under for domain.
func RecordOwner(domain string) string {
	return fmt.Sprintf("_v1.agent.jacs.%s.", strings.TrimSuffix(domain, "."))
}

// BuildTXT renders the TXT record value for agentID and digest.
func BuildTXT(agentID, digest string, enc Encoding) string {
	return fmt.Sprintf("v=hai.ai; jacs_agent_id=%s; alg=SHA-256; enc=%s; jac_public_key_hash=%s", agentID, enc, digest)
}

// ParseTXT parses a TXT record value produced by BuildTXT.
func ParseTXT(txt string) (Fields, error) {
	fields := map[string]string{}
	for _, part := range strings.Split(txt, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	v, ok := fields["v"]
	if !ok {
		return Fields{}, fmt.Errorf("dnsfp: TXT record missing v field")
	}
	agentID, ok := fields["jacs_agent_id"]
	if !ok {
		return Fields{}, fmt.Errorf("dnsfp: TXT record missing jacs_agent_id field")
	}
	alg, ok := fields["alg"]
	if !ok {
		return Fields{}, fmt.Errorf("dnsfp: TXT record missing alg field")
	}
	encVal, ok := fields["enc"]
	if !ok {
		return Fields{}, fmt.Errorf("dnsfp: TXT record missing enc field")
	}
	var enc Encoding
	switch encVal {
	case "base64":
		enc = Base64
	case "hex":
		enc = Hex
	default:
		return Fields{}, fmt.Errorf("dnsfp: unsupported encoding %q", encVal)
	}
	digest, ok := fields["jac_public_key_hash"]
	if !ok {
		return Fields{}, fmt.Errorf("dnsfp: TXT record missing jac_public_key_hash field")
	}

	return Fields{V: v, AgentID: agentID, Alg: alg, Enc: enc, Digest: digest}, nil
}

// PubkeyDigestBase64 and PubkeyDigestHex compute the two digest encodings a
// TXT record may carry, from raw SHA-256 bytes supplied by the caller (the
// caller computes the hash; this package only encodes it).
func PubkeyDigestBase64(sum [32]byte) string {
	return base64.StdEncoding.EncodeToString(sum[:])
}

func PubkeyDigestHex(sum [32]byte) string {
	return hex.EncodeToString(sum[:])
}

// Resolver looks up TXT records for an owner name.
type Resolver interface {
	LookupTXT(ctx context.Context, owner string) (string, authenticated bool, err error)
}

// DNSResolver is a Resolver backed by github.com/miekg/dns against a
// configured set of nameservers. It does not itself validate DNSSEC chains;
// it reports authenticated based on the response's AD (Authentic Data) bit,
// which requires a validating resolver upstream.
type DNSResolver struct {
	Nameserver string
}

// NewDNSResolver builds a resolver against nameserver (host:port, e.g.
// "1.1.1.1:53"). An empty nameserver defaults to the system resolver
// configuration at /etc/resolv.conf.
func NewDNSResolver(nameserver string) *DNSResolver {
	return &DNSResolver{Nameserver: nameserver}
}

func (r *DNSResolver) LookupTXT(ctx context.Context, owner string) (string, bool, error) {
	nameserver := r.Nameserver
	if nameserver == "" {
		cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil || len(cfg.Servers) == 0 {
			return "", false, fmt.Errorf("dnsfp: no nameserver configured and system resolver unavailable: %w", err)
		}
		nameserver = cfg.Servers[0] + ":53"
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(owner), dns.TypeTXT)
	msg.SetEdns0(4096, true)

	client := new(dns.Client)
	resp, _, err := client.ExchangeContext(ctx, msg, nameserver)
	if err != nil {
		return "", false, fmt.Errorf("dnsfp: TXT query for %q failed: %w", owner, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return "", false, fmt.Errorf("dnsfp: TXT query for %q returned rcode %d", owner, resp.Rcode)
	}

	var txt string
	for _, rr := range resp.Answer {
		if t, ok := rr.(*dns.TXT); ok {
			txt = strings.Join(t.Txt, "")
			break
		}
	}
	if txt == "" {
		return "", false, fmt.Errorf("dnsfp: no TXT record found for %q", owner)
	}
	return txt, resp.AuthenticatedData, nil
}

// VerifyPublicKey checks agentPublicKey against either a DNS TXT fingerprint
// record at domain or an embedded fingerprint fallback.
//
// strictDNS requires the resolver to report the response as DNSSEC
// authenticated; an unauthenticated or missing record fails closed with no
// fallback to embeddedFingerprint. In lenient mode, a failed or missing DNS
// lookup falls back to embeddedFingerprint when one was supplied.
func VerifyPublicKey(ctx context.Context, resolver Resolver, agentPublicKey []byte, agentID string, domain string, embeddedFingerprint string, strictDNS bool, sum [32]byte, legacyHash string) error {
	localB64 := PubkeyDigestBase64(sum)
	localHex := PubkeyDigestHex(sum)

	if domain != "" {
		owner := RecordOwner(domain)
		txt, authenticated, err := resolver.LookupTXT(ctx, owner)
		if err == nil {
			if strictDNS && !authenticated {
				return fmt.Errorf("dnsfp: strict DNSSEC validation failed for %s: TXT not authenticated", owner)
			}
			fields, err := ParseTXT(txt)
			if err != nil {
				return err
			}
			if fields.V != "hai.ai" {
				return fmt.Errorf("dnsfp: unexpected v field %q", fields.V)
			}
			if fields.AgentID != agentID {
				return fmt.Errorf("dnsfp: agent id mismatch")
			}
			var ok bool
			switch fields.Enc {
			case Base64:
				ok = fields.Digest == localB64
			case Hex:
				ok = strings.EqualFold(fields.Digest, localHex)
			}
			if !ok {
				return fmt.Errorf("dnsfp: fingerprint mismatch: DNS digest does not match local public key")
			}
			return nil
		}

		if strictDNS {
			return fmt.Errorf("dnsfp: strict DNSSEC validation failed for %s: TXT not authenticated, enable DNSSEC and publish DS at registrar", owner)
		}
		if embeddedFingerprint != "" {
			if matchesEmbedded(embeddedFingerprint, localB64, localHex, legacyHash) {
				return nil
			}
			return fmt.Errorf("dnsfp: embedded fingerprint mismatch: does not match local public key")
		}
		return fmt.Errorf("dnsfp: DNS TXT lookup failed for %s: record missing or not yet propagated", owner)
	}

	if embeddedFingerprint != "" {
		if matchesEmbedded(embeddedFingerprint, localB64, localHex, legacyHash) {
			return nil
		}
		return fmt.Errorf("dnsfp: embedded fingerprint mismatch (embedded present but does not match local public key)")
	}

	return fmt.Errorf("dnsfp: DNS TXT lookup required: no domain configured and no embedded fingerprint provided")
}

func matchesEmbedded(embedded, localB64, localHex, legacyHash string) bool {
	return embedded == localB64 ||
		strings.EqualFold(embedded, localHex) ||
		strings.EqualFold(embedded, legacyHash)
}
