// Package canonical implements JACS's field-selection canonicalization: the
// scheme used to turn a JSON document into a single string for hashing or
// signing. It is not RFC 8785 canonical JSON — only top-level string-valued
// fields are selected, space-joined in a caller-or-key-order, with a small
// set of reserved fields always excluded.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Reserved field names that can never be selected for hashing or signing,
// either because they hold the result of that operation (jacsSha256,
// jacsSignature) or because they carry nested signature/agreement material
// that would make the hash depend on itself.
var Reserved = []string{
	"jacsSha256",
	"jacsSignature",
	"jacsAgreement",
	"jacsRegistration",
	"jacsStartAgreement",
	"jacsEndAgreement",
}

// Volatile fields are stripped before computing an agreement hash: version
// lineage churns independently of the agreement content it certifies.
var Volatile = []string{
	"jacsAgreementHash",
	"jacsPreviousVersion",
	"jacsVersion",
	"jacsVersionDate",
}

func isReserved(name string) bool {
	for _, r := range Reserved {
		if r == name {
			return true
		}
	}
	return false
}

// Fields scans the top-level keys of a JSON object in their original source
// order. encoding/json decodes objects into map[string]interface{}, which
// does not preserve key order, so selection with no explicit key list must
// re-derive order from the raw bytes via a token scan.
func Fields(doc []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("canonical: reading document: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("canonical: document is not a JSON object")
	}

	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("canonical: reading key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("canonical: non-string key in object")
		}
		keys = append(keys, key)

		var discard json.RawMessage
		if err := dec.Decode(&discard); err != nil {
			return nil, fmt.Errorf("canonical: skipping value for %q: %w", key, err)
		}
	}
	return keys, nil
}

// Select builds the field-selection string for value, restricted to
// placementKey's sibling fields. When keys is nil, every top-level key of
// value except placementKey and the Reserved set is used, in source order
// (as recovered by Fields against raw). When keys is non-nil it is used
// verbatim as the accepted field list (the caller already decided which
// fields to sign over); it is an error for that list to name placementKey or
// any Reserved field.
//
// Returns the space-joined, trimmed string of string-typed field values, and
// the final accepted field list (which may include non-string fields that
// were simply skipped, mirroring the original accepted_fields return).
//
// It is an error for any selected field to hold a string value equal to
// placementKey or to any Reserved name: that would make the signed material
// depend on its own placement, defeating the purpose of the exclusion.
func Select(raw []byte, value map[string]interface{}, placementKey string, keys []string) (string, []string, error) {
	accepted := keys
	if accepted == nil {
		ordered, err := Fields(raw)
		if err != nil {
			return "", nil, err
		}
		accepted = make([]string, 0, len(ordered))
		for _, k := range ordered {
			if k == placementKey || isReserved(k) {
				continue
			}
			accepted = append(accepted, k)
		}
	} else {
		for _, k := range accepted {
			if k == placementKey || isReserved(k) {
				return "", nil, fmt.Errorf("canonical: field %q is reserved and cannot be selected", k)
			}
		}
	}

	var b strings.Builder
	for _, key := range accepted {
		v, present := value[key]
		if !present {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if s == placementKey || isReserved(s) {
			return "", nil, fmt.Errorf("canonical: field %q must not include itself or a reserved field name in its value", key)
		}
		b.WriteString(s)
		b.WriteString(" ")
	}
	return strings.TrimSpace(b.String()), accepted, nil
}

// Trim removes the Volatile fields from a decoded document before agreement
// hashing, so that re-versioning a document never perturbs the agreement
// hash it carries. The agreement field itself is excluded separately, by
// passing it as Select's placementKey.
func Trim(value map[string]interface{}, agreementField string) map[string]interface{} {
	out := make(map[string]interface{}, len(value))
	for k, v := range value {
		out[k] = v
	}
	for _, v := range Volatile {
		delete(out, v)
	}
	return out
}

// HasField reports whether name is present on the top-level decoded value.
func HasField(value map[string]interface{}, name string) bool {
	_, ok := value[name]
	return ok
}
