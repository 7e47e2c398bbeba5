package agreement

import (
	"encoding/json"
	"fmt"

	"github.com/jacs-project/jacs-go/internal/signer"
)

func marshalStable(value map[string]interface{}) ([]byte, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("agreement: serializing document: %w", err)
	}
	return b, nil
}

func cloneValue(value map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(value))
	for k, v := range value {
		out[k] = v
	}
	return out
}

func toInterfaceSlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func stringSlice(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func interfaceSlice(v interface{}) []interface{} {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	return append([]interface{}{}, arr...)
}

func strField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func sigMapFrom(sig signer.Signature) map[string]interface{} {
	fields := make([]interface{}, len(sig.Fields))
	for i, f := range sig.Fields {
		fields[i] = f
	}
	return map[string]interface{}{
		"agentID":          sig.AgentID,
		"agentVersion":     sig.AgentVersion,
		"date":             sig.Date,
		"signature":        sig.SignatureB64,
		"signingAlgorithm": sig.SigningAlgorithm,
		"publicKeyHash":    sig.PublicKeyHash,
		"fields":           fields,
	}
}

func sigFromMap(m map[string]interface{}) signer.Signature {
	if m == nil {
		return signer.Signature{}
	}
	return signer.Signature{
		AgentID:          strField(m, "agentID"),
		AgentVersion:     strField(m, "agentVersion"),
		Date:             strField(m, "date"),
		SignatureB64:     strField(m, "signature"),
		SigningAlgorithm: strField(m, "signingAlgorithm"),
		PublicKeyHash:    strField(m, "publicKeyHash"),
		Fields:           stringSlice(m["fields"]),
	}
}
