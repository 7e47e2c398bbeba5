package signer

import "encoding/base64"

func decodedSigLen(sigB64 string) (int, error) {
	b, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
