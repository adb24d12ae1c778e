package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// KMSCMKIDKey is the encryption context entry naming the KMS key that
// generated the data key.
const KMSCMKIDKey = "kms_cmk_id"

// MakeEncCtx builds the KMS encryption context bound to every data key
// generated for keyID. KMS requires the exact same map on Decrypt.
//
// Parameters:
//
// keyID: KMS key id, alias or ARN configured on the provider
func MakeEncCtx(keyID string) map[string]string {
	return map[string]string{
		KMSCMKIDKey: keyID,
	}
}

// encCtxJSON serializes the context for the x-amz-matdesc field.
// encoding/json sorts map keys, so the output is stable.
func encCtxJSON(encCtx map[string]string) (string, error) {
	if encCtx == nil {
		return "{}", nil
	}
	b, err := json.Marshal(encCtx)
	if err != nil {
		return "", fmt.Errorf("marshal material description: %w", err)
	}
	return string(b), nil
}

// parseEncCtx is the inverse of encCtxJSON. Only a JSON object of strings is
// accepted.
func parseEncCtx(matDesc string) (map[string]string, error) {
	raw := bytes.TrimSpace([]byte(matDesc))
	if len(raw) == 0 || raw[0] != '{' {
		return nil, errors.New("not a JSON object")
	}
	var encCtx map[string]string
	if err := json.Unmarshal(raw, &encCtx); err != nil {
		return nil, err
	}
	return encCtx, nil
}
