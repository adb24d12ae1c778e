// Package envelope implements client-side envelope encryption on top of AWS
// KMS.
//
// Every protected object gets a fresh AES-256 data key from KMS
// GenerateDataKey. The plaintext key seeds an AES/CBC/PKCS5Padding cipher and
// is then discarded; only the KMS-wrapped form is persisted, together with the
// IV and the encryption context, as an Envelope. Reading the object back asks
// KMS to unwrap the key with the stored context; KMS alone decides whether the
// context is valid.
//
// The envelope fields use the names of the S3 encryption client metadata
// (x-amz-key-v2, x-amz-iv, x-amz-cek-alg, x-amz-wrap-alg, x-amz-matdesc), so
// objects written here can be stored as S3 object metadata.
package envelope

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// Metadata header names.
const (
	HeaderWrappedKey = "x-amz-key-v2"
	HeaderIV         = "x-amz-iv"
	HeaderCEKAlg     = "x-amz-cek-alg"
	HeaderWrapAlg    = "x-amz-wrap-alg"
	HeaderMatDesc    = "x-amz-matdesc"

	// HeaderUnencryptedLength is written by ObjectClient only; it is not part
	// of the envelope.
	HeaderUnencryptedLength = "x-amz-unencrypted-content-length"
)

// Algorithm identifiers.
const (
	CEKAlgAESCBC = "AES/CBC/PKCS5Padding"
	WrapAlgKMS   = "kms"
)

// Envelope is the persisted metadata accompanying one encrypted object.
// It is immutable once returned by ForEncryption.
type Envelope struct {
	WrappedKey string `json:"x-amz-key-v2"`   // base64 KMS CiphertextBlob
	IV         string `json:"x-amz-iv"`       // base64 content IV
	CEKAlg     string `json:"x-amz-cek-alg"`  // content encryption algorithm
	WrapAlg    string `json:"x-amz-wrap-alg"` // key wrap algorithm
	MatDesc    string `json:"x-amz-matdesc"`  // JSON encryption context
}

// Metadata returns the envelope as a header map.
func (e *Envelope) Metadata() map[string]string {
	return map[string]string{
		HeaderWrappedKey: e.WrappedKey,
		HeaderIV:         e.IV,
		HeaderCEKAlg:     e.CEKAlg,
		HeaderWrapAlg:    e.WrapAlg,
		HeaderMatDesc:    e.MatDesc,
	}
}

// EnvelopeFromMetadata extracts an envelope from a header map. Missing fields
// are reported as a *FormatError; values are decoded later by ForDecryption.
func EnvelopeFromMetadata(md map[string]string) (*Envelope, error) {
	e := &Envelope{}
	fields := []struct {
		name string
		dst  *string
	}{
		{HeaderWrappedKey, &e.WrappedKey},
		{HeaderIV, &e.IV},
		{HeaderCEKAlg, &e.CEKAlg},
		{HeaderWrapAlg, &e.WrapAlg},
		{HeaderMatDesc, &e.MatDesc},
	}
	for _, f := range fields {
		v, ok := md[f.name]
		if !ok || v == "" {
			return nil, formatErr(f.name, errors.New("missing"))
		}
		*f.dst = v
	}
	return e, nil
}

// decodedEnvelope holds the binary form of a validated envelope.
type decodedEnvelope struct {
	wrappedKey []byte
	iv         []byte
	encCtx     map[string]string
}

// decode validates every field. It never talks to KMS.
func (e *Envelope) decode() (*decodedEnvelope, error) {
	if e == nil {
		return nil, formatErr("envelope", errors.New("nil envelope"))
	}
	if e.WrappedKey == "" {
		return nil, formatErr(HeaderWrappedKey, errors.New("missing"))
	}
	if e.IV == "" {
		return nil, formatErr(HeaderIV, errors.New("missing"))
	}
	if e.MatDesc == "" {
		return nil, formatErr(HeaderMatDesc, errors.New("missing"))
	}
	if e.CEKAlg != CEKAlgAESCBC {
		return nil, formatErr(HeaderCEKAlg, fmt.Errorf("unsupported algorithm %q", e.CEKAlg))
	}
	if e.WrapAlg != WrapAlgKMS {
		return nil, formatErr(HeaderWrapAlg, fmt.Errorf("unsupported algorithm %q", e.WrapAlg))
	}

	wrapped, err := base64.StdEncoding.DecodeString(e.WrappedKey)
	if err != nil {
		return nil, formatErr(HeaderWrappedKey, fmt.Errorf("base64: %w", err))
	}
	iv, err := base64.StdEncoding.DecodeString(e.IV)
	if err != nil {
		return nil, formatErr(HeaderIV, fmt.Errorf("base64: %w", err))
	}
	if len(iv) != BlockSize {
		return nil, formatErr(HeaderIV, fmt.Errorf("bad iv size: %d", len(iv)))
	}
	encCtx, err := parseEncCtx(e.MatDesc)
	if err != nil {
		return nil, formatErr(HeaderMatDesc, err)
	}
	return &decodedEnvelope{wrappedKey: wrapped, iv: iv, encCtx: encCtx}, nil
}
