package envelope

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// EnvelopeRecord is a sealed blob stored in a repository: the base64
// ciphertext next to the five envelope fields that decrypt it.
type EnvelopeRecord struct {
	ID        uuid.UUID
	Name      string            `gorm:"uniqueIndex"` // caller-chosen lookup key
	Labels    map[string]string `gorm:"serializer:json"`
	CreatedAt time.Time

	Value      string // base64 ciphertext
	WrappedKey string // x-amz-key-v2
	IV         string // x-amz-iv
	CEKAlg     string // x-amz-cek-alg
	WrapAlg    string // x-amz-wrap-alg
	MatDesc    string // x-amz-matdesc
	PlainLen   int64  // x-amz-unencrypted-content-length
}

// Envelope returns the envelope fields of the record.
func (r *EnvelopeRecord) Envelope() *Envelope {
	return &Envelope{
		WrappedKey: r.WrappedKey,
		IV:         r.IV,
		CEKAlg:     r.CEKAlg,
		WrapAlg:    r.WrapAlg,
		MatDesc:    r.MatDesc,
	}
}

func (r *EnvelopeRecord) setEnvelope(e *Envelope) {
	r.WrappedKey = e.WrappedKey
	r.IV = e.IV
	r.CEKAlg = e.CEKAlg
	r.WrapAlg = e.WrapAlg
	r.MatDesc = e.MatDesc
}

// clone returns a copy of r that shares no mutable state with it.
func (r *EnvelopeRecord) clone() *EnvelopeRecord {
	cp := *r
	cp.Labels = maps.Clone(r.Labels)
	return &cp
}
