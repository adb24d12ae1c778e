package envelope

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Client seals small blobs into an EnvelopeRepository and opens them again.
//
// Flow on Seal:
//  1. ForEncryption: fresh data key from KMS, fresh IV, encrypting cipher.
//  2. Stream the plaintext through the cipher.
//  3. Persist Base64(ciphertext) and the envelope fields as one record.
//
// Flow on Open:
//  1. Load the record by name.
//  2. ForDecryption with the record's envelope (KMS verifies the context).
//  3. Stream the decoded ciphertext through the decrypting cipher.
//
// Concurrency: Client is safe for concurrent use as long as the provider and
// repository are. Nothing is cached here; each Seal and Open makes one KMS call.
// Errors: provider, repository and cipher errors bubble up unchanged.
type Client struct {
	repo     EnvelopeRepository
	provider *KeyProvider
	now      func() time.Time
}

// NewClient builds a Client. repo and provider must be non-nil; this function
// panics if either is nil.
func NewClient(repo EnvelopeRepository, provider *KeyProvider) *Client {
	if repo == nil {
		panic("envelope repository is required")
	}
	if provider == nil {
		panic("key provider is required")
	}
	return &Client{repo: repo, provider: provider, now: time.Now}
}

// Seal encrypts plaintext under a fresh data key and stores it as name.
func (c *Client) Seal(ctx context.Context, name string, plaintext []byte, labels map[string]string) (*EnvelopeRecord, error) {
	if name == "" {
		return nil, fmt.Errorf("record name is required")
	}
	m, err := c.provider.ForEncryption(ctx)
	if err != nil {
		return nil, err
	}
	ct, err := io.ReadAll(NewReader(m.Cipher, bytes.NewReader(plaintext)))
	if err != nil {
		return nil, fmt.Errorf("encrypt %q: %w", name, err)
	}
	rec := &EnvelopeRecord{
		ID:        uuid.New(),
		Name:      name,
		Labels:    labels,
		CreatedAt: c.now().UTC(),
		Value:     base64.StdEncoding.EncodeToString(ct),
		PlainLen:  int64(len(plaintext)),
	}
	rec.setEnvelope(m.Envelope)
	if err := c.repo.PutRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Open loads the record stored as name and returns its plaintext.
func (c *Client) Open(ctx context.Context, name string) ([]byte, error) {
	rec, err := c.repo.GetRecord(ctx, name)
	if err != nil {
		return nil, err
	}
	ct, err := base64.StdEncoding.DecodeString(rec.Value)
	if err != nil {
		return nil, fmt.Errorf("ciphertext base64: %w", err)
	}
	dc, err := c.provider.ForDecryption(ctx, rec.Envelope())
	if err != nil {
		return nil, err
	}
	pt, err := io.ReadAll(NewReader(dc, bytes.NewReader(ct)))
	if err != nil {
		return nil, fmt.Errorf("decrypt %q: %w", name, err)
	}
	return pt, nil
}
