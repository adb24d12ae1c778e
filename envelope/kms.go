package envelope

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/grasp-labs/ds-envelope-go-sdk/envelope"

// KMSAPI is the subset of *kms.Client used by KeyProvider. Implementations
// must be safe for concurrent use if the provider is shared across goroutines.
type KMSAPI interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Materials is the result of ForEncryption: the envelope to persist and the
// cipher to stream the object through.
type Materials struct {
	Envelope *Envelope
	Cipher   *Cipher
}

// KeyProvider generates and unwraps per-object data keys with KMS.
//
// Concurrency: a KeyProvider has no mutable state after construction and is
// safe for concurrent use as long as the injected KMSAPI is.
// Errors: nothing is retried; KMS failures are returned as *KeyServiceError.
type KeyProvider struct {
	kms     KMSAPI
	keyID   string
	log     logrus.FieldLogger
	metrics *Metrics
	rand    io.Reader
	tracer  trace.Tracer
}

// Option configures a KeyProvider.
type Option func(*KeyProvider)

// WithLogger sets the logger. Data keys and IVs are never logged.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *KeyProvider) { p.log = l }
}

// WithMetrics records provider activity on m.
func WithMetrics(m *Metrics) Option {
	return func(p *KeyProvider) { p.metrics = m }
}

// WithRandom replaces crypto/rand as the IV source. r must be safe for
// concurrent use if the provider is shared across goroutines.
func WithRandom(r io.Reader) Option {
	return func(p *KeyProvider) { p.rand = r }
}

// NewKeyProvider builds a provider for the KMS key keyID (key id, alias or
// ARN). An empty keyID or nil client is a configuration error.
func NewKeyProvider(k KMSAPI, keyID string, opts ...Option) (*KeyProvider, error) {
	if k == nil {
		return nil, fmt.Errorf("%w: kms client is required", ErrConfiguration)
	}
	if keyID == "" {
		return nil, fmt.Errorf("%w: kms key id is required", ErrConfiguration)
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	p := &KeyProvider{
		kms:    k,
		keyID:  keyID,
		log:    discard,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// KeyID returns the configured KMS key id.
func (p *KeyProvider) KeyID() string { return p.keyID }

// ForEncryption generates a fresh data key under the configured KMS key,
// seeds an encrypting Cipher with it and a fresh random IV, and returns the
// matching Envelope. It makes exactly one KMS call.
func (p *KeyProvider) ForEncryption(ctx context.Context) (*Materials, error) {
	const op = "encrypt"
	if p == nil {
		return nil, fmt.Errorf("%w: nil key provider", ErrConfiguration)
	}
	if p.keyID == "" || p.kms == nil {
		p.metrics.recordOperation(op, resultConfigError)
		return nil, fmt.Errorf("%w: kms key id is required", ErrConfiguration)
	}
	log := p.log.WithFields(logrus.Fields{"operation": op, "key_id": p.keyID})

	encCtx := MakeEncCtx(p.keyID)
	matDesc, err := encCtxJSON(encCtx)
	if err != nil {
		p.metrics.recordOperation(op, resultInternalError)
		return nil, err
	}

	ctx, span := p.tracer.Start(ctx, "KMS GenerateDataKey", trace.WithAttributes(
		attribute.String("kms.key_id", p.keyID),
	))
	start := time.Now()
	out, err := p.kms.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:             &p.keyID,
		KeySpec:           types.DataKeySpecAes256,
		EncryptionContext: encCtx,
	})
	if err != nil {
		err = keyServiceErr("GenerateDataKey", err)
	}
	p.metrics.observeKeyService(op, start, err)
	endSpan(span, err)
	if err != nil {
		p.metrics.recordOperation(op, resultKeyServiceErr)
		log.WithError(err).Warn("data key generation failed")
		return nil, err
	}
	dataKey := out.Plaintext
	defer clear(dataKey)

	if len(out.CiphertextBlob) == 0 {
		p.metrics.recordOperation(op, resultKeyServiceErr)
		return nil, &KeyServiceError{Op: "GenerateDataKey", Code: CodeInvalidResponse, Err: errors.New("empty CiphertextBlob")}
	}

	iv, err := GenerateIV(p.rand)
	if err != nil {
		p.metrics.recordOperation(op, resultInternalError)
		return nil, err
	}
	c, err := NewEncrypter(dataKey, iv)
	if err != nil {
		p.metrics.recordOperation(op, resultKeyServiceErr)
		return nil, &KeyServiceError{Op: "GenerateDataKey", Code: CodeInvalidResponse, Err: fmt.Errorf("unusable data key: %w", err)}
	}

	env := &Envelope{
		WrappedKey: base64.StdEncoding.EncodeToString(out.CiphertextBlob),
		IV:         base64.StdEncoding.EncodeToString(iv),
		CEKAlg:     CEKAlgAESCBC,
		WrapAlg:    WrapAlgKMS,
		MatDesc:    matDesc,
	}
	p.metrics.recordOperation(op, resultOK)
	log.Debug("data key generated")
	return &Materials{Envelope: env, Cipher: c}, nil
}

// ForDecryption validates env, asks KMS to unwrap its data key under the
// stored encryption context and returns a decrypting Cipher. Malformed
// envelopes fail with a *FormatError before KMS is contacted.
//
// The encryption context is taken from the envelope as is; KMS alone decides
// whether it matches the one bound at generation time.
func (p *KeyProvider) ForDecryption(ctx context.Context, env *Envelope) (*Cipher, error) {
	const op = "decrypt"
	if p == nil {
		return nil, fmt.Errorf("%w: nil key provider", ErrConfiguration)
	}
	if p.kms == nil {
		p.metrics.recordOperation(op, resultConfigError)
		return nil, fmt.Errorf("%w: kms client is required", ErrConfiguration)
	}
	dec, err := env.decode()
	if err != nil {
		p.metrics.recordOperation(op, resultFormatError)
		return nil, err
	}
	log := p.log.WithFields(logrus.Fields{"operation": op, "key_id": dec.encCtx[KMSCMKIDKey]})

	in := &kms.DecryptInput{
		CiphertextBlob:    dec.wrappedKey,
		EncryptionContext: dec.encCtx,
	}
	if keyID := dec.encCtx[KMSCMKIDKey]; keyID != "" {
		in.KeyId = &keyID
	}

	ctx, span := p.tracer.Start(ctx, "KMS Decrypt", trace.WithAttributes(
		attribute.String("kms.key_id", dec.encCtx[KMSCMKIDKey]),
	))
	start := time.Now()
	out, err := p.kms.Decrypt(ctx, in)
	if err != nil {
		err = keyServiceErr("Decrypt", err)
	}
	p.metrics.observeKeyService(op, start, err)
	endSpan(span, err)
	if err != nil {
		p.metrics.recordOperation(op, resultKeyServiceErr)
		log.WithError(err).Warn("data key unwrap failed")
		return nil, err
	}
	dataKey := out.Plaintext
	defer clear(dataKey)

	c, err := NewDecrypter(dataKey, dec.iv)
	if err != nil {
		p.metrics.recordOperation(op, resultKeyServiceErr)
		return nil, &KeyServiceError{Op: "Decrypt", Code: CodeInvalidResponse, Err: fmt.Errorf("unusable data key: %w", err)}
	}
	p.metrics.recordOperation(op, resultOK)
	log.Debug("data key unwrapped")
	return c, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
