package envelope

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of *s3.Client used by ObjectClient.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// ObjectClient stores encrypted objects in S3 with the envelope kept in the
// object's user metadata.
type ObjectClient struct {
	s3       S3API
	provider *KeyProvider
}

// NewObjectClient panics if either argument is nil.
func NewObjectClient(s S3API, provider *KeyProvider) *ObjectClient {
	if s == nil {
		panic("s3 client is required")
	}
	if provider == nil {
		panic("key provider is required")
	}
	return &ObjectClient{s3: s, provider: provider}
}

// PutObject encrypts body under a fresh envelope and uploads it to
// bucket/key. The whole ciphertext is buffered so S3 gets a seekable,
// length-known body.
func (c *ObjectClient) PutObject(ctx context.Context, bucket, key string, body io.Reader) (*Envelope, error) {
	m, err := c.provider.ForEncryption(ctx)
	if err != nil {
		return nil, err
	}
	counted := &countingReader{r: body}
	ct, err := io.ReadAll(NewReader(m.Cipher, counted))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt object %s/%s: %w", bucket, key, err)
	}

	md := m.Envelope.Metadata()
	md[HeaderUnencryptedLength] = strconv.FormatInt(counted.n, 10)

	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(ct),
		ContentLength: aws.Int64(int64(len(ct))),
		Metadata:      md,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put object %s/%s: %w", bucket, key, err)
	}
	return m.Envelope, nil
}

// GetObject downloads bucket/key and returns a reader over its plaintext.
// The caller must close it. Padding errors surface from the final Read.
func (c *ObjectClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	env, err := EnvelopeFromMetadata(out.Metadata)
	if err != nil {
		out.Body.Close()
		return nil, err
	}
	dc, err := c.provider.ForDecryption(ctx, env)
	if err != nil {
		out.Body.Close()
		return nil, err
	}
	return &cipherReadCloser{Reader: NewReader(dc, out.Body), closer: out.Body}, nil
}

// HeadEnvelope returns the envelope stored on bucket/key without downloading
// the body or contacting KMS.
func (c *ObjectClient) HeadEnvelope(ctx context.Context, bucket, key string) (*Envelope, error) {
	out, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to head object %s/%s: %w", bucket, key, err)
	}
	return EnvelopeFromMetadata(out.Metadata)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
