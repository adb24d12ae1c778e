package fakes

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Object is a stored S3 object.
type Object struct {
	Body     []byte
	Metadata map[string]string
}

// S3 is an in-memory test double for envelope.S3API.
type S3 struct {
	mu sync.Mutex

	Objects map[string]*Object // by bucket + "/" + key
	Err     error

	Puts, Gets, Heads int
}

func objKey(bucket, key *string) string {
	var b, k string
	if bucket != nil {
		b = *bucket
	}
	if key != nil {
		k = *key
	}
	return b + "/" + k
}

func (f *S3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Puts++
	if f.Err != nil {
		return nil, f.Err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	md := make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		md[k] = v
	}
	if f.Objects == nil {
		f.Objects = make(map[string]*Object)
	}
	f.Objects[objKey(in.Bucket, in.Key)] = &Object{Body: body, Metadata: md}
	return &s3.PutObjectOutput{}, nil
}

func (f *S3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Gets++
	if f.Err != nil {
		return nil, f.Err
	}
	obj, ok := f.Objects[objKey(in.Bucket, in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	size := int64(len(obj.Body))
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.Body)),
		ContentLength: &size,
		Metadata:      obj.Metadata,
	}, nil
}

func (f *S3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Heads++
	if f.Err != nil {
		return nil, f.Err
	}
	obj, ok := f.Objects[objKey(in.Bucket, in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	size := int64(len(obj.Body))
	return &s3.HeadObjectOutput{ContentLength: &size, Metadata: obj.Metadata}, nil
}
