package envelope

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMKeyIDSource resolves the KMS key id a provider should use from an SSM
// Parameter Store parameter, so the key can be rotated without redeploying.
type SSMKeyIDSource struct {
	ssm   SSMAPI
	cache *TTLCache[string]
}

func NewSSMKeyIDSource(c SSMAPI, ttl time.Duration) *SSMKeyIDSource {
	return &SSMKeyIDSource{ssm: c, cache: NewTTLCache[string](64, ttl)}
}

// Resolve returns the key id stored in parameter name. A missing or blank
// value is a configuration error.
func (s *SSMKeyIDSource) Resolve(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: ssm parameter name is required", ErrConfiguration)
	}
	if v, ok := s.cache.Get(name); ok {
		return v, nil
	}
	t := true
	out, err := s.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &t,
	})
	if err != nil {
		return "", fmt.Errorf("SSM GetParameter: %w", err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil || strings.TrimSpace(*out.Parameter.Value) == "" {
		return "", fmt.Errorf("%w: ssm parameter %q holds no kms key id", ErrConfiguration, name)
	}
	keyID := strings.TrimSpace(*out.Parameter.Value)
	s.cache.Set(name, keyID)
	return keyID, nil
}

// NewKeyProviderFromSSM resolves the key id from parameter name and builds a
// KeyProvider for it.
func NewKeyProviderFromSSM(ctx context.Context, src *SSMKeyIDSource, name string, k KMSAPI, opts ...Option) (*KeyProvider, error) {
	keyID, err := src.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	return NewKeyProvider(k, keyID, opts...)
}
