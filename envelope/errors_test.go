package envelope_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grasp-labs/ds-envelope-go-sdk/envelope"
)

func TestKeyServiceError_Classification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := map[string]struct {
		err       error
		code      string
		rejected  bool
		retryable bool
	}{
		"access denied": {
			err:      &smithy.GenericAPIError{Code: "AccessDeniedException", Fault: smithy.FaultClient},
			code:     "AccessDeniedException",
			rejected: true,
		},
		"invalid ciphertext": {
			err:      &smithy.GenericAPIError{Code: "InvalidCiphertextException", Fault: smithy.FaultClient},
			code:     "InvalidCiphertextException",
			rejected: true,
		},
		"throttling": {
			err:       &smithy.GenericAPIError{Code: "ThrottlingException", Fault: smithy.FaultClient},
			code:      "ThrottlingException",
			retryable: true,
		},
		"unknown server fault": {
			err:       &smithy.GenericAPIError{Code: "SomethingNew", Fault: smithy.FaultServer},
			code:      "SomethingNew",
			retryable: true,
		},
		"unknown client fault": {
			err:  &smithy.GenericAPIError{Code: "ValidationException", Fault: smithy.FaultClient},
			code: "ValidationException",
		},
		"key unavailable": {
			err:       &types.KeyUnavailableException{Message: aws.String("try again")},
			code:      "KeyUnavailableException",
			retryable: true,
		},
		"transport": {
			err:       context.DeadlineExceeded,
			retryable: true,
		},
		"canceled": {
			err: context.Canceled,
		},
		"canceled inside transport error": {
			err: fmt.Errorf("send request: %w", context.Canceled),
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p, kmsFake := newProvider(t)
			kmsFake.GenerateErr = tc.err

			_, err := p.ForEncryption(ctx)
			require.ErrorIs(t, err, envelope.ErrKeyService)
			require.ErrorIs(t, err, tc.err)

			var kerr *envelope.KeyServiceError
			require.True(t, errors.As(err, &kerr))
			assert.Equal(t, tc.code, kerr.Code)
			assert.Equal(t, tc.rejected, kerr.Rejected())
			assert.Equal(t, tc.retryable, kerr.Retryable())
			assert.Equal(t, tc.rejected, errors.Is(err, envelope.ErrKeyRejected))
			assert.Contains(t, err.Error(), "GenerateDataKey")
		})
	}
}

func TestKeyProvider_InvalidResponseIsNotRetryable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := map[string]func(*kms.GenerateDataKeyOutput){
		"empty blob":     func(out *kms.GenerateDataKeyOutput) { out.CiphertextBlob = nil },
		"short data key": func(out *kms.GenerateDataKeyOutput) { out.Plaintext = out.Plaintext[:16] },
	}
	for name, hook := range cases {
		t.Run(name, func(t *testing.T) {
			p, kmsFake := newProvider(t)
			kmsFake.GenerateHook = hook

			m, err := p.ForEncryption(ctx)
			require.Nil(t, m)
			require.ErrorIs(t, err, envelope.ErrKeyService)
			require.NotErrorIs(t, err, envelope.ErrKeyRejected)

			var kerr *envelope.KeyServiceError
			require.True(t, errors.As(err, &kerr))
			assert.Equal(t, envelope.CodeInvalidResponse, kerr.Code)
			assert.False(t, kerr.Rejected())
			assert.False(t, kerr.Retryable())
		})
	}
}

func TestErrorKindsAreDistinct(t *testing.T) {
	kinds := []error{
		envelope.ErrConfiguration,
		envelope.ErrKeyService,
		envelope.ErrEnvelopeFormat,
		envelope.ErrProgrammer,
		envelope.ErrInvalidCiphertext,
	}
	for i, a := range kinds {
		for j, b := range kinds {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}
