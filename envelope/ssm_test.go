package envelope_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grasp-labs/ds-envelope-go-sdk/envelope"
	"github.com/grasp-labs/ds-envelope-go-sdk/internal/fakes"
)

func TestSSMKeyIDSource_ResolveAndCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ssmFake := &fakes.SSM{Values: map[string]string{
		"/ds/envelope/kms-key-id": " " + testKeyID + "\n",
		"/ds/envelope/blank":      "   ",
	}}
	src := envelope.NewSSMKeyIDSource(ssmFake, time.Minute)

	keyID, err := src.Resolve(ctx, "/ds/envelope/kms-key-id")
	require.NoError(t, err)
	require.Equal(t, testKeyID, keyID)
	require.True(t, ssmFake.WithDecryption)

	_, err = src.Resolve(ctx, "/ds/envelope/kms-key-id")
	require.NoError(t, err)
	require.Equal(t, 1, ssmFake.Calls)

	_, err = src.Resolve(ctx, "/ds/envelope/blank")
	require.ErrorIs(t, err, envelope.ErrConfiguration)

	_, err = src.Resolve(ctx, "")
	require.ErrorIs(t, err, envelope.ErrConfiguration)

	_, err = src.Resolve(ctx, "/ds/envelope/unknown")
	require.Error(t, err)
	require.NotErrorIs(t, err, envelope.ErrConfiguration)
}

func TestNewKeyProviderFromSSM(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ssmFake := &fakes.SSM{Values: map[string]string{"/kms": testKeyID}}
	kmsFake := &fakes.KMS{}

	p, err := envelope.NewKeyProviderFromSSM(ctx, envelope.NewSSMKeyIDSource(ssmFake, time.Minute), "/kms", kmsFake)
	require.NoError(t, err)
	require.Equal(t, testKeyID, p.KeyID())

	ssmFake.Err = errors.New("boom")
	_, err = envelope.NewKeyProviderFromSSM(ctx, envelope.NewSSMKeyIDSource(ssmFake, time.Minute), "/kms", kmsFake)
	require.Error(t, err)
	require.Equal(t, 0, kmsFake.Calls())
}
