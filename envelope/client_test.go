package envelope_test

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grasp-labs/ds-envelope-go-sdk/envelope"
	"github.com/grasp-labs/ds-envelope-go-sdk/internal/fakes"
)

func TestClient_SealOpen_InMemory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, kmsFake := newProvider(t)
	repo := envelope.NewInMemoryRepo()
	client := envelope.NewClient(repo, p)

	rec, err := client.Seal(ctx, "svc/api/creds", []byte("p@ssw0rd"), map[string]string{"team": "data"})
	require.NoError(t, err)
	require.Equal(t, 1, kmsFake.GenerateCalls)
	assert.Equal(t, int64(8), rec.PlainLen)
	assert.Equal(t, envelope.CEKAlgAESCBC, rec.CEKAlg)
	assert.NotContains(t, rec.Value, base64.StdEncoding.EncodeToString([]byte("p@ssw0rd")))

	pt, err := client.Open(ctx, "svc/api/creds")
	require.NoError(t, err)
	require.Equal(t, []byte("p@ssw0rd"), pt)
	require.Equal(t, 1, kmsFake.DecryptCalls)

	// nothing is cached: every Open unwraps again
	_, err = client.Open(ctx, "svc/api/creds")
	require.NoError(t, err)
	require.Equal(t, 2, kmsFake.DecryptCalls)
}

func TestInMemoryRepo_LabelsAreCopied(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, _ := newProvider(t)
	repo := envelope.NewInMemoryRepo()
	client := envelope.NewClient(repo, p)

	labels := map[string]string{"team": "data"}
	rec, err := client.Seal(ctx, "svc/api/labels", []byte("x"), labels)
	require.NoError(t, err)
	labels["team"] = "ops"
	rec.Labels["team"] = "ops"

	got, err := repo.GetRecord(ctx, "svc/api/labels")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"team": "data"}, got.Labels)

	got.Labels["extra"] = "1"
	got, err = repo.GetRecord(ctx, "svc/api/labels")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"team": "data"}, got.Labels)
}

func TestClient_SealTwiceFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, _ := newProvider(t)
	client := envelope.NewClient(envelope.NewInMemoryRepo(), p)

	_, err := client.Seal(ctx, "x", []byte("one"), nil)
	require.NoError(t, err)
	_, err = client.Seal(ctx, "x", []byte("two"), nil)
	require.ErrorIs(t, err, envelope.ErrRecordExists)

	_, err = client.Open(ctx, "missing")
	require.ErrorIs(t, err, envelope.ErrRecordNotFound)

	_, err = client.Seal(ctx, "", []byte("x"), nil)
	require.Error(t, err)
}

type tamperRepo struct {
	*envelope.InMemoryRepo
	matDesc string
}

func (r *tamperRepo) GetRecord(ctx context.Context, name string) (*envelope.EnvelopeRecord, error) {
	rec, err := r.InMemoryRepo.GetRecord(ctx, name)
	if err != nil {
		return nil, err
	}
	rec.MatDesc = r.matDesc
	return rec, nil
}

func TestClient_OpenTamperedRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kmsFake := &fakes.KMS{}
	p, err := envelope.NewKeyProvider(kmsFake, testKeyID)
	require.NoError(t, err)

	repo := &tamperRepo{InMemoryRepo: envelope.NewInMemoryRepo(), matDesc: `{"kms_cmk_id":"alias/other"}`}
	client := envelope.NewClient(repo, p)

	_, err = client.Seal(ctx, "x", []byte("secret"), nil)
	require.NoError(t, err)

	pt, err := client.Open(ctx, "x")
	require.Nil(t, pt)
	require.ErrorIs(t, err, envelope.ErrKeyRejected)
}

func TestNewClient_PanicsOnNil(t *testing.T) {
	p, _ := newProvider(t)
	assert.Panics(t, func() { envelope.NewClient(nil, p) })
	assert.Panics(t, func() { envelope.NewClient(envelope.NewInMemoryRepo(), nil) })
}
