package fakes

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// KMS is a test double for envelope.KMSAPI that behaves like the real
// service: every key id gets its own random master key, data keys are sealed
// with AES-GCM and the encryption context is the additional data, so a
// tampered context fails Decrypt with InvalidCiphertextException.
//
// Wrapped blob layout: keyID | 0x00 | nonce | sealed data key.
type KMS struct {
	mu sync.Mutex

	GenerateErr error // if set, GenerateDataKey returns this error
	DecryptErr  error // if set, Decrypt returns this error

	GenerateCalls int
	DecryptCalls  int
	LastGenerate  *kms.GenerateDataKeyInput
	LastDecrypt   *kms.DecryptInput

	// LastPlaintext is the data key slice handed out by the last successful
	// call, kept so tests can check the caller wiped it.
	LastPlaintext []byte

	// GenerateHook, if set, may rewrite a GenerateDataKey result before it is
	// returned.
	GenerateHook func(*kms.GenerateDataKeyOutput)

	masters map[string][]byte
}

func (f *KMS) master(keyID string) []byte {
	if f.masters == nil {
		f.masters = make(map[string][]byte)
	}
	k, ok := f.masters[keyID]
	if !ok {
		k = make([]byte, 32)
		_, _ = rand.Read(k)
		f.masters[keyID] = k
	}
	return k
}

// Calls returns the total number of KMS calls.
func (f *KMS) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.GenerateCalls + f.DecryptCalls
}

func (f *KMS) GenerateDataKey(ctx context.Context, in *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.GenerateCalls++
	f.LastGenerate = in

	if f.GenerateErr != nil {
		return nil, f.GenerateErr
	}
	if in.KeyId == nil || *in.KeyId == "" {
		return nil, &types.NotFoundException{Message: aws.String("missing KeyId")}
	}
	if in.KeySpec != types.DataKeySpecAes256 {
		return nil, errors.New("unexpected KeySpec")
	}

	dek := make([]byte, 32)
	_, _ = rand.Read(dek)
	blob, err := seal(f.master(*in.KeyId), *in.KeyId, dek, in.EncryptionContext)
	if err != nil {
		return nil, err
	}
	out := &kms.GenerateDataKeyOutput{
		KeyId:          in.KeyId,
		Plaintext:      dek,
		CiphertextBlob: blob,
	}
	if f.GenerateHook != nil {
		f.GenerateHook(out)
	}
	f.LastPlaintext = out.Plaintext
	return out, nil
}

func (f *KMS) Decrypt(ctx context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.DecryptCalls++
	f.LastDecrypt = in

	if f.DecryptErr != nil {
		return nil, f.DecryptErr
	}
	i := bytes.IndexByte(in.CiphertextBlob, 0)
	if i <= 0 {
		return nil, &types.InvalidCiphertextException{Message: aws.String("malformed ciphertext blob")}
	}
	keyID := string(in.CiphertextBlob[:i])
	if in.KeyId != nil && *in.KeyId != keyID {
		return nil, &types.IncorrectKeyException{Message: aws.String("key id does not match ciphertext")}
	}
	master, ok := f.masters[keyID]
	if !ok {
		return nil, &types.NotFoundException{Message: aws.String("unknown key " + keyID)}
	}
	dek, err := open(master, in.CiphertextBlob[i+1:], in.EncryptionContext)
	if err != nil {
		return nil, &types.InvalidCiphertextException{Message: aws.String("ciphertext or encryption context invalid")}
	}
	f.LastPlaintext = dek
	return &kms.DecryptOutput{KeyId: aws.String(keyID), Plaintext: dek}, nil
}

func seal(master []byte, keyID string, dek []byte, encCtx map[string]string) ([]byte, error) {
	gcm, err := newGCM(master)
	if err != nil {
		return nil, err
	}
	aad, _ := json.Marshal(encCtx)
	nonce := make([]byte, gcm.NonceSize())
	_, _ = rand.Read(nonce)

	blob := append([]byte(keyID), 0)
	blob = append(blob, nonce...)
	return gcm.Seal(blob, nonce, dek, aad), nil
}

func open(master, body []byte, encCtx map[string]string) ([]byte, error) {
	gcm, err := newGCM(master)
	if err != nil {
		return nil, err
	}
	if len(body) < gcm.NonceSize() {
		return nil, errors.New("short ciphertext")
	}
	aad, _ := json.Marshal(encCtx)
	return gcm.Open(nil, body[:gcm.NonceSize()], body[gcm.NonceSize():], aad)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
