package fakes

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// DecryptCBC is a one-shot AES-256-CBC/PKCS5 decryption used to check the
// streaming cipher against the standard construction.
func DecryptCBC(dek, iv, ct []byte) ([]byte, error) {
	if len(dek) != 32 {
		return nil, fmt.Errorf("DEK must be 32 bytes (AES-256)")
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext not block aligned: %d", len(ct))
	}
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, err
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)
	n := int(pt[len(pt)-1])
	if n == 0 || n > aes.BlockSize {
		return nil, fmt.Errorf("bad padding")
	}
	return pt[:len(pt)-n], nil
}
