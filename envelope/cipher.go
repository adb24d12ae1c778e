package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
)

const (
	// DataKeySize is the AES-256 data key length in bytes.
	DataKeySize = 32
	// BlockSize is the AES block size, which is also the CBC IV length.
	BlockSize = aes.BlockSize
)

// Mode is the orientation of a Cipher.
type Mode int

const (
	ModeEncrypt Mode = iota
	ModeDecrypt
)

func (m Mode) String() string {
	if m == ModeEncrypt {
		return "encrypt"
	}
	return "decrypt"
}

// Cipher is an AES-256/CBC/PKCS5Padding streaming transform.
//
// A Cipher starts configured (key and IV set), accepts any number of Update
// calls and is closed by exactly one Final call, which applies (encrypt) or
// validates and strips (decrypt) the padding. Update or Final after Final
// returns ErrCipherFinalized. A Cipher is not safe for concurrent use.
type Cipher struct {
	mode      Mode
	iv        []byte
	bm        cipher.BlockMode
	buf       []byte // pending bytes that do not form a releasable block yet
	finalized bool
}

// GenerateIV reads a fresh random IV from r, or crypto/rand when r is nil.
func GenerateIV(r io.Reader) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	iv := make([]byte, BlockSize)
	if _, err := io.ReadFull(r, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	return iv, nil
}

// NewEncrypter returns a Cipher in encryption mode. The key is expanded into
// the AES schedule right away; the caller may wipe its copy afterwards.
func NewEncrypter(key, iv []byte) (*Cipher, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	ivCopy := append([]byte(nil), iv...)
	return &Cipher{mode: ModeEncrypt, iv: ivCopy, bm: cipher.NewCBCEncrypter(block, ivCopy)}, nil
}

// NewDecrypter returns a Cipher in decryption mode.
func NewDecrypter(key, iv []byte) (*Cipher, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	ivCopy := append([]byte(nil), iv...)
	return &Cipher{mode: ModeDecrypt, iv: ivCopy, bm: cipher.NewCBCDecrypter(block, ivCopy)}, nil
}

func newBlock(key, iv []byte) (cipher.Block, error) {
	if len(key) != DataKeySize {
		return nil, fmt.Errorf("invalid key size for AES-256: expected %d bytes, got %d", DataKeySize, len(key))
	}
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("bad iv size: %d", len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	return block, nil
}

// Mode reports whether c encrypts or decrypts.
func (c *Cipher) Mode() Mode { return c.mode }

// IV returns a copy of the IV the cipher was seeded with.
func (c *Cipher) IV() []byte { return append([]byte(nil), c.iv...) }

// Algorithm returns the content encryption algorithm id.
func (c *Cipher) Algorithm() string { return CEKAlgAESCBC }

// Update transforms p and returns whatever output is ready. Output may lag
// input by up to one block; the remainder is released by Final.
func (c *Cipher) Update(p []byte) ([]byte, error) {
	if c.finalized {
		return nil, ErrCipherFinalized
	}
	c.buf = append(c.buf, p...)

	n := len(c.buf) - len(c.buf)%BlockSize
	// decryption holds back the last full block: it may carry the padding
	if c.mode == ModeDecrypt && n == len(c.buf) && n > 0 {
		n -= BlockSize
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	c.bm.CryptBlocks(out, c.buf[:n])
	c.buf = append(c.buf[:0], c.buf[n:]...)
	return out, nil
}

// Final flushes the cipher. Encryption pads the pending bytes to a full block
// (always adding 1..16 bytes). Decryption checks the final block and strips
// its padding, returning ErrInvalidCiphertext on any mismatch.
func (c *Cipher) Final() ([]byte, error) {
	if c.finalized {
		return nil, ErrCipherFinalized
	}
	c.finalized = true
	defer clear(c.buf)

	if c.mode == ModeEncrypt {
		padded := pkcs5Pad(c.buf)
		out := make([]byte, len(padded))
		c.bm.CryptBlocks(out, padded)
		return out, nil
	}

	if len(c.buf) != BlockSize {
		return nil, fmt.Errorf("%w: input not a multiple of the block size", ErrInvalidCiphertext)
	}
	out := make([]byte, BlockSize)
	c.bm.CryptBlocks(out, c.buf)
	return pkcs5Unpad(out)
}

func pkcs5Pad(p []byte) []byte {
	n := BlockSize - len(p)%BlockSize
	padded := make([]byte, len(p)+n)
	copy(padded, p)
	for i := len(p); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs5Unpad(block []byte) ([]byte, error) {
	n := int(block[len(block)-1])
	if n == 0 || n > BlockSize {
		return nil, fmt.Errorf("%w: bad padding", ErrInvalidCiphertext)
	}
	want := make([]byte, n)
	for i := range want {
		want[i] = byte(n)
	}
	if subtle.ConstantTimeCompare(block[len(block)-n:], want) != 1 {
		return nil, fmt.Errorf("%w: bad padding", ErrInvalidCiphertext)
	}
	return block[:len(block)-n], nil
}
