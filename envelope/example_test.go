package envelope_test

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/grasp-labs/ds-envelope-go-sdk/envelope"
	"github.com/grasp-labs/ds-envelope-go-sdk/internal/fakes"
)

// This example encrypts a message under a fresh data key and decrypts it
// again from nothing but the envelope. In production the KMS client is
// kms.NewFromConfig(awsCfg).
func ExampleKeyProvider() {
	ctx := context.Background()
	provider, _ := envelope.NewKeyProvider(&fakes.KMS{}, "alias/orders")

	m, _ := provider.ForEncryption(ctx)
	ciphertext, _ := io.ReadAll(envelope.NewReader(m.Cipher, bytes.NewReader([]byte("hello world"))))

	// store ciphertext together with m.Envelope.Metadata(), then later:

	c, _ := provider.ForDecryption(ctx, m.Envelope)
	plaintext, _ := io.ReadAll(envelope.NewReader(c, bytes.NewReader(ciphertext)))
	fmt.Println(m.Envelope.MatDesc)
	fmt.Println(string(plaintext))
	// Output:
	// {"kms_cmk_id":"alias/orders"}
	// hello world
}
