package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/grasp-labs/ds-envelope-go-sdk/envelope"
)

func main() {
	ctx := context.Background()

	// AWS provider
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		panic(err)
	}
	provider, err := envelope.NewKeyProvider(kms.NewFromConfig(awsCfg), os.Getenv("DSENVELOPE_KMS_KEY_ID"))
	if err != nil {
		panic(err)
	}

	// encrypt: one KMS GenerateDataKey call, fresh key and IV
	m, err := provider.ForEncryption(ctx)
	if err != nil {
		panic(err)
	}
	ct, err := io.ReadAll(envelope.NewReader(m.Cipher, bytes.NewReader([]byte("hello world"))))
	if err != nil {
		panic(err)
	}
	fmt.Println("envelope:", m.Envelope.Metadata())

	// decrypt: one KMS Decrypt call bound to the stored matdesc
	c, err := provider.ForDecryption(ctx, m.Envelope)
	if err != nil {
		panic(err)
	}
	pt, err := io.ReadAll(envelope.NewReader(c, bytes.NewReader(ct)))
	if err != nil {
		panic(err)
	}
	fmt.Println("plaintext:", string(pt))
}
