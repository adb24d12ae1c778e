package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grasp-labs/ds-envelope-go-sdk/envelope"
	"github.com/grasp-labs/ds-envelope-go-sdk/internal/config"
)

func newRootCommand(log *logrus.Logger) *cobra.Command {
	var configPath string
	var a *app

	root := &cobra.Command{
		Use:           "envelopectl",
		Short:         "Envelope-encrypt objects and records with AWS KMS data keys",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			a, err = newApp(cmd.Context(), cfg, log)
			return err
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to config.yaml")

	getApp := func() *app { return a }
	root.AddCommand(
		newPutCommand(getApp),
		newGetCommand(getApp),
		newInspectCommand(getApp),
		newSealCommand(getApp),
		newOpenCommand(getApp),
	)
	return root
}

func bucketOrDefault(a *app, bucket string) (string, error) {
	if bucket == "" {
		bucket = a.cfg.Storage.Bucket
	}
	if bucket == "" {
		return "", errors.New("--bucket or storage.bucket is required")
	}
	return bucket, nil
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func newPutCommand(getApp func() *app) *cobra.Command {
	var bucket, in string
	cmd := &cobra.Command{
		Use:   "put KEY",
		Short: "Encrypt a file and upload it to S3 with its envelope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			b, err := bucketOrDefault(a, bucket)
			if err != nil {
				return err
			}
			data, err := readInput(in)
			if err != nil {
				return err
			}
			oc := a.objectClient()
			var env *envelope.Envelope
			_, err = a.retrier.Do(cmd.Context(), func(ctx context.Context) error {
				env, err = oc.PutObject(ctx, b, args[0], bytes.NewReader(data))
				return err
			})
			if err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{"bucket": b, "key": args[0], "bytes": len(data)}).Info("object stored")
			return printJSON(env.Metadata())
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "S3 bucket")
	cmd.Flags().StringVarP(&in, "in", "i", "-", "input file, - for stdin")
	return cmd
}

func newGetCommand(getApp func() *app) *cobra.Command {
	var bucket, out string
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Download an object from S3 and decrypt it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			b, err := bucketOrDefault(a, bucket)
			if err != nil {
				return err
			}
			oc := a.objectClient()
			var pt []byte
			_, err = a.retrier.Do(cmd.Context(), func(ctx context.Context) error {
				rc, err := oc.GetObject(ctx, b, args[0])
				if err != nil {
					return err
				}
				defer rc.Close()
				pt, err = io.ReadAll(rc)
				return err
			})
			if err != nil {
				return err
			}
			return writeOutput(out, pt)
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "S3 bucket")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	return cmd
}

func newInspectCommand(getApp func() *app) *cobra.Command {
	var bucket string
	cmd := &cobra.Command{
		Use:   "inspect KEY",
		Short: "Print the envelope stored on an S3 object without decrypting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			b, err := bucketOrDefault(a, bucket)
			if err != nil {
				return err
			}
			env, err := a.objectClient().HeadEnvelope(cmd.Context(), b, args[0])
			if err != nil {
				return err
			}
			return printJSON(env)
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "S3 bucket")
	return cmd
}

func newSealCommand(getApp func() *app) *cobra.Command {
	var in string
	var labels []string
	cmd := &cobra.Command{
		Use:   "seal NAME",
		Short: "Encrypt a small blob and store it as a database record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			lm, err := parseLabels(labels)
			if err != nil {
				return err
			}
			data, err := readInput(in)
			if err != nil {
				return err
			}
			client, err := a.recordClient(cmd.Context())
			if err != nil {
				return err
			}
			var rec *envelope.EnvelopeRecord
			_, err = a.retrier.Do(cmd.Context(), func(ctx context.Context) error {
				rec, err = client.Seal(ctx, args[0], data, lm)
				return err
			})
			if err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{"name": rec.Name, "id": rec.ID.String()}).Info("record sealed")
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "-", "input file, - for stdin")
	cmd.Flags().StringSliceVarP(&labels, "label", "l", nil, "label as key=value, repeatable")
	return cmd
}

func newOpenCommand(getApp func() *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "open NAME",
		Short: "Decrypt a sealed database record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			client, err := a.recordClient(cmd.Context())
			if err != nil {
				return err
			}
			var pt []byte
			_, err = a.retrier.Do(cmd.Context(), func(ctx context.Context) error {
				pt, err = client.Open(ctx, args[0])
				return err
			})
			if err != nil {
				return err
			}
			return writeOutput(out, pt)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	return cmd
}

func parseLabels(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	labels := make(map[string]string, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid label %q, want key=value", kv)
		}
		labels[k] = v
	}
	return labels, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
