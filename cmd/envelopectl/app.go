package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/grasp-labs/ds-envelope-go-sdk/envelope"
	"github.com/grasp-labs/ds-envelope-go-sdk/internal/config"
	"github.com/grasp-labs/ds-envelope-go-sdk/internal/retry"
)

// app holds the clients built from one configuration.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	awsCfg   aws.Config
	provider *envelope.KeyProvider
	retrier  *retry.Retrier
}

func newApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*app, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, err
	}

	opts := []envelope.Option{envelope.WithLogger(log)}
	if cfg.Metrics.Enabled {
		opts = append(opts, envelope.WithMetrics(envelope.NewMetrics(prometheus.DefaultRegisterer)))
		go serveMetrics(cfg.Metrics.ListenAddr, log)
	}

	kmsClient := kms.NewFromConfig(awsCfg)
	var provider *envelope.KeyProvider
	if cfg.KMS.KeyID != "" {
		provider, err = envelope.NewKeyProvider(kmsClient, cfg.KMS.KeyID, opts...)
	} else {
		src := envelope.NewSSMKeyIDSource(ssm.NewFromConfig(awsCfg), cfg.KMS.ParameterTTL)
		provider, err = envelope.NewKeyProviderFromSSM(ctx, src, cfg.KMS.KeyIDParameter, kmsClient, opts...)
	}
	if err != nil {
		return nil, err
	}
	log.WithField("key_id", provider.KeyID()).Debug("key provider ready")

	return &app{
		cfg:      cfg,
		log:      log,
		awsCfg:   awsCfg,
		provider: provider,
		retrier: retry.NewRetrier(retry.BackOffOpts{
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
			MaxElapsedTime:  cfg.Retry.MaxElapsedTime,
		}, log),
	}, nil
}

func (a *app) objectClient() *envelope.ObjectClient {
	var s3Options []func(*s3.Options)
	if a.cfg.AWS.S3Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(a.cfg.AWS.S3Endpoint)
			o.UsePathStyle = true
		})
	}
	return envelope.NewObjectClient(s3.NewFromConfig(a.awsCfg, s3Options...), a.provider)
}

func (a *app) recordClient(ctx context.Context) (*envelope.Client, error) {
	if a.cfg.Storage.DatabaseDSN == "" {
		return nil, errors.New("storage.database_dsn is required for records")
	}
	repo, err := envelope.NewPostgresEnvelopeRepository(a.cfg.Storage.DatabaseDSN, a.cfg.Storage.Table)
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		return nil, err
	}
	return envelope.NewClient(repo, a.provider), nil
}

func serveMetrics(addr string, log logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Warn("metrics server stopped")
	}
}
