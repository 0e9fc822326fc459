package s3

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/memorykeep/docsync/pkg/errors"
)

// ClientManager handles S3 client creation and management
type ClientManager struct {
	client      *s3.Client
	transporter *cargoships3.Transporter
	config      *Config
	logger      *slog.Logger
}

// NewClientManager creates a new S3 client manager
func NewClientManager(ctx context.Context, cfg *Config, logger *slog.Logger) (*ClientManager, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if cfg.Bucket == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "bucket name cannot be empty").
			WithComponent("s3-client")
	}
	if logger == nil {
		logger = slog.Default().With("component", "s3-client")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(cfg.MaxRetries),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigLoad, "failed to load AWS config").
			WithComponent("s3-client")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	var transporter *cargoships3.Transporter
	if cfg.EnableCargoShipOptimization {
		// documents are tiny, so multipart never kicks in; the transporter
		// only contributes its congestion-aware single-part path
		cargoConfig := awsconfig.S3Config{
			Bucket:             cfg.Bucket,
			StorageClass:       awsconfig.StorageClassStandard,
			MultipartThreshold: 32 * 1024 * 1024,
			MultipartChunkSize: 16 * 1024 * 1024,
			Concurrency:        cfg.Concurrency,
		}
		transporter = cargoships3.NewTransporter(client, cargoConfig)
		logger.Info("CargoShip S3 optimization enabled", "concurrency", cfg.Concurrency)
	}

	return &ClientManager{
		client:      client,
		transporter: transporter,
		config:      cfg,
		logger:      logger,
	}, nil
}

// GetClient returns the main S3 client
func (cm *ClientManager) GetClient() *s3.Client {
	return cm.client
}

// GetTransporter returns the CargoShip transporter if available
func (cm *ClientManager) GetTransporter() *cargoships3.Transporter {
	return cm.transporter
}

// IsCargoShipEnabled returns whether CargoShip optimization is enabled
func (cm *ClientManager) IsCargoShipEnabled() bool {
	return cm.transporter != nil
}

// HealthCheck verifies the bucket is reachable
func (cm *ClientManager) HealthCheck(ctx context.Context) error {
	_, err := cm.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cm.config.Bucket),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeNetworkError, "S3 health check failed").
			WithComponent("s3-client").
			WithContext("bucket", cm.config.Bucket)
	}
	return nil
}
