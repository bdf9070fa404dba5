package evidence

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Alliance-Chemical/order-management-sub001/internal/config"
	"github.com/Alliance-Chemical/order-management-sub001/internal/evidence/drivers"
)

// NewStorageFromConfig builds the storage driver selected by configuration.
func NewStorageFromConfig(ctx context.Context, cfg config.StorageConfig) (StorageDriver, error) {
	switch cfg.Driver {
	case "local":
		driver, err := drivers.NewLocalFSDriver(cfg.LocalBasePath, cfg.LocalBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create local storage driver: %w", err)
		}
		return driver, nil

	case "s3":
		opts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.S3Region),
		}
		if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
			))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3Endpoint != "" {
				o.BaseEndpoint = &cfg.S3Endpoint
			}
			o.UsePathStyle = cfg.S3UsePathStyle
		})
		return drivers.NewS3Driver(client, cfg.S3Bucket, cfg.S3PublicURL), nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}
