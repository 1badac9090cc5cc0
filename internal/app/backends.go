// Package app builds the storage backends named on the command line.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"vidshare/internal/config"
	"vidshare/internal/content"
	"vidshare/internal/jobs"
	"vidshare/internal/sqldb"
)

// Backends holds lazily created AWS clients so binaries that never touch AWS
// do not need credentials.
type Backends struct {
	Config *config.Config

	aws *aws.Config
}

func (b *Backends) awsConfig(ctx context.Context) (aws.Config, error) {
	if b.aws != nil {
		return *b.aws, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}
	b.aws = &cfg
	return cfg, nil
}

// OpenMetadata opens the relational database for METADATA_TYPE sqlite or
// postgres.
func (b *Backends) OpenMetadata(ctx context.Context, typ, options string) (*sqldb.DB, error) {
	db, err := sqldb.Open(ctx, typ, options)
	if err != nil {
		return nil, fmt.Errorf("metadata service %s: %w", typ, err)
	}
	return db, nil
}

// OpenContent builds the store for CONTENT_TYPE fs, s3 or minio. Minio
// options have the form host:port/bucket.
func (b *Backends) OpenContent(ctx context.Context, typ, options string) (content.Store, error) {
	switch typ {
	case "fs":
		store, err := content.NewFSStore(options)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "s3":
		bucket := options
		if bucket == "" {
			bucket = content.GetS3BucketFromEnv()
		}
		cfg, err := b.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return content.NewS3Store(s3.NewFromConfig(cfg), bucket), nil
	case "minio":
		endpoint, bucket, ok := strings.Cut(options, "/")
		if !ok || endpoint == "" || bucket == "" {
			return nil, fmt.Errorf("minio options must be <endpoint>/<bucket>, got %q", options)
		}
		store, err := content.NewMinioStore(ctx, content.MinioOptions{
			Endpoint:  endpoint,
			Bucket:    bucket,
			AccessKey: b.Config.MinioAccessKey,
			SecretKey: b.Config.MinioSecretKey,
			Secure:    b.Config.MinioSecure,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported content service type: %s", typ)
	}
}

// OpenJobStore returns the job store selected by JOB_STORE.
func (b *Backends) OpenJobStore(ctx context.Context, db *sqldb.DB) (jobs.Store, error) {
	if b.Config.JobStore == config.JobStoreDynamoDB {
		cfg, err := b.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		store, err := jobs.NewDynamoDBStore(dynamodb.NewFromConfig(cfg), b.Config.JobsTable)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := jobs.NewSQLStore(ctx, db)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// SQSClient returns a client for SQS_QUEUE_URL.
func (b *Backends) SQSClient(ctx context.Context) (*sqs.Client, error) {
	cfg, err := b.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	return sqs.NewFromConfig(cfg), nil
}
