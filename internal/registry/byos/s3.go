package byos

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3FetcherConfig holds the optional knobs NewS3Fetcher needs beyond
// what a bucket/key BYOS URL carries: the AWS region and an optional
// custom endpoint for S3-compatible stores (MinIO, etc.), mirroring
// Mindburn-Labs-helm's S3StoreConfig.
type S3FetcherConfig struct {
	Region   string
	Endpoint string
}

// S3Fetcher fetches a pack object from AWS S3 (or an S3-compatible
// endpoint), addressed by an "s3://<bucket>/<key>" reference.
type S3Fetcher struct {
	client *s3.Client
}

// NewS3Fetcher builds a fetcher from the default AWS credential chain.
func NewS3Fetcher(ctx context.Context, cfg S3FetcherConfig) (*S3Fetcher, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("byos: loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Fetcher{client: client}, nil
}

// Fetch downloads the object named by an s3:// URL.
func (f *S3Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	bucket, key, err := parseURL(url, "s3")
	if err != nil {
		return nil, err
	}
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("byos: fetching %s: %w", url, err)
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}
