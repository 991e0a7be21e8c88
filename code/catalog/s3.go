package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/xz3dev/quacklytics-sub000/code/checksum"
)

// S3Config locates partition files in a bucket
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
}

// S3Client is the subset of the S3 API the source uses
type S3Client interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads partitions exported to S3. Checksums are object ETags, which equal the
// content MD5 for single-part uploads.
type S3Source struct {
	client S3Client
	cfg    S3Config
	log    *zap.Logger
}

// NewS3Source builds an S3 client from cfg, falling back to the default AWS credential chain
// when no static keys are set.
func NewS3Source(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}
	return NewS3SourceWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg, logger), nil
}

func NewS3SourceWithClient(client S3Client, cfg S3Config, logger *zap.Logger) *S3Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Source{client: client, cfg: cfg, log: logger.Named("s3")}
}

func (s *S3Source) Checksums(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(s.cfg.Prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.cfg.Bucket, s.cfg.Prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, s.cfg.Prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			etag := checksum.Normalize(aws.ToString(obj.ETag))
			if strings.Contains(etag, "-") {
				// multipart ETags are not content digests
				s.log.Warn("object has a multipart etag, it will be downloaded on every sync", zap.String("key", key))
			}
			out[path.Base(name)] = etag
		}
	}
	return out, nil
}

func (s *S3Source) Download(ctx context.Context, filename, eventType string) ([]byte, error) {
	if eventType != "" {
		s.log.Debug("s3 source ignores the event type filter", zap.String("event_type", eventType))
	}
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.cfg.Prefix + filename),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("download %s: %w", filename, ErrNotFound)
		}
		return nil, fmt.Errorf("download %s: %w", filename, err)
	}
	defer func() { _ = resp.Body.Close() }()

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	return blob, nil
}
