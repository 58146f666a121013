package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"imoveis-importer/utils"
)

// S3Config holds configuration for the image bucket.
type S3Config struct {
	Bucket    string // bucket name
	Prefix    string // key prefix for every object
	Region    string // default: us-east-1
	Endpoint  string // custom endpoint for S3-compatible storage (MinIO, etc.)
	AccessKey string // optional, default credential chain when empty
	SecretKey string
	// PublicBaseURL is where the bucket is served from. Derived from the endpoint
	// or the AWS virtual-hosted URL when empty.
	PublicBaseURL string
}

// objectPutter is the subset of *s3.Client used by S3Store.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads migrated images to an S3-compatible bucket.
type S3Store struct {
	client objectPutter
	config S3Config
	logger *utils.Logger
}

// NewS3Store builds the AWS client from cfg.
func NewS3Store(cfg S3Config, logger *utils.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // MinIO
		})
	}

	store := newS3Store(s3.NewFromConfig(awsCfg, s3Opts...), cfg, logger)
	logger.With("bucket", cfg.Bucket).With("prefix", cfg.Prefix).
		Info("[storage] S3 store ready, public base %s", store.config.PublicBaseURL)
	return store, nil
}

func newS3Store(client objectPutter, cfg S3Config, logger *utils.Logger) *S3Store {
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = defaultPublicBaseURL(cfg)
	}
	cfg.PublicBaseURL = strings.TrimSuffix(cfg.PublicBaseURL, "/")
	return &S3Store{client: client, config: cfg, logger: logger}
}

func defaultPublicBaseURL(cfg S3Config) string {
	if cfg.Endpoint != "" {
		return strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
}

// fullKey returns the object key including the configured prefix.
func (s *S3Store) fullKey(path string) string {
	path = strings.TrimPrefix(path, "/")
	if s.config.Prefix == "" {
		return path
	}
	return strings.TrimSuffix(s.config.Prefix, "/") + "/" + path
}

// Upload stores data under path with the given content type.
func (s *S3Store) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	key := s.fullKey(path)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.config.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3: put %s: %w", key, err)
	}
	s.logger.Debug("[storage] Uploaded %s (%d bytes)", key, len(data))
	return nil
}

// PublicURL returns the URL the object at path is served from.
func (s *S3Store) PublicURL(path string) string {
	return s.config.PublicBaseURL + "/" + s.fullKey(path)
}

// Owns reports whether url points into this store.
func (s *S3Store) Owns(url string) bool {
	base := s.config.PublicBaseURL + "/"
	if s.config.Prefix != "" {
		base += strings.Trim(s.config.Prefix, "/") + "/"
	}
	return strings.HasPrefix(url, base)
}
