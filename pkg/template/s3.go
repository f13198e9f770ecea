package template

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Config holds the configuration for an S3 template source.
type S3Config struct {
	Bucket string `mapstructure:"bucket" validate:"required" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// Endpoint overrides the S3 endpoint (MinIO, localstack). Path-style
	// addressing is enabled whenever an endpoint is set.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// Static credentials. When empty the default AWS credential chain is
	// used.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
}

// S3Source serves templates from key prefixes in an S3 bucket: the objects
// of template "default" live under <prefix>/default/.
type S3Source struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ Source = (*S3Source)(nil)

// NewS3Source creates an S3-backed template source.
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 template source: bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	var s3Opts []func(*awsconfig.LoadOptions) error
	s3Opts = append(s3Opts, awsconfig.WithRegion(region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		s3Opts = append(s3Opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, s3Opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for localstack/MinIO
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return NewS3SourceWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3SourceWithClient wraps an existing S3 client.
func NewS3SourceWithClient(client *s3.Client, bucket, prefix string) *S3Source {
	return &S3Source{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// List returns the template ids, derived from the common key prefixes one
// level below the source prefix.
func (s *S3Source) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root := s.rootPrefix()
	var ids []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(root),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list templates in s3://%s/%s: %w", s.bucket, root, err)
		}
		for _, cp := range page.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			id := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, root), "/")
			if id != "" {
				ids = append(ids, id)
			}
		}
	}

	sort.Strings(ids)
	return ids, nil
}

// ReadFile downloads one object from the template's key prefix.
func (s *S3Source) ReadFile(ctx context.Context, templateID, relPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean, err := cleanRelPath(relPath)
	if err != nil {
		return nil, err
	}

	key := s.objectKey(templateID, clean)
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("template %s: read %s: %w", templateID, clean, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to get object s3://%s/%s: %w", s.bucket, key, err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

// Walk downloads every object under the template's key prefix in key order.
func (s *S3Source) Walk(ctx context.Context, templateID string, fn WalkFunc) error {
	if templateID == "" || strings.Contains(templateID, "/") {
		return fmt.Errorf("%w: invalid template id %q", ErrTemplateNotFound, templateID)
	}

	root := s.templatePrefix(templateID)
	seen := false

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(root),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, root, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			rel := strings.TrimPrefix(*obj.Key, root)
			if rel == "" || strings.HasSuffix(rel, "/") {
				continue
			}
			seen = true

			content, err := s.ReadFile(ctx, templateID, rel)
			if err != nil {
				return err
			}
			if err := fn(rel, content); err != nil {
				return err
			}
		}
	}

	if !seen {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
	}
	return nil
}

func (s *S3Source) rootPrefix() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

func (s *S3Source) templatePrefix(templateID string) string {
	return s.rootPrefix() + templateID + "/"
}

func (s *S3Source) objectKey(templateID, relPath string) string {
	return s.templatePrefix(templateID) + relPath
}

// isNotFoundError returns true if the error indicates the object doesn't exist.
func isNotFoundError(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || code == "404"
	}
	return false
}
