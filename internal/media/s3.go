package media

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store reads sources from and writes artifacts to S3 or an
// S3-compatible service.
type S3Store struct {
	client *s3.Client
	bucket string
}

// S3Options configures NewS3Store. Empty keys fall back to the default
// AWS credential chain.
type S3Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

func NewS3Store(ctx context.Context, o S3Options) (*S3Store, error) {
	if o.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(o.Region)}
	if o.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(o.Endpoint))
	}
	if o.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{AccessKeyID: o.AccessKey, SecretAccessKey: o.SecretKey}, nil
			})))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		so.UsePathStyle = o.PathStyle
	})
	return &S3Store{client: client, bucket: o.Bucket}, nil
}

// Bucket is where artifacts are uploaded.
func (s *S3Store) Bucket() string { return s.bucket }

// Download writes s3://bucket/key to dst.
func (s *S3Store) Download(ctx context.Context, bucket, key, dst string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	if err := writeFile(dst, out.Body); err != nil {
		return fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// Upload puts localPath at key and returns its s3:// reference.
func (s *S3Store) Upload(ctx context.Context, key, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(fi.Size()),
		ContentType:   aws.String(contentType(localPath)),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func contentType(p string) string {
	switch ext := filepath.Ext(p); ext {
	case ".mp4":
		return "video/mp4"
	case ".vtt":
		return "text/vtt"
	case ".yaml":
		return "application/yaml"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
