// Package publish copies persisted chunk files to object storage.
package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Client is the subset of S3 operations the publisher needs.
type Client interface {
	UploadFile(ctx context.Context, bucket, key, localPath string) error
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
}

// S3Client implements Client using the AWS SDK v2.
type S3Client struct {
	s3Client *s3.Client
}

// NewS3Client creates an S3 client with the given profile and region.
func NewS3Client(ctx context.Context, profile, region string) (*S3Client, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &S3Client{s3Client: s3.NewFromConfig(cfg)}, nil
}

// UploadFile uploads a local file.
func (c *S3Client) UploadFile(ctx context.Context, bucket, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening file %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("uploading file to s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// ListKeys returns every object key under prefix.
func (c *S3Client) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing objects under s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Uploader publishes chunk files under a bucket prefix.
type Uploader struct {
	client Client
	bucket string
	prefix string
}

// NewUploader creates a publisher for s3://bucket/prefix/.
func NewUploader(client Client, bucket, prefix string) *Uploader {
	return &Uploader{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Key returns the object key for a local file.
func (u *Uploader) Key(localPath string) string {
	return path.Join(u.prefix, filepath.Base(localPath))
}

// URI returns the s3:// location of a local file once published.
func (u *Uploader) URI(localPath string) string {
	return fmt.Sprintf("s3://%s/%s", u.bucket, u.Key(localPath))
}

// Publish uploads one file and returns its URI.
func (u *Uploader) Publish(ctx context.Context, localPath string) (string, error) {
	if err := u.client.UploadFile(ctx, u.bucket, u.Key(localPath), localPath); err != nil {
		return "", err
	}
	return u.URI(localPath), nil
}

// Published returns the base names already present under the prefix.
func (u *Uploader) Published(ctx context.Context) (map[string]bool, error) {
	p := u.prefix
	if p != "" {
		p += "/"
	}
	keys, err := u.client.ListKeys(ctx, u.bucket, p)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[path.Base(k)] = true
	}
	return out, nil
}
