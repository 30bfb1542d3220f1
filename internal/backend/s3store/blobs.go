// Package s3store stores listing images in an S3-compatible bucket
// (AWS S3, Supabase Storage's S3 endpoint, MinIO).
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/vindennt/webcarros/internal/backend"
)

// Options configures the bucket connection.
type Options struct {
	Bucket string
	Region string

	// Endpoint overrides the AWS endpoint for S3-compatible services.
	Endpoint string

	// Static credentials; when empty the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// PublicBaseURL prefixes object keys to build download URLs. Defaults to
	// the bucket's virtual-hosted (or path-style, with Endpoint) URL.
	PublicBaseURL string
}

// Blobs implements backend.Blobs on S3.
type Blobs struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	baseURL  string
}

// New loads the AWS configuration and builds the S3 client.
func New(ctx context.Context, opts Options) (*Blobs, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 blob store requires a bucket")
	}

	loadOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Blobs{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   opts.Bucket,
		baseURL:  publicBaseURL(opts, cfg.Region),
	}, nil
}

func publicBaseURL(opts Options, region string) string {
	if opts.PublicBaseURL != "" {
		return strings.TrimRight(opts.PublicBaseURL, "/")
	}
	if opts.Endpoint != "" {
		return strings.TrimRight(opts.Endpoint, "/") + "/" + opts.Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, region)
}

func (b *Blobs) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("uploading %s: %w", path, err)
	}
	return nil
}

func (b *Blobs) Delete(ctx context.Context, path string) error {
	// DeleteObject succeeds on missing keys; check first so a stale draft
	// entry reports not found like the other stores.
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return fmt.Errorf("blob %s: %w", path, backend.ErrNotFound)
		}
		return fmt.Errorf("checking %s: %w", path, err)
	}

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	return nil
}

func (b *Blobs) URL(ctx context.Context, path string) (string, error) {
	return ObjectURL(b.baseURL, path), nil
}

// ObjectURL joins a base URL and an object key, escaping each path segment.
func ObjectURL(baseURL, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return baseURL + "/" + strings.Join(segments, "/")
}

// Compile-time check that Blobs implements backend.Blobs
var _ backend.Blobs = (*Blobs)(nil)
