package artifact

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
)

// S3Options configures an S3 or MinIO bucket source
type S3Options struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// S3Source picks the newest object under a prefix
type S3Source struct {
	client *minio.Client
	opts   S3Options
}

// NewS3Source creates a source backed by minio-go
func NewS3Source(opts S3Options) (*S3Source, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("endpoint and bucket are required")
	}

	endpoint := opts.Endpoint
	useSSL := opts.UseSSL
	if u, err := url.Parse(opts.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: useSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &S3Source{client: client, opts: opts}, nil
}

// Latest downloads the object with the most recent LastModified; ties go to the greater key
func (s *S3Source) Latest(ctx context.Context) (*domain.ImportArtifact, error) {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var best *minio.ObjectInfo
	for obj := range s.client.ListObjects(listCtx, s.opts.Bucket, minio.ListObjectsOptions{
		Prefix:    s.opts.Prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list %s/%s: %w", s.opts.Bucket, s.opts.Prefix, obj.Err)
		}
		if obj.Size == 0 && len(obj.Key) > 0 && obj.Key[len(obj.Key)-1] == '/' {
			continue
		}
		if best == nil || obj.LastModified.After(best.LastModified) ||
			(obj.LastModified.Equal(best.LastModified) && obj.Key > best.Key) {
			o := obj
			best = &o
		}
	}
	if best == nil {
		return nil, apperrors.NewNoArtifactError(fmt.Sprintf("no objects under %s/%s", s.opts.Bucket, s.opts.Prefix))
	}

	reader, err := s.client.GetObject(ctx, s.opts.Bucket, best.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", best.Key, err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", best.Key, err)
	}
	return domain.NewImportArtifact(path.Base(best.Key), content, best.LastModified), nil
}
