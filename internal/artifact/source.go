package artifact

import (
	"context"
	"fmt"

	"github.com/kurihiro0119/order-import-sync/internal/config"
	"github.com/kurihiro0119/order-import-sync/internal/domain"
)

// Source locates the newest report file to import
type Source interface {
	// Latest returns the newest artifact, or a NO_ARTIFACT_AVAILABLE error when there is none
	Latest(ctx context.Context) (*domain.ImportArtifact, error)
}

// New builds the source selected by ARTIFACT_SOURCE
func New(cfg *config.Config) (Source, error) {
	switch cfg.ArtifactSource {
	case "s3":
		src, err := NewS3Source(S3Options{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	case "local", "":
		return NewLocalSource(cfg.ArtifactDir, cfg.ArtifactPattern), nil
	default:
		return nil, fmt.Errorf("unknown artifact source %q", cfg.ArtifactSource)
	}
}
