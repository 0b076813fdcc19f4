package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
)

// LocalSource picks the newest file in a directory
type LocalSource struct {
	dir     string
	pattern string
}

// NewLocalSource creates a source over dir; pattern is a filepath.Match glob
func NewLocalSource(dir, pattern string) *LocalSource {
	if pattern == "" {
		pattern = "*"
	}
	return &LocalSource{dir: dir, pattern: pattern}
}

// Latest returns the most recently modified matching file; ties go to the greater name
func (s *LocalSource) Latest(ctx context.Context) (*domain.ImportArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNoArtifactError(fmt.Sprintf("directory %s does not exist", s.dir))
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.dir, err)
	}

	var best os.FileInfo
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		ok, err := filepath.Match(s.pattern, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("invalid artifact pattern %q: %w", s.pattern, err)
		}
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if best == nil || newer(info, best) {
			best = info
		}
	}
	if best == nil {
		return nil, apperrors.NewNoArtifactError(fmt.Sprintf("no file matching %q in %s", s.pattern, s.dir))
	}

	content, err := os.ReadFile(filepath.Join(s.dir, best.Name()))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", best.Name(), err)
	}
	return domain.NewImportArtifact(best.Name(), content, best.ModTime()), nil
}

func newer(a, b os.FileInfo) bool {
	if a.ModTime().Equal(b.ModTime()) {
		return a.Name() > b.Name()
	}
	return a.ModTime().After(b.ModTime())
}
