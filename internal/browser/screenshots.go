package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xkilldash9x/claimgate/api/schemas"
	"go.uber.org/zap"
)

// Screenshotter writes checkpoint captures to <dir>/<stage>/<identifier>_<ms>.png.
type Screenshotter struct {
	dir     string
	enabled bool
	logger  *zap.Logger
	now     func() time.Time
}

// NewScreenshotter returns a writer rooted at dir. A disabled writer is a no-op.
func NewScreenshotter(dir string, enabled bool, logger *zap.Logger) *Screenshotter {
	return &Screenshotter{
		dir:     dir,
		enabled: enabled,
		logger:  logger.Named("screenshots"),
		now:     time.Now,
	}
}

// Capture grabs the viewport and writes it for stage. It returns the written
// path, or "" when capturing is disabled.
func (s *Screenshotter) Capture(ctx context.Context, page schemas.Page, stage, identifier string) (string, error) {
	if s == nil || !s.enabled {
		return "", nil
	}
	png, err := page.Screenshot(ctx)
	if err != nil {
		return "", err
	}

	stageDir := filepath.Join(s.dir, stage)
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot directory: %w", err)
	}
	path := filepath.Join(stageDir, fmt.Sprintf("%s_%d.png", identifier, s.now().UTC().UnixMilli()))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	s.logger.Debug("Checkpoint captured.", zap.String("stage", stage), zap.String("path", path))
	return path, nil
}
