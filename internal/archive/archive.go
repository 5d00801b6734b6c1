// Package archive keeps dated copies of downloaded spreadsheets. The archive
// directory is an append-only collection; re-running on the same day replaces
// that day's copy.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Archiver copies files into a dated-name history directory.
type Archiver struct {
	dir string
}

// New creates an Archiver writing into dir.
func New(dir string) *Archiver {
	return &Archiver{dir: dir}
}

// Dir returns the archive directory.
func (a *Archiver) Dir() string {
	return a.dir
}

// Archive copies srcPath into the archive directory as
// <name>_<YYYY-MM-DD><ext> and returns the archived path.
func (a *Archiver) Archive(ctx context.Context, srcPath string, now time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	content, err := os.ReadFile(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s for archiving: %w", srcPath, err)
	}

	base := filepath.Base(srcPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	archivePath := filepath.Join(a.dir, fmt.Sprintf("%s_%s%s", name, now.Format("2006-01-02"), ext))

	if err := os.WriteFile(archivePath, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write archive copy: %w", err)
	}

	log.Info().
		Str("source", srcPath).
		Str("archive", archivePath).
		Int("bytes", len(content)).
		Msg("Archived CSV copy")

	return archivePath, nil
}
