package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// ErrExists is returned when the final path for a new object is already taken.
var ErrExists = errors.New("stored path already exists")

// Placer lays out uploaded objects under a media root as
// <kind>/<yyyy>/<mm>/<dd>/<slug>.<ext>. Stored paths are slash separated and
// relative to the root, so they can be persisted and resolved later unchanged.
type Placer struct {
	fs afero.Fs
}

// NewLocalPlacer roots a Placer at dir on the local filesystem, creating it if needed.
func NewLocalPlacer(dir string) (*Placer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return NewPlacer(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// NewPlacer wraps an arbitrary afero filesystem whose root is the media root.
func NewPlacer(fs afero.Fs) *Placer {
	return &Placer{fs: fs}
}

// PathFor derives the stored path for a new object created at t.
func PathFor(kind, slug, ext string, t time.Time) string {
	return path.Join(kind, t.Format("2006"), t.Format("01"), t.Format("02"), slug+"."+ext)
}

// Place writes body to a temporary file next to its final location and renames it
// into place, so a reader never sees a partially written object. The final file is
// world-readable and owner-writable. The date partition comes from createdAt, the
// creation time recorded alongside the object. It returns the stored path and the
// number of bytes persisted.
func (p *Placer) Place(kind, slug, ext string, createdAt time.Time, body io.Reader) (string, int64, error) {
	storedPath := PathFor(kind, slug, ext, createdAt)
	final := filepath.FromSlash(storedPath)
	dir := filepath.Dir(final)

	// MkdirAll treats existing directories as success, so concurrent uploads on the same day are fine
	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create directory %s: %w", dir, err)
	}
	if exists, err := afero.Exists(p.fs, final); err != nil {
		return "", 0, fmt.Errorf("stat %s: %w", storedPath, err)
	} else if exists {
		return "", 0, fmt.Errorf("%s: %w", storedPath, ErrExists)
	}

	tmp, err := afero.TempFile(p.fs, dir, "."+slug+"-*.part")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	written, err := io.Copy(tmp, body)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = p.fs.Remove(tmpName)
		return "", 0, fmt.Errorf("write %s: %w", storedPath, err)
	}

	if err := p.fs.Rename(tmpName, final); err != nil {
		_ = p.fs.Remove(tmpName)
		return "", 0, fmt.Errorf("move into %s: %w", storedPath, err)
	}
	if err := p.fs.Chmod(final, 0o644); err != nil {
		_ = p.fs.Remove(final)
		return "", 0, fmt.Errorf("chmod %s: %w", storedPath, err)
	}
	return storedPath, written, nil
}

// Remove deletes a stored object. A missing file counts as already deleted.
func (p *Placer) Remove(storedPath string) error {
	name, err := p.resolve(storedPath)
	if err != nil {
		return err
	}
	if err := p.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", storedPath, err)
	}
	return nil
}

// Open returns the stored object for reading.
func (p *Placer) Open(storedPath string) (afero.File, error) {
	name, err := p.resolve(storedPath)
	if err != nil {
		return nil, err
	}
	return p.fs.Open(name)
}

// resolve rejects stored paths that would leave the media root.
func (p *Placer) resolve(storedPath string) (string, error) {
	clean := path.Clean("/" + storedPath)
	if clean == "/" || strings.Contains(storedPath, "..") {
		return "", fmt.Errorf("invalid stored path %q", storedPath)
	}
	return filepath.FromSlash(strings.TrimPrefix(clean, "/")), nil
}
