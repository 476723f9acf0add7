package buffile

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Registry tracks in-flight staged Files keyed by their eventual
// destination path, so a muxer can buffer a segment entirely in memory and
// move it into place only once it is complete (§4.10).
type Registry struct {
	mu       sync.Mutex
	files    map[string]*File
	chunkSz  int
	maxSz    int
	fallback string // directory for the secondary save-to-disk fallback
	log      *slog.Logger
}

// NewRegistry constructs a Registry. fallbackDir is where Commit saves a
// retry copy if the atomic move to the destination fails; empty disables
// the fallback.
func NewRegistry(chunkSize, maxSize int, fallbackDir string, log *slog.Logger) *Registry {
	return &Registry{
		files:    make(map[string]*File),
		chunkSz:  chunkSize,
		maxSz:    maxSize,
		fallback: fallbackDir,
		log:      log,
	}
}

// Stage creates (or returns the existing) in-memory File for destPath.
func (r *Registry) Stage(destPath string) *File {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.files[destPath]; ok {
		return f
	}
	f := New(destPath, r.chunkSz, r.maxSz)
	r.files[destPath] = f
	return f
}

// Commit saves the staged File for destPath directly to destPath and
// removes it from the registry. On failure it falls back to saving into
// r.fallback under the same base name, preserving the data for a later
// retry, and returns the original error.
func (r *Registry) Commit(destPath string) error {
	r.mu.Lock()
	f, ok := r.files[destPath]
	if ok {
		delete(r.files, destPath)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("buffile: no staged file for %s", destPath)
	}

	err := f.SaveToPath(destPath)
	if err == nil {
		return nil
	}
	if r.log != nil {
		r.log.Error("staged file commit failed, falling back to local retry copy", "dest", destPath, "error", err)
	}
	if r.fallback != "" {
		fallbackPath := r.fallback + string(os.PathSeparator) + baseName(destPath) + ".retry"
		if ferr := f.SaveToPath(fallbackPath); ferr != nil && r.log != nil {
			r.log.Error("fallback save also failed", "path", fallbackPath, "error", ferr)
		} else if ferr == nil && r.log != nil {
			r.log.Warn("staged file preserved for retry", "path", fallbackPath)
		}
	}
	return err
}

// Discard drops a staged File without saving it.
func (r *Registry) Discard(destPath string) {
	r.mu.Lock()
	delete(r.files, destPath)
	r.mu.Unlock()
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == os.PathSeparator {
			return path[i+1:]
		}
	}
	return path
}
