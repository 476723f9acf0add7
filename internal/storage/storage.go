// Package storage implements the buffered-file remote persistence
// backend (§4.18): once internal/buffile's Registry.Commit has saved a
// finalized segment locally, an optional Uploader pushes the same bytes
// to Azure Blob Storage under the segment's registry key; an upload
// failure is logged and the segment stays at its local destination. When
// the local commit itself fails, the registry's local-temp-path fallback
// (§4.10, §7) saves a ".retry" copy, no upload is attempted, and an
// fsnotify.Watcher on that fallback directory notifies
// operators/automation that a clip needs manual pickup. Grounded on
// alxayo-rtmp-go/azure/blob-sidecar's azidentity/azblob dependency
// declarations and alxayo-rtmp-go's use of fsnotify for watched-directory
// notification — that submodule carries no implementation, only a
// go.mod, so this package's concrete SDK calls are not pattern-grounded
// the way the rest of the tree is; see DESIGN.md.
package storage

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/zsiec/svpipe/internal/buffile"
)

// Uploader pushes a finalized segment's bytes to a remote object store
// under key. The production Uploader wraps an Azure Blob container
// client; tests inject a fake.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) error
}

// PickupNotifier is told about a fallback file that needs manual
// pickup because the destination commit failed (no cloud upload is
// attempted in that case). The production notifier is backed by
// fsnotify; tests inject a
// channel-backed fake.
type PickupNotifier interface {
	Events() <-chan string
	Close() error
}

// Backend wraps a buffile.Registry with an optional cloud upload step
// run after a successful local commit.
type Backend struct {
	registry *buffile.Registry
	uploader Uploader
	log      *slog.Logger
}

// NewBackend constructs a Backend committing through registry and, when
// uploader is non-nil, additionally pushing committed segments to the
// cloud. A nil uploader makes Commit behave exactly like a bare
// registry commit — useful for deployments without cloud storage
// configured.
func NewBackend(registry *buffile.Registry, uploader Uploader, log *slog.Logger) *Backend {
	return &Backend{registry: registry, uploader: uploader, log: log}
}

// Commit saves the staged file f to destPath via the registry (which
// falls back to a local retry copy on failure, per §4.10), then, if the
// local commit succeeded and an uploader is configured, also pushes the
// same bytes to the cloud under key. An upload failure is logged but
// does not fail Commit: the segment is already durable on local disk.
func (b *Backend) Commit(ctx context.Context, f *buffile.File, destPath, key string) error {
	if err := b.registry.Commit(destPath); err != nil {
		return err
	}
	if b.uploader == nil {
		return nil
	}

	var buf bytes.Buffer
	if err := f.Save(&buf); err != nil {
		if b.log != nil {
			b.log.Error("storage: re-read committed segment for upload failed", "key", key, "error", err)
		}
		return nil
	}
	if err := b.uploader.Upload(ctx, key, buf.Bytes()); err != nil {
		if b.log != nil {
			b.log.Error("storage: cloud upload failed, segment remains local-only", "key", key, "error", err)
		}
	}
	return nil
}
