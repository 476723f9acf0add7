// Package runtime drives node graphs end to end: Pump repeatedly calls
// a chain's outermost ReadFrame until it reaches end of stream or hits
// an error, and Runtime tracks one such pump loop per active stream key
// so a single misbehaving pipeline can be stopped without tearing down
// the others. Grounded on internal/stream's Manager for the
// create/remove/list shape, and on zsiec-prism/cmd/prism/main.go's
// split between long-lived listeners joined through
// golang.org/x/sync/errgroup and per-connection goroutines spawned
// outside that group so one stream's failure doesn't cancel every
// other stream.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zsiec/svpipe/internal/node"
	"github.com/zsiec/svpipe/internal/perr"
)

// Pump opens root's source chain and repeatedly reads frames from it
// until the chain reports end of stream or ctx is cancelled (both return
// nil) or a read fails (returns the error). Every frame read is
// released immediately: Pump exists to drive terminal sink nodes
// (recorders, network sinks, audio/mmap outputs) whose side effects
// happen inside ReadFrame itself, not to hand frames to a caller.
// root is always closed before returning.
func Pump(ctx context.Context, root node.Node, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	if err := root.OpenIn(ctx); err != nil {
		return fmt.Errorf("runtime: open %s: %w", root.Name(), err)
	}
	defer func() {
		if err := root.Close(); err != nil {
			log.Error("runtime: close failed", "node", root.Name(), "error", err)
		}
	}()

	for {
		fr, err := root.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, perr.EndOfStream) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("runtime: read %s: %w", root.Name(), err)
		}
		if fr != nil {
			fr.Unref()
		}
	}
}

// pipeline tracks one active pump loop so Runtime.Stop can cancel it
// independently of every other running stream.
type pipeline struct {
	root   node.Node
	cancel context.CancelFunc
	done   chan struct{}
}

// Runtime runs one node graph per stream key, joined to a parent
// context but individually cancellable.
type Runtime struct {
	log *slog.Logger

	mu        sync.Mutex
	pipelines map[string]*pipeline
}

// New constructs a Runtime. If log is nil, slog.Default() is used.
func New(log *slog.Logger) *Runtime {
	if log == nil {
		log = slog.Default()
	}
	return &Runtime{
		log:       log.With("component", "runtime"),
		pipelines: make(map[string]*pipeline),
	}
}

// Start spawns a pump loop for root under key, derived from ctx so a
// parent shutdown stops every pipeline, but independently cancellable
// via Stop. Returns an error without starting anything if key is
// already running.
func (r *Runtime) Start(ctx context.Context, key string, root node.Node) error {
	r.mu.Lock()
	if _, exists := r.pipelines[key]; exists {
		r.mu.Unlock()
		return fmt.Errorf("runtime: stream %q already running", key)
	}
	pctx, cancel := context.WithCancel(ctx)
	p := &pipeline{root: root, cancel: cancel, done: make(chan struct{})}
	r.pipelines[key] = p
	r.mu.Unlock()

	r.log.Info("pipeline starting", "key", key)
	go func() {
		defer close(p.done)
		err := Pump(pctx, root, r.log)
		r.mu.Lock()
		delete(r.pipelines, key)
		r.mu.Unlock()
		if err != nil {
			r.log.Error("pipeline ended with error", "key", key, "error", err)
		} else {
			r.log.Info("pipeline ended", "key", key)
		}
	}()
	return nil
}

// Stop cancels the running pipeline for key, if any, and blocks until
// its pump loop has exited and its root node has been closed.
func (r *Runtime) Stop(key string) {
	r.mu.Lock()
	p, ok := r.pipelines[key]
	r.mu.Unlock()
	if !ok {
		return
	}
	p.cancel()
	<-p.done
}

// Active returns the keys of every currently running pipeline.
func (r *Runtime) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.pipelines))
	for k := range r.pipelines {
		keys = append(keys, k)
	}
	return keys
}

// StopAll cancels every running pipeline and waits for each to exit.
func (r *Runtime) StopAll() {
	r.mu.Lock()
	keys := make([]string, 0, len(r.pipelines))
	for k := range r.pipelines {
		keys = append(keys, k)
	}
	r.mu.Unlock()
	for _, k := range keys {
		r.Stop(k)
	}
}
