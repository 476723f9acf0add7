// Package node defines the uniform operation vocabulary every pipeline
// stage implements (§4.1): source chaining, parameter dispatch, open/seek/
// read/close, and diagnostic rendering. Base supplies the default
// forwarders ("forward to source, report error if no source"); concrete
// nodes embed Base and override only the operations they change.
package node

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/perr"
)

// SetSourceFlags modifies SetSource behavior.
type SetSourceFlags uint8

const (
	// SourceAlreadyInitialized tells OpenIn not to call open_in on this
	// source again; the caller has already opened it (e.g. when splicing
	// a node into an already-running chain).
	SourceAlreadyInitialized SetSourceFlags = 1 << iota
)

// InsertFlags modifies InsertElement behavior.
type InsertFlags uint8

const (
	// InsertOpenImmediately calls OpenIn on the newly spliced node once
	// it is wired in.
	InsertOpenImmediately InsertFlags = 1 << iota
)

// SeekFlags selects seek direction/behavior bits.
type SeekFlags uint8

const (
	SeekForward SeekFlags = 1 << iota
	SeekBackward
)

// Node is the operation vocabulary every pipeline stage exposes (§4.1).
type Node interface {
	Name() string
	Source() Node
	SetSource(src Node, flags SetSourceFlags) error
	SetLogger(log *slog.Logger)

	FindElement(name string) Node
	InsertElement(before, newNode Node, flags InsertFlags) error
	RemoveElement(name string, wantRemoved bool) (Node, error)

	SetParam(name string, value any) error
	GetParam(name string) (any, error)

	OpenIn(ctx context.Context) error
	Seek(ctx context.Context, offsetMs int64, flags SeekFlags) error

	Width() int
	Height() int
	PixelFormat() frame.PixelFormat

	ReadFrame(ctx context.Context) (frame.Frame, error)
	Passthrough() bool

	PrintPipeline(w io.Writer)
	Close() error
	SetModuleTraceLevel(n int)
}

// Base implements every default forwarder described in §4.1. Concrete
// nodes embed Base and override only the operations they change; self
// must be set to the embedding concrete node so cycle detection and
// chain walks see the real type rather than *Base.
type Base struct {
	self Node
	name string
	log  *slog.Logger

	source            Node
	sourceInitialized bool
	passthrough       bool
}

// NewBase constructs a Base for the concrete node self, identified by
// name, logging through log (or slog.Default() if nil).
func NewBase(self Node, name string, log *slog.Logger) Base {
	if log == nil {
		log = slog.Default()
	}
	return Base{self: self, name: name, log: log}
}

// Log returns the node's current logger.
func (b *Base) Log() *slog.Logger { return b.log }

// Name returns the assigned name.
func (b *Base) Name() string { return b.name }

// Source returns the current upstream node, or nil.
func (b *Base) Source() Node { return b.source }

// Passthrough reports whether read_frame may skip this node.
func (b *Base) Passthrough() bool { return b.passthrough }

// SetPassthrough marks this node as skippable by the default ReadFrame
// chain walk. Concrete nodes that transform data must leave this false.
func (b *Base) SetPassthrough(v bool) { b.passthrough = v }

// SetSource assigns the upstream node, rejecting wiring that would
// introduce a cycle.
func (b *Base) SetSource(src Node, flags SetSourceFlags) error {
	if src != nil && introducesCycle(b.self, src) {
		return &perr.CyclicGraphError{Name: b.name}
	}
	b.source = src
	b.sourceInitialized = flags&SourceAlreadyInitialized != 0
	return nil
}

func introducesCycle(self, candidate Node) bool {
	for n := candidate; n != nil; n = n.Source() {
		if n == self {
			return true
		}
	}
	return false
}

// SetLogger replaces the log callback and propagates it to the source.
func (b *Base) SetLogger(log *slog.Logger) {
	b.log = log
	if b.source != nil {
		b.source.SetLogger(log)
	}
}

// FindElement returns the node with the given name in the chain rooted
// at self, or the immediate source if name is empty; nil if not found.
func (b *Base) FindElement(name string) Node {
	if name == "" {
		return b.source
	}
	for n := b.self; n != nil; n = n.Source() {
		if n.Name() == name {
			return n
		}
	}
	return nil
}

// InsertElement splices newNode between before and its source, or at the
// head of the chain if before is nil.
func (b *Base) InsertElement(before, newNode Node, flags InsertFlags) error {
	if before == nil {
		root := b.self
		for root.Source() != nil {
			root = root.Source()
		}
		if err := root.SetSource(newNode, 0); err != nil {
			return err
		}
	} else {
		oldSrc := before.Source()
		if err := newNode.SetSource(oldSrc, SourceAlreadyInitialized); err != nil {
			return err
		}
		if err := before.SetSource(newNode, SourceAlreadyInitialized); err != nil {
			return err
		}
	}
	if flags&InsertOpenImmediately != 0 {
		return newNode.OpenIn(context.Background())
	}
	return nil
}

// RemoveElement unlinks the named node. If wantRemoved, an extra
// reference (the node itself) is returned instead of being closed.
func (b *Base) RemoveElement(name string, wantRemoved bool) (Node, error) {
	target := b.FindElement(name)
	if target == nil {
		return nil, &perr.UnattachedError{Op: "remove_element"}
	}
	var parent Node
	for n := b.self; n != nil; n = n.Source() {
		if n.Source() == target {
			parent = n
			break
		}
	}
	if parent == nil {
		return nil, &perr.UnattachedError{Op: "remove_element"}
	}
	if err := parent.SetSource(target.Source(), SourceAlreadyInitialized); err != nil {
		return nil, err
	}
	if wantRemoved {
		return target, nil
	}
	target.Close()
	return nil, nil
}

// SetParam strips a "<node_name>." prefix addressed to this node, then
// forwards to the source. Concrete nodes override to handle their own
// keys before falling back to Base.SetParam.
func (b *Base) SetParam(name string, value any) error {
	if b.source == nil {
		return &perr.UnknownParameterError{Name: name}
	}
	return b.source.SetParam(stripPrefix(name, b.name), value)
}

// GetParam is the read-side counterpart of SetParam.
func (b *Base) GetParam(name string) (any, error) {
	if b.source == nil {
		return nil, &perr.UnknownParameterError{Name: name}
	}
	return b.source.GetParam(stripPrefix(name, b.name))
}

func stripPrefix(name, nodeName string) string {
	prefix := nodeName + "."
	if nodeName != "" && strings.HasPrefix(name, prefix) {
		return strings.TrimPrefix(name, prefix)
	}
	return name
}

// OpenIn initializes the chain, opening the source first unless it was
// already marked initialized via SetSource's flags.
func (b *Base) OpenIn(ctx context.Context) error {
	if b.source == nil {
		return &perr.UnattachedError{Op: "open_in"}
	}
	if b.sourceInitialized {
		return nil
	}
	if err := b.source.OpenIn(ctx); err != nil {
		return err
	}
	b.sourceInitialized = true
	return nil
}

// Seek forwards to the source; flags select direction.
func (b *Base) Seek(ctx context.Context, offsetMs int64, flags SeekFlags) error {
	if b.source == nil {
		return &perr.UnattachedError{Op: "seek"}
	}
	return b.source.Seek(ctx, offsetMs, flags)
}

// Width forwards to the source, or reports 0 if unattached.
func (b *Base) Width() int {
	if b.source == nil {
		return 0
	}
	return b.source.Width()
}

// Height forwards to the source, or reports 0 if unattached.
func (b *Base) Height() int {
	if b.source == nil {
		return 0
	}
	return b.source.Height()
}

// PixelFormat forwards to the source, or reports Undefined if unattached.
func (b *Base) PixelFormat() frame.PixelFormat {
	if b.source == nil {
		return frame.PixfmtUndefined
	}
	return b.source.PixelFormat()
}

// ReadFrame skips passthrough nodes in the chain, then delegates to the
// first non-passthrough upstream node.
func (b *Base) ReadFrame(ctx context.Context) (frame.Frame, error) {
	n := b.source
	for n != nil && n.Passthrough() {
		n = n.Source()
	}
	if n == nil {
		return nil, &perr.UnattachedError{Op: "read_frame"}
	}
	return n.ReadFrame(ctx)
}

// PrintPipeline renders the chain from self down to its root, one node
// per line, innermost (root) last.
func (b *Base) PrintPipeline(w io.Writer) {
	var names []string
	for n := Node(b.self); n != nil; n = n.Source() {
		names = append(names, n.Name())
	}
	for i, name := range names {
		fmt.Fprintf(w, "%*s%s\n", i*2, "", name)
	}
}

// Close closes the source and releases the reference to it. Idempotent.
func (b *Base) Close() error {
	if b.source == nil {
		return nil
	}
	err := b.source.Close()
	b.source = nil
	return err
}

// SetModuleTraceLevel propagates per-module verbosity upstream.
func (b *Base) SetModuleTraceLevel(n int) {
	if b.source != nil {
		b.source.SetModuleTraceLevel(n)
	}
}
