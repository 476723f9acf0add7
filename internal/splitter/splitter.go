// Package splitter implements the stream splitter (§4.7): a transparent
// node that fans the main chain into an independently-driven subgraph
// (recording, HLS segmenting, memory-mapped views) without the main
// consumer observing any difference. Grounded on original_source's
// stream_splitter.cpp.
package splitter

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/node"
	"github.com/zsiec/svpipe/internal/perr"
)

// Splitter is a Node that passes every frame through unchanged while also
// pushing a reference of each frame into an attached subgraph. The
// subgraph's own deepest source is the splitter itself: reading from the
// subgraph recursively re-enters the splitter's ReadFrame, which serves
// frames from source_frames instead of pulling new ones from upstream.
type Splitter struct {
	node.Base

	// graphMu serializes subgraph substitution (AssignSubgraph) against
	// concurrent structural reads of subgraph/subgraphRoot.
	graphMu sync.Mutex
	// dataMu guards source_frames and the re-entrance guard flags
	// touched on every ReadFrame call.
	dataMu sync.Mutex

	subgraph     node.Node
	subgraphRoot node.Node
	sourceFrames *frame.List

	successfullyOpened bool
	subgraphRead       bool
	subgraphOpening    bool
	subgraphClosing    bool
	subgraphSetLogCB   bool
	flushingSubgraph   bool
}

// New constructs a Splitter named name with no subgraph attached.
func New(name string, log *slog.Logger) *Splitter {
	s := &Splitter{sourceFrames: frame.NewList()}
	s.Base = node.NewBase(s, name, log)
	return s
}

var _ node.Node = (*Splitter)(nil)

// findSubgraphRoot walks n's source chain to the node whose own source is
// nil or splitter: the point at which the subgraph attaches to the main
// chain and where SetSource(splitter, ...) / SetSource(nil, ...) apply.
func findSubgraphRoot(n node.Node, splitter node.Node) node.Node {
	for n.Source() != nil && n.Source() != splitter {
		n = n.Source()
	}
	return n
}

// SetLogger propagates to the subgraph, guarded against re-entrance from
// the subgraph's own logger plumbing calling back through this node.
func (s *Splitter) SetLogger(log *slog.Logger) {
	if s.subgraphSetLogCB {
		return
	}
	s.graphMu.Lock()
	subgraph := s.subgraph
	s.graphMu.Unlock()
	if subgraph != nil {
		s.subgraphSetLogCB = true
		subgraph.SetLogger(log)
		s.subgraphSetLogCB = false
	}
	s.Base.SetLogger(log)
}

// AssignSubgraph wires subgraph in place of any previously-attached one,
// closing the old one first (set_param("subgraph", ...)).
func (s *Splitter) AssignSubgraph(subgraph node.Node) error {
	s.graphMu.Lock()
	defer s.graphMu.Unlock()
	return s.assignSubgraphLocked(subgraph)
}

func (s *Splitter) assignSubgraphLocked(subgraph node.Node) error {
	if subgraph == s.subgraph {
		return nil
	}

	if s.subgraph != nil {
		s.subgraphClosing = true
		if s.subgraphRoot != nil {
			s.subgraphRoot.SetSource(nil, 0)
		}
		s.subgraph.Close()
		s.subgraph = nil
		s.subgraphRoot = nil
		s.subgraphClosing = false
	}

	if subgraph == nil {
		s.dataMu.Lock()
		s.sourceFrames.Clear()
		s.dataMu.Unlock()
		return nil
	}

	root := findSubgraphRoot(subgraph, s)
	if err := root.SetSource(s, node.SourceAlreadyInitialized); err != nil {
		return err
	}
	s.subgraph = subgraph
	s.subgraphRoot = root

	s.subgraphSetLogCB = true
	subgraph.SetLogger(s.Log())
	s.subgraphSetLogCB = false

	if s.successfullyOpened {
		if err := s.openSubgraphNoLock(context.Background()); err != nil {
			s.subgraph = nil
			s.subgraphRoot = nil
			return err
		}
	}
	return nil
}

// openSubgraphNoLock assumes graphMu is already held by the caller (Go's
// sync.Mutex isn't reentrant, so AssignSubgraph calls this directly
// instead of going through OpenIn's locking wrapper).
func (s *Splitter) openSubgraphNoLock(ctx context.Context) error {
	if s.subgraph == nil {
		return nil
	}
	s.subgraphOpening = true
	err := s.subgraph.OpenIn(ctx)
	s.subgraphOpening = false
	return err
}

// OpenIn opens the main chain, then the subgraph if one is attached.
func (s *Splitter) OpenIn(ctx context.Context) error {
	if s.subgraphOpening {
		return nil
	}
	if err := s.Base.OpenIn(ctx); err != nil {
		return err
	}
	s.successfullyOpened = true

	s.graphMu.Lock()
	defer s.graphMu.Unlock()
	return s.openSubgraphNoLock(ctx)
}

// runSubgraph drains the subgraph: reads frames from it until it returns
// no frame (or an error), discarding each since downstream of the
// subgraph is not something the main chain observes.
func (s *Splitter) runSubgraph(ctx context.Context) {
	s.graphMu.Lock()
	subgraph := s.subgraph
	s.graphMu.Unlock()
	if subgraph == nil {
		return
	}

	s.dataMu.Lock()
	s.subgraphRead = true
	s.dataMu.Unlock()

	for {
		fr, err := subgraph.ReadFrame(ctx)
		if err != nil || fr == nil {
			break
		}
		fr.Unref()
	}

	s.dataMu.Lock()
	s.subgraphRead = false
	s.dataMu.Unlock()
}

// ReadFrame reads the next frame from upstream, forwards it downstream
// unchanged, and (if a subgraph is attached) stashes a reference for the
// subgraph before driving it to completion. When called recursively from
// within the subgraph's own chain (subgraphRead is set), it instead
// serves frames from source_frames rather than reading upstream again.
func (s *Splitter) ReadFrame(ctx context.Context) (frame.Frame, error) {
	if s.Base.Source() == nil {
		s.dataMu.Lock()
		flushing := s.flushingSubgraph
		s.dataMu.Unlock()
		if flushing {
			return nil, nil
		}
		return nil, &perr.UnattachedError{Op: "read_frame"}
	}

	s.dataMu.Lock()
	recursing := s.subgraphRead
	s.dataMu.Unlock()

	if recursing {
		s.dataMu.Lock()
		defer s.dataMu.Unlock()
		if !s.sourceFrames.Empty() {
			return s.sourceFrames.PopFront(), nil
		}
		if s.flushingSubgraph {
			return nil, perr.EndOfStream
		}
		return nil, nil
	}

	fr, err := s.Base.ReadFrame(ctx)
	if err != nil {
		return nil, err
	}

	s.graphMu.Lock()
	hasSubgraph := s.subgraph != nil
	s.graphMu.Unlock()

	if fr != nil && hasSubgraph {
		s.dataMu.Lock()
		s.sourceFrames.PushBack(fr)
		s.dataMu.Unlock()
	}

	s.runSubgraph(ctx)
	return fr, nil
}

// Close flushes the subgraph (one final drain pass, so segment writers
// etc. can finalize) before detaching and closing it, then closes
// upstream.
func (s *Splitter) Close() error {
	s.graphMu.Lock()
	closing := s.subgraphClosing
	hasSubgraph := s.subgraph != nil
	s.graphMu.Unlock()
	if closing {
		return nil
	}

	if hasSubgraph {
		s.dataMu.Lock()
		s.flushingSubgraph = true
		s.dataMu.Unlock()

		s.runSubgraph(context.Background())

		s.dataMu.Lock()
		s.flushingSubgraph = false
		s.dataMu.Unlock()
	}

	if err := s.AssignSubgraph(nil); err != nil {
		return err
	}
	return s.Base.Close()
}

// SetParam handles "subgraph" (assign) and "subgraph.<param>" (forward to
// the subgraph root), falling back to Base's default forwarding for
// everything else.
func (s *Splitter) SetParam(name string, value any) error {
	if rest, ok := scoped(name, "subgraph"); ok {
		s.graphMu.Lock()
		subgraph := s.subgraph
		s.graphMu.Unlock()
		if subgraph == nil {
			return &perr.UnattachedError{Op: "set_param"}
		}
		return subgraph.SetParam(rest, value)
	}
	if name == "subgraph" {
		newSubgraph, _ := value.(node.Node)
		return s.AssignSubgraph(newSubgraph)
	}
	return s.Base.SetParam(name, value)
}

// GetParam is the read-side counterpart of SetParam.
func (s *Splitter) GetParam(name string) (any, error) {
	if rest, ok := scoped(name, "subgraph"); ok {
		s.graphMu.Lock()
		subgraph := s.subgraph
		s.graphMu.Unlock()
		if subgraph == nil {
			return nil, &perr.UnattachedError{Op: "get_param"}
		}
		return subgraph.GetParam(rest)
	}
	if name == "subgraph" {
		s.graphMu.Lock()
		defer s.graphMu.Unlock()
		return s.subgraph, nil
	}
	return s.Base.GetParam(name)
}

// scoped reports whether name is prefixed with "<prefix>." and, if so,
// returns the remainder.
func scoped(name, prefix string) (string, bool) {
	full := prefix + "."
	if strings.HasPrefix(name, full) {
		return strings.TrimPrefix(name, full), true
	}
	return "", false
}
