// Package codec wraps FFmpeg codec/scale/resample contexts as thin Nodes
// (§4.13): DecodeNode, EncodeNode, ResizeNode, and ResampleNode each pull
// one upstream frame, run it through a Transformer, and return the
// result. The Transformer boundary is where the codec engine lives
// (production: go-astiav bindings, internal/codec/astiav.go); the node's
// parameter/read_frame bookkeeping is independent of that engine and is
// what is tested here. Grounded on e1z0-QAnotherRTSP's go-astiav/
// go-astikit usage and original_source's stream_ffmpeg.cpp /
// stream_ffmpeg_encoder.cpp control flow.
package codec

import (
	"context"
	"log/slog"

	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/node"
	"github.com/zsiec/svpipe/internal/perr"
)

// Transformer converts one frame into another (decoded picture, encoded
// packet, resized picture, or resampled audio). Implementations own
// whatever codec-library resources they allocate and release them from
// Close.
type Transformer interface {
	Transform(in frame.Frame) (frame.Frame, error)
	Close() error
}

// TransformerFunc adapts a function to a Transformer with a no-op Close,
// handy for tests and for stateless transforms.
type TransformerFunc func(in frame.Frame) (frame.Frame, error)

func (f TransformerFunc) Transform(in frame.Frame) (frame.Frame, error) { return f(in) }
func (f TransformerFunc) Close() error                                 { return nil }

// stage is the shared shape of every codec Node: pull one upstream
// frame, pass it to xform when it matches the handled media type,
// otherwise forward it unchanged. params holds the well-known parameter
// values documented for this node kind (§6); Base.SetParam/GetParam is
// the fallback for anything this node doesn't recognize.
type stage struct {
	node.Base
	xform    Transformer
	handles  frame.MediaType
	params   map[string]any
}

func newStage(self node.Node, name string, log *slog.Logger, xform Transformer, handles frame.MediaType, knownParams ...string) stage {
	params := make(map[string]any, len(knownParams))
	for _, k := range knownParams {
		params[k] = nil
	}
	s := stage{xform: xform, handles: handles, params: params}
	s.Base = node.NewBase(self, name, log)
	return s
}

func (s *stage) SetParam(name string, value any) error {
	if _, known := s.params[name]; known {
		s.params[name] = value
		return nil
	}
	return s.Base.SetParam(name, value)
}

func (s *stage) GetParam(name string) (any, error) {
	if v, known := s.params[name]; known {
		if v == nil {
			return nil, &perr.UnknownParameterError{Name: name}
		}
		return v, nil
	}
	return s.Base.GetParam(name)
}

// ReadFrame pulls one upstream frame and runs it through xform when its
// media type matches handles; every other media type passes through
// unchanged, per §4.13's "parameters flow through" contract.
func (s *stage) ReadFrame(ctx context.Context) (frame.Frame, error) {
	in, err := s.Base.ReadFrame(ctx)
	if err != nil || in == nil {
		return in, err
	}
	if in.MediaType() != s.handles {
		return in, nil
	}
	out, err := s.xform.Transform(in)
	in.Unref()
	return out, err
}

// Close closes the transformer's codec resources before closing upstream.
func (s *stage) Close() error {
	var xerr error
	if s.xform != nil {
		xerr = s.xform.Close()
	}
	if err := s.Base.Close(); err != nil {
		return err
	}
	return xerr
}
