// Package capture implements the local capture source (§4.16): a thin
// source Node pulling raw frames from a platform capture device.
// Grounded on original_source/localVideoLib/srcMac/localCapture.hpp,
// treated as an external collaborator reached through a single pull
// call, and on purego's role in e1z0-QAnotherRTSP as the CGo-free native
// binding mechanism that would back such a call in production.
package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/node"
	"github.com/zsiec/svpipe/internal/perr"
)

// CaptureFunc pulls one raw frame's pixel payload from the platform
// capture device, observing ctx for cancellation mid-pull. Production
// call sites obtain one from NewPuregoCaptureFunc; tests inject a
// deterministic stand-in, since no capture hardware is present here.
type CaptureFunc func(ctx context.Context) ([]byte, error)

// Node is a thin source Node wrapping a CaptureFunc collaborator.
type Node struct {
	node.Base

	capture CaptureFunc

	captureFps, requestFps float64
	rotation               int
	width, height          int
	pixfmt                 frame.PixelFormat
}

var _ node.Node = (*Node)(nil)

// New constructs a capture source node. width/height describe the
// frame geometry capture produces; they are also settable via SetParam
// before OpenIn if not yet known at construction time.
func New(name string, capture CaptureFunc, width, height int, log *slog.Logger) *Node {
	n := &Node{capture: capture, width: width, height: height, pixfmt: frame.PixfmtRGB24}
	n.Base = node.NewBase(n, name, log)
	return n
}

// SetParam handles captureFps, requestFps, rotation, width, height; this
// is a source node, so there is no upstream to fall back to.
func (n *Node) SetParam(name string, value any) error {
	switch name {
	case "captureFps":
		if v, ok := toFloat(value); ok {
			n.captureFps = v
			return nil
		}
	case "requestFps":
		if v, ok := toFloat(value); ok {
			n.requestFps = v
			return nil
		}
	case "rotation":
		if v, ok := value.(int); ok {
			n.rotation = v
			return nil
		}
	case "width":
		if v, ok := value.(int); ok {
			n.width = v
			return nil
		}
	case "height":
		if v, ok := value.(int); ok {
			n.height = v
			return nil
		}
	}
	return &perr.UnknownParameterError{Name: name}
}

// GetParam reports captureFps, requestFps, rotation, width, height.
func (n *Node) GetParam(name string) (any, error) {
	switch name {
	case "captureFps":
		return n.captureFps, nil
	case "requestFps":
		return n.requestFps, nil
	case "rotation":
		return n.rotation, nil
	case "width":
		return n.width, nil
	case "height":
		return n.height, nil
	}
	return nil, &perr.UnknownParameterError{Name: name}
}

// OpenIn is a no-op: the capture device is already live behind capture,
// there is nothing further to initialize here.
func (n *Node) OpenIn(ctx context.Context) error { return nil }

func (n *Node) Width() int                    { return n.width }
func (n *Node) Height() int                   { return n.height }
func (n *Node) PixelFormat() frame.PixelFormat { return n.pixfmt }

// ReadFrame pulls one raw frame from the device and wraps it as a
// ByteBufferFrame stamped with a millisecond wall-clock PTS, matching
// the convention used by sources that do not themselves carry a
// transport timestamp.
func (n *Node) ReadFrame(ctx context.Context) (frame.Frame, error) {
	data, err := n.capture(ctx)
	if err != nil {
		return nil, &perr.IoError{Op: "capture", Err: err}
	}

	f := frame.NewByteBufferFrame(frame.MediaVideo)
	buf, err := f.WritableBuffer(len(data))
	if err != nil {
		return nil, err
	}
	copy(buf, data)

	pts := time.Now().UnixMilli()
	f.SetTimestamps(pts, pts)
	f.SetDimensions(n.width, n.height, n.pixfmt)
	f.SetKeyframe(true)
	return f, nil
}

// Close is a no-op: CaptureFunc owns the device's lifetime.
func (n *Node) Close() error { return nil }

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}
