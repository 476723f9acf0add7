package nodes

import (
	"context"
	"log/slog"

	"github.com/zsiec/svpipe/internal/fps"
	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/node"
)

// FPSLimiter is a passthrough Node wrapping an fps.Limiter: it reports
// every frame to the limiter and, on Reject, substitutes a zero-payload
// MediaVideoTime marker (carrying the rejected frame's timestamps and
// dimensions) instead of dropping the timeline silently, unless Silence
// is set (§4.4, §4.5).
type FPSLimiter struct {
	node.Base
	limiter *fps.Limiter
	silence bool
}

// NewFPSLimiter constructs an FPSLimiter. silence suppresses the
// video-time-marker substitution, dropping rejected frames outright.
func NewFPSLimiter(name string, log *slog.Logger, opts fps.Options, silence bool) *FPSLimiter {
	n := &FPSLimiter{limiter: fps.New(opts), silence: silence}
	n.Base = node.NewBase(n, name, log)
	return n
}

var _ node.Node = (*FPSLimiter)(nil)

// SetParam handles "desiredFps" and "silence", falling back to Base.
func (n *FPSLimiter) SetParam(name string, value any) error {
	switch name {
	case "desiredFps":
		if v, ok := value.(float64); ok {
			n.limiter.SetDesiredFPS(v)
			return nil
		}
	case "silence":
		if v, ok := value.(bool); ok {
			n.silence = v
			return nil
		}
	}
	return n.Base.SetParam(name, value)
}

// GetParam exposes "measuredFps" alongside Base's default forwarding.
func (n *FPSLimiter) GetParam(name string) (any, error) {
	if name == "measuredFps" {
		return n.limiter.FPS(), nil
	}
	return n.Base.GetParam(name)
}

// ReadFrame pulls one frame from upstream and reports it to the limiter;
// non-video frames (and video-time markers, which carry no payload to
// drop) pass through unreported.
func (n *FPSLimiter) ReadFrame(ctx context.Context) (frame.Frame, error) {
	fr, err := n.Base.ReadFrame(ctx)
	if err != nil || fr == nil {
		return fr, err
	}
	if fr.MediaType() != frame.MediaVideo {
		return fr, nil
	}

	if n.limiter.Report(fr.PTS()) == fps.Accept {
		return fr, nil
	}

	if n.silence {
		fr.Unref()
		return nil, nil
	}
	marker := frame.NewVideoTimeMarker(fr.PTS(), fr.DTS(), fr.Width(), fr.Height())
	fr.Unref()
	return marker, nil
}
