// Package demuxsrc wraps an MPEG-TS demuxer as a source Node satisfying
// the External Source Contract (§4.9): open_in starts the demux loop,
// read_frame pulls the next reassembled access unit and hands it out as a
// PacketFrame tagged with codec, keyframe flag, and millisecond PTS/DTS.
// Grounded on the teacher's internal/demux.Demuxer (accumulator/PES
// reassembly already implemented there).
package demuxsrc

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zsiec/ccx"

	"github.com/zsiec/svpipe/internal/demux"
	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/media"
	"github.com/zsiec/svpipe/internal/node"
	"github.com/zsiec/svpipe/internal/perr"
)

// demuxer is the subset of demux.Demuxer's surface this node depends on,
// kept as an interface so tests can drive it without a real MPEG-TS byte
// stream.
type demuxer interface {
	Video() <-chan *media.VideoFrame
	Audio() <-chan *media.AudioFrame
	Captions() <-chan *ccx.CaptionFrame
	Run(ctx context.Context) error
}

var _ demuxer = (*demux.Demuxer)(nil)

// Node is a source Node pulling video, audio, and caption units out of an
// underlying demuxer's channels and presenting them through the uniform
// read_frame contract.
type Node struct {
	node.Base

	demuxer demuxer

	width, height int
	pixfmt        frame.PixelFormat
	videoCodec    string
	spsSeen       bool

	started bool
	cancel  context.CancelFunc
	runErr  chan error

	mu  sync.Mutex
	eof bool
}

var _ node.Node = (*Node)(nil)

// New constructs a demux source node reading from d. d must not have had
// Run called on it yet.
func New(name string, d *demux.Demuxer, log *slog.Logger) *Node {
	return newNode(name, d, log)
}

func newNode(name string, d demuxer, log *slog.Logger) *Node {
	n := &Node{demuxer: d, pixfmt: frame.PixfmtYUV420P}
	n.Base = node.NewBase(n, name, log)
	return n
}

// GetParam reports "videoCodecId", falling back to UnknownParameter (this
// is a source node: there is no upstream to forward to).
func (n *Node) GetParam(name string) (any, error) {
	switch name {
	case "videoCodecId":
		return n.videoCodec, nil
	case "eof":
		n.mu.Lock()
		defer n.mu.Unlock()
		return n.eof, nil
	}
	return nil, &perr.UnknownParameterError{Name: name}
}

// SetParam rejects every key: this source has no writable parameters.
func (n *Node) SetParam(name string, value any) error {
	return &perr.UnknownParameterError{Name: name}
}

// OpenIn starts the demux loop in the background. Run closes the
// demuxer's channels when the underlying reader is exhausted or errors;
// ReadFrame observes that through the channels' closed state together
// with the captured run error.
func (n *Node) OpenIn(ctx context.Context) error {
	if n.started {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.runErr = make(chan error, 1)
	n.started = true
	go func() {
		n.runErr <- n.demuxer.Run(runCtx)
	}()
	return nil
}

func (n *Node) Width() int                    { return n.width }
func (n *Node) Height() int                   { return n.height }
func (n *Node) PixelFormat() frame.PixelFormat { return n.pixfmt }

// ReadFrame returns the next available video, audio, or caption unit. The
// three upstream channels are not globally ordered by the demuxer, so
// read_frame serves whichever is ready first (select), falling back to
// the captured run error once all three channels are closed and drained.
func (n *Node) ReadFrame(ctx context.Context) (frame.Frame, error) {
	videoCh, audioCh, captionCh := n.demuxer.Video(), n.demuxer.Audio(), n.demuxer.Captions()
	for videoCh != nil || audioCh != nil || captionCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case vf, ok := <-videoCh:
			if !ok {
				videoCh = nil
				continue
			}
			return n.videoFrame(vf), nil
		case af, ok := <-audioCh:
			if !ok {
				audioCh = nil
				continue
			}
			return n.audioFrame(af), nil
		case cf, ok := <-captionCh:
			if !ok {
				captionCh = nil
				continue
			}
			return n.captionFrame(cf), nil
		}
	}
	return n.checkEOF(ctx)
}

// checkEOF is reached once all three channels are closed and drained, which
// happens when Run returns (Run closes all three on return). It waits for
// Run's result and surfaces the run error, or EndOfStream if Run returned nil.
func (n *Node) checkEOF(ctx context.Context) (frame.Frame, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.eof {
		return nil, &perr.EndOfStreamError{Op: "read_frame"}
	}
	n.eof = true
	if err := <-n.runErr; err != nil {
		return nil, &perr.IoError{Op: "demux", Err: err}
	}
	return nil, &perr.EndOfStreamError{Op: "read_frame"}
}

func (n *Node) videoFrame(vf *media.VideoFrame) frame.Frame {
	if !n.spsSeen && len(vf.SPS) > 0 {
		n.applySPS(vf)
	}
	f := frame.NewPacketFrame(frame.MediaVideo, vf.WireData, vf)
	f.SetTimestamps(vf.PTS, vf.DTS)
	f.SetKeyframe(vf.IsKeyframe)
	f.SetDimensions(n.width, n.height, n.pixfmt)
	return f
}

func (n *Node) applySPS(vf *media.VideoFrame) {
	n.videoCodec = vf.Codec
	n.spsSeen = true

	if vf.Codec == "h265" {
		info, err := demux.ParseHEVCSPS(vf.SPS)
		if err != nil {
			if log := n.Log(); log != nil {
				log.Warn("demuxsrc: failed to parse HEVC SPS", "error", err)
			}
			return
		}
		n.width, n.height = info.Width, info.Height
		return
	}

	info, err := demux.ParseSPS(vf.SPS)
	if err != nil {
		if log := n.Log(); log != nil {
			log.Warn("demuxsrc: failed to parse SPS", "error", err)
		}
		return
	}
	n.width, n.height = info.Width, info.Height
}

func (n *Node) audioFrame(af *media.AudioFrame) frame.Frame {
	f := frame.NewPacketFrame(frame.MediaAudio, af.Data, af)
	f.SetTimestamps(af.PTS, af.PTS)
	f.SetAudioFormat(af.SampleRate, af.Channels, frame.SfmtInt16, true)
	return f
}

func (n *Node) captionFrame(cf *ccx.CaptionFrame) frame.Frame {
	f := frame.NewMetadataFrame(cf.PTS, []byte(cf.Text))
	f.SetBacking("caption", cf)
	return f
}

// Close cancels the demux loop and releases its context.
func (n *Node) Close() error {
	if n.cancel != nil {
		n.cancel()
	}
	return nil
}
