// Package audio implements the audio render sink (§4.8's peer list),
// a terminal consumer Node that pulls decoded/resampled audio frames and
// writes them to a platform audio device. Grounded on
// e1z0-QAnotherRTSP's hajimehoshi/oto/v2 usage (oto.NewContext,
// Context.NewPlayer over an io.Reader) and
// original_source/stream_audio_renderer_portaudio.cpp for the
// buffering/underrun contract it replaces: a ring buffer sized to a
// couple of device callbacks, silence-filled on underrun rather than
// blocking the pipeline upstream of it.
package audio

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/node"
)

// bytesPerSample is fixed at 16-bit signed PCM, matching the resample
// node's audioSampleFormat=SfmtInt16 output (§6).
const bytesPerSample = 2

// defaultRingMillis sizes the ring buffer to roughly two device
// callbacks' worth of audio, per the buffering contract above.
const defaultRingMillis = 40

// Context opens device players. The production Context wraps
// *oto.Context; tests inject a fake.
type Context interface {
	NewPlayer(r io.Reader) Player
}

// Player is the subset of oto.Player this sink drives.
type Player interface {
	Play()
	Close() error
}

// ringBuffer is a fixed-capacity byte FIFO. Write drops the oldest bytes
// instead of blocking when full (the producer, this Node's ReadFrame,
// must never stall on a slow or absent device). Read fills any shortfall
// with silence instead of blocking (the consumer, oto's device
// callback, must never stall waiting on the pipeline).
type ringBuffer struct {
	mu       sync.Mutex
	buf      []byte
	r, w     int
	full     bool
}

func newRingBuffer(size int) *ringBuffer {
	if size < 1 {
		size = 1
	}
	return &ringBuffer{buf: make([]byte, size)}
}

func (rb *ringBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	for _, b := range p {
		rb.buf[rb.w] = b
		rb.w = (rb.w + 1) % len(rb.buf)
		if rb.full {
			rb.r = (rb.r + 1) % len(rb.buf)
		}
		if rb.w == rb.r {
			rb.full = true
		}
	}
	return len(p), nil
}

func (rb *ringBuffer) Read(dst []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	avail := rb.available()
	n := avail
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = rb.buf[rb.r]
		rb.r = (rb.r + 1) % len(rb.buf)
	}
	if n > 0 {
		rb.full = false
	}
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return len(dst), nil
}

func (rb *ringBuffer) available() int {
	if rb.full {
		return len(rb.buf)
	}
	if rb.w >= rb.r {
		return rb.w - rb.r
	}
	return len(rb.buf) - rb.r + rb.w
}

// Node is a terminal consumer Node writing decoded audio to a device
// player, passing every frame through unchanged (mirrors the mmap
// sink's "side effect, then pass through" shape).
type Node struct {
	node.Base

	ctx Context

	mu         sync.Mutex
	player     Player
	ring       *ringBuffer
	sampleRate int
	channels   int
}

var _ node.Node = (*Node)(nil)

// New constructs an audio render sink driven by ctx (the production
// Context wraps a single process-wide *oto.Context, matching
// e1z0-QAnotherRTSP's one-context-per-process singleton).
func New(name string, ctx Context, log *slog.Logger) *Node {
	n := &Node{ctx: ctx}
	n.Base = node.NewBase(n, name, log)
	return n
}

// ReadFrame pulls the next upstream frame, writes audio payloads into
// the device ring buffer (creating or resizing the player on first use
// or on a format change), and passes every frame through unchanged.
func (n *Node) ReadFrame(ctx context.Context) (frame.Frame, error) {
	fr, err := n.Base.ReadFrame(ctx)
	if err != nil || fr == nil {
		return fr, err
	}
	if fr.MediaType() != frame.MediaAudio {
		return fr, nil
	}

	n.mu.Lock()
	if n.player == nil || fr.SampleRate() != n.sampleRate || fr.Channels() != n.channels {
		n.openPlayer(fr.SampleRate(), fr.Channels())
	}
	ring := n.ring
	n.mu.Unlock()

	if ring != nil {
		ring.Write(fr.Data())
	}
	return fr, nil
}

// openPlayer must be called with n.mu held. It replaces any existing
// player/ring with one sized for the new format.
func (n *Node) openPlayer(sampleRate, channels int) {
	if n.player != nil {
		n.player.Close()
	}
	n.sampleRate, n.channels = sampleRate, channels

	ringBytes := sampleRate * channels * bytesPerSample * defaultRingMillis / 1000
	n.ring = newRingBuffer(ringBytes)
	n.player = n.ctx.NewPlayer(n.ring)
	n.player.Play()
}

// Close stops the device player before closing upstream.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.player != nil {
		n.player.Close()
		n.player = nil
	}
	n.mu.Unlock()
	return n.Base.Close()
}
