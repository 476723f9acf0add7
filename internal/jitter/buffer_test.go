package jitter

import (
	"context"
	"testing"

	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/node"
)

// queueSource is an upstream Node whose ReadFrame pops from a preloaded
// slice, then reports EndOfStream.
type queueSource struct {
	node.Base
	frames []frame.Frame
	i      int
}

func newQueueSource(frames []frame.Frame) *queueSource {
	s := &queueSource{frames: frames}
	s.Base = node.NewBase(s, "queue-source", nil)
	return s
}

func (s *queueSource) OpenIn(ctx context.Context) error { return nil }

func (s *queueSource) ReadFrame(ctx context.Context) (frame.Frame, error) {
	if s.i >= len(s.frames) {
		return nil, errEndOfQueue
	}
	f := s.frames[s.i]
	s.i++
	return f, nil
}

// errEndOfQueue mirrors perr.EndOfStream without importing perr, since the
// buffer only checks for a nil frame/non-nil error pair from fill, not the
// concrete error type.
var errEndOfQueue = &queueEOF{}

type queueEOF struct{}

func (*queueEOF) Error() string { return "end of queue" }

// delayReportingSource is a queueSource that also answers the encoderDelay
// param, so tests can exercise fill's one-shot probe.
type delayReportingSource struct {
	queueSource
	delay int64
}

func newDelayReportingSource(frames []frame.Frame, delay int64) *delayReportingSource {
	s := &delayReportingSource{queueSource: queueSource{frames: frames}, delay: delay}
	s.Base = node.NewBase(s, "delay-source", nil)
	return s
}

func (s *delayReportingSource) GetParam(name string) (any, error) {
	if name == "encoderDelay" {
		return s.delay, nil
	}
	return s.queueSource.GetParam(name)
}

func av(media frame.MediaType, pts int64) frame.Frame {
	f := frame.NewByteBufferFrame(media)
	f.SetTimestamps(pts, pts)
	return f
}

func newBuf(t *testing.T, opts Options, frames []frame.Frame) (*Buffer, *queueSource) {
	t.Helper()
	src := newQueueSource(frames)
	b := New("jb", nil, opts)
	if err := b.SetSource(src, 0); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	return b, src
}

// drainOnce calls ReadFrame until it returns a frame, an error, or stops
// making progress (both future/past are exhausted and upstream is EOF).
func drainOnce(b *Buffer) (frame.Frame, error) {
	for {
		f, err := b.ReadFrame(context.Background())
		if f != nil || err != nil {
			return f, err
		}
		if b.future.Empty() {
			return nil, nil
		}
	}
}

func TestJitterBufferAVAlignmentOrdering(t *testing.T) {
	want := []int64{0, 10, 33, 40, 67, 70, 333}
	var frames []frame.Frame
	for _, pts := range want {
		media := frame.MediaVideo
		if pts == 10 || pts == 40 || pts == 70 {
			media = frame.MediaAudio
		}
		frames = append(frames, av(media, pts))
	}
	// A trailing frame far enough past 333 to push tail-head > 300 for
	// every frame above, so the whole prefix above drains without
	// blocking on the window boundary.
	frames = append(frames, av(frame.MediaVideo, 1000))

	// TargetFPS is set low enough that no mid-stream gap in this input
	// crosses the clone-generation threshold (1000/TargetFPS); this test
	// isolates ordering, not jumpstart generation.
	b, _ := newBuf(t, Options{BufferTimeMs: 300, TargetFPS: 1}, frames)

	var order []int64
	for i := 0; i < len(want); i++ {
		f, err := drainOnce(b)
		if err != nil {
			t.Fatalf("drainOnce: %v", err)
		}
		if f == nil {
			t.Fatalf("drainOnce returned nil frame before all input was consumed (got %d of %d)", len(order), len(want))
		}
		order = append(order, f.PTS())
		f.Unref()
	}

	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("emission order = %v, want strictly-by-PTS order %v", order, want)
		}
	}
}

// TestJitterBufferNoClonesBeforeWindowFull asserts the buffer emits nothing
// while tail-head <= BufferTimeMs, matching the boundary behavior and the
// no-clone-when-gap-small invariant (§8): with only two close frames queued,
// the window never opens and no synthetic clone appears.
func TestJitterBufferNoClonesBeforeWindowFull(t *testing.T) {
	frames := []frame.Frame{
		av(frame.MediaVideo, 0),
		av(frame.MediaVideo, 33),
	}
	b, _ := newBuf(t, Options{BufferTimeMs: 300, TargetFPS: 30}, frames)

	f, err := b.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f != nil {
		t.Fatalf("expected no emission while tail-head (%d) <= BufferTimeMs (300), got PTS %d", 33, f.PTS())
	}
}

// TestJitterBufferZeroBufferTimeEmitsImmediately covers the documented
// boundary: buffer_time = 0 emits the head as soon as tail > head.
func TestJitterBufferZeroBufferTimeEmitsImmediately(t *testing.T) {
	frames := []frame.Frame{
		av(frame.MediaVideo, 0),
		av(frame.MediaVideo, 33),
	}
	b, _ := newBuf(t, Options{BufferTimeMs: ZeroBufferTime, TargetFPS: 30}, frames)

	f, err := drainOnce(b)
	if err != nil {
		t.Fatalf("drainOnce: %v", err)
	}
	if f == nil {
		t.Fatalf("expected immediate emission with buffer_time = 0 once tail > head")
	}
	if f.PTS() != 0 {
		t.Fatalf("first emission PTS = %d, want 0 (head, in arrival order)", f.PTS())
	}
	f.Unref()
}

// TestJitterBufferFillProbesEncoderDelayOnceAndPullsOneFrame covers fill's
// contract: each call probes encoderDelay at most once (stopping once known)
// and pulls exactly one frame into future, relying on ReadFrame's caller to
// invoke it again for further replenishment rather than looping internally.
func TestJitterBufferFillProbesEncoderDelayOnceAndPullsOneFrame(t *testing.T) {
	frames := []frame.Frame{
		av(frame.MediaVideo, 0),
		av(frame.MediaVideo, 33),
	}
	src := newDelayReportingSource(frames, 500)
	b := New("jb", nil, Options{BufferTimeMs: 300, TargetFPS: 30})
	if err := b.SetSource(src, 0); err != nil {
		t.Fatalf("SetSource: %v", err)
	}

	if err := b.fill(context.Background()); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if b.future.Len() != 1 {
		t.Fatalf("fill pulled %d frames, want exactly 1 per call", b.future.Len())
	}
	if !b.encoderDelayKnown {
		t.Fatalf("expected encoderDelay to be known after a successful probe")
	}
	if b.opts.BufferTimeMs != 500 {
		t.Fatalf("BufferTimeMs = %d, want 500 (raised to reported encoderDelay)", b.opts.BufferTimeMs)
	}

	if err := b.fill(context.Background()); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if b.future.Len() != 2 {
		t.Fatalf("second fill call pulled total %d frames, want 2", b.future.Len())
	}
}

// TestJitterBufferPausedSplicesHistoryOnUnpause exercises the jumpstart
// path. Jumpstart history accumulates in past during normal playback, via
// maybeSaveToPast on every popped frame; the first ReadFrame while paused
// splices that history back onto future's head and clears past, and
// further input goes straight into future (window-trimmed only), so
// playback after unpause resumes from the oldest retained history frame
// instead of a cold start.
func TestJitterBufferPausedSplicesHistoryOnUnpause(t *testing.T) {
	src := newQueueSource(nil) // exhausted immediately; input is driven via Push
	b := New("jb", nil, Options{
		BufferTimeMs:       300,
		BufferTimePausedMs: 5000,
		TargetFPS:          30,
		JumpstartFPS:       2,
		JumpstartEnabled:   true,
	})
	if err := b.SetSource(src, 0); err != nil {
		t.Fatalf("SetSource: %v", err)
	}

	// Prime the buffer while playing: a second of 30fps video opens the
	// buffer_time window and lets maybeSaveToPast accumulate history.
	for i := int64(0); i < 30; i++ {
		f := av(frame.MediaVideo, 1000+i*33)
		b.Push(f)
		f.Unref() // Push (via future.InsertAt) took its own reference
	}
	emitted := 0
	for {
		f, err := b.ReadFrame(context.Background())
		if err != nil {
			t.Fatalf("ReadFrame while playing: %v", err)
		}
		if f == nil {
			break
		}
		emitted++
		f.Unref()
	}
	if emitted == 0 {
		t.Fatalf("expected some frames to drain while playing, building jumpstart history")
	}
	if b.past.Empty() {
		t.Fatalf("expected normal playback to populate jumpstart history in past")
	}
	pastLen := b.past.Len()
	oldest := b.past.Front().PTS()

	// Pause: further input accumulates in future.
	b.SetPaused(true)
	for i := int64(0); i < 10; i++ {
		f := av(frame.MediaVideo, 2000+i*33)
		b.Push(f)
		f.Unref() // Push (via future.InsertAt) took its own reference
	}
	futureLen := b.future.Len()
	f, err := b.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame while paused: %v", err)
	}
	if f != nil {
		t.Fatalf("paused buffer must not emit frames, got PTS %d", f.PTS())
	}
	if !b.past.Empty() {
		t.Fatalf("expected past history to be spliced onto future and cleared while paused, past has %d", b.past.Len())
	}
	if b.future.Len() != futureLen+pastLen {
		t.Fatalf("future length after splice = %d, want %d", b.future.Len(), futureLen+pastLen)
	}
	if got := b.future.Front().PTS(); got != oldest {
		t.Fatalf("future head after splice = PTS %d, want oldest history PTS %d", got, oldest)
	}

	// Unpause: the next ReadFrame resumes emitting from the oldest spliced
	// history frame.
	b.SetPaused(false)
	f, err = b.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame after unpause: %v", err)
	}
	if f == nil {
		t.Fatalf("expected an emission immediately after unpause")
	}
	if f.PTS() != oldest {
		t.Fatalf("first emission after unpause = PTS %d, want oldest history PTS %d", f.PTS(), oldest)
	}
	f.Unref()
}
