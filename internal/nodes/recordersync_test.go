package nodes

import (
	"context"
	"testing"
	"time"

	"github.com/zsiec/svpipe/internal/event"
	"github.com/zsiec/svpipe/internal/frame"
)

// constDelaySource is a leaf Node exposing a fixed "encoderDelay" param,
// standing in for the recorder node RecorderSync is normally wired behind.
type constDelaySource struct {
	*queueSource
	delay int64
}

func newConstDelaySource(frames []frame.Frame, delay int64) *constDelaySource {
	return &constDelaySource{queueSource: newQueueSource(frames), delay: delay}
}

func (s *constDelaySource) GetParam(name string) (any, error) {
	if name == "encoderDelay" {
		return s.delay, nil
	}
	return s.queueSource.GetParam(name)
}

func newRecorderSync(t *testing.T, frames []frame.Frame, delay int64) (*RecorderSync, *constDelaySource) {
	t.Helper()
	src := newConstDelaySource(frames, delay)
	rs := NewRecorderSync("rs", nil)
	if err := rs.SetSource(src, 0); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	return rs, src
}

// TestRecorderSyncHoldsFrameUntilEncoderCatchesUp covers the classification
// loop's release condition: a frame is held until a later frame's pts
// confirms the encoder (with its configured delay) cannot still reorder
// something ahead of it.
func TestRecorderSyncHoldsFrameUntilEncoderCatchesUp(t *testing.T) {
	frames := []frame.Frame{videoFrame(0), videoFrame(10), videoFrame(25)}
	rs, _ := newRecorderSync(t, frames, 10)
	if err := rs.OpenIn(context.Background()); err != nil {
		t.Fatalf("OpenIn: %v", err)
	}
	evt := event.New(event.RecorderNewFile).WithString("filename", "clip.ts")
	evt.At = time.UnixMilli(0)
	rs.onNewFile(evt)

	pts, _, err := drainAll(rs)
	if err != nil {
		t.Fatalf("drainAll: %v", err)
	}
	// pts=0 is still held once lastPtsSeen=10 is queued (0+10 < 10 is
	// false); it releases once lastPtsSeen=25 is seen (0+10 < 25 true).
	// pts=10 then releases once pts=25 is the only thing left queued after
	// pts=0 pops (10+10 < 25 true). pts=25 never releases: it is always
	// the most recently queued frame, so pts+delay < lastPtsSeen is never
	// satisfied for it once the source is exhausted.
	want := []int64{0, 10}
	if len(pts) != len(want) {
		t.Fatalf("got %v, want %v", pts, want)
	}
	for i := range want {
		if pts[i] != want[i] {
			t.Fatalf("got %v, want %v", pts, want)
		}
	}
}

// TestRecorderSyncDropsFramesBeforeRangeStart covers the defensive
// leading-edge drop: a frame pts'd before the current range's start is
// discarded rather than attributed to it.
func TestRecorderSyncDropsFramesBeforeRangeStart(t *testing.T) {
	frames := []frame.Frame{videoFrame(5), videoFrame(50), videoFrame(60)}
	rs, _ := newRecorderSync(t, frames, 0)
	if err := rs.OpenIn(context.Background()); err != nil {
		t.Fatalf("OpenIn: %v", err)
	}
	evt := event.New(event.RecorderNewFile).WithString("filename", "clip.ts")
	evt.At = time.UnixMilli(20)
	rs.onNewFile(evt)

	pts, _, err := drainAll(rs)
	if err != nil {
		t.Fatalf("drainAll: %v", err)
	}
	// pts=5 precedes the range start (20ms) and is dropped. pts=50 releases
	// once pts=60 is queued (encoderDelay=0, 50+0 < 60). pts=60 never
	// releases (nothing after it raises lastPtsSeen further).
	want := []int64{50}
	if len(pts) != len(want) || pts[0] != want[0] {
		t.Fatalf("got %v, want %v", pts, want)
	}
}

// TestRecorderSyncExposesCurrentFilename covers the "filename" get_param,
// surfacing the oldest still-tracked range's name.
func TestRecorderSyncExposesCurrentFilename(t *testing.T) {
	rs, _ := newRecorderSync(t, nil, 0)
	if got := rs.CurrentFilename(); got != "" {
		t.Fatalf("CurrentFilename on empty ranges = %q, want \"\"", got)
	}
	evt := event.New(event.RecorderNewFile).WithString("filename", "clip-001.ts")
	rs.onNewFile(evt)
	got, err := rs.GetParam("filename")
	if err != nil {
		t.Fatalf("GetParam filename: %v", err)
	}
	if got != "clip-001.ts" {
		t.Fatalf("GetParam filename = %v, want clip-001.ts", got)
	}
}

// TestRecorderSyncIgnoresDuplicateNewFile covers the duplicate-notification
// guard: a repeated new-file event for the same name already at the tail
// does not open a second range.
func TestRecorderSyncIgnoresDuplicateNewFile(t *testing.T) {
	rs, _ := newRecorderSync(t, nil, 0)
	evt := event.New(event.RecorderNewFile).WithString("filename", "clip-001.ts")
	rs.onNewFile(evt)
	rs.onNewFile(evt)
	if len(rs.ranges) != 1 {
		t.Fatalf("ranges = %v, want exactly one range", rs.ranges)
	}
}
