package nodes

import (
	"context"
	"testing"

	"github.com/zsiec/svpipe/internal/frame"
)

func newInjector(t *testing.T, preloaded bool, frames []frame.Frame) (*MetadataInjector, *queueSource) {
	t.Helper()
	src := newQueueSource(frames)
	m := NewMetadataInjector("meta", nil, preloaded)
	if err := m.SetSource(src, 0); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	return m, src
}

// TestMetadataInjectorSnapsCloserMetadataToFirstVideo covers the core
// reordering rule (§4.8): a metadata frame timestamped between two video
// frames, but temporally closer to the first, is emitted immediately
// before it with its pts snapped to the first frame's.
func TestMetadataInjectorSnapsCloserMetadataToFirstVideo(t *testing.T) {
	frames := []frame.Frame{videoFrame(0), videoFrame(100)}
	m, _ := newInjector(t, true, frames)
	// pts=40 is closer to 0 (distance 40) than to 100 (distance 60); must be
	// set before OpenIn in preloaded mode.
	if err := m.SetParam("metadata.40", "near-first"); err != nil {
		t.Fatalf("SetParam metadata.40: %v", err)
	}
	if err := m.OpenIn(context.Background()); err != nil {
		t.Fatalf("OpenIn: %v", err)
	}

	pts, media, err := drainAll(m)
	if err != nil {
		t.Fatalf("drainAll: %v", err)
	}
	wantPTS := []int64{0, 0, 100}
	wantMedia := []frame.MediaType{frame.MediaMetadata, frame.MediaVideo, frame.MediaVideo}
	if len(pts) != len(wantPTS) {
		t.Fatalf("got %v/%v, want pts=%v media=%v", pts, media, wantPTS, wantMedia)
	}
	for i := range wantPTS {
		if pts[i] != wantPTS[i] || media[i] != wantMedia[i] {
			t.Fatalf("position %d: got (pts=%d media=%v), want (pts=%d media=%v); full=%v/%v", i, pts[i], media[i], wantPTS[i], wantMedia[i], pts, media)
		}
	}
}

// TestMetadataInjectorEmitsInOrderMetadataUnadjusted covers the simple
// case: metadata timestamped at or before the next data frame's pts is
// emitted as-is, no snapping needed.
func TestMetadataInjectorEmitsInOrderMetadataUnadjusted(t *testing.T) {
	frames := []frame.Frame{videoFrame(0), videoFrame(100)}
	m, _ := newInjector(t, true, frames)
	if err := m.SetParam("metadata.0", "at-first"); err != nil {
		t.Fatalf("SetParam metadata.0: %v", err)
	}
	if err := m.OpenIn(context.Background()); err != nil {
		t.Fatalf("OpenIn: %v", err)
	}

	pts, media, err := drainAll(m)
	if err != nil {
		t.Fatalf("drainAll: %v", err)
	}
	wantPTS := []int64{0, 0, 100}
	wantMedia := []frame.MediaType{frame.MediaMetadata, frame.MediaVideo, frame.MediaVideo}
	if len(pts) != len(wantPTS) {
		t.Fatalf("got %v/%v, want pts=%v media=%v", pts, media, wantPTS, wantMedia)
	}
	for i := range wantPTS {
		if pts[i] != wantPTS[i] || media[i] != wantMedia[i] {
			t.Fatalf("position %d: got (pts=%d media=%v), want (pts=%d media=%v); full=%v/%v", i, pts[i], media[i], wantPTS[i], wantMedia[i], pts, media)
		}
	}
}

// TestMetadataInjectorIgnoresStaleMetadata covers the "ts < lastVideoPts"
// rejection: metadata timestamped behind what has already been served is
// dropped rather than reordered into the past.
func TestMetadataInjectorIgnoresStaleMetadata(t *testing.T) {
	// A single video frame at pts=0: with no metadata ever queued, it is
	// served immediately (dataPts <= lastMetaPts's zero value) and
	// lastVideoPts becomes 0.
	frames := []frame.Frame{videoFrame(0)}
	m, _ := newInjector(t, false, frames)
	if err := m.OpenIn(context.Background()); err != nil {
		t.Fatalf("OpenIn: %v", err)
	}

	pts, _, err := drainAll(m)
	if err != nil {
		t.Fatalf("drainAll: %v", err)
	}
	if len(pts) != 1 || pts[0] != 0 {
		t.Fatalf("got %v, want [0]", pts)
	}

	if err := m.SetParam("metadata.-1", "too-late"); err != nil {
		t.Fatalf("SetParam metadata.-1: %v", err)
	}
	if m.metaIgnored != 1 {
		t.Fatalf("metaIgnored = %d, want 1 (-1 < lastVideoPts=0)", m.metaIgnored)
	}
}

// TestMetadataInjectorNonVideoPassesThroughUnordered asserts audio frames
// never wait on the metadata-ordering decision.
func TestMetadataInjectorNonVideoPassesThroughUnordered(t *testing.T) {
	frames := []frame.Frame{audioFrame(0), audioFrame(10), audioFrame(20)}
	m, _ := newInjector(t, false, frames)
	if err := m.OpenIn(context.Background()); err != nil {
		t.Fatalf("OpenIn: %v", err)
	}
	pts, _, err := drainAll(m)
	if err != nil {
		t.Fatalf("drainAll: %v", err)
	}
	if len(pts) != 3 || pts[0] != 0 || pts[1] != 10 || pts[2] != 20 {
		t.Fatalf("got %v, want [0 10 20]", pts)
	}
}

// TestMetadataInjectorPreloadedRejectsLateSet covers the preloaded-mode
// invariant: once opened, further metadata.* sets fail since preloaded
// metadata must all be supplied up front.
func TestMetadataInjectorPreloadedRejectsLateSet(t *testing.T) {
	m, _ := newInjector(t, true, []frame.Frame{videoFrame(0)})
	if err := m.SetParam("metadata.0", "ok-before-open"); err != nil {
		t.Fatalf("SetParam before open: %v", err)
	}
	if err := m.OpenIn(context.Background()); err != nil {
		t.Fatalf("OpenIn: %v", err)
	}
	if err := m.SetParam("metadata.50", "too-late"); err == nil {
		t.Fatalf("expected metadata.* set after open to fail in preloaded mode")
	}
}
