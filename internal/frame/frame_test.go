package frame

import "testing"

func TestByteBufferFrameRefcounting(t *testing.T) {
	f := NewByteBufferFrame(MediaVideo)
	if f.RefCount() != 1 {
		t.Fatalf("new frame refcount = %d, want 1", f.RefCount())
	}
	f.Ref()
	if f.RefCount() != 2 {
		t.Fatalf("after Ref refcount = %d, want 2", f.RefCount())
	}
	if f.Unref() {
		t.Fatalf("Unref reported zero after only one release of two refs")
	}
	if !f.Unref() {
		t.Fatalf("Unref should report zero on final release")
	}
}

func TestByteBufferFrameWritableBufferRoundTrip(t *testing.T) {
	f := NewByteBufferFrame(MediaVideo)
	buf, err := f.WritableBuffer(8)
	if err != nil {
		t.Fatalf("WritableBuffer: %v", err)
	}
	copy(buf, []byte("ABCDEFGH"))
	if string(f.Data()) != "ABCDEFGH" {
		t.Fatalf("Data() = %q", f.Data())
	}
	if f.Size() != 8 {
		t.Fatalf("Size() = %d, want 8", f.Size())
	}
}

func TestPooledFrameResetRevivesRefcount(t *testing.T) {
	f := NewPooledByteBufferFrame(nil)
	f.WritableBuffer(4)
	f.SetTimestamps(100, 90)
	f.Unref() // drops to 0, simulating return to free list
	if f.RefCount() != 0 {
		t.Fatalf("refcount after final unref = %d, want 0", f.RefCount())
	}
	f.ResetForPool()
	if f.RefCount() != 1 {
		t.Fatalf("refcount after ResetForPool = %d, want 1", f.RefCount())
	}
	if f.PTS() != InvalidPTS || f.Size() != 0 {
		t.Fatalf("frame not blank after ResetForPool: pts=%d size=%d", f.PTS(), f.Size())
	}
}

func TestCloneFrameOverridesOnlyTimestamps(t *testing.T) {
	src := NewByteBufferFrame(MediaVideo)
	src.SetDimensions(1920, 1080, PixfmtYUV420P)
	src.SetTimestamps(1000, 990)
	src.WritableBuffer(4)

	clone := NewCloneFrame(src, 1033, 1023)
	if src.RefCount() != 2 {
		t.Fatalf("src refcount after clone = %d, want 2", src.RefCount())
	}
	if clone.PTS() != 1033 || clone.DTS() != 1023 {
		t.Fatalf("clone timestamps = %d/%d", clone.PTS(), clone.DTS())
	}
	if clone.Width() != 1920 || clone.Height() != 1080 {
		t.Fatalf("clone dimensions not forwarded: %dx%d", clone.Width(), clone.Height())
	}
	if err := clone.SetDimensions(1, 1, PixfmtRGB24); err == nil {
		t.Fatalf("expected Unsupported setting dimensions on a clone")
	}
	if err := clone.SetKeyframe(true); err == nil {
		t.Fatalf("expected Unsupported setting keyframe on a clone")
	}

	clone.Unref()
	if src.RefCount() != 1 {
		t.Fatalf("src refcount after clone.Unref = %d, want 1", src.RefCount())
	}
}

func TestListPushPopReleasesReferences(t *testing.T) {
	l := NewList()
	f := NewByteBufferFrame(MediaVideo)
	l.PushBack(f)
	if f.RefCount() != 2 {
		t.Fatalf("refcount after PushBack = %d, want 2", f.RefCount())
	}
	popped := l.PopFront()
	if popped != Frame(f) {
		t.Fatalf("PopFront returned different frame")
	}
	popped.Unref()
	if f.RefCount() != 1 {
		t.Fatalf("refcount after pop+unref = %d, want 1", f.RefCount())
	}
}

func TestListClearReleasesAll(t *testing.T) {
	l := NewList()
	a := NewByteBufferFrame(MediaVideo)
	b := NewByteBufferFrame(MediaAudio)
	l.PushBack(a)
	l.PushBack(b)
	l.Clear()
	if a.RefCount() != 1 || b.RefCount() != 1 {
		t.Fatalf("refcounts after Clear: a=%d b=%d, want 1/1", a.RefCount(), b.RefCount())
	}
	if !l.Empty() {
		t.Fatalf("list not empty after Clear")
	}
}
