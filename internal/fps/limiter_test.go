package fps

import "testing"

func TestLimiterAcceptsFirstFrameUnconditionally(t *testing.T) {
	l := New(Options{DesiredFPS: 30, TimeBase: PTSDelta})
	if v := l.Report(0); v != Accept {
		t.Fatalf("first frame = %v, want Accept", v)
	}
}

func TestLimiterRejectsFramesArrivingFasterThanDesired(t *testing.T) {
	l := New(Options{DesiredFPS: 30, TimeBase: PTSDelta, Window: 4})
	l.Report(0)
	// Frames spaced 1ms apart imply an instantaneous rate far above 30fps.
	accepted := 0
	for pts := int64(1); pts <= 400; pts++ {
		if l.Report(pts) == Accept {
			accepted++
		}
	}
	// Over 400ms at a true 30fps cap, at most ~13 frames (plus the first)
	// should be accepted; allow slack for the accumulator's smoothing.
	if accepted > 20 {
		t.Fatalf("accepted = %d frames in 400ms window, want <= ~20 for a 30fps cap", accepted)
	}
}

func TestLimiterMeasuredFPSBoundedOverWindow(t *testing.T) {
	const desired = 25.0
	const n = 75
	l := New(Options{DesiredFPS: desired, TimeBase: PTSDelta, Window: n})

	accepted := 0
	var lastAcceptedPTS int64
	for pts := int64(0); pts < 100000; pts += 2 {
		if l.Report(pts) == Accept {
			accepted++
			lastAcceptedPTS = pts
		}
	}
	if accepted < n {
		t.Skip("not enough accepted frames to evaluate the windowed bound")
	}
	measured := float64(accepted) * 1000 / float64(lastAcceptedPTS+1)
	bound := desired * (1 + 1/float64(n))
	if measured > bound+0.5 {
		t.Fatalf("measured fps %.3f exceeds bound %.3f for window %d", measured, bound, n)
	}
}

func TestLimiterZeroDesiredNeverRejects(t *testing.T) {
	l := New(Options{TimeBase: PTSDelta})
	for pts := int64(0); pts < 1000; pts += 1 {
		if l.Report(pts) != Accept {
			t.Fatalf("desired=0 (measure only) rejected a frame at pts=%d", pts)
		}
	}
}

func TestLimiterSecondModeAcceptsOncePerSecondBoundary(t *testing.T) {
	l := New(Options{DesiredFPS: 1, TimeBase: PTSDelta, SecondMode: true})
	l.Report(0)
	if l.Report(500) == Accept {
		t.Fatalf("second-mode limiter accepted a frame within the same second")
	}
	if l.Report(1000) != Accept {
		t.Fatalf("second-mode limiter rejected a frame crossing a second boundary")
	}
}
