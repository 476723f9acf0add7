// Package fps implements the weighted-average FPS limiter primitive
// shared by the threaded queue connector's write/read channels and any
// node that needs simple rate shaping (§4.4).
package fps

import (
	"math"
	"time"
)

// Verdict is the outcome of reporting a frame to the limiter.
type Verdict int

const (
	Accept Verdict = iota
	Reject
)

// TimeBase selects how the limiter computes elapsed time between frames.
type TimeBase int

const (
	// WallClock measures elapsed time against the wall clock at report
	// time, ignoring the reported pts except as an opaque label.
	WallClock TimeBase = iota
	// TimestampAsDiff treats the reported value directly as the elapsed
	// milliseconds since the previous frame.
	TimestampAsDiff
	// PTSDelta computes elapsed as pts - prevPts.
	PTSDelta
)

// defaultWindow is the accumulator window N used when none is configured,
// matching the 64-75 range documented in §4.4 and the channel_state_tc
// construction (fps_limiter_create(75, ...)) it is grounded on.
const defaultWindow = 75

// Limiter is a weighted accumulator estimating instantaneous FPS with
// exponentially-weighted recency, optionally rejecting frames to cap the
// measured rate at a desired value.
type Limiter struct {
	window      int
	desired     float64 // 0 = measure only
	timeBase    TimeBase
	secondMode  bool // use-second-intervals flag

	acceptedCount int64
	rejectedCount int64
	lastAccepted  time.Time
	firstAccepted time.Time
	haveFirst     bool
	lastPTS       int64
	accMs         float64
	haveAcc       bool
	fps           float64

	now func() time.Time
}

// Options configures a new Limiter.
type Options struct {
	Window       int // default defaultWindow
	DesiredFPS   float64
	TimeBase     TimeBase
	SecondMode   bool
}

// New creates a Limiter per Options.
func New(opts Options) *Limiter {
	w := opts.Window
	if w == 0 {
		w = defaultWindow
	}
	return &Limiter{
		window:     w,
		desired:    opts.DesiredFPS,
		timeBase:   opts.TimeBase,
		secondMode: opts.SecondMode,
		now:        time.Now,
	}
}

// FPS reports the currently measured (or, in second-mode, desired) FPS.
func (l *Limiter) FPS() float64 {
	if l.secondMode {
		return l.desired
	}
	return l.fps
}

// Accepted reports the running count of accepted frames.
func (l *Limiter) Accepted() int64 { return l.acceptedCount }

// Rejected reports the running count of rejected frames.
func (l *Limiter) Rejected() int64 { return l.rejectedCount }

// SetDesiredFPS updates the target rate; 0 disables limiting (measure
// only).
func (l *Limiter) SetDesiredFPS(fps float64) { l.desired = fps }

// Report evaluates whether a frame carrying pts (milliseconds) should be
// accepted or rejected, per §4.4.
func (l *Limiter) Report(pts int64) Verdict {
	now := l.now()

	if !l.haveFirst {
		l.haveFirst = true
		l.firstAccepted = now
		l.commit(now, pts)
		return Accept
	}

	elapsed := l.elapsed(now, pts)

	if l.secondMode {
		prevSec := l.lastPTS / 1000
		curSec := pts / 1000
		interval := math.MaxFloat64
		if l.desired > 0 {
			interval = 1000 / l.desired
		}
		if prevSec != curSec || float64(elapsed) >= interval {
			l.commit(now, pts)
			return Accept
		}
		l.rejectedCount++
		return Reject
	}

	acc := l.accMs
	if !l.haveAcc {
		acc = elapsed * float64(l.window)
	} else {
		acc = elapsed + acc*float64(l.window-1)/float64(l.window)
	}
	candidateFPS := float64(l.window) * 1000 / acc
	if l.desired != 0 && candidateFPS > l.desired {
		l.rejectedCount++
		return Reject
	}

	l.accMs = acc
	l.haveAcc = true
	l.fps = candidateFPS
	l.commit(now, pts)
	return Accept
}

func (l *Limiter) elapsed(now time.Time, pts int64) float64 {
	switch l.timeBase {
	case TimestampAsDiff:
		return float64(pts)
	case PTSDelta:
		return float64(pts - l.lastPTS)
	default:
		return float64(now.Sub(l.lastAccepted).Milliseconds())
	}
}

func (l *Limiter) commit(now time.Time, pts int64) {
	l.acceptedCount++
	l.lastAccepted = now
	l.lastPTS = pts
}
