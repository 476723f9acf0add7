// Package jitter implements the jitter buffer (§4.6): a single-threaded
// pacing/ordering node that reorders out-of-timestamp frames, paces video
// during startup/after pause, and smooths encoder-introduced delay.
// Grounded on original_source's jitter-buffer-equivalent pacing logic in
// stream_thread_connector.cpp's channel_state and the clone-frame
// contract shared with internal/frame.
package jitter

import (
	"context"
	"log/slog"

	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/metrics"
	"github.com/zsiec/svpipe/internal/node"
)

const defaultBufferTimeMs = 300

// unsetBufferTime distinguishes "Options didn't set this" from the valid,
// spec-significant explicit value 0 (§8: buffer_time = 0 emits the head
// immediately once tail > head).
const unsetBufferTime = -1

// Options configures a Buffer. BufferTimeMs defaults to 300ms when left at
// the Go zero value; callers who need an explicit buffer_time of 0 must set
// BufferTimeMs to ZeroBufferTime instead.
type Options struct {
	BufferTimeMs       int64 // 300 if zero; see ZeroBufferTime for an explicit zero
	BufferTimePausedMs int64 // default BufferTimeMs
	TargetFPS          float64
	JumpstartFPS       float64
	JumpstartEnabled   bool
}

// ZeroBufferTime requests buffer_time = 0 explicitly, bypassing the
// default-300 fallback that an ordinary zero value would trigger.
const ZeroBufferTime int64 = unsetBufferTime

func (o Options) withDefaults() Options {
	switch o.BufferTimeMs {
	case 0:
		o.BufferTimeMs = defaultBufferTimeMs
	case unsetBufferTime:
		o.BufferTimeMs = 0
	}
	if o.BufferTimePausedMs == 0 {
		o.BufferTimePausedMs = o.BufferTimeMs
	}
	if o.TargetFPS == 0 {
		o.TargetFPS = 30
	}
	if o.JumpstartFPS == 0 {
		o.JumpstartFPS = o.TargetFPS
	}
	return o
}

// Buffer is a Node implementing the pacing/ordering contract of §4.6.
type Buffer struct {
	node.Base
	opts Options

	future *frame.List // sorted ascending by PTS
	past   *frame.List // recent playout history, for post-pause jumpstart

	encoderDelayKnown    bool
	lastServedVideoPTS   int64
	lastPastVideoPTS     int64
	prebufferEndPTS      int64
	firstPlayout         bool
	paused               bool
}

// New constructs a Buffer named name.
func New(name string, log *slog.Logger, opts Options) *Buffer {
	b := &Buffer{
		opts:               opts.withDefaults(),
		future:             frame.NewList(),
		past:               frame.NewList(),
		lastServedVideoPTS: frame.InvalidPTS,
		lastPastVideoPTS:   frame.InvalidPTS,
		prebufferEndPTS:    frame.InvalidPTS,
		firstPlayout:       true,
	}
	b.Base = node.NewBase(b, name, log)
	return b
}

var _ node.Node = (*Buffer)(nil)

// SetPaused toggles history/future retention mode (§4.6 step 2-3).
func (b *Buffer) SetPaused(paused bool) { b.paused = paused }

// Push inserts an incoming frame into future, preserving ascending PTS
// order (scanning from the tail, since arrivals are usually in order).
func (b *Buffer) Push(f frame.Frame) {
	pts := f.PTS()
	i := b.future.Len()
	for i > 0 && b.future.At(i-1).PTS() > pts {
		i--
	}
	b.future.InsertAt(i, f)
}

// fill probes the encoder delay once (if still unknown) and pulls one
// frame from upstream into future per call; ReadFrame calls it once per
// invocation and relies on the caller retrying for further replenishment.
func (b *Buffer) fill(ctx context.Context) error {
	if !b.encoderDelayKnown {
		if v, err := b.Base.Source().GetParam("encoderDelay"); err == nil {
			if delay, ok := v.(int64); ok && delay >= 0 {
				if delay > b.opts.BufferTimeMs {
					b.opts.BufferTimeMs = delay
				}
				b.encoderDelayKnown = true
			}
		}
	}

	fr, err := b.Base.Source().ReadFrame(ctx)
	if err != nil {
		return err
	}
	if fr == nil {
		return nil
	}
	b.Push(fr)
	fr.Unref() // Push (via future.InsertAt) took its own reference
	metrics.SetJitterBufferDepth(b.Name(), b.future.Len())
	return nil
}

// ReadFrame implements the emission algorithm of §4.6.
func (b *Buffer) ReadFrame(ctx context.Context) (frame.Frame, error) {
	if err := b.fill(ctx); err != nil && b.future.Empty() {
		return nil, err
	}

	if b.paused {
		if !b.past.Empty() {
			b.spliceHistoryOntoFuture()
		}
		b.trimPausedWindow()
		return nil, nil
	}

	if b.future.Empty() {
		return nil, nil
	}

	headPTS := b.future.Front().PTS()
	tailPTS := b.future.Back().PTS()

	if tailPTS-headPTS <= b.opts.BufferTimeMs {
		return nil, nil
	}

	head := b.future.Front()
	if b.shouldGenerate(head, headPTS) {
		gap := 1000 / b.opts.TargetFPS
		clonePTS := b.lastServedVideoPTS + int64(gap)
		clone := frame.NewCloneFrame(head, clonePTS, clonePTS)
		metrics.IncJitterGenerated(b.Name())
		return clone, nil
	}

	popped := b.future.PopFront()
	metrics.SetJitterBufferDepth(b.Name(), b.future.Len())
	if b.firstPlayout {
		b.prebufferEndPTS = tailPTS
		b.firstPlayout = false
	}
	if popped.MediaType() == frame.MediaVideo {
		b.lastServedVideoPTS = popped.PTS()
	}
	b.maybeSaveToPast(popped)
	return popped, nil
}

func (b *Buffer) shouldGenerate(head frame.Frame, headPTS int64) bool {
	if head.MediaType() != frame.MediaVideo {
		return false
	}
	if b.lastServedVideoPTS == frame.InvalidPTS {
		return false
	}
	if headPTS >= b.prebufferEndPTS {
		return false
	}
	gap := headPTS - b.lastServedVideoPTS
	return gap > int64(1000/b.opts.TargetFPS)
}

func (b *Buffer) spliceHistoryOntoFuture() {
	for i := b.past.Len() - 1; i >= 0; i-- {
		b.future.InsertAt(0, b.past.At(i))
	}
	b.past.Clear()
	b.lastServedVideoPTS = frame.InvalidPTS
	b.lastPastVideoPTS = frame.InvalidPTS
}

func (b *Buffer) trimPausedWindow() {
	if b.future.Empty() {
		return
	}
	tail := b.future.Back().PTS()
	for b.future.Len() > 0 && tail-b.future.Front().PTS() > b.opts.BufferTimePausedMs {
		b.future.PopFront().Unref()
	}
}

// maybeSaveToPast implements the past-frame selection rule of §4.6.
func (b *Buffer) maybeSaveToPast(f frame.Frame) {
	if !b.opts.JumpstartEnabled {
		return
	}
	save := false
	if f.MediaType() != frame.MediaVideo {
		save = true
	} else if b.past.Empty() {
		save = true
	} else if b.lastPastVideoPTS == frame.InvalidPTS || f.PTS()/1000 != b.lastPastVideoPTS/1000 {
		save = true
	} else if f.PTS()-b.lastPastVideoPTS > int64(1000/b.opts.JumpstartFPS) {
		save = true
	}
	if !save {
		return
	}
	if f.MediaType() == frame.MediaVideo {
		b.lastPastVideoPTS = f.PTS()
	}
	b.past.PushBack(f)
	b.trimPast()
}

func (b *Buffer) trimPast() {
	if b.past.Empty() {
		return
	}
	tail := b.past.Back().PTS()
	for b.past.Len() > 0 && tail-b.past.Front().PTS() > b.opts.BufferTimePausedMs {
		b.past.PopFront().Unref()
	}
}

// Close releases all buffered frames before closing upstream.
func (b *Buffer) Close() error {
	b.future.Clear()
	b.past.Clear()
	return b.Base.Close()
}
