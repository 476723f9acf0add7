// Package tqueue implements the threaded queue connector (§4.5): it
// decouples a non-thread-safe or blocking upstream source from a
// downstream consumer running on a different goroutine, using a
// dedicated producer goroutine, a bounded frame queue, and per-channel
// FPS-limited statistics. Grounded on
// original_source/src/videolib/stream_thread_connector.cpp, translated
// from OS threads/events to a goroutine plus edge-triggered signal
// channels, per the teacher's errgroup/goroutine idiom.
package tqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/svpipe/internal/fps"
	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/metrics"
	"github.com/zsiec/svpipe/internal/node"
	"github.com/zsiec/svpipe/internal/perr"
)

// State is the connector's lifecycle state machine:
// Idle -> Running -> (EOF <-> Running) -> Closing, with Running -> Error
// when an upstream read fails.
type State int

const (
	Idle State = iota
	Running
	EOF
	Closing
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case EOF:
		return "eof"
	case Closing:
		return "closing"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Options configures a Connector. Zero values apply the documented
// defaults.
type Options struct {
	MaxQueueSize     int           // 0 = unbounded
	Lossy            bool          // drop the least-distinct video frame instead of blocking
	SilentFPSLimiter bool          // drop rejected video frames instead of substituting a marker
	FPSLimit         float64       // 0 = no write-side rate cap
	Timeout          time.Duration // 0 = wait indefinitely on read_frame
	StatsInterval    time.Duration
}

// Connector is a Node implementing the threaded queue contract.
type Connector struct {
	node.Base
	opts Options

	streamLock sync.RWMutex // gates structural ops against read/producer pulls

	dataMu         sync.Mutex // protects everything below
	queue          *frame.List
	state          State
	lastPTSRead    int64
	video          channelState
	lastQueueWarn  int
	lastStatsTime  time.Time
	lastReadTime   time.Time
	elapsedAccum   time.Duration
	frameAvailable chan struct{}
	queueReady     chan struct{}

	workerDone chan struct{}
	cancel     context.CancelFunc
}

type channelState struct {
	readLimiter, writeLimiter   *fps.Limiter
	lastFrameWriteTime          time.Time
	lastFrameReadTime           time.Time
	lastPTSInQueue              int64
	lastPTSRead                 int64
	framesDropped               int
	framesInQueue               int
	interval, lifetime          snapshot
}

func newChannelState(fpsLimit float64) channelState {
	now := time.Now()
	return channelState{
		readLimiter:       fps.New(fps.Options{TimeBase: fps.TimestampAsDiff}),
		writeLimiter:      fps.New(fps.Options{DesiredFPS: fpsLimit, TimeBase: fps.PTSDelta}),
		lastFrameWriteTime: now,
		lastFrameReadTime:  now,
		lastPTSInQueue:     frame.InvalidPTS,
		lastPTSRead:        frame.InvalidPTS,
	}
}

// New constructs a Connector named name, bounding its queue/drop/rate
// behavior per opts.
func New(name string, log *slog.Logger, opts Options) *Connector {
	c := &Connector{opts: opts}
	c.Base = node.NewBase(c, name, log)
	c.queue = frame.NewList()
	c.state = Idle
	c.frameAvailable = make(chan struct{})
	c.queueReady = make(chan struct{})
	return c
}

var _ node.Node = (*Connector)(nil)

// SetSource takes the structural write lock before delegating to Base.
func (c *Connector) SetSource(src node.Node, flags node.SetSourceFlags) error {
	c.streamLock.Lock()
	defer c.streamLock.Unlock()
	return c.Base.SetSource(src, flags)
}

// State reports the connector's current lifecycle state.
func (c *Connector) State() State {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	return c.state
}

// OpenIn opens the source synchronously, then spawns the producer
// goroutine and transitions Idle -> Running.
func (c *Connector) OpenIn(ctx context.Context) error {
	c.dataMu.Lock()
	c.video = newChannelState(c.opts.FPSLimit)
	c.lastStatsTime = time.Now()
	c.dataMu.Unlock()

	if err := c.Base.OpenIn(ctx); err != nil {
		return err
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.workerDone = make(chan struct{})

	c.dataMu.Lock()
	c.state = Running
	c.dataMu.Unlock()

	go c.producerLoop(workerCtx)
	return nil
}

// signal closes ch to wake any waiter that grabbed it before this call,
// then installs a fresh channel for the next wait cycle. Must be called
// with dataMu held.
func signal(chPtr *chan struct{}) {
	close(*chPtr)
	*chPtr = make(chan struct{})
}

func (c *Connector) producerLoop(ctx context.Context) {
	defer close(c.workerDone)
	wasEOF := false

	for {
		c.streamLock.RLock()
		c.dataMu.Lock()
		state := c.state
		c.dataMu.Unlock()

		var fr frame.Frame
		var readErr error
		if state == Running {
			fr, readErr = c.Base.Source().ReadFrame(ctx)
		}
		c.streamLock.RUnlock()

		if readErr != nil {
			switch {
			case errors.Is(readErr, perr.EndOfStream):
				c.dataMu.Lock()
				c.state = EOF
				c.dataMu.Unlock()
			case ctx.Err() != nil:
				// Shutting down: close() cancelled our context. Wake any
				// consumer blocked waiting for a frame that will never
				// arrive now.
				signal(&c.frameAvailable)
				return
			default:
				c.Log().Error("threaded connector read failed", "node", c.Name(), "error", readErr)
				c.dataMu.Lock()
				c.state = Error
				c.dataMu.Unlock()
				signal(&c.frameAvailable)
				return
			}
		} else if fr != nil {
			c.deposit(fr)
		}

		c.dataMu.Lock()
		atEOF := c.state == EOF
		c.dataMu.Unlock()

		if atEOF {
			if !wasEOF {
				c.Log().Debug("threaded connector reached EOF, waiting for seek or close", "node", c.Name())
			}
			wasEOF = true

			c.dataMu.Lock()
			signal(&c.frameAvailable)
			wait := c.queueReady
			c.dataMu.Unlock()

			select {
			case <-wait:
			case <-ctx.Done():
				return
			}
			continue
		}
		wasEOF = false

		c.dataMu.Lock()
		closing := c.state == Closing || c.state == Error
		c.dataMu.Unlock()
		if closing {
			signal(&c.frameAvailable)
			return
		}

		if !c.waitForSpace(ctx) {
			signal(&c.frameAvailable)
			return
		}
	}
}

// deposit applies the write-side FPS limiter (video frames only) and
// pushes the frame onto the queue, signaling frameAvailable if the queue
// was empty.
func (c *Connector) deposit(fr frame.Frame) {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()

	sizeBefore := c.queue.Len()
	isVideo := fr.MediaType() == frame.MediaVideo

	if isVideo {
		if c.video.writeLimiter.Report(fr.PTS()) == fps.Reject {
			if c.opts.SilentFPSLimiter {
				fr.Unref() // caller's reference is dropped, frame discarded
				return
			}
			marker := frame.NewVideoTimeMarker(fr.PTS(), fr.DTS(), fr.Width(), fr.Height())
			fr.Unref() // original payload discarded; only the marker is queued
			fr = marker
		} else {
			now := time.Now()
			dur := now.Sub(c.video.lastFrameWriteTime)
			c.video.framesInQueue++
			c.video.lastFrameWriteTime = now
			if fr.PTS() > c.video.lastPTSInQueue || c.video.lastPTSInQueue == frame.InvalidPTS {
				c.video.lastPTSInQueue = fr.PTS()
			}
			depth := int64(sizeBefore + 1)
			c.video.interval.queueDepth.update(depth)
			c.video.interval.writeInterval.update(dur.Milliseconds())
			if c.video.lastPTSRead != frame.InvalidPTS {
				c.video.interval.ptsSpread.update(c.video.lastPTSInQueue - c.video.lastPTSRead)
			}
			metrics.SetQueueDepth(c.Name(), c.video.framesInQueue)
			metrics.ObserveWriteInterval(c.Name(), float64(dur.Milliseconds()))
			c.maybeLogStatsLocked(now)
		}
	}

	c.queue.PushBack(fr)
	fr.Unref() // List.PushBack took its own reference

	if sizeBefore == 0 {
		signal(&c.frameAvailable)
	}
}

func (c *Connector) maybeLogStatsLocked(now time.Time) {
	if c.opts.StatsInterval == 0 {
		return
	}
	if now.Sub(c.lastStatsTime) < c.opts.StatsInterval {
		return
	}
	c.lastStatsTime = now
	stats := c.statsLocked()
	c.Log().Info("threaded connector stats", "node", c.Name(),
		"queueDepth", stats.FramesInQueue, "dropped", stats.FramesDropped,
		"readFPS", stats.ReadFPS, "writeFPS", stats.WriteFPS)
	c.video.lifetime.combine(&c.video.interval)
	c.video.interval.reset()
}

// checkQueueSizeLocked reports whether the queue is within bounds, applying
// the lossy drop-least-distinct-frame policy if over the cap and lossy
// is enabled. Must be called with dataMu held.
func (c *Connector) checkQueueSizeLocked() bool {
	if c.opts.MaxQueueSize == 0 || c.video.framesInQueue <= c.opts.MaxQueueSize {
		return true
	}
	if !c.opts.Lossy {
		return false
	}

	prevPTS := c.video.lastPTSRead
	bestDistance := int64(1 << 62)
	bestIdx := -1
	c.queue.Each(func(i int, f frame.Frame) {
		if f.MediaType() != frame.MediaVideo {
			return
		}
		d := f.PTS() - prevPTS
		if d < bestDistance {
			bestDistance = d
			bestIdx = i
		}
		prevPTS = f.PTS()
	})
	if bestIdx >= 0 {
		c.queue.RemoveAt(bestIdx)
		c.video.framesDropped++
		c.video.framesInQueue--
		metrics.IncFramesDropped(c.Name())
	}
	return true
}

func (c *Connector) waitForSpace(ctx context.Context) bool {
	for {
		c.dataMu.Lock()
		running := c.state == Running
		if !running {
			c.dataMu.Unlock()
			return running
		}
		ok := c.checkQueueSizeLocked()
		var wait chan struct{}
		if !ok {
			wait = c.queueReady
		}
		c.dataMu.Unlock()
		if ok {
			return true
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return false
		}
	}
}

// ReadFrame pops the next frame, applying the read-side FPS limiter
// (measurement only) to video frames. Blocks up to Options.Timeout (0 =
// indefinitely) for a frame to become available.
func (c *Connector) ReadFrame(ctx context.Context) (frame.Frame, error) {
	c.streamLock.RLock()
	defer c.streamLock.RUnlock()

	elapsed := c.elapsedSinceLastRead()

	for {
		c.dataMu.Lock()
		if c.queue.Len() > 0 {
			fr := c.queue.PopFront()
			signal(&c.queueReady)

			if fr.MediaType() == frame.MediaVideo {
				now := time.Now()
				dur := now.Sub(c.video.lastFrameReadTime)
				c.video.lastFrameReadTime = now
				pts := fr.PTS()
				if pts > c.video.lastPTSRead || c.video.lastPTSRead == frame.InvalidPTS {
					c.video.lastPTSRead = pts
				}
				c.video.interval.queueDepth.update(int64(c.queue.Len()))
				c.video.interval.readInterval.update(dur.Milliseconds())
				c.video.interval.ptsSpread.update(c.video.lastPTSInQueue - c.video.lastPTSRead)
				c.video.framesInQueue--
				c.video.readLimiter.Report(elapsed.Milliseconds())
				c.elapsedAccum = 0
				metrics.SetQueueDepth(c.Name(), c.video.framesInQueue)
				metrics.ObserveReadInterval(c.Name(), float64(dur.Milliseconds()))
				metrics.SetReadFPS(c.Name(), c.video.readLimiter.FPS())
				metrics.SetWriteFPS(c.Name(), c.video.writeLimiter.FPS())
			} else {
				c.elapsedAccum = elapsed
			}
			c.lastReadTime = time.Now()
			c.dataMu.Unlock()
			return fr, nil
		}

		state := c.state
		if state == EOF {
			c.dataMu.Unlock()
			return nil, &perr.EndOfStreamError{Op: "read_frame"}
		}
		if state != Running {
			c.dataMu.Unlock()
			return nil, &perr.InvalidStateError{Op: "read_frame"}
		}

		wait := c.frameAvailable
		c.dataMu.Unlock()

		if c.opts.Timeout == 0 {
			select {
			case <-wait:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		select {
		case <-wait:
		case <-time.After(c.opts.Timeout):
			return nil, &perr.TimeoutError{Op: "read_frame"}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Connector) elapsedSinceLastRead() time.Duration {
	if c.lastReadTime.IsZero() {
		if c.opts.FPSLimit > 0 {
			return time.Duration(1000/c.opts.FPSLimit) * time.Millisecond
		}
		return 33 * time.Millisecond
	}
	return time.Since(c.lastReadTime) + c.elapsedAccum
}

// Seek clears the queue, reinitializes per-channel state, and resumes
// Running, or takes the shortcut of dropping only the frames preceding
// offsetMs when it is already buffered and ahead of the last read PTS.
func (c *Connector) Seek(ctx context.Context, offsetMs int64, flags node.SeekFlags) error {
	c.streamLock.Lock()
	defer c.streamLock.Unlock()

	c.dataMu.Lock()
	defer func() {
		signal(&c.queueReady)
		c.dataMu.Unlock()
	}()

	if c.state != Running && c.state != EOF {
		return nil
	}

	if (offsetMs > c.video.lastPTSRead || c.video.lastPTSRead == frame.InvalidPTS) &&
		c.video.lastPTSInQueue != frame.InvalidPTS && offsetMs <= c.video.lastPTSInQueue {
		c.flushQueueLocked(offsetMs)
		return nil
	}

	c.dataMu.Unlock()
	err := c.Base.Seek(ctx, offsetMs, flags)
	c.dataMu.Lock()
	if err != nil {
		return err
	}
	c.flushQueueLocked(frame.InvalidPTS)
	c.video = newChannelState(c.opts.FPSLimit)
	c.state = Running
	return nil
}

func (c *Connector) flushQueueLocked(beforePTS int64) {
	for c.queue.Len() > 0 {
		front := c.queue.Front()
		if beforePTS != frame.InvalidPTS && front.MediaType() == frame.MediaVideo && front.PTS() >= beforePTS {
			break
		}
		c.queue.PopFront().Unref()
		c.video.framesInQueue--
	}
}

// Stats returns a point-in-time snapshot of this connector's queue and
// FPS statistics.
func (c *Connector) Stats() Stats {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	return c.statsLocked()
}

func (c *Connector) statsLocked() Stats {
	combined := c.video.lifetime
	combined.combine(&c.video.interval)
	return Stats{
		FramesInQueue:    c.video.framesInQueue,
		FramesDropped:    c.video.framesDropped,
		ReadFPS:          c.video.readLimiter.FPS(),
		WriteFPS:         c.video.writeLimiter.FPS(),
		FramesAccepted:   c.video.writeLimiter.Accepted(),
		FramesRejected:   c.video.writeLimiter.Rejected(),
		MaxQueueDepth:    combined.queueDepth.max,
		AvgQueueDepth:    combined.queueDepth.average(),
		MaxReadInterval:  combined.readInterval.max,
		AvgReadInterval:  combined.readInterval.average(),
		MaxWriteInterval: combined.writeInterval.max,
		AvgWriteInterval: combined.writeInterval.average(),
		MaxPTSSpread:     combined.ptsSpread.max,
		AvgPTSSpread:     combined.ptsSpread.average(),
	}
}

// SetParam handles lossy, timeout, maxQueueSize, fpsLimit,
// silentFpsLimiter, statsIntervalSec, and flushStats before forwarding
// anything else to Base.
func (c *Connector) SetParam(name string, value any) error {
	switch name {
	case "lossy":
		c.opts.Lossy, _ = value.(bool)
		return nil
	case "timeout":
		if ms, ok := value.(int); ok {
			c.opts.Timeout = time.Duration(ms) * time.Millisecond
		}
		return nil
	case "maxQueueSize":
		if v, ok := value.(int); ok {
			c.opts.MaxQueueSize = v
		}
		return nil
	case "fpsLimit":
		if v, ok := value.(float64); ok {
			c.opts.FPSLimit = v
			c.dataMu.Lock()
			c.video.writeLimiter.SetDesiredFPS(v)
			c.dataMu.Unlock()
		}
		return nil
	case "silentFpsLimiter":
		c.opts.SilentFPSLimiter, _ = value.(bool)
		return nil
	case "statsIntervalSec":
		if v, ok := value.(int); ok {
			msec := time.Duration(v) * time.Second
			if c.opts.StatsInterval == 0 || msec < c.opts.StatsInterval {
				c.opts.StatsInterval = msec
			}
		}
		return nil
	case "flushStats":
		c.dataMu.Lock()
		c.video.lifetime.combine(&c.video.interval)
		c.video.interval.reset()
		c.dataMu.Unlock()
		return nil
	}
	return c.Base.SetParam(name, value)
}

// GetParam reports requestFps, captureFps, eof, and flushStats (a Stats
// snapshot) before forwarding.
func (c *Connector) GetParam(name string) (any, error) {
	switch name {
	case "flushStats":
		c.dataMu.Lock()
		defer c.dataMu.Unlock()
		return c.statsLocked(), nil
	case "requestFps":
		c.dataMu.Lock()
		defer c.dataMu.Unlock()
		return c.video.readLimiter.FPS(), nil
	case "captureFps":
		c.dataMu.Lock()
		defer c.dataMu.Unlock()
		return c.video.writeLimiter.FPS(), nil
	case "eof":
		c.dataMu.Lock()
		defer c.dataMu.Unlock()
		return c.queue.Empty() && c.state == EOF, nil
	}
	return c.Base.GetParam(name)
}

// Close transitions to Closing (idempotent), releases the producer, and
// joins its goroutine before closing the source.
func (c *Connector) Close() error {
	// The state flip only needs dataMu: taking streamLock's write side
	// here would deadlock against a producer blocked inside an upstream
	// ReadFrame call while holding streamLock for read. Cancelling the
	// worker context (below) is what unblocks that read; only once the
	// worker has actually exited do we take the write lock.
	c.dataMu.Lock()
	if c.state == Closing {
		c.dataMu.Unlock()
		return nil
	}
	c.state = Closing
	signal(&c.queueReady)
	c.dataMu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if c.workerDone != nil {
		<-c.workerDone
	}

	c.streamLock.Lock()
	c.dataMu.Lock()
	c.flushQueueLocked(frame.InvalidPTS)
	c.dataMu.Unlock()
	c.streamLock.Unlock()

	return c.Base.Close()
}
