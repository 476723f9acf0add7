// Package framepool implements the pooled frame allocator (§4.2): a
// per-producer recycler of heavyweight ByteBufferFrame objects, grounded on
// the free/in-flight list discipline of the original frame_allocator, with
// reduction governed by a desired count and a minimum idle time before a
// free frame is actually destroyed.
package framepool

import (
	"sync"
	"time"

	"github.com/zsiec/svpipe/internal/frame"
)

// Recyclable is implemented by frame variants the pool can manage. Only
// *frame.ByteBufferFrame satisfies it today.
type Recyclable interface {
	frame.Frame
	ResetForPool()
}

// Options configures a Pool. Zero values apply the defaults documented in
// §4.2.
type Options struct {
	// DesiredCount is the steady-state number of free frames the pool
	// tries to keep cached. Default 5.
	DesiredCount int
	// ReductionThreshold is the minimum idle time since the last
	// allocation before the pool will shrink the free list. Default 2s.
	ReductionThreshold time.Duration
}

func (o Options) withDefaults() Options {
	if o.DesiredCount == 0 {
		o.DesiredCount = 5
	}
	if o.ReductionThreshold == 0 {
		o.ReductionThreshold = 2 * time.Second
	}
	return o
}

// Pool recycles ByteBufferFrame instances for a single producer. The zero
// value is not usable; construct with New.
type Pool struct {
	name string
	opts Options

	mu             sync.Mutex
	free           []*frame.ByteBufferFrame
	inFlight       int
	lastAllocation time.Time
	dying          bool

	now func() time.Time // overridable for tests
}

// New creates a Pool identified by name (used only for diagnostics).
func New(name string, opts Options) *Pool {
	return &Pool{
		name: name,
		opts: opts.withDefaults(),
		now:  time.Now,
	}
}

// Name returns the pool's diagnostic name.
func (p *Pool) Name() string { return p.name }

// Acquire returns a recycled frame from the free list, or nil if the free
// list is empty (the caller should allocate a fresh frame and call
// Register on it). Mirrors frame_allocator_get: reset the head, attempt a
// reduction step, return.
func (p *Pool) Acquire() *frame.ByteBufferFrame {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return nil
	}
	n := len(p.free) - 1
	f := p.free[n]
	p.free = p.free[:n]
	f.ResetForPool()
	p.inFlight++

	p.reduceLocked()
	return f
}

// Register marks a freshly created frame as owned by this pool. Callers
// create the frame with frame.NewPooledByteBufferFrame(pool) and then call
// Register before handing it to a producer.
func (p *Pool) Register(f *frame.ByteBufferFrame) {
	p.mu.Lock()
	p.lastAllocation = p.now()
	p.inFlight++
	p.mu.Unlock()
}

// Release implements frame.Releaser: invoked when a pooled frame's
// refcount reaches zero. If the pool is over its desired count and has
// been idle past the reduction threshold, the frame is destroyed
// immediately instead of being recycled.
func (p *Pool) Release(f frame.Frame) {
	bbf, ok := f.(*frame.ByteBufferFrame)
	if !ok {
		return
	}

	p.mu.Lock()
	destroyExtra := p.reduceLocked()
	if destroyExtra {
		// Reduction already freed the oldest free-list entry; this
		// released frame itself is also over budget, so it is not
		// recycled either.
		p.inFlight--
		dying := p.dying && p.inFlight == 0
		p.mu.Unlock()
		if dying {
			p.teardown()
		}
		return
	}

	p.free = append(p.free, bbf)
	p.inFlight--
	dying := p.dying && p.inFlight == 0
	p.mu.Unlock()

	if dying {
		p.teardown()
	}
}

// reduceLocked destroys the oldest free-list entry if the pool holds more
// free frames than desired and has been idle long enough. Must be called
// with mu held. Reports whether a destruction happened.
func (p *Pool) reduceLocked() bool {
	if len(p.free) > p.opts.DesiredCount &&
		p.now().Sub(p.lastAllocation) > p.opts.ReductionThreshold &&
		len(p.free) > 0 {
		p.free = p.free[1:]
		return true
	}
	return false
}

// Stats reports the current free and in-flight counts.
func (p *Pool) Stats() (free, inFlight int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free), p.inFlight
}

// Destroy tears the pool down. If frames remain in flight, teardown is
// deferred: the pool is marked dying and the last Release triggers the
// actual free-list drain.
func (p *Pool) Destroy() {
	p.mu.Lock()
	if p.inFlight > 0 {
		p.dying = true
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.teardown()
}

func (p *Pool) teardown() {
	p.mu.Lock()
	p.free = nil
	p.mu.Unlock()
}
