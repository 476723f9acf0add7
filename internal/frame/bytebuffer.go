package frame

// codecPadding is appended to every ByteBufferFrame allocation so that
// decoders reading past the declared size by a bounded amount (common in
// SIMD bitstream readers) never run off the end of the backing array.
const codecPadding = 64

// ByteBufferFrame owns a single byte-slice allocation, padded for codec
// safety. It is the frame variant the pooled allocator recycles: Reset
// zeroes its logical size without releasing the backing array, so repeated
// acquire/release cycles reuse the same memory.
type ByteBufferFrame struct {
	base
	buf  []byte // full backing array, len == cap(logical) + codecPadding
	size int    // logical size in use
}

var _ Frame = (*ByteBufferFrame)(nil)

// NewByteBufferFrame creates a frame not attached to any pool; Unref frees
// its own memory when the refcount reaches zero.
func NewByteBufferFrame(mediaType MediaType) *ByteBufferFrame {
	f := &ByteBufferFrame{base: newBase(nil)}
	f.mediaType = mediaType
	return f
}

// NewPooledByteBufferFrame creates a frame whose Releaser routes back to a
// pool instead of freeing memory. Used only by framepool.
func NewPooledByteBufferFrame(release Releaser) *ByteBufferFrame {
	f := &ByteBufferFrame{base: newBase(release)}
	return f
}

func (f *ByteBufferFrame) Ref() Frame {
	f.ref()
	return f
}

func (f *ByteBufferFrame) Unref() bool {
	if !f.unref() {
		return false
	}
	if f.release != nil {
		f.release.Release(f)
	}
	return true
}

func (f *ByteBufferFrame) Size() int { return f.size }

func (f *ByteBufferFrame) Data() []byte {
	return f.buf[:f.size]
}

func (f *ByteBufferFrame) WritableBuffer(size int) ([]byte, error) {
	if cap(f.buf) < size+codecPadding {
		f.buf = make([]byte, size+codecPadding)
	}
	f.size = size
	return f.buf[:size], nil
}

// ResetForPool restores the frame to a blank, recyclable state and revives
// its refcount to 1. Called by the pool's reset callback on acquire, never
// by application code directly. Implements framepool.Recyclable.
func (f *ByteBufferFrame) ResetForPool() {
	f.base.reset()
	f.size = 0
	f.reviveRefcount()
}
