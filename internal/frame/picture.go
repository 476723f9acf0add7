package frame

// PictureFrame carries a decoded picture or audio sample buffer backed by
// a codec library object (e.g. an astiav.Frame from a DecodeNode). The
// codec object is stored under the well-known "avframe" key; closing it is
// the responsibility of the onClose callback supplied at construction, so
// that the codec library's own buffer-pool discipline (go-astiav keeps an
// internal frame pool) is bridged into ours: when the refcount here drops
// to zero, the codec frame is returned to its own allocator rather than
// leaked.
type PictureFrame struct {
	base
	data    []byte
	onClose func()
}

var _ Frame = (*PictureFrame)(nil)

// NewPictureFrame wraps a decoded frame. avObj is stored under "avframe".
// onClose, if non-nil, runs exactly once, when the last reference is
// released.
func NewPictureFrame(mediaType MediaType, data []byte, avObj any, onClose func()) *PictureFrame {
	f := &PictureFrame{base: newBase(nil), data: data, onClose: onClose}
	f.mediaType = mediaType
	if avObj != nil {
		f.SetBacking("avframe", avObj)
	}
	return f
}

func (f *PictureFrame) Ref() Frame {
	f.ref()
	return f
}

func (f *PictureFrame) Unref() bool {
	if !f.unref() {
		return false
	}
	if f.onClose != nil {
		f.onClose()
	}
	if f.release != nil {
		f.release.Release(f)
	}
	return true
}

func (f *PictureFrame) Size() int    { return len(f.data) }
func (f *PictureFrame) Data() []byte { return f.data }
func (f *PictureFrame) WritableBuffer(size int) ([]byte, error) {
	if cap(f.data) < size {
		f.data = make([]byte, size)
	}
	f.data = f.data[:size]
	return f.data, nil
}
