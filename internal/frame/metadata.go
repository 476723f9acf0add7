package frame

// MetadataFrame is a byte-buffer frame tagged with MediaMetadata, carrying
// an application-defined value (e.g. a caption payload under the
// well-known "caption" backing key, or an operator-supplied value injected
// via the metadata injector's set_param("metadata.<pts_ms>", value)).
type MetadataFrame struct {
	base
	buf []byte
}

var _ Frame = (*MetadataFrame)(nil)

// NewMetadataFrame creates a metadata frame carrying value at pts.
func NewMetadataFrame(pts int64, value []byte) *MetadataFrame {
	f := &MetadataFrame{base: newBase(nil), buf: value}
	f.mediaType = MediaMetadata
	f.pts, f.dts = pts, pts
	return f
}

func (f *MetadataFrame) Ref() Frame {
	f.ref()
	return f
}

func (f *MetadataFrame) Unref() bool {
	if !f.unref() {
		return false
	}
	if f.release != nil {
		f.release.Release(f)
	}
	return true
}

func (f *MetadataFrame) Size() int    { return len(f.buf) }
func (f *MetadataFrame) Data() []byte { return f.buf }
func (f *MetadataFrame) WritableBuffer(size int) ([]byte, error) {
	if cap(f.buf) < size {
		f.buf = make([]byte, size)
	}
	f.buf = f.buf[:size]
	return f.buf, nil
}

// NewVideoTimeMarker creates a zero-payload MediaVideoTime frame carrying
// only a timestamp and dimensions, used by the threaded connector's write
// FPS limiter to signal a dropped frame's timing without its payload
// (§4.5, §4.4).
func NewVideoTimeMarker(pts, dts int64, width, height int) *ByteBufferFrame {
	f := NewByteBufferFrame(MediaVideoTime)
	f.SetTimestamps(pts, dts)
	f.SetDimensions(width, height, PixfmtUndefined)
	return f
}
