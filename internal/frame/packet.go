package frame

// PacketFrame carries a compressed access unit (an encoded video or audio
// packet) as produced by a demux source node. It wraps a backing transport
// object (e.g. an *media.VideoFrame or *media.AudioFrame assembled by the
// demuxer) under the well-known "srcFrame" key, per §3's typed
// backing-object access.
type PacketFrame struct {
	base
	buf []byte
}

var _ Frame = (*PacketFrame)(nil)

// NewPacketFrame wraps already-serialized packet bytes. src, if non-nil, is
// stored under the "srcFrame" backing key so downstream nodes can recover
// demuxer-specific fields (SPS/PPS, codec name, track index) without the
// frame package knowing their shape.
func NewPacketFrame(mediaType MediaType, data []byte, src any) *PacketFrame {
	f := &PacketFrame{base: newBase(nil), buf: data}
	f.mediaType = mediaType
	if src != nil {
		f.SetBacking("srcFrame", src)
	}
	return f
}

func (f *PacketFrame) Ref() Frame {
	f.ref()
	return f
}

func (f *PacketFrame) Unref() bool {
	if !f.unref() {
		return false
	}
	if f.release != nil {
		f.release.Release(f)
	}
	return true
}

func (f *PacketFrame) Size() int       { return len(f.buf) }
func (f *PacketFrame) Data() []byte    { return f.buf }
func (f *PacketFrame) WritableBuffer(size int) ([]byte, error) {
	if cap(f.buf) < size {
		f.buf = make([]byte, size)
	}
	f.buf = f.buf[:size]
	return f.buf, nil
}
