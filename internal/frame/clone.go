package frame

import "github.com/zsiec/svpipe/internal/perr"

// CloneFrame references another frame and overrides only PTS/DTS; every
// other accessor forwards to the source. Used by the jitter buffer to
// synthesize a timestamp-shifted duplicate of the current head frame
// without copying its payload (§4.6). The source is stored under the
// well-known "cloneParent" backing key and is itself reference-counted:
// the clone holds one reference to src for its entire lifetime.
type CloneFrame struct {
	refcount int32
	src      Frame
	pts, dts int64
	release  Releaser
}

var _ Frame = (*CloneFrame)(nil)

// NewCloneFrame takes a reference on src and returns a clone presenting
// pts/dts in its place.
func NewCloneFrame(src Frame, pts, dts int64) *CloneFrame {
	src.Ref()
	f := &CloneFrame{refcount: 1, src: src, pts: pts, dts: dts}
	return f
}

func (f *CloneFrame) Ref() Frame {
	atomicAdd(&f.refcount, 1)
	return f
}

func (f *CloneFrame) Unref() bool {
	if atomicAdd(&f.refcount, -1) != 0 {
		return false
	}
	f.src.Unref()
	if f.release != nil {
		f.release.Release(f)
	}
	return true
}

func (f *CloneFrame) RefCount() int32 { return atomicLoad(&f.refcount) }

func (f *CloneFrame) Size() int    { return f.src.Size() }
func (f *CloneFrame) Data() []byte { return f.src.Data() }
func (f *CloneFrame) WritableBuffer(size int) ([]byte, error) {
	return nil, &perr.UnsupportedError{Op: "CloneFrame.WritableBuffer"}
}

func (f *CloneFrame) PTS() int64 { return f.pts }
func (f *CloneFrame) DTS() int64 { return f.dts }
func (f *CloneFrame) SetTimestamps(pts, dts int64) {
	f.pts, f.dts = pts, dts
}

func (f *CloneFrame) Width() int               { return f.src.Width() }
func (f *CloneFrame) Height() int              { return f.src.Height() }
func (f *CloneFrame) PixelFormat() PixelFormat { return f.src.PixelFormat() }
func (f *CloneFrame) SetDimensions(int, int, PixelFormat) error {
	return &perr.UnsupportedError{Op: "CloneFrame.SetDimensions"}
}

func (f *CloneFrame) SampleRate() int            { return f.src.SampleRate() }
func (f *CloneFrame) SampleFormat() SampleFormat { return f.src.SampleFormat() }
func (f *CloneFrame) Channels() int              { return f.src.Channels() }
func (f *CloneFrame) Interleaved() bool          { return f.src.Interleaved() }
func (f *CloneFrame) SetAudioFormat(int, int, SampleFormat, bool) error {
	return &perr.UnsupportedError{Op: "CloneFrame.SetAudioFormat"}
}

func (f *CloneFrame) MediaType() MediaType { return f.src.MediaType() }
func (f *CloneFrame) IsKeyframe() bool     { return f.src.IsKeyframe() }
func (f *CloneFrame) SetMediaType(MediaType) {}
func (f *CloneFrame) SetKeyframe(bool) error {
	return &perr.UnsupportedError{Op: "CloneFrame.SetKeyframe"}
}

func (f *CloneFrame) UserContext() any       { return f.src.UserContext() }
func (f *CloneFrame) SetUserContext(ctx any) { f.src.SetUserContext(ctx) }

func (f *CloneFrame) Backing(key string) any {
	if key == "cloneParent" {
		return f.src
	}
	return f.src.Backing(key)
}
func (f *CloneFrame) SetBacking(key string, value any) {
	f.src.SetBacking(key, value)
}
