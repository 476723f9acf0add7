package codec

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/svpipe/internal/frame"
)

// astiavDecoder is the production video-decode Transformer, backed by a
// go-astiav codec context. The codec's own frame pool is bridged into the
// pipeline's reference-counting discipline by releasing the astiav.Frame
// back to astiav from the PictureFrame's onClose callback (§9's "frame
// reference counting maps to an atomic counter plus a release closure").
type astiavDecoder struct {
	codecCtx *astiav.CodecContext
	pkt      *astiav.Packet
}

// NewAstiavDecoder opens a decoder for the named codec ("h264", "hevc",
// "aac", ...).
func NewAstiavDecoder(codecName string) (Transformer, error) {
	c := astiav.FindDecoderByName(codecName)
	if c == nil {
		return nil, fmt.Errorf("codec: no decoder registered for %q", codecName)
	}
	cc := astiav.AllocCodecContext(c)
	if cc == nil {
		return nil, fmt.Errorf("codec: allocate decode context for %q", codecName)
	}
	if err := cc.Open(c, nil); err != nil {
		cc.Free()
		return nil, fmt.Errorf("codec: open decoder %q: %w", codecName, err)
	}
	return &astiavDecoder{codecCtx: cc, pkt: astiav.AllocPacket()}, nil
}

func (d *astiavDecoder) Transform(in frame.Frame) (frame.Frame, error) {
	d.pkt.UnrefBuffer()
	if err := d.pkt.FromData(in.Data()); err != nil {
		return nil, fmt.Errorf("codec: load packet: %w", err)
	}
	d.pkt.SetPts(in.PTS())
	d.pkt.SetDts(in.DTS())

	if err := d.codecCtx.SendPacket(d.pkt); err != nil {
		return nil, fmt.Errorf("codec: send packet: %w", err)
	}

	avFrame := astiav.AllocFrame()
	if err := d.codecCtx.ReceiveFrame(avFrame); err != nil {
		avFrame.Free()
		return nil, fmt.Errorf("codec: receive frame: %w", err)
	}

	pic := frame.NewPictureFrame(frame.MediaVideo, nil, avFrame, avFrame.Free)
	pic.SetTimestamps(avFrame.Pts(), avFrame.Pts())
	pic.SetDimensions(avFrame.Width(), avFrame.Height(), astiavToPixfmt(avFrame.PixelFormat()))
	return pic, nil
}

func (d *astiavDecoder) Close() error {
	d.pkt.Free()
	d.codecCtx.Free()
	return nil
}

// astiavToPixfmt maps the subset of FFmpeg pixel formats this pipeline
// understands (§6) to frame.PixelFormat; anything else reports Undefined
// rather than guessing.
func astiavToPixfmt(p astiav.PixelFormat) frame.PixelFormat {
	switch p.Name() {
	case "yuv420p":
		return frame.PixfmtYUV420P
	case "yuv422p":
		return frame.PixfmtYUV422P
	case "yuv444p":
		return frame.PixfmtYUV444P
	case "nv12":
		return frame.PixfmtNV12
	case "rgb24":
		return frame.PixfmtRGB24
	case "bgr24":
		return frame.PixfmtBGR24
	default:
		return frame.PixfmtUndefined
	}
}
