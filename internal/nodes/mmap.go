package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/node"
)

// mmapHeaderSize mirrors the original's fixed 32-byte text header ahead
// of the pixel payload: "<frameCounter><width><height><requestFps><captureFps>\n".
const mmapHeaderSize = 32

// MmapSink is a terminal consumer Node exposing the current video frame
// in a memory-mapped file for same-host viewers (§4.8's peer list, e.g.
// a desktop preview window) to read without a socket round trip.
// Grounded on original_source's stream_mmap.cpp.
type MmapSink struct {
	node.Base

	filename string
	file     *os.File
	region   []byte
	width    int
	height   int

	frameCounter uint64
	fpsLogged    bool
}

// NewMmapSink constructs an MmapSink writing to filename once opened.
func NewMmapSink(name string, log *slog.Logger, filename string) *MmapSink {
	m := &MmapSink{filename: filename}
	m.Base = node.NewBase(m, name, log)
	return m
}

var _ node.Node = (*MmapSink)(nil)

// SetParam handles "filename", falling back to Base.
func (m *MmapSink) SetParam(name string, value any) error {
	if name == "filename" {
		if v, ok := value.(string); ok {
			m.filename = v
			return nil
		}
	}
	return m.Base.SetParam(name, value)
}

// OpenIn opens upstream, then sizes and maps the backing file to the
// upstream chain's reported dimensions.
func (m *MmapSink) OpenIn(ctx context.Context) error {
	if m.filename == "" {
		return fmt.Errorf("mmap sink: filename is not set")
	}
	if err := m.Base.OpenIn(ctx); err != nil {
		return err
	}
	return m.remap(m.Base.Width(), m.Base.Height())
}

func (m *MmapSink) remap(width, height int) error {
	m.closeMapping()

	// Payload is one packed 3-byte-per-pixel (RGB24-equivalent) frame, as
	// produced by the upstream resize/convert stage (§4.13); the header
	// and a matching trailer bracket it.
	payloadSize := width * height * 3
	size := mmapHeaderSize + payloadSize + 1024

	f, err := os.OpenFile(m.filename, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("mmap sink: open %s: %w", m.filename, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return fmt.Errorf("mmap sink: truncate %s: %w", m.filename, err)
	}
	region, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("mmap sink: mmap %s: %w", m.filename, err)
	}

	m.file = f
	m.region = region
	m.width = width
	m.height = height
	return nil
}

func (m *MmapSink) closeMapping() {
	if m.region != nil {
		unix.Munmap(m.region)
		m.region = nil
	}
	if m.file != nil {
		m.file.Close()
		m.file = nil
	}
}

// ReadFrame pulls the next frame from upstream, copies video frames into
// the mapped region with the header/trailer the original format expects,
// and passes every frame through unchanged.
func (m *MmapSink) ReadFrame(ctx context.Context) (frame.Frame, error) {
	fr, err := m.Base.ReadFrame(ctx)
	if err != nil || fr == nil {
		return fr, err
	}
	if fr.MediaType() != frame.MediaVideo {
		return fr, nil
	}

	w, h := fr.Width(), fr.Height()
	if w != m.width || h != m.height {
		if log := m.Log(); log != nil {
			log.Info("mmap sink output size changed", "oldWidth", m.width, "oldHeight", m.height, "width", w, "height", h)
		}
		if err := m.remap(w, h); err != nil {
			return nil, err
		}
	}

	m.writeFrame(fr)
	return fr, nil
}

func (m *MmapSink) writeFrame(fr frame.Frame) {
	data := fr.Data()
	if m.region == nil || mmapHeaderSize+len(data) > len(m.region) {
		if log := m.Log(); log != nil {
			log.Error("cannot output mmap frame: backing region too small", "dataSize", len(data))
		}
		return
	}

	requestFps, captureFps := m.fpsParams()

	header := fmt.Sprintf("%9d%4d%4d%7.2f%7.2f\n", m.frameCounter, fr.Width(), fr.Height(), requestFps, captureFps)
	copy(m.region, header)
	copy(m.region[mmapHeaderSize:], data)
	trailer := fmt.Sprintf("%4d%4d\n", fr.Width(), fr.Height())
	copy(m.region[mmapHeaderSize+len(data):], trailer)

	m.frameCounter = (m.frameCounter + 1) % 1000000000
}

func (m *MmapSink) fpsParams() (requestFps, captureFps float64) {
	if v, err := m.Base.GetParam("captureFps"); err == nil {
		if f, ok := v.(float64); ok {
			captureFps = f
		}
	} else if !m.fpsLogged {
		if log := m.Log(); log != nil {
			log.Error("cannot determine the current capture fps")
		}
	}
	if v, err := m.Base.GetParam("requestFps"); err == nil {
		if f, ok := v.(float64); ok {
			requestFps = f
		}
	} else {
		requestFps = captureFps
		if !m.fpsLogged {
			if log := m.Log(); log != nil {
				log.Error("cannot determine the current request fps")
			}
		}
	}
	m.fpsLogged = true
	return requestFps, captureFps
}

// Close unmaps/closes the backing file before closing upstream.
func (m *MmapSink) Close() error {
	m.closeMapping()
	return m.Base.Close()
}
