// Package nodes collects representative peripheral nodes (§4.8): small,
// single-purpose Node implementations sitting off the main decode chain
// that a recording/playback pipeline wires in alongside the core nodes
// (jitter buffer, splitter). Grounded on original_source's
// stream_metadata_injector.cpp, stream_recorder_sync.cpp, and
// stream_mmap.cpp.
package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/node"
	"github.com/zsiec/svpipe/internal/perr"
)

// MetadataInjector interleaves operator-supplied metadata frames into a
// video chain, ordering each metadata frame immediately before the data
// frame its timestamp is most applicable to (§4.8). Metadata is supplied
// with SetParam("metadata.<pts_ms>", value); read_frame does the
// reordering.
type MetadataInjector struct {
	node.Base

	preloaded       bool // metadata must be loaded before OpenIn
	isInitialized   bool
	minJitterBuffer int
	maxDelayFrames  int

	metaPreloaded *frame.List // only consulted in preloaded mode
	metaAvailable *frame.List
	dataAvailable *frame.List

	lastVideoPts     int64
	lastMetaPts      int64
	videoFramesCount int
	metaWritten      int
	metaIgnored      int
	sourceEOF        bool
}

// NewMetadataInjector constructs a MetadataInjector. preloaded mirrors the
// original's default: when true, all metadata.* values must be set before
// OpenIn, and OpenIn copies them into the active queue.
func NewMetadataInjector(name string, log *slog.Logger, preloaded bool) *MetadataInjector {
	m := &MetadataInjector{
		preloaded:       preloaded,
		minJitterBuffer: 1,
		metaPreloaded:   frame.NewList(),
		metaAvailable:   frame.NewList(),
		dataAvailable:   frame.NewList(),
	}
	m.Base = node.NewBase(m, name, log)
	return m
}

var _ node.Node = (*MetadataInjector)(nil)

const metadataParamPrefix = "metadata."

// SetParam handles "metadata.<pts_ms>" (enqueue a metadata value),
// "blocking", "maxDelayFrames", and "minJitterBuffer", falling back to
// Base for everything else.
func (m *MetadataInjector) SetParam(name string, value any) error {
	if rest, ok := strings.CutPrefix(name, metadataParamPrefix); ok {
		return m.setMetadata(rest, value)
	}
	switch name {
	case "blocking":
		// Go callers drive retries themselves via repeated ReadFrame calls
		// (no internal blocking wait loop); nothing to configure.
		return nil
	case "maxDelayFrames":
		n, err := asInt(value)
		if err != nil {
			return err
		}
		if n < m.minJitterBuffer {
			return fmt.Errorf("maxDelayFrames %d below minJitterBuffer %d", n, m.minJitterBuffer)
		}
		m.maxDelayFrames = n
		return nil
	case "minJitterBuffer":
		n, err := asInt(value)
		if err != nil {
			return err
		}
		if m.maxDelayFrames != 0 && n > m.maxDelayFrames {
			return fmt.Errorf("minJitterBuffer %d above maxDelayFrames %d", n, m.maxDelayFrames)
		}
		m.minJitterBuffer = n
		return nil
	}
	return m.Base.SetParam(name, value)
}

func (m *MetadataInjector) setMetadata(ptsStr string, value any) error {
	if m.preloaded && m.isInitialized {
		return &perr.UnsupportedError{Op: "set_param metadata after open in preloaded mode"}
	}
	ts, err := strconv.ParseInt(ptsStr, 10, 64)
	if err != nil {
		return fmt.Errorf("metadata key %q: %w", ptsStr, err)
	}
	var payload []byte
	switch v := value.(type) {
	case string:
		payload = []byte(v)
	case []byte:
		payload = v
	default:
		return &perr.UnsupportedError{Op: "metadata value must be string or []byte"}
	}

	if ts < m.lastVideoPts {
		m.metaIgnored++
		if log := m.Log(); log != nil {
			log.Warn("ignoring metadata behind last served video frame",
				"pts", ts, "lastVideoPts", m.lastVideoPts, "metaWritten", m.metaWritten, "metaIgnored", m.metaIgnored)
		}
		return nil
	}

	f := frame.NewMetadataFrame(ts, payload)
	if m.preloaded {
		m.metaPreloaded.PushBack(f)
	} else {
		m.metaAvailable.PushBack(f)
	}
	return nil
}

func asInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	default:
		return 0, &perr.UnsupportedError{Op: "expected int value"}
	}
}

// copyPreloaded reloads metaAvailable from metaPreloaded, keeping entries
// within kMaxApplicableMetadataDistance of firstTs so a seek (including
// reverse frame-by-frame playback) still has the metadata applicable to
// the first frame it will re-serve.
const kMaxApplicableMetadataDistance = 50

func (m *MetadataInjector) copyPreloaded(firstTs int64) {
	m.metaAvailable.Clear()
	for i := 0; i < m.metaPreloaded.Len(); i++ {
		f := m.metaPreloaded.At(i)
		if f.PTS()+kMaxApplicableMetadataDistance >= firstTs {
			m.metaAvailable.PushBack(f)
		}
	}
}

// OpenIn opens upstream, then (in preloaded mode) copies the preloaded
// metadata queue into the active one.
func (m *MetadataInjector) OpenIn(ctx context.Context) error {
	if err := m.Base.OpenIn(ctx); err != nil {
		return err
	}
	m.isInitialized = true
	if m.preloaded {
		m.copyPreloaded(0)
	}
	return nil
}

// Seek forwards to upstream, then resets ordering state the way the
// original does: data queue dropped, preloaded metadata reloaded around
// the new position, counters zeroed.
func (m *MetadataInjector) Seek(ctx context.Context, offsetMs int64, flags node.SeekFlags) error {
	if err := m.Base.Seek(ctx, offsetMs, flags); err != nil {
		return err
	}
	m.dataAvailable.Clear()
	if m.preloaded {
		m.copyPreloaded(offsetMs)
	}
	m.lastVideoPts = 0
	m.lastMetaPts = 0
	m.sourceEOF = false
	m.videoFramesCount = 0
	return nil
}

// getFrame implements the ordering decision of §4.8 over the already
// buffered data/metadata queues, without touching upstream. It returns
// (nil, nil) when the decision needs more data or more metadata than is
// currently available.
func (m *MetadataInjector) getFrame() (frame.Frame, error) {
	if m.dataAvailable.Empty() {
		return nil, nil
	}

	fData := m.dataAvailable.Front()
	dataPts := fData.PTS()

	if fData.MediaType() != frame.MediaVideo {
		return m.returnData(fData, dataPts)
	}

	if m.metaAvailable.Empty() {
		if m.preloaded {
			return m.returnVideo(fData, dataPts)
		}
		if dataPts <= m.lastMetaPts {
			return m.returnVideo(fData, dataPts)
		}
		return nil, nil // wait for more metadata
	}

	fMeta := m.metaAvailable.Front()
	metaPts := fMeta.PTS()

	if metaPts <= dataPts {
		return m.returnMeta(fMeta, metaPts)
	}

	// The metadata frame's timestamp is later than the first data frame;
	// decide whether it's closer to the first or the second video frame.
	if m.videoFramesCount < 2 {
		if m.sourceEOF {
			return m.returnVideo(fData, dataPts)
		}
		return nil, nil // wait for the second video frame
	}

	secondPts, ok := m.secondVideoPTS()
	if !ok {
		return nil, fmt.Errorf("metadata injector: expected at least 2 video frames queued, videoFramesCount=%d", m.videoFramesCount)
	}

	if metaPts >= secondPts {
		return m.returnVideo(fData, dataPts)
	}
	if metaPts-dataPts > secondPts-metaPts {
		return m.returnVideo(fData, dataPts)
	}

	// The metadata is closer to the first data frame than the second;
	// snap its pts to the first frame's and return it instead.
	fMeta.SetTimestamps(dataPts, dataPts)
	return m.returnMeta(fMeta, dataPts)
}

func (m *MetadataInjector) secondVideoPTS() (int64, bool) {
	count := 0
	for i := 0; i < m.dataAvailable.Len(); i++ {
		f := m.dataAvailable.At(i)
		if f.MediaType() != frame.MediaVideo {
			continue
		}
		count++
		if count > 1 {
			return f.PTS(), true
		}
	}
	return 0, false
}

func (m *MetadataInjector) returnVideo(fData frame.Frame, dataPts int64) (frame.Frame, error) {
	m.videoFramesCount--
	return m.returnData(fData, dataPts)
}

func (m *MetadataInjector) returnData(fData frame.Frame, dataPts int64) (frame.Frame, error) {
	m.dataAvailable.PopFront() // transfers the list's reference to the caller
	m.lastVideoPts = dataPts
	return fData, nil
}

func (m *MetadataInjector) returnMeta(fMeta frame.Frame, metaPts int64) (frame.Frame, error) {
	m.metaAvailable.PopFront()
	m.lastMetaPts = metaPts
	return fMeta, nil
}

// ReadFrame pulls exactly as much from upstream as needed to make one
// ordering decision; callers needing more data simply call again (the
// pipeline's standard no-frame-yet contract, matching jitter.Buffer).
func (m *MetadataInjector) ReadFrame(ctx context.Context) (frame.Frame, error) {
	if out, err := m.getFrame(); out != nil || err != nil {
		return out, err
	}

	if m.sourceEOF {
		return nil, nil
	}

	fr, err := m.Base.ReadFrame(ctx)
	if err != nil {
		if perr.IsResult(err) {
			m.sourceEOF = true
			return m.getFrame()
		}
		return nil, err
	}
	if fr == nil {
		return nil, nil
	}

	isVideo := fr.MediaType() == frame.MediaVideo
	m.dataAvailable.PushBack(fr)
	fr.Unref() // the list took its own reference
	if isVideo {
		m.videoFramesCount++
	}
	return m.getFrame()
}

// Close releases the buffered queues before closing upstream.
func (m *MetadataInjector) Close() error {
	m.metaPreloaded.Clear()
	m.metaAvailable.Clear()
	m.dataAvailable.Clear()
	return m.Base.Close()
}
