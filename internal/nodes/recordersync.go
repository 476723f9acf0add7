package nodes

import (
	"context"
	"log/slog"

	"github.com/zsiec/svpipe/internal/event"
	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/node"
)

// fileRange records the pts range a downstream recorder wrote to one
// output file. end is fileRangeOpen until the matching close event
// arrives.
type fileRange struct {
	start, end int64
	name       string
}

// fileRangeOpen is the sentinel end value for a range still being
// recorded, mirroring the original's (uint64_t)-1.
const fileRangeOpen = -1

// RecorderSync exposes, for each frame it passes through, which recorded
// file that frame landed in: it observes recorder.newFile/
// recorder.closeFile events from a downstream recorder (via
// event.Listener) and classifies outgoing frames against the resulting
// (start, end, filename) ranges, consulting encoder delay so a frame
// isn't classified into a range before the recorder has actually
// finished writing it (§4.8).
type RecorderSync struct {
	node.Base
	Events event.Source

	encoderDelay int64 // -1 = not yet known
	ranges       []fileRange
	lastPtsSeen  int64
	queued       *frame.List
}

// NewRecorderSync constructs a RecorderSync. Register it to observe a
// recorder's events with recorder.OnEvent(rs.OnRecorderEvent, nil); wire
// its source to the upstream node exposing an "encoderDelay" parameter
// (typically the recorder node itself, or whatever forwards to it).
func NewRecorderSync(name string, log *slog.Logger) *RecorderSync {
	rs := &RecorderSync{
		encoderDelay: -1,
		queued:       frame.NewList(),
	}
	rs.Base = node.NewBase(rs, name, log)
	return rs
}

var _ node.Node = (*RecorderSync)(nil)

// OnRecorderEvent is the event.Listener to register with the downstream
// recorder node (recorder.OnEvent(rs.OnRecorderEvent, nil)).
func (rs *RecorderSync) OnRecorderEvent(evt *event.Event, _ any) {
	switch evt.Name {
	case event.RecorderNewFile:
		rs.onNewFile(evt)
	case event.RecorderCloseFile:
		rs.onCloseFile(evt)
	}
}

func (rs *RecorderSync) onNewFile(evt *event.Event) {
	name, ok := evt.String("filename")
	if !ok {
		if log := rs.Log(); log != nil {
			log.Error("recorder.newFile event missing filename property")
		}
		return
	}
	if n := len(rs.ranges); n > 0 && rs.ranges[n-1].name == name {
		if log := rs.Log(); log != nil {
			log.Warn("multiple new file notifications for the same file", "filename", name)
		}
		return
	}
	rs.ranges = append(rs.ranges, fileRange{
		start: evt.At.UnixMilli(),
		end:   fileRangeOpen,
		name:  name,
	})
}

func (rs *RecorderSync) onCloseFile(evt *event.Event) {
	for i := range rs.ranges {
		if rs.ranges[i].end == fileRangeOpen {
			rs.ranges[i].end = evt.At.UnixMilli()
			return
		}
	}
	if log := rs.Log(); log != nil {
		log.Error("mismatched file end event: no open range to close")
	}
}

// CurrentFilename is the get_param("filename") counterpart: the name of
// the oldest range still tracked (the file the next frame is most likely
// to land in), or "" if none.
func (rs *RecorderSync) CurrentFilename() string {
	if len(rs.ranges) == 0 {
		return ""
	}
	return rs.ranges[0].name
}

// GetParam exposes "filename" alongside Base's default forwarding.
func (rs *RecorderSync) GetParam(name string) (any, error) {
	if name == "filename" {
		return rs.CurrentFilename(), nil
	}
	return rs.Base.GetParam(name)
}

// classify drops frames that precede the oldest tracked range (should not
// happen, but mirrors the original's defensive handling), advances past a
// range once a frame's (delay-adjusted) pts exceeds its end, and holds
// back frames that might still belong to a range the encoder hasn't
// finished writing yet.
func (rs *RecorderSync) classify() (frame.Frame, error) {
	for !rs.queued.Empty() && len(rs.ranges) > 0 {
		f := rs.queued.Front()
		pts := f.PTS()
		cur := rs.ranges[0]

		switch {
		case pts < cur.start:
			rs.queued.PopFront().Unref()
		case cur.end != fileRangeOpen && pts > cur.end:
			rs.ranges = rs.ranges[1:]
		case pts+rs.encoderDelay < rs.lastPtsSeen:
			return rs.queued.PopFront(), nil
		default:
			return nil, nil
		}
	}
	return nil, nil
}

// ReadFrame pulls one upstream frame per call (after resolving encoder
// delay, if not yet known), classifies it against the tracked file
// ranges, and releases it once classification confirms the encoder won't
// still reorder a later frame ahead of it.
func (rs *RecorderSync) ReadFrame(ctx context.Context) (frame.Frame, error) {
	if rs.encoderDelay < 0 {
		if v, err := rs.Base.GetParam("encoderDelay"); err == nil {
			if delay, ok := v.(int64); ok && delay >= 0 {
				rs.encoderDelay = delay
			}
		}
		if rs.encoderDelay < 0 {
			// do not classify frames until the encoder delay is known
			return nil, nil
		}
	}

	if out, err := rs.classify(); out != nil || err != nil {
		return out, err
	}

	fr, err := rs.Base.ReadFrame(ctx)
	if err != nil {
		return nil, err
	}
	if fr == nil {
		return nil, nil
	}
	rs.lastPtsSeen = fr.PTS()
	rs.queued.PushBack(fr)
	fr.Unref()
	return rs.classify()
}
