package nodes

import (
	"context"

	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/node"
	"github.com/zsiec/svpipe/internal/perr"
)

// queueSource is a leaf Node yielding frames from a preloaded slice, then
// reporting EndOfStream.
type queueSource struct {
	node.Base
	frames []frame.Frame
	i      int
}

func newQueueSource(frames []frame.Frame) *queueSource {
	s := &queueSource{frames: frames}
	s.Base = node.NewBase(s, "queue-source", nil)
	return s
}

func (s *queueSource) OpenIn(ctx context.Context) error { return nil }

func (s *queueSource) ReadFrame(ctx context.Context) (frame.Frame, error) {
	if s.i >= len(s.frames) {
		return nil, &perr.EndOfStreamError{Op: "read_frame"}
	}
	f := s.frames[s.i]
	s.i++
	return f, nil
}

func videoFrame(pts int64) frame.Frame {
	f := frame.NewByteBufferFrame(frame.MediaVideo)
	f.SetTimestamps(pts, pts)
	return f
}

func audioFrame(pts int64) frame.Frame {
	f := frame.NewByteBufferFrame(frame.MediaAudio)
	f.SetTimestamps(pts, pts)
	return f
}

// drainAll reads until the node reports EndOfStream/an error, or stops
// making progress (a bounded number of consecutive nil-frame/nil-error
// "try again" results), collecting every frame's PTS and media type.
func drainAll(n node.Node) ([]int64, []frame.MediaType, error) {
	var pts []int64
	var media []frame.MediaType
	idle := 0
	for idle < 1000 {
		f, err := n.ReadFrame(context.Background())
		if err != nil {
			if perr.IsResult(err) {
				return pts, media, nil
			}
			return pts, media, err
		}
		if f == nil {
			idle++
			continue
		}
		idle = 0
		pts = append(pts, f.PTS())
		media = append(media, f.MediaType())
		f.Unref()
	}
	return pts, media, nil
}
