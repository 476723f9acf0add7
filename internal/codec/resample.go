package codec

import (
	"log/slog"

	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/node"
)

// ResampleNode converts decoded audio frames to a target sample
// rate/format/channel layout via libswresample. Parameters:
// audioSampleRate, audioSampleFormat, audioChannels.
type ResampleNode struct {
	stage
}

var _ node.Node = (*ResampleNode)(nil)

// NewResampleNode constructs an audio resample stage backed by xform.
func NewResampleNode(name string, xform Transformer, log *slog.Logger) *ResampleNode {
	r := &ResampleNode{}
	r.stage = newStage(r, name, log, xform, frame.MediaAudio,
		"audioSampleRate", "audioSampleFormat", "audioChannels")
	return r
}
