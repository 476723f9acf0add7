package codec

import (
	"log/slog"

	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/node"
)

// DecodeNode decodes compressed video packets into picture frames.
// Parameters: videoCodecId (read-only, reported by the upstream demux/
// ingest node once known).
type DecodeNode struct {
	stage
}

var _ node.Node = (*DecodeNode)(nil)

// NewDecodeNode constructs a video decode stage backed by xform.
func NewDecodeNode(name string, xform Transformer, log *slog.Logger) *DecodeNode {
	d := &DecodeNode{}
	d.stage = newStage(d, name, log, xform, frame.MediaVideo, "videoCodecId")
	return d
}
