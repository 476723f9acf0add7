package codec

import (
	"log/slog"

	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/node"
)

// EncodeNode encodes decoded picture frames back into compressed video
// packets. Parameters: videoCodecId, width, height, pixfmt, bitrate.
type EncodeNode struct {
	stage
}

var _ node.Node = (*EncodeNode)(nil)

// NewEncodeNode constructs a video encode stage backed by xform.
func NewEncodeNode(name string, xform Transformer, log *slog.Logger) *EncodeNode {
	e := &EncodeNode{}
	e.stage = newStage(e, name, log, xform, frame.MediaVideo,
		"videoCodecId", "width", "height", "pixfmt", "bitrate")
	return e
}
