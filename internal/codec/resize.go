package codec

import (
	"log/slog"

	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/node"
)

// ResizeNode scales decoded picture frames via libswscale. Parameters:
// width, height, pixfmt (the requested output geometry/format).
type ResizeNode struct {
	stage
}

var _ node.Node = (*ResizeNode)(nil)

// NewResizeNode constructs a video resize/convert stage backed by xform.
func NewResizeNode(name string, xform Transformer, log *slog.Logger) *ResizeNode {
	r := &ResizeNode{}
	r.stage = newStage(r, name, log, xform, frame.MediaVideo, "width", "height", "pixfmt")
	return r
}
