// Package caption extracts CEA-608 closed captions from decoded video
// frames' SEI NAL units and emits them as metadata frames interleaved
// immediately ahead of the picture that carried them. Grounded on
// internal/demux/mpegts.go's handleCaptionSEI (transport-level extraction
// using the same zsiec/ccx decoder) and internal/demux's ParseAnnexB /
// ParseAnnexBHEVC NALU scanners; unlike the transport-level extraction,
// this node runs downstream of decode (§4.14), so it also covers sources
// where no demux source node (§4.11) ever saw the transport stream, such
// as local capture (§4.16).
package caption

import (
	"context"
	"log/slog"

	"github.com/zsiec/ccx"

	"github.com/zsiec/svpipe/internal/demux"
	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/node"
)

// Node sits downstream of a decode stage (§4.13) and interleaves decoded
// CEA-608 captions ahead of the picture frame that carried them. It is
// passthrough-shaped: every video frame still flows through unchanged,
// it only ever adds metadata frames ahead of one.
type Node struct {
	node.Base

	hevc bool
	dec  *ccx.CEA608Decoder

	pending []frame.Frame
}

var _ node.Node = (*Node)(nil)

// New constructs a caption extraction node. Set hevc true when the
// upstream decoder produces HEVC Annex B NALUs (2-byte NAL header)
// rather than H.264 (1-byte NAL header); the two use different NAL type
// values for SEI.
func New(name string, hevc bool, log *slog.Logger) *Node {
	n := &Node{hevc: hevc, dec: ccx.NewCEA608Decoder()}
	n.Base = node.NewBase(n, name, log)
	return n
}

// ReadFrame drains any pending caption frames first, then pulls the next
// upstream frame: non-video frames pass straight through; video frames
// are scanned for SEI caption payloads, which are queued ahead of the
// frame itself.
func (n *Node) ReadFrame(ctx context.Context) (frame.Frame, error) {
	if len(n.pending) > 0 {
		f := n.pending[0]
		n.pending = n.pending[1:]
		return f, nil
	}

	in, err := n.Base.ReadFrame(ctx)
	if err != nil || in == nil {
		return in, err
	}
	if in.MediaType() != frame.MediaVideo {
		return in, nil
	}

	for _, sei := range n.seiPayloads(in.Data()) {
		n.extract(sei, in.PTS())
	}
	n.pending = append(n.pending, in)

	f := n.pending[0]
	n.pending = n.pending[1:]
	return f, nil
}

// seiPayloads returns the raw SEI NAL units (header byte(s) included,
// matching handleCaptionSEI's contract) found in an Annex B NALU stream.
func (n *Node) seiPayloads(naluStream []byte) [][]byte {
	var out [][]byte
	if n.hevc {
		for _, nalu := range demux.ParseAnnexBHEVC(naluStream) {
			if nalu.Type == demux.HEVCNALSEIPrefix && len(nalu.Data) > 2 {
				out = append(out, nalu.Data)
			}
		}
		return out
	}
	for _, nalu := range demux.ParseAnnexB(naluStream) {
		if nalu.Type == demux.NALTypeSEI {
			out = append(out, nalu.Data)
		}
	}
	return out
}

// extract decodes a single SEI NALU's CEA-608 pairs and queues any
// resulting caption text as a pending metadata frame.
func (n *Node) extract(seiData []byte, pts int64) {
	cd := ccx.ExtractCaptions(seiData)
	if cd == nil {
		return
	}
	for _, pair := range cd.CC608Pairs {
		text := n.dec.Decode(pair.Data[0], pair.Data[1])
		if text == "" {
			continue
		}
		cf := &ccx.CaptionFrame{PTS: pts, Text: text, Channel: pair.Channel}
		cf.Regions = n.dec.StyledRegions()

		mf := frame.NewMetadataFrame(pts, []byte(text))
		mf.SetBacking("caption", cf)
		n.pending = append(n.pending, mf)
	}
}

// Close releases any still-queued frames before closing upstream.
func (n *Node) Close() error {
	for _, f := range n.pending {
		f.Unref()
	}
	n.pending = nil
	return n.Base.Close()
}
