package audio

import (
	"io"

	"github.com/hajimehoshi/oto/v2"
)

// otoContext is the production Context, wrapping a single process-wide
// oto.Context the way e1z0-QAnotherRTSP's InitGlobalAudio does (Oto
// mixes multiple players internally, so one context per process
// suffices regardless of how many audio render sinks are active).
type otoContext struct {
	ctx *oto.Context
}

// NewOtoContext opens the device's default output at sampleRate/channels
// using 16-bit signed PCM, matching the resample node's fixed output
// format (§6). It waits for the device's ready channel before returning,
// so the returned Context is ready for use.
func NewOtoContext(sampleRate, channels int) (Context, error) {
	ctx, ready, err := oto.NewContext(sampleRate, channels, oto.FormatSignedInt16LE)
	if err != nil {
		return nil, err
	}
	<-ready
	return &otoContext{ctx: ctx}, nil
}

func (o *otoContext) NewPlayer(r io.Reader) Player {
	return o.ctx.NewPlayer(r)
}
