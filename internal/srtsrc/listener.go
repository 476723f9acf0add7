package srtsrc

import (
	"context"
	"fmt"
	"io"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/svpipe/internal/perr"
)

// listenLatency matches zsiec-prism/internal/ingest/srt/server.go's fixed
// 120ms SRT latency setting for accepted publish connections.
const listenLatency = 120_000_000

// srtgoListenDialer is a Dialer that listens on a fixed local address and
// hands back the first incoming publish connection whose caller presents
// a non-empty stream ID, instead of dialing out to a remote listener.
// Grounded on zsiec-prism/internal/ingest/srt/server.go's
// Listen/SetAcceptRejectFunc/Accept sequence, adapted from a
// registry-dispatching long-running server into a single-shot Dialer so
// it satisfies the same interface srtsrc.Node expects of an outbound
// dial.
type srtgoListenDialer struct {
	addr string
}

// NewSRTGoListenDialer returns a Dialer that accepts one inbound SRT
// publish connection on addr, for deployments where the camera pushes to
// this process rather than being pulled from.
func NewSRTGoListenDialer(addr string) Dialer {
	return srtgoListenDialer{addr: addr}
}

func (d srtgoListenDialer) Dial(ctx context.Context, url string) (io.ReadCloser, error) {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = listenLatency

	l, err := srtgo.Listen(d.addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("SRT listen on %s: %w", d.addr, err)
	}
	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if req.StreamID == "" {
			return srtgo.RejPeer
		}
		return 0
	})

	type result struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.Accept()
		ch <- result{conn, err}
	}()

	timer := time.NewTimer(DialTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		l.Close()
		return res.conn, res.err
	case <-timer.C:
		l.Close()
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, &perr.TimeoutError{Op: "srt_accept"}
	case <-ctx.Done():
		l.Close()
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
