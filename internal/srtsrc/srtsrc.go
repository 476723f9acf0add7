// Package srtsrc wraps an SRT network connection as a source Node,
// feeding its raw transport bytes to a nested demux source node (§4.11)
// so the rest of the chain sees an ordinary External Source Contract
// node regardless of the camera's transport. Grounded on
// zsiec-prism/internal/ingest/srt's srtgo.Dial/DefaultConfig usage.
package srtsrc

import (
	"context"
	"io"
	"log/slog"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/svpipe/internal/demux"
	"github.com/zsiec/svpipe/internal/demuxsrc"
	"github.com/zsiec/svpipe/internal/metrics"
	"github.com/zsiec/svpipe/internal/node"
	"github.com/zsiec/svpipe/internal/perr"
)

// Dialer opens the transport connection for url. The production Dialer
// wraps srtgo.Dial; tests inject a fake that hands back an in-memory
// reader.
type Dialer interface {
	Dial(ctx context.Context, url string) (io.ReadCloser, error)
}

// DialTimeout bounds how long Dial may take before OpenIn gives up.
const DialTimeout = 10 * time.Second

// srtgoDialer is the production Dialer, dialing a real SRT listener via
// zsiec/srtgo.
type srtgoDialer struct{}

// NewSRTGoDialer returns the production srtgo-backed Dialer.
func NewSRTGoDialer() Dialer { return srtgoDialer{} }

func (srtgoDialer) Dial(ctx context.Context, url string) (io.ReadCloser, error) {
	cfg := srtgo.DefaultConfig()

	type result struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := srtgo.Dial(url, cfg)
		ch <- result{conn, err}
	}()

	timer := time.NewTimer(DialTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res.conn, res.err
	case <-timer.C:
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, &perr.TimeoutError{Op: "srt_dial"}
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Node is a source Node whose open_in performs the SRT handshake and
// whose read_frame/width/height delegate entirely to a nested demux
// source node, set up once the connection is live.
type Node struct {
	node.Base

	dialer     Dialer
	url        string
	liveStream bool

	conn    io.ReadCloser
	demuxed *demuxsrc.Node
}

var _ node.Node = (*Node)(nil)

// New constructs an SRT source node. dialer is typically NewSRTGoDialer()
// in production.
func New(name string, dialer Dialer, log *slog.Logger) *Node {
	n := &Node{dialer: dialer}
	n.Base = node.NewBase(n, name, log)
	return n
}

// SetParam handles "url", "forceTCP" (always fails: SRT is UDP-only, kept
// so callers see a consistent parameter surface across source kinds),
// and "liveStream"; everything else falls back to Base (the nested demux
// node, once attached).
func (n *Node) SetParam(name string, value any) error {
	switch name {
	case "url":
		if v, ok := value.(string); ok {
			n.url = v
			return nil
		}
	case "forceTCP":
		if v, ok := value.(bool); ok && v {
			return &perr.UnsupportedError{Op: "forceTCP"}
		}
		return nil
	case "liveStream":
		if v, ok := value.(bool); ok {
			n.liveStream = v
			return nil
		}
	}
	return n.Base.SetParam(name, value)
}

// GetParam handles "url" and "liveStream", falling back to Base.
func (n *Node) GetParam(name string) (any, error) {
	switch name {
	case "url":
		return n.url, nil
	case "liveStream":
		return n.liveStream, nil
	}
	return n.Base.GetParam(name)
}

// OpenIn dials the SRT source, wires a demux source node over the
// resulting byte stream as this node's upstream, and marks itself
// passthrough so read_frame/width/height forward straight to it.
func (n *Node) OpenIn(ctx context.Context) error {
	if n.demuxed != nil {
		return nil
	}
	if n.url == "" {
		return &perr.UnsupportedError{Op: "open_in: url not set"}
	}
	conn, err := n.dialer.Dial(ctx, n.url)
	if err != nil {
		return &perr.IoError{Op: "srt_dial", Err: err}
	}
	n.conn = conn

	d := demux.NewDemuxer(conn, n.Log())
	d.SetStats(metrics.NewDemuxStats(n.Name()))
	demuxed := demuxsrc.New(n.Name()+".demux", d, n.Log())
	n.demuxed = demuxed

	if err := n.SetSource(demuxed, 0); err != nil {
		return err
	}
	n.SetPassthrough(true)
	return n.Base.OpenIn(ctx)
}

// Close closes the nested demux node, then the underlying connection.
func (n *Node) Close() error {
	err := n.Base.Close()
	if n.conn != nil {
		if cerr := n.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
		n.conn = nil
	}
	return err
}
