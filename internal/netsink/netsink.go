// Package netsink implements the QUIC remote viewer sink (§4.17): a
// terminal consumer Node that serves the most recent N frames, paced by
// upstream jitter-buffer output, to remote viewers over quic-go
// datagrams framed with a PTS header — so a low-latency viewer need not
// wait for an HLS segment boundary the way a player watching the
// internal/hls output would. Grounded on zsiec-prism's quic-go
// dependency (previously wired only for that repo's MoQ/WebTransport
// catalog delivery) and internal/certs' self-signed certificate
// generator for the listener's TLS config.
package netsink

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/node"
)

// datagramHeaderSize is the fixed-width big-endian millisecond PTS
// header every datagram is framed with, ahead of the frame payload.
const datagramHeaderSize = 8

// DefaultRingSize is the number of most-recent frames a newly connected
// viewer is immediately caught up with.
const DefaultRingSize = 30

// Listener accepts incoming viewer connections. The production Listener
// wraps a *quic.Listener; tests inject a channel-backed fake.
type Listener interface {
	Accept(ctx context.Context) (Connection, error)
	Close() error
}

// Connection is a single remote viewer's transport. The production
// Connection wraps quic.Connection's datagram extension.
type Connection interface {
	SendDatagram(data []byte) error
	CloseWithError(code uint64, msg string) error
}

// Node accepts remote viewer connections in the background and
// broadcasts every video frame it reads from upstream to all connected
// viewers as a PTS-framed datagram, passing every frame through
// unchanged.
type Node struct {
	node.Base

	listener Listener
	ringSize int

	mu      sync.Mutex
	ring    [][]byte
	viewers map[uint64]Connection
	nextID  uint64

	cancel context.CancelFunc
	done   chan struct{}
}

var _ node.Node = (*Node)(nil)

// New constructs a QUIC remote viewer sink accepting connections on
// listener. ringSize <= 0 selects DefaultRingSize.
func New(name string, listener Listener, ringSize int, log *slog.Logger) *Node {
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}
	n := &Node{listener: listener, ringSize: ringSize, viewers: make(map[uint64]Connection)}
	n.Base = node.NewBase(n, name, log)
	return n
}

// OpenIn opens the upstream chain, then starts accepting viewer
// connections in the background.
func (n *Node) OpenIn(ctx context.Context) error {
	if err := n.Base.OpenIn(ctx); err != nil {
		return err
	}
	if n.cancel != nil {
		return nil
	}
	acceptCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.done = make(chan struct{})
	go n.acceptLoop(acceptCtx)
	return nil
}

func (n *Node) acceptLoop(ctx context.Context) {
	defer close(n.done)
	for {
		conn, err := n.listener.Accept(ctx)
		if err != nil {
			if log := n.Log(); log != nil {
				log.Info("netsink: accept loop stopped", "error", err)
			}
			return
		}
		n.registerViewer(conn)
	}
}

func (n *Node) registerViewer(conn Connection) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.viewers[id] = conn
	catchUp := make([][]byte, len(n.ring))
	copy(catchUp, n.ring)
	n.mu.Unlock()

	for _, datagram := range catchUp {
		if err := conn.SendDatagram(datagram); err != nil {
			n.dropViewer(id)
			return
		}
	}
}

func (n *Node) dropViewer(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.viewers, id)
}

// ReadFrame pulls the next upstream frame; video frames are framed with
// a PTS header and broadcast to every connected viewer (best effort —
// a viewer whose send fails is dropped, never blocking the pipeline),
// and folded into the catch-up ring. Every frame passes through
// unchanged.
func (n *Node) ReadFrame(ctx context.Context) (frame.Frame, error) {
	fr, err := n.Base.ReadFrame(ctx)
	if err != nil || fr == nil {
		return fr, err
	}
	if fr.MediaType() != frame.MediaVideo {
		return fr, nil
	}

	datagram := frameDatagram(fr)
	n.broadcast(datagram)
	return fr, nil
}

func frameDatagram(fr frame.Frame) []byte {
	data := fr.Data()
	out := make([]byte, datagramHeaderSize+len(data))
	binary.BigEndian.PutUint64(out[:datagramHeaderSize], uint64(fr.PTS()))
	copy(out[datagramHeaderSize:], data)
	return out
}

func (n *Node) broadcast(datagram []byte) {
	n.mu.Lock()
	n.ring = append(n.ring, datagram)
	if len(n.ring) > n.ringSize {
		n.ring = n.ring[len(n.ring)-n.ringSize:]
	}
	targets := make(map[uint64]Connection, len(n.viewers))
	for id, c := range n.viewers {
		targets[id] = c
	}
	n.mu.Unlock()

	for id, c := range targets {
		if err := c.SendDatagram(datagram); err != nil {
			n.dropViewer(id)
		}
	}
}

// Close stops accepting new viewers, closes every connected viewer, and
// closes upstream.
func (n *Node) Close() error {
	if n.cancel != nil {
		n.cancel()
		n.listener.Close()
		<-n.done
	}

	n.mu.Lock()
	for id, c := range n.viewers {
		c.CloseWithError(0, "sink closing")
		delete(n.viewers, id)
	}
	n.mu.Unlock()

	return n.Base.Close()
}
