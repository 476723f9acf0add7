package netsink

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zsiec/svpipe/internal/frame"
	"github.com/zsiec/svpipe/internal/node"
	"github.com/zsiec/svpipe/internal/perr"
)

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

func videoFrame(pts int64, data []byte) frame.Frame {
	f := frame.NewByteBufferFrame(frame.MediaVideo)
	f.SetTimestamps(pts, pts)
	buf, _ := f.WritableBuffer(len(data))
	copy(buf, data)
	return f
}

func audioFrame(pts int64) frame.Frame {
	f := frame.NewByteBufferFrame(frame.MediaAudio)
	f.SetTimestamps(pts, pts)
	return f
}

type fakeConn struct {
	mu       sync.Mutex
	sent     [][]byte
	failNext bool
	closed   bool
	closeMsg string
}

func (c *fakeConn) SendDatagram(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		return errors.New("send failed")
	}
	cp := append([]byte(nil), data...)
	c.sent = append(c.sent, cp)
	return nil
}

func (c *fakeConn) CloseWithError(code uint64, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeMsg = msg
	return nil
}

// fakeListener hands out connections pushed onto conns, then blocks
// until ctx is cancelled or Close is called.
type fakeListener struct {
	conns  chan Connection
	closed chan struct{}
	once   sync.Once
}

func newFakeListener() *fakeListener {
	return &fakeListener{conns: make(chan Connection, 4), closed: make(chan struct{})}
}

func (l *fakeListener) Accept(ctx context.Context) (Connection, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, errors.New("listener closed")
	}
}

func (l *fakeListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func TestBroadcastsVideoFrameToConnectedViewer(t *testing.T) {
	listener := newFakeListener()
	conn := &fakeConn{}
	listener.conns <- conn

	n := New("netsink", listener, 10, nil)
	if err := n.SetSource(newQueueSource([]frame.Frame{videoFrame(42, []byte{1, 2, 3})}), 0); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	if err := n.OpenIn(context.Background()); err != nil {
		t.Fatalf("OpenIn: %v", err)
	}

	// give the accept loop a chance to register the viewer before the
	// frame is broadcast.
	waitForViewers(t, n, 1)

	f, err := n.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.PTS() != 42 {
		t.Fatalf("frame should pass through unchanged, pts=%d", f.PTS())
	}

	waitForSent(t, conn, 1)
	conn.mu.Lock()
	got := conn.sent[0]
	conn.mu.Unlock()

	if len(got) != datagramHeaderSize+3 {
		t.Fatalf("datagram length = %d, want %d", len(got), datagramHeaderSize+3)
	}
	if pts := int64(binary.BigEndian.Uint64(got[:datagramHeaderSize])); pts != 42 {
		t.Fatalf("datagram PTS header = %d, want 42", pts)
	}
	if string(got[datagramHeaderSize:]) != "\x01\x02\x03" {
		t.Fatalf("datagram payload = %v, want [1 2 3]", got[datagramHeaderSize:])
	}

	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !conn.closed {
		t.Fatalf("expected viewer connection closed")
	}
}

func TestAudioFramesAreNotBroadcast(t *testing.T) {
	listener := newFakeListener()
	conn := &fakeConn{}
	listener.conns <- conn

	n := New("netsink", listener, 10, nil)
	if err := n.SetSource(newQueueSource([]frame.Frame{audioFrame(1)}), 0); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	if err := n.OpenIn(context.Background()); err != nil {
		t.Fatalf("OpenIn: %v", err)
	}
	waitForViewers(t, n, 1)

	if _, err := n.ReadFrame(context.Background()); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	conn.mu.Lock()
	sent := len(conn.sent)
	conn.mu.Unlock()
	if sent != 0 {
		t.Fatalf("audio frames must not be broadcast, got %d datagrams", sent)
	}

	n.Close()
}

func TestLateJoinerIsCaughtUpFromRing(t *testing.T) {
	listener := newFakeListener()

	n := New("netsink", listener, 10, nil)
	if err := n.SetSource(newQueueSource([]frame.Frame{videoFrame(1, []byte{9})}), 0); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	if err := n.OpenIn(context.Background()); err != nil {
		t.Fatalf("OpenIn: %v", err)
	}

	if _, err := n.ReadFrame(context.Background()); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	conn := &fakeConn{}
	listener.conns <- conn
	waitForSent(t, conn, 1)

	conn.mu.Lock()
	got := conn.sent[0]
	conn.mu.Unlock()
	if pts := int64(binary.BigEndian.Uint64(got[:datagramHeaderSize])); pts != 1 {
		t.Fatalf("catch-up datagram PTS = %d, want 1", pts)
	}

	n.Close()
}

func TestSendFailureDropsViewerWithoutBlockingPipeline(t *testing.T) {
	listener := newFakeListener()
	bad := &fakeConn{failNext: true}
	listener.conns <- bad

	n := New("netsink", listener, 10, nil)
	if err := n.SetSource(newQueueSource([]frame.Frame{videoFrame(1, []byte{1}), videoFrame(2, []byte{2})}), 0); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	if err := n.OpenIn(context.Background()); err != nil {
		t.Fatalf("OpenIn: %v", err)
	}
	waitForViewers(t, n, 1)

	if _, err := n.ReadFrame(context.Background()); err != nil {
		t.Fatalf("ReadFrame 1: %v", err)
	}
	if _, err := n.ReadFrame(context.Background()); err != nil {
		t.Fatalf("ReadFrame 2: %v", err)
	}

	n.mu.Lock()
	viewers := len(n.viewers)
	n.mu.Unlock()
	if viewers != 0 {
		t.Fatalf("viewer whose send failed should have been dropped, got %d remaining", viewers)
	}

	n.Close()
}

func waitForViewers(t *testing.T, n *Node, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		n.mu.Lock()
		got := len(n.viewers)
		n.mu.Unlock()
		if got >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d registered viewer(s)", want)
}

func waitForSent(t *testing.T, conn *fakeConn, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		conn.mu.Lock()
		got := len(conn.sent)
		conn.mu.Unlock()
		if got >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sent datagram(s)", want)
}
