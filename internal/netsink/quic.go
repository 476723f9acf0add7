package netsink

import (
	"context"
	"crypto/tls"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/svpipe/internal/certs"
)

// quicListener is the production Listener, backed by a raw *quic.Listener
// (no WebTransport/HTTP3 framing — the viewer sink speaks datagrams
// directly over the QUIC connection instead of a MoQ/WebTransport
// session).
type quicListener struct {
	l *quic.Listener
}

// ListenQUIC opens a QUIC listener on addr using a self-signed
// certificate from internal/certs, with datagrams enabled.
func ListenQUIC(addr string) (Listener, error) {
	cert, err := certs.Generate(0)
	if err != nil {
		return nil, err
	}
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert.TLSCert},
		NextProtos:   []string{"svpipe-netsink"},
	}
	quicConf := &quic.Config{EnableDatagrams: true}

	l, err := quic.ListenAddr(addr, tlsConf, quicConf)
	if err != nil {
		return nil, err
	}
	return &quicListener{l: l}, nil
}

func (q *quicListener) Accept(ctx context.Context) (Connection, error) {
	conn, err := q.l.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return &quicConnection{conn: conn}, nil
}

func (q *quicListener) Close() error {
	return q.l.Close()
}

type quicConnection struct {
	conn quic.Connection
}

func (c *quicConnection) SendDatagram(data []byte) error {
	return c.conn.SendDatagram(data)
}

func (c *quicConnection) CloseWithError(code uint64, msg string) error {
	return c.conn.CloseWithError(quic.ApplicationErrorCode(code), msg)
}
