package dtx

import (
	"io"
	"net"
)

// Transport is the synchronous, ordered, reliable byte stream this package
// consumes. It is produced by an out-of-scope pairing/lockdown layer that
// has already authenticated the connection.
type Transport interface {
	// SendAll writes every byte of b, or returns a TransportError.
	SendAll(b []byte) error
	// RecvExact reads exactly n bytes, or returns a TransportError.
	RecvExact(n int) ([]byte, error)
	// Close tears down the underlying connection.
	Close() error
}

// TLSDowngrader is implemented by transports that were opened over TLS and
// can, once pairing has finished, hand back a raw connection so the DTX
// protocol can continue in clear text. This mirrors the
// "com.apple.instruments.remoteserver" fallback path of spec.md §6: when
// the secure-socket-proxy service name isn't available, the pairing layer
// is asked to tear down its outbound TLS context on the underlying socket.
// This package only declares the interface: nothing in it calls
// DisableTLS, and it does not try ServiceNameSecure before
// ServiceNamePlain. Opening the service and any downgrade are done by the
// code that builds the Transport.
type TLSDowngrader interface {
	DisableTLS() error
}

// NewConnTransport adapts a net.Conn into a Transport using send_all/
// recv_exact semantics: SendAll loops until every byte is written,
// RecvExact loops (via io.ReadFull) until exactly n bytes are read.
func NewConnTransport(conn net.Conn) Transport {
	return &connTransport{conn: conn}
}

type connTransport struct {
	conn net.Conn
}

func (t *connTransport) SendAll(b []byte) error {
	off := 0
	for off < len(b) {
		n, err := t.conn.Write(b[off:])
		if err != nil {
			return &TransportError{Op: "send_all", Err: err}
		}
		off += n
	}
	return nil
}

func (t *connTransport) RecvExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.conn, buf); err != nil {
		return nil, &TransportError{Op: "recv_exact", Err: err}
	}
	return buf, nil
}

func (t *connTransport) Close() error {
	return t.conn.Close()
}

// ServiceNames are the two DTX service names the core knows about:
// the preferred secure-socket-proxy variant, and the plaintext fallback
// used on older peers (spec.md §6).
var (
	ServiceNameSecure = "com.apple.instruments.remoteserver.DVTSecureSocketProxy"
	ServiceNamePlain  = "com.apple.instruments.remoteserver"
)
