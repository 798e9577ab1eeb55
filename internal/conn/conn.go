package conn

import (
	"net"
	"sync"
)

// READ_CHUNK_BYTES is the maximum number of bytes pulled off the transport
// per read. The demux reassembles frames regardless of how the stream is
// fragmented, so the value only bounds per-read allocation.
const READ_CHUNK_BYTES = 4096

// Conn is an interface that wraps a network connection.
type Conn interface {
	Write([]byte) error
	Read() ([]byte, error)
	Close() error
	RemoteAddr() string
}

// ------------------ Conn implementations ------------------

// TCP wraps a raw TCP stream. Reads are chunked and owned by a single
// receive goroutine; writes may come from several goroutines (relay fan-out
// and local input) and are serialized by a mutex so that one frame's bytes
// are never interleaved with another's.
type TCP struct {
	conn net.Conn

	writeMu sync.Mutex
}

func NewTCP(c net.Conn) *TCP {
	return &TCP{conn: c}
}

func (t *TCP) Write(payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	for len(payload) > 0 {
		n, err := t.conn.Write(payload)
		if err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

// Read returns the next chunk of bytes from the stream. A non-empty chunk
// is returned ahead of any error on the same call; the error surfaces on
// the following call.
func (t *TCP) Read() ([]byte, error) {
	buf := make([]byte, READ_CHUNK_BYTES)
	n, err := t.conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	return nil, err
}

func (t *TCP) Close() error {
	return t.conn.Close()
}

func (t *TCP) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
