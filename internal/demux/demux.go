// demux.go holds the stateful stream parser that reassembles frames from
// arbitrarily fragmented transport reads. One Demux is owned by exactly one
// receive goroutine; it carries the only state that survives across reads.
package demux

import (
	"bytes"

	"partyline/internal/protocol"
)

// DropFunc is invoked for header lines that cannot be decoded. The line is
// dropped and the stream continues.
type DropFunc func(line []byte, err error)

// Demux accumulates raw bytes and extracts complete frames.
//
// A FILE_HEADER line and its payload form one atomic unit: the header line
// is not consumed from the buffer until the full payload is buffered behind
// it. Until then the same header is re-parsed on every feed, which keeps the
// parser reentrant and guarantees that payload bytes -- which may contain
// the delimiter or bytes that look like headers -- are never line-scanned.
type Demux struct {
	buf    []byte
	onDrop DropFunc
}

func New(onDrop DropFunc) *Demux {
	return &Demux{onDrop: onDrop}
}

// Feed appends a chunk of transport bytes and returns every frame that is
// now complete, in stream order. It never blocks; a partially buffered
// frame is held until a later feed completes it.
func (d *Demux) Feed(p []byte) []protocol.Frame {
	d.buf = append(d.buf, p...)

	var frames []protocol.Frame
	for {
		i := bytes.IndexByte(d.buf, protocol.Delimiter)
		if i < 0 {
			break
		}
		line := d.buf[:i]
		rest := d.buf[i+1:]

		frame, err := protocol.ParseHeader(line)
		if err != nil {
			if d.onDrop != nil {
				d.onDrop(append([]byte(nil), line...), err)
			}
			d.consume(rest)
			continue
		}

		if frame.Kind == protocol.FileHeader {
			if int64(len(rest)) < frame.Size {
				// Payload not fully buffered; hold the header.
				break
			}
			frame.Payload = append([]byte(nil), rest[:frame.Size]...)
			d.consume(rest[frame.Size:])
		} else {
			d.consume(rest)
		}
		frames = append(frames, frame)
	}
	return frames
}

// Buffered reports the number of bytes held for incomplete frames.
func (d *Demux) Buffered() int {
	return len(d.buf)
}

// consume discards everything up to rest, which aliases the tail of d.buf.
func (d *Demux) consume(rest []byte) {
	n := copy(d.buf, rest)
	d.buf = d.buf[:n]
}
