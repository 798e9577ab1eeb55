package demux

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"partyline/internal/protocol"
)

// feedIn pushes the stream through the demux in chunks of the given size and
// collects every extracted frame.
func feedIn(d *Demux, stream []byte, chunk int) []protocol.Frame {
	var frames []protocol.Frame
	for len(stream) > 0 {
		n := chunk
		if n > len(stream) {
			n = len(stream)
		}
		frames = append(frames, d.Feed(stream[:n])...)
		stream = stream[n:]
	}
	return frames
}

func TestDemux(t *testing.T) {
	payload := []byte("line one\nFILE_HEADER::fake::9\nline two")
	stream := []byte("hello there\n")
	stream = append(stream, []byte(fmt.Sprintf("FILE_HEADER::doc.txt::%d\n", len(payload)))...)
	stream = append(stream, payload...)
	stream = append(stream, []byte("FOLDER_HEADER::alice::pics\n")...)
	stream = append(stream, []byte("FOLDER_END::alice::pics\n")...)

	expected := []protocol.Frame{
		{Kind: protocol.Text, Text: "hello there"},
		{Kind: protocol.FileHeader, Path: "doc.txt", Size: int64(len(payload)), Payload: payload},
		{Kind: protocol.FolderHeader, Sender: "alice", Path: "pics"},
		{Kind: protocol.FolderEnd, Sender: "alice", Path: "pics"},
	}

	t.Run("single feed", func(t *testing.T) {
		frames := New(nil).Feed(stream)
		assert.Equal(t, expected, frames)
	})

	t.Run("fragmentation invariance", func(t *testing.T) {
		// Extracted frames must not depend on how the stream is chopped up.
		for _, chunk := range []int{1, 2, 3, 7, 16, 100} {
			d := New(nil)
			frames := feedIn(d, stream, chunk)
			assert.Equal(t, expected, frames, "chunk size %d", chunk)
			assert.Zero(t, d.Buffered(), "chunk size %d", chunk)
		}
	})
}

func TestDemuxHoldsHeaderUntilPayloadComplete(t *testing.T) {
	d := New(nil)

	frames := d.Feed([]byte("FILE_HEADER::big.bin::10\n12345"))
	assert.Empty(t, frames)
	assert.NotZero(t, d.Buffered())

	frames = d.Feed([]byte("67890"))
	assert.Len(t, frames, 1)
	assert.Equal(t, protocol.FileHeader, frames[0].Kind)
	assert.Equal(t, []byte("1234567890"), frames[0].Payload)
	assert.Zero(t, d.Buffered())
}

func TestDemuxZeroSizeFile(t *testing.T) {
	frames := New(nil).Feed([]byte("FILE_HEADER::empty.txt::0\nnext line\n"))
	assert.Len(t, frames, 2)
	assert.Equal(t, protocol.FileHeader, frames[0].Kind)
	assert.Empty(t, frames[0].Payload)
	assert.Equal(t, "next line", frames[1].Text)
}

func TestDemuxDropsMalformedLines(t *testing.T) {
	var dropped [][]byte
	d := New(func(line []byte, err error) {
		dropped = append(dropped, line)
		assert.Error(t, err)
	})

	frames := d.Feed([]byte("FILE_HEADER::bad.txt::oops\nstill here\n"))
	assert.Len(t, frames, 1)
	assert.Equal(t, "still here", frames[0].Text)
	assert.Equal(t, [][]byte{[]byte("FILE_HEADER::bad.txt::oops")}, dropped)
}

func TestDemuxPartialLineHeld(t *testing.T) {
	d := New(nil)
	assert.Empty(t, d.Feed([]byte("no newline yet")))
	frames := d.Feed([]byte(" and now\n"))
	assert.Len(t, frames, 1)
	assert.Equal(t, "no newline yet and now", frames[0].Text)
}
