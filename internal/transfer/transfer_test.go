package transfer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partyline/internal/demux"
	"partyline/internal/protocol"
)

// captureWriter records everything written and replays it through a demux,
// the same way a receiving peer would see the stream.
type captureWriter struct {
	buf []byte
}

func (w *captureWriter) Write(p []byte) error {
	w.buf = append(w.buf, p...)
	return nil
}

func (w *captureWriter) frames() []protocol.Frame {
	return demux.New(nil).Feed(w.buf)
}

func writeTestFolder(t *testing.T, files map[string]string) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "stuff")
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func TestSendPathSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0644))

	w := &captureWriter{}
	require.NoError(t, SendPath(w, "", path))

	frames := w.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.FileHeader, frames[0].Kind)
	assert.Equal(t, "note.txt", frames[0].Path)
	assert.Equal(t, []byte("hello world"), frames[0].Payload)
	assert.Empty(t, frames[0].Sender)
}

func TestSendPathFolder(t *testing.T) {
	root := writeTestFolder(t, map[string]string{
		"a.txt":     "hi",
		"sub/b.txt": "bye",
	})

	w := &captureWriter{}
	require.NoError(t, SendPath(w, "HOST", root))

	frames := w.frames()
	require.Len(t, frames, 4)

	assert.Equal(t, protocol.FolderHeader, frames[0].Kind)
	assert.Equal(t, "stuff", frames[0].Path)
	assert.Equal(t, "HOST", frames[0].Sender)

	got := map[string]string{}
	for _, f := range frames[1:3] {
		require.Equal(t, protocol.FileHeader, f.Kind)
		got[f.Path] = string(f.Payload)
	}
	assert.Equal(t, map[string]string{"a.txt": "hi", "sub/b.txt": "bye"}, got)

	assert.Equal(t, protocol.FolderEnd, frames[3].Kind)
	assert.Equal(t, "stuff", frames[3].Path)
}

func TestSendPathProgress(t *testing.T) {
	root := writeTestFolder(t, map[string]string{
		"a.txt": "hi",
		"b.txt": "bye",
	})

	msgs := make(chan interface{}, 64)
	w := &captureWriter{}
	require.NoError(t, SendPath(w, "", root, msgs))
	close(msgs)

	var last Progress
	sawTotals := false
	for msg := range msgs {
		p, ok := msg.(Progress)
		require.True(t, ok)
		if p.TotalFiles == 2 && p.TotalBytes == 5 {
			sawTotals = true
		}
		last = p
	}
	assert.True(t, sawTotals)
	assert.Equal(t, int64(5), last.BytesSent)
	assert.Equal(t, 2, last.FilesSent)
}

func TestSendPathSkipsUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions do not apply to root")
	}
	root := writeTestFolder(t, map[string]string{
		"a.txt":      "hi",
		"middle.bin": "cannot read me",
		"z.txt":      "bye",
	})
	require.NoError(t, os.Chmod(filepath.Join(root, "middle.bin"), 0000))

	msgs := make(chan interface{}, 64)
	w := &captureWriter{}
	require.NoError(t, SendPath(w, "", root, msgs))
	close(msgs)

	var skipped []string
	for msg := range msgs {
		if s, ok := msg.(Skipped); ok {
			skipped = append(skipped, s.Path)
			assert.Error(t, s.Err)
		}
	}
	assert.Equal(t, []string{"middle.bin"}, skipped)

	// The unreadable file must leave no trace on the wire; everything after
	// it still decodes cleanly.
	d := demux.New(nil)
	frames := d.Feed(w.buf)
	assert.Zero(t, d.Buffered())
	require.Len(t, frames, 4)
	assert.Equal(t, protocol.FolderHeader, frames[0].Kind)
	assert.Equal(t, "a.txt", frames[1].Path)
	assert.Equal(t, "z.txt", frames[2].Path)
	assert.Equal(t, []byte("bye"), frames[2].Payload)
	assert.Equal(t, protocol.FolderEnd, frames[3].Kind)
}

func TestSendPathMissing(t *testing.T) {
	w := &captureWriter{}
	err := SendPath(w, "", filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
	assert.Empty(t, w.buf)
}

func TestSinkFolderLayout(t *testing.T) {
	root := t.TempDir()
	sink := &Sink{Root: root}

	_, err := sink.HandleFrame(protocol.Frame{Kind: protocol.FolderHeader, Sender: "alice", Path: "pics"})
	require.NoError(t, err)

	dest, err := sink.HandleFrame(protocol.Frame{
		Kind:    protocol.FileHeader,
		Path:    "sub/cat.txt",
		Size:    4,
		Payload: []byte("meow"),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "pics", "sub", "cat.txt"), dest)

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "meow", string(content))

	_, err = sink.HandleFrame(protocol.Frame{Kind: protocol.FolderEnd, Path: "pics"})
	require.NoError(t, err)

	// Outside a folder, files land flat under the root by base name.
	dest, err = sink.HandleFrame(protocol.Frame{
		Kind:    protocol.FileHeader,
		Path:    "deep/nested/dog.txt",
		Size:    4,
		Payload: []byte("woof"),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "dog.txt"), dest)
}

func TestSinkRejectsEscapingPaths(t *testing.T) {
	sink := &Sink{Root: t.TempDir()}

	_, err := sink.HandleFrame(protocol.Frame{Kind: protocol.FolderHeader, Path: "pics"})
	require.NoError(t, err)

	_, err = sink.HandleFrame(protocol.Frame{
		Kind:    protocol.FileHeader,
		Path:    "../../evil.txt",
		Size:    3,
		Payload: []byte("bad"),
	})
	assert.Error(t, err)
}

func TestFolderRoundTrip(t *testing.T) {
	files := map[string]string{
		"a.txt":     "hi",
		"sub/b.txt": "bye",
	}
	root := writeTestFolder(t, files)

	w := &captureWriter{}
	require.NoError(t, SendPath(w, "", root))

	// Replay the captured stream the way a receiving peer would: through a
	// demux into a sink.
	downloads := t.TempDir()
	sink := &Sink{Root: downloads}
	d := demux.New(nil)
	for _, f := range d.Feed(w.buf) {
		_, err := sink.HandleFrame(f)
		require.NoError(t, err)
	}
	assert.Zero(t, d.Buffered())

	for rel, content := range files {
		got, err := os.ReadFile(filepath.Join(downloads, "stuff", filepath.FromSlash(rel)))
		require.NoError(t, err)
		assert.Equal(t, content, string(got), rel)
	}
}

func TestSinkZeroSizeFile(t *testing.T) {
	root := t.TempDir()
	sink := &Sink{Root: root}

	dest, err := sink.HandleFrame(protocol.Frame{Kind: protocol.FileHeader, Path: "empty.txt"})
	require.NoError(t, err)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}
