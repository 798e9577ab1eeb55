// transfer.go implements sending and receiving of files and folders on top
// of the framed wire protocol. Sending streams payloads in fixed chunks and
// reports progress over optional message channels; receiving maps decoded
// frames onto the local downloads directory.
package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"partyline/internal/protocol"
)

// CHUNK_BYTES is the payload chunk size for streamed file sends.
const CHUNK_BYTES = 4096

// Writer is the sending side of a connection. The host passes its fan-out
// writer here; clients pass their upstream connection.
type Writer interface {
	Write([]byte) error
}

// Progress is published on the message channels while a send is in flight.
type Progress struct {
	BytesSent  int64
	TotalBytes int64
	FilesSent  int
	TotalFiles int
}

// Skipped is published when a file inside a folder cannot be read. The rest
// of the folder is still sent.
type Skipped struct {
	Path string
	Err  error
}

// SendPath transfers the file or folder at path. Folders are announced with
// a FOLDER_HEADER frame, their regular files streamed with paths relative to
// the folder root, and closed with FOLDER_END. The sender tag is stamped on
// every emitted frame; clients leave it empty and let the host fill it in
// on relay.
func SendPath(w Writer, sender, path string, msgs ...chan interface{}) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		total := info.Size()
		publish(msgs, Progress{TotalBytes: total, TotalFiles: 1})
		sent, err := sendFile(w, sender, filepath.Base(path), path, 0, total, msgs)
		if err != nil {
			return err
		}
		publish(msgs, Progress{BytesSent: sent, TotalBytes: total, FilesSent: 1, TotalFiles: 1})
		return nil
	}
	return sendFolder(w, sender, path, msgs)
}

func sendFolder(w Writer, sender, root string, msgs []chan interface{}) error {
	files, totalBytes, err := scanFolder(root)
	if err != nil {
		return err
	}
	publish(msgs, Progress{TotalBytes: totalBytes, TotalFiles: len(files)})

	name := filepath.Base(root)
	header := protocol.Frame{Kind: protocol.FolderHeader, Sender: sender, Path: name}
	if err := writeFrame(w, header); err != nil {
		return err
	}

	var bytesSent int64
	filesSent := 0
	for _, rel := range files {
		sent, err := sendFile(w, sender, filepath.ToSlash(rel), filepath.Join(root, rel), bytesSent, totalBytes, msgs)
		if err != nil {
			if isLocalReadError(err) {
				publish(msgs, Skipped{Path: rel, Err: err})
				continue
			}
			return err
		}
		bytesSent += sent
		filesSent++
		publish(msgs, Progress{BytesSent: bytesSent, TotalBytes: totalBytes, FilesSent: filesSent, TotalFiles: len(files)})
	}

	end := protocol.Frame{Kind: protocol.FolderEnd, Sender: sender, Path: name}
	return writeFrame(w, end)
}

// scanFolder walks root and returns the relative paths of its regular files
// together with their combined size. The pre-scan fixes the totals before
// the first byte is sent so progress reporting is stable.
func scanFolder(root string) ([]string, int64, error) {
	var files []string
	var total int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		total += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan %s: %w", root, err)
	}
	return files, total, nil
}

// sendFile emits one file as a FILE_HEADER frame followed by its payload.
// The file is read in full before any bytes hit the wire: a header must
// never be written for payload bytes that cannot follow it, since the
// receiving side would wait on the declared size forever and swallow every
// later frame on the stream.
func sendFile(w Writer, sender, wirePath, localPath string, sentSoFar, totalBytes int64, msgs []chan interface{}) (int64, error) {
	payload, err := os.ReadFile(localPath)
	if err != nil {
		return 0, &localReadError{err}
	}
	size := int64(len(payload))

	header := protocol.Frame{Kind: protocol.FileHeader, Sender: sender, Path: wirePath, Size: size}
	if err := writeFrame(w, header); err != nil {
		return 0, err
	}

	var sent int64
	for sent < size {
		end := sent + CHUNK_BYTES
		if end > size {
			end = size
		}
		if err := w.Write(payload[sent:end]); err != nil {
			return sent, err
		}
		sent = end
		publish(msgs, Progress{BytesSent: sentSoFar + sent, TotalBytes: totalBytes})
	}
	return sent, nil
}

func writeFrame(w Writer, f protocol.Frame) error {
	header, err := f.EncodeHeader()
	if err != nil {
		return err
	}
	return w.Write(header)
}

func publish(msgs []chan interface{}, msg interface{}) {
	for _, ch := range msgs {
		ch <- msg
	}
}

// localReadError marks failures confined to the local filesystem, which are
// recoverable mid-folder. Wire errors are not.
type localReadError struct{ err error }

func (e *localReadError) Error() string { return e.err.Error() }
func (e *localReadError) Unwrap() error { return e.err }

func isLocalReadError(err error) bool {
	_, ok := err.(*localReadError)
	return ok
}

// ---------------------------- receive side ----------------------------

// Sink writes received file frames under a downloads root. A FolderHeader
// frame opens a per-folder subdirectory that subsequent files are placed in,
// preserving their relative paths; FolderEnd closes it. Standalone files are
// written flat under the root by base name.
type Sink struct {
	Root string

	folderRoot string
}

// HandleFrame applies one file or folder frame and returns the path the
// payload was written to, or "" for frames that produce no file.
func (s *Sink) HandleFrame(f protocol.Frame) (string, error) {
	switch f.Kind {
	case protocol.FolderHeader:
		s.folderRoot = filepath.Join(s.Root, filepath.Base(f.Path))
		if err := os.MkdirAll(s.folderRoot, 0755); err != nil {
			return "", fmt.Errorf("create folder %s: %w", s.folderRoot, err)
		}
		return "", nil

	case protocol.FolderEnd:
		s.folderRoot = ""
		return "", nil

	case protocol.FileHeader:
		dest, err := s.destination(f.Path)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return "", fmt.Errorf("create %s: %w", filepath.Dir(dest), err)
		}
		if err := os.WriteFile(dest, f.Payload, 0644); err != nil {
			return "", fmt.Errorf("write %s: %w", dest, err)
		}
		return dest, nil

	default:
		return "", nil
	}
}

// destination maps a wire path onto the local filesystem. Inside a folder
// the relative path is preserved but must stay under the folder root; a
// path that climbs out of it is rejected.
func (s *Sink) destination(wirePath string) (string, error) {
	if s.folderRoot == "" {
		return filepath.Join(s.Root, filepath.Base(filepath.FromSlash(wirePath))), nil
	}
	dest := filepath.Join(s.folderRoot, filepath.FromSlash(wirePath))
	rel, err := filepath.Rel(s.folderRoot, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("refusing path %q: escapes the download folder", wirePath)
	}
	return dest, nil
}
