// protocol.go specifies the wire grammar shared by the host and its clients.
//
// The protocol is line oriented: every header line is terminated by '\n' and
// uses "::" as the field separator. A FILE_HEADER line is immediately
// followed by exactly the declared number of raw payload bytes, with no
// trailing newline. Fields are not escaped; a path containing the separator
// or a newline cannot be represented on the wire. This is an accepted
// protocol limitation -- Encode rejects such frames instead of corrupting
// the stream.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Handshake tokens exchanged before the connection enters framed mode.
const (
	ConnectRequest = "CONNECT_REQUEST" // identity literal for username-less clients
	ConnectAccept  = "CONNECT_ACCEPT"
	ConnectDeny    = "CONNECT_DENY"
)

// HostSender is the sender tag stamped on host-originated frames.
const HostSender = "HOST"

const (
	Separator = "::"
	Delimiter = '\n'

	fileHeaderTag   = "FILE_HEADER"
	folderHeaderTag = "FOLDER_HEADER"
	folderEndTag    = "FOLDER_END"
)

// Kind specifies the frame type of a decoded frame.
type Kind int

const (
	Text Kind = iota
	FileHeader
	FolderHeader
	FolderEnd
)

func (k Kind) Name() string {
	switch k {
	case Text:
		return "Text"
	case FileHeader:
		return "FileHeader"
	case FolderHeader:
		return "FolderHeader"
	case FolderEnd:
		return "FolderEnd"
	default:
		return ""
	}
}

// Frame is one self-delimited unit of the wire protocol.
//
// Sender is present only on frames relayed by the host; client-to-host
// originals never carry one. For FileHeader frames decoded by the demux,
// Payload holds the complete payload bytes.
type Frame struct {
	Kind    Kind
	Sender  string
	Text    string // chat line (Text)
	Path    string // relative path (FileHeader) or folder name (FolderHeader/FolderEnd)
	Size    int64  // declared payload size (FileHeader)
	Payload []byte // payload bytes (FileHeader, receive side)
}

// WithSender returns a copy of the frame with the sender field set,
// used by the host when re-emitting a client original.
func (f Frame) WithSender(sender string) Frame {
	f.Sender = sender
	return f
}

// DecodeError marks a frame that violates the grammar, on either side of
// the codec. Decode-side occurrences are reported and the line is dropped;
// the stream continues.
type DecodeError struct {
	Line   string
	Reason string
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("malformed frame %q: %s", e.Line, e.Reason)
}

// EncodeHeader renders only the header line of the frame, including the
// trailing delimiter. Used when the payload is streamed separately.
func (f Frame) EncodeHeader() ([]byte, error) {
	var fields []string
	switch f.Kind {
	case Text:
		if strings.ContainsRune(f.Text, Delimiter) {
			return nil, DecodeError{Line: f.Text, Reason: "chat text contains the line delimiter"}
		}
		return append([]byte(f.Text), Delimiter), nil
	case FileHeader:
		if f.Size < 0 {
			return nil, DecodeError{Line: f.Path, Reason: "negative payload size"}
		}
		fields = []string{fileHeaderTag}
		if f.Sender != "" {
			fields = append(fields, f.Sender)
		}
		fields = append(fields, f.Path, strconv.FormatInt(f.Size, 10))
	case FolderHeader, FolderEnd:
		tag := folderHeaderTag
		if f.Kind == FolderEnd {
			tag = folderEndTag
		}
		fields = []string{tag}
		if f.Sender != "" {
			fields = append(fields, f.Sender)
		}
		fields = append(fields, f.Path)
	default:
		return nil, DecodeError{Reason: fmt.Sprintf("unknown frame kind %d", f.Kind)}
	}

	for _, field := range fields[1:] {
		if strings.Contains(field, Separator) || strings.ContainsRune(field, Delimiter) {
			return nil, DecodeError{Line: field, Reason: "field contains separator or delimiter"}
		}
	}
	return append([]byte(strings.Join(fields, Separator)), Delimiter), nil
}

// Encode renders the complete frame: the header line and, for FileHeader
// frames, the payload bytes. The payload length must match the declared size.
func (f Frame) Encode() ([]byte, error) {
	header, err := f.EncodeHeader()
	if err != nil {
		return nil, err
	}
	if f.Kind != FileHeader {
		return header, nil
	}
	if int64(len(f.Payload)) != f.Size {
		return nil, DecodeError{Line: f.Path, Reason: "payload length does not match declared size"}
	}
	return append(header, f.Payload...), nil
}

// ParseHeader decodes one header line, stripped of its trailing delimiter.
// Lines that carry a known tag but do not conform to the grammar yield a
// DecodeError; anything else is a chat Text frame. The sender field is
// inferred from the field count, matching the host/client asymmetry of the
// protocol: three-field FILE_HEADER lines are client originals, four-field
// lines are host relays.
func ParseHeader(line []byte) (Frame, error) {
	if !utf8.Valid(line) {
		return Frame{}, DecodeError{Line: string(line), Reason: "invalid UTF-8"}
	}
	s := string(line)

	switch {
	case strings.HasPrefix(s, fileHeaderTag+Separator):
		fields := strings.Split(s, Separator)
		var frame Frame
		switch len(fields) {
		case 3:
			frame = Frame{Kind: FileHeader, Path: fields[1]}
		case 4:
			frame = Frame{Kind: FileHeader, Sender: fields[1], Path: fields[2]}
		default:
			return Frame{}, DecodeError{Line: s, Reason: "wrong field count for FILE_HEADER"}
		}
		size, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
		if err != nil || size < 0 {
			return Frame{}, DecodeError{Line: s, Reason: "invalid payload size"}
		}
		frame.Size = size
		return frame, nil

	case strings.HasPrefix(s, folderHeaderTag+Separator), strings.HasPrefix(s, folderEndTag+Separator):
		fields := strings.Split(s, Separator)
		kind := FolderHeader
		if fields[0] == folderEndTag {
			kind = FolderEnd
		}
		switch len(fields) {
		case 2:
			return Frame{Kind: kind, Path: fields[1]}, nil
		case 3:
			return Frame{Kind: kind, Sender: fields[1], Path: fields[2]}, nil
		default:
			return Frame{}, DecodeError{Line: s, Reason: "wrong field count for " + fields[0]}
		}

	default:
		return Frame{Kind: Text, Text: s}, nil
	}
}

// ChatLine renders a chat line the way the host relays it.
func ChatLine(sender, text string) string {
	return fmt.Sprintf("[%s] says: %s", sender, text)
}

// JoinedLine and LeftLine are the synthetic notifications the host
// broadcasts on membership changes.
func JoinedLine(username string) string {
	return fmt.Sprintf("--- %s has joined the chat ---", username)
}

func LeftLine(username string) string {
	return fmt.Sprintf("--- %s has left the chat ---", username)
}
