// event.go defines the notifications the core emits towards the front end.
// The front end consumes these over a buffered channel and never calls back
// into the core except through the Decision callback on ConnectionRequest.
package event

// Event is a tagged notification emitted by the host or client core.
type Event interface {
	event()
}

// Chat is a chat line ready for display. Relayed lines already carry the
// sender prefix applied by the host.
type Chat struct {
	Text string
}

// Log is an informational status line.
type Log struct {
	Text string
}

// Error surfaces a non-fatal error to the user.
type Error struct {
	Err error
}

// ConnectionRequest asks for consent on a pending connection. Decision must
// be called exactly once; the registration loop blocks until it is.
type ConnectionRequest struct {
	Addr     string
	Username string
	Decision func(accept bool)
}

// HostStarted announces that the host is listening.
type HostStarted struct {
	Addr string
}

// Connected announces that the client handshake succeeded.
type Connected struct {
	Addr string
}

// Progress reports transfer totals for an in-flight send.
type Progress struct {
	BytesSent  int64
	TotalBytes int64
	FilesSent  int
	TotalFiles int
}

func (Chat) event()              {}
func (Log) event()               {}
func (Error) event()             {}
func (ConnectionRequest) event() {}
func (HostStarted) event()       {}
func (Connected) event()         {}
func (Progress) event()          {}
