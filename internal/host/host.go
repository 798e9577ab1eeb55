// host.go implements the hosting peer: it accepts TCP connections, runs the
// consent handshake, and relays chat and transfer frames between clients.
// The host is itself a participant; everything it says or sends is stamped
// with the HOST sender tag.
package host

import (
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"partyline/internal/conn"
	"partyline/internal/demux"
	"partyline/internal/event"
	"partyline/internal/protocol"
	"partyline/internal/transfer"
)

type Config struct {
	Port        int
	Downloads   string
	EventBuffer int
	Logger      *zap.Logger
}

// Host listens for clients and relays their traffic. Create with New, start
// with Start, and consume Events until Stop.
type Host struct {
	cfg      Config
	logger   *zap.Logger
	registry *Registry
	relay    *Relay
	sink     *transfer.Sink
	events   chan event.Event

	listener net.Listener
	done     chan struct{}
}

func New(cfg Config) *Host {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	registry := NewRegistry()
	return &Host{
		cfg:      cfg,
		logger:   cfg.Logger,
		registry: registry,
		relay:    NewRelay(registry, cfg.Logger),
		sink:     &transfer.Sink{Root: cfg.Downloads},
		events:   make(chan event.Event, cfg.EventBuffer),
		done:     make(chan struct{}),
	}
}

func (h *Host) Events() <-chan event.Event {
	return h.events
}

// Start binds the listening socket and spawns the accept loop.
func (h *Host) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", h.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", h.cfg.Port, err)
	}
	h.listener = listener
	h.logger.Info("hosting", zap.String("addr", h.Addr()))
	h.emit(event.HostStarted{Addr: h.Addr()})
	go h.acceptLoop()
	return nil
}

// Addr returns the address clients should connect to, using the machine's
// outbound interface rather than the wildcard the listener is bound to.
func (h *Host) Addr() string {
	port := h.cfg.Port
	if h.listener != nil {
		if tcp, ok := h.listener.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
	}
	return fmt.Sprintf("%s:%d", localIP(), port)
}

// Stop closes the listener and every peer connection.
func (h *Host) Stop() {
	select {
	case <-h.done:
		return
	default:
		close(h.done)
	}
	if h.listener != nil {
		h.listener.Close()
	}
	for _, p := range h.registry.Snapshot() {
		h.registry.Remove(p)
		p.Conn.Close()
	}
}

// SendText broadcasts a chat line from the host to every peer.
func (h *Host) SendText(text string) error {
	line := protocol.ChatLine(protocol.HostSender, text)
	data, err := protocol.Frame{Kind: protocol.Text, Text: line}.EncodeHeader()
	if err != nil {
		return err
	}
	h.reap(h.relay.Broadcast(data, nil))
	h.emit(event.Chat{Text: line})
	return nil
}

// SendPath streams a file or folder to every peer. Relayed traffic is held
// back for the duration so payload bytes stay contiguous on each stream.
func (h *Host) SendPath(path string, msgs ...chan interface{}) error {
	dropped, err := h.relay.Transfer(func(w transfer.Writer) error {
		return transfer.SendPath(w, protocol.HostSender, path, msgs...)
	})
	h.reap(dropped)
	return err
}

// ---------------------------- accept path ----------------------------

func (h *Host) acceptLoop() {
	for {
		c, err := h.listener.Accept()
		if err != nil {
			select {
			case <-h.done:
			default:
				h.logger.Error("accept failed", zap.Error(err))
				h.emit(event.Error{Err: err})
			}
			return
		}
		go h.register(conn.NewTCP(c))
	}
}

// register runs the consent handshake for one pending connection. The first
// bytes from the client carry its username, or the CONNECT_REQUEST literal
// when it has none; the user decides, and exactly one of CONNECT_ACCEPT or
// CONNECT_DENY goes back.
func (h *Host) register(c conn.Conn) {
	identity, err := c.Read()
	if err != nil {
		h.logger.Debug("connection dropped before identifying", zap.String("addr", c.RemoteAddr()))
		c.Close()
		return
	}
	username := strings.TrimSpace(string(identity))
	switch username {
	case protocol.ConnectRequest:
		// Anonymous clients are allowed; they show up under their address.
		username = ""
	case "":
		// A blank identity is malformed, not anonymous.
		h.logger.Info("denying blank identity", zap.String("addr", c.RemoteAddr()))
		c.Write([]byte(protocol.ConnectDeny))
		c.Close()
		return
	}
	display := username
	if display == "" {
		display = c.RemoteAddr()
	}

	decision := make(chan bool, 1)
	// Consent is the one event that must not be dropped; block until the
	// front end takes it.
	h.events <- event.ConnectionRequest{
		Addr:     c.RemoteAddr(),
		Username: username,
		Decision: func(accept bool) { decision <- accept },
	}

	select {
	case <-h.done:
		c.Close()
		return
	case accept := <-decision:
		if !accept {
			h.logger.Info("connection denied", zap.String("addr", c.RemoteAddr()))
			c.Write([]byte(protocol.ConnectDeny))
			c.Close()
			return
		}
	}

	if err := c.Write([]byte(protocol.ConnectAccept)); err != nil {
		h.logger.Warn("accept reply failed", zap.String("addr", c.RemoteAddr()), zap.Error(err))
		c.Close()
		return
	}

	peer := &Peer{Conn: c, Addr: c.RemoteAddr(), Username: display}
	h.registry.Add(peer)
	h.logger.Info("peer joined", zap.String("addr", peer.Addr), zap.String("username", peer.Username))
	h.announce(protocol.JoinedLine(peer.Username), peer)
	go h.receiveLoop(peer)
}

// ---------------------------- receive path ----------------------------

func (h *Host) receiveLoop(peer *Peer) {
	d := demux.New(func(line []byte, err error) {
		h.logger.Warn("dropping malformed frame",
			zap.String("from", peer.Username),
			zap.Error(err))
	})
	for {
		chunk, err := peer.Conn.Read()
		if err != nil {
			h.removePeer(peer)
			return
		}
		for _, f := range d.Feed(chunk) {
			h.handleFrame(peer, f)
		}
	}
}

func (h *Host) handleFrame(peer *Peer, f protocol.Frame) {
	switch f.Kind {
	case protocol.Text:
		line := protocol.ChatLine(peer.Username, f.Text)
		data, err := protocol.Frame{Kind: protocol.Text, Text: line}.EncodeHeader()
		if err != nil {
			h.logger.Warn("unrelayable chat line", zap.Error(err))
			return
		}
		h.reap(h.relay.Broadcast(data, peer))
		h.emit(event.Chat{Text: line})

	case protocol.FileHeader, protocol.FolderHeader, protocol.FolderEnd:
		dropped, err := h.relay.Forward(peer, f)
		h.reap(dropped)
		if err != nil {
			h.logger.Warn("unrelayable frame", zap.String("kind", f.Kind.Name()), zap.Error(err))
		}
		// The host keeps its own copy, like any receiving peer.
		dest, err := h.sink.HandleFrame(f)
		if err != nil {
			h.emit(event.Error{Err: err})
			return
		}
		if dest != "" {
			h.emit(event.Log{Text: fmt.Sprintf("received %s from %s", dest, peer.Username)})
		}
	}
}

// removePeer unregisters the peer and tells everyone it left. Safe to call
// from racing paths; only the first caller announces.
func (h *Host) removePeer(peer *Peer) {
	if !h.registry.Remove(peer) {
		return
	}
	peer.Conn.Close()
	h.logger.Info("peer left", zap.String("addr", peer.Addr), zap.String("username", peer.Username))
	h.announce(protocol.LeftLine(peer.Username), peer)
}

// announce broadcasts a membership line and shows it locally.
func (h *Host) announce(line string, exclude *Peer) {
	data, err := protocol.Frame{Kind: protocol.Text, Text: line}.EncodeHeader()
	if err != nil {
		return
	}
	h.reap(h.relay.Broadcast(data, exclude))
	h.emit(event.Chat{Text: line})
}

// reap announces peers that were dropped during a fan-out.
func (h *Host) reap(dropped []*Peer) {
	for _, p := range dropped {
		h.announce(protocol.LeftLine(p.Username), p)
	}
}

// emit delivers an event without blocking the core; when the front end
// lags, the event is dropped and logged.
func (h *Host) emit(e event.Event) {
	select {
	case h.events <- e:
	default:
		h.logger.Warn("event buffer full, dropping event")
	}
}

// localIP finds the preferred outbound address. No packets are sent; the
// dial only resolves the route.
func localIP() string {
	c, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer c.Close()
	if addr, ok := c.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
