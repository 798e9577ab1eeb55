// client.go implements the joining peer. A client holds exactly one
// connection, to the host, and trusts it to relay everything; chat lines
// arrive already prefixed and transfer frames already stamped with their
// sender.
package client

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"partyline/internal/conn"
	"partyline/internal/demux"
	"partyline/internal/event"
	"partyline/internal/protocol"
	"partyline/internal/transfer"
)

type Config struct {
	Username    string
	Downloads   string
	EventBuffer int
	Logger      *zap.Logger
}

type Client struct {
	cfg    Config
	logger *zap.Logger
	conn   conn.Conn
	sink   *transfer.Sink
	events chan event.Event

	// sendMu spans whole sends, not single writes, so a chat line can never
	// land inside a streaming file payload.
	sendMu sync.Mutex

	done     chan struct{}
	stopOnce sync.Once
}

// Join dials the host and runs the handshake.
func Join(addr string, cfg Config) (*Client, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	client, err := JoinConn(c, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	return client, nil
}

// JoinConn runs the handshake over an established connection: the client
// identifies itself with its username, or the CONNECT_REQUEST literal when
// it has none, and the host answers with exactly CONNECT_ACCEPT or
// CONNECT_DENY. Denial is final; there is no retry.
func JoinConn(netConn net.Conn, cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}

	c := conn.NewTCP(netConn)
	identity := cfg.Username
	if identity == "" {
		identity = protocol.ConnectRequest
	}
	if err := c.Write([]byte(identity)); err != nil {
		return nil, fmt.Errorf("send identity: %w", err)
	}

	reply, err := c.Read()
	if err != nil {
		return nil, fmt.Errorf("read handshake reply: %w", err)
	}
	switch string(reply) {
	case protocol.ConnectAccept:
	case protocol.ConnectDeny:
		return nil, fmt.Errorf("the host denied the connection")
	default:
		return nil, fmt.Errorf("unexpected handshake reply %q", reply)
	}

	client := &Client{
		cfg:    cfg,
		logger: cfg.Logger,
		conn:   c,
		sink:   &transfer.Sink{Root: cfg.Downloads},
		events: make(chan event.Event, cfg.EventBuffer),
		done:   make(chan struct{}),
	}
	client.logger.Info("joined", zap.String("addr", c.RemoteAddr()))
	client.emit(event.Connected{Addr: c.RemoteAddr()})
	go client.receiveLoop()
	return client, nil
}

func (c *Client) Events() <-chan event.Event {
	return c.events
}

// SendText sends a raw chat line; the host applies the sender prefix when
// relaying it.
func (c *Client) SendText(text string) error {
	data, err := protocol.Frame{Kind: protocol.Text, Text: text}.EncodeHeader()
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.conn.Write(data)
}

// SendPath streams a file or folder to the host, which fans it out.
func (c *Client) SendPath(path string, msgs ...chan interface{}) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return transfer.SendPath(c.conn, "", path, msgs...)
}

func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) receiveLoop() {
	d := demux.New(func(line []byte, err error) {
		c.logger.Warn("dropping malformed frame", zap.Error(err))
	})
	for {
		chunk, err := c.conn.Read()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Info("connection to the host closed", zap.Error(err))
				c.emit(event.Log{Text: "--- connection to the host was lost ---"})
				c.Stop()
			}
			return
		}
		for _, f := range d.Feed(chunk) {
			c.handleFrame(f)
		}
	}
}

func (c *Client) handleFrame(f protocol.Frame) {
	switch f.Kind {
	case protocol.Text:
		c.emit(event.Chat{Text: f.Text})

	case protocol.FileHeader, protocol.FolderHeader, protocol.FolderEnd:
		dest, err := c.sink.HandleFrame(f)
		if err != nil {
			c.emit(event.Error{Err: err})
			return
		}
		if dest != "" {
			sender := f.Sender
			if sender == "" {
				sender = "unknown"
			}
			c.emit(event.Log{Text: fmt.Sprintf("received %s from %s", dest, sender)})
		}
	}
}

func (c *Client) emit(e event.Event) {
	select {
	case c.events <- e:
	default:
		c.logger.Warn("event buffer full, dropping event")
	}
}
