// node.go ties the pieces together behind one face: a node either hosts a
// session or joins one, and in both roles it is driven the same way by the
// front end through Events, SendText and SendPath.
package node

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"partyline/internal/client"
	"partyline/internal/discovery"
	"partyline/internal/event"
	"partyline/internal/host"
	"partyline/internal/transfer"
)

// BROWSE_TIMEOUT bounds the mDNS search when joining without an address.
const BROWSE_TIMEOUT = 5 * time.Second

type Config struct {
	Port        int
	Downloads   string
	Username    string
	Discovery   bool
	EventBuffer int
	Logger      *zap.Logger
}

// Node is a running peer, hosting or joined.
type Node struct {
	cfg    Config
	logger *zap.Logger

	host       *host.Host
	client     *client.Client
	advertiser *discovery.Advertiser

	events chan event.Event
}

// StartHost starts hosting a session and, when discovery is on, announces
// it on the local network.
func StartHost(cfg Config) (*Node, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := host.New(host.Config{
		Port:        cfg.Port,
		Downloads:   cfg.Downloads,
		EventBuffer: cfg.EventBuffer,
		Logger:      cfg.Logger,
	})
	if err := h.Start(); err != nil {
		return nil, err
	}

	n := newNode(cfg)
	n.host = h
	go n.pump(h.Events())

	if cfg.Discovery {
		instance := cfg.Username
		if instance == "" {
			instance = "partyline-host"
		}
		advertiser, err := discovery.Advertise(instance, cfg.Port)
		if err != nil {
			// Discovery is best effort; the host still works by address.
			cfg.Logger.Warn("mdns advertising unavailable", zap.Error(err))
			n.emit(event.Log{Text: "local network discovery unavailable"})
		} else {
			n.advertiser = advertiser
		}
	}
	return n, nil
}

// Join connects to a host. An empty address triggers an mDNS search when
// discovery is enabled.
func Join(addr string, cfg Config) (*Node, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if addr == "" {
		if !cfg.Discovery {
			return nil, fmt.Errorf("no host address given and discovery is disabled")
		}
		ctx, cancel := context.WithTimeout(context.Background(), BROWSE_TIMEOUT)
		defer cancel()
		found, err := discovery.Browse(ctx)
		if err != nil {
			return nil, err
		}
		cfg.Logger.Info("discovered host", zap.String("addr", found))
		addr = found
	}

	c, err := client.Join(addr, client.Config{
		Username:    cfg.Username,
		Downloads:   cfg.Downloads,
		EventBuffer: cfg.EventBuffer,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	n := newNode(cfg)
	n.client = c
	go n.pump(c.Events())
	return n, nil
}

func newNode(cfg Config) *Node {
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Node{cfg: cfg, logger: cfg.Logger, events: make(chan event.Event, buffer)}
}

func (n *Node) Events() <-chan event.Event {
	return n.events
}

// Hosting reports whether this node is the hosting peer.
func (n *Node) Hosting() bool {
	return n.host != nil
}

// Addr returns the address to share with joining peers, or the address of
// the host this node joined.
func (n *Node) Addr() string {
	if n.host != nil {
		return n.host.Addr()
	}
	return ""
}

func (n *Node) SendText(text string) error {
	if n.host != nil {
		return n.host.SendText(text)
	}
	return n.client.SendText(text)
}

// SendPath streams a file or folder in the background. Progress, skipped
// files, completion and failure all arrive as events.
func (n *Node) SendPath(path string) {
	msgs := make(chan interface{}, 64)
	go func() {
		for msg := range msgs {
			switch msg := msg.(type) {
			case transfer.Progress:
				n.emit(event.Progress{
					BytesSent:  msg.BytesSent,
					TotalBytes: msg.TotalBytes,
					FilesSent:  msg.FilesSent,
					TotalFiles: msg.TotalFiles,
				})
			case transfer.Skipped:
				n.emit(event.Log{Text: fmt.Sprintf("skipped %s: %v", msg.Path, msg.Err)})
			}
		}
	}()
	go func() {
		defer close(msgs)
		var err error
		if n.host != nil {
			err = n.host.SendPath(path, msgs)
		} else {
			err = n.client.SendPath(path, msgs)
		}
		if err != nil {
			n.emit(event.Error{Err: err})
			return
		}
		n.emit(event.Log{Text: fmt.Sprintf("sent %s", path)})
	}()
}

func (n *Node) Stop() {
	if n.advertiser != nil {
		n.advertiser.Shutdown()
	}
	if n.host != nil {
		n.host.Stop()
	}
	if n.client != nil {
		n.client.Stop()
	}
}

func (n *Node) pump(src <-chan event.Event) {
	for e := range src {
		n.events <- e
	}
}

func (n *Node) emit(e event.Event) {
	select {
	case n.events <- e:
	default:
		n.logger.Warn("event buffer full, dropping event")
	}
}
