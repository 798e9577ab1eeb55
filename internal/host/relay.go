// relay.go implements the fan-out path of the host: every byte bound for the
// peers goes through the relay, which serializes writers so that frames from
// different sources are never interleaved on a peer's stream.
package host

import (
	"sync"

	"go.uber.org/zap"

	"partyline/internal/protocol"
	"partyline/internal/transfer"
)

// Relay distributes frames to the registered peers.
//
// fanMu makes fan-out a single logical actor. Per-connection write locks
// already keep one Write call atomic, but a streamed file send spans many
// writes; holding fanMu for the whole span keeps relayed frames from landing
// inside another frame's payload.
type Relay struct {
	registry *Registry
	logger   *zap.Logger

	fanMu sync.Mutex
}

func NewRelay(registry *Registry, logger *zap.Logger) *Relay {
	return &Relay{registry: registry, logger: logger}
}

// Forward re-emits a peer's frame to every other peer, stamped with the
// sender. The frame is rendered as one buffer, header and payload together,
// so each peer receives it in a single write. Returns the peers whose
// connection failed.
func (r *Relay) Forward(from *Peer, f protocol.Frame) ([]*Peer, error) {
	data, err := f.WithSender(from.Username).Encode()
	if err != nil {
		return nil, err
	}
	return r.Broadcast(data, from), nil
}

// Broadcast writes raw frame bytes to every peer except the excluded one.
func (r *Relay) Broadcast(data []byte, exclude *Peer) []*Peer {
	r.fanMu.Lock()
	defer r.fanMu.Unlock()
	return r.broadcastLocked(data, exclude)
}

// Transfer runs a multi-write send, like a streamed file, with exclusive
// ownership of the fan-out. Relayed traffic queues up behind it.
func (r *Relay) Transfer(send func(w transfer.Writer) error) ([]*Peer, error) {
	r.fanMu.Lock()
	defer r.fanMu.Unlock()
	w := &fanWriter{relay: r}
	err := send(w)
	return w.dropped, err
}

func (r *Relay) broadcastLocked(data []byte, exclude *Peer) []*Peer {
	var dropped []*Peer
	for _, p := range r.registry.Others(exclude) {
		if err := p.Conn.Write(data); err != nil {
			r.logger.Warn("dropping peer on failed write",
				zap.String("addr", p.Addr),
				zap.String("username", p.Username),
				zap.Error(err))
			if r.registry.Remove(p) {
				p.Conn.Close()
				dropped = append(dropped, p)
			}
		}
	}
	return dropped
}

// fanWriter adapts the locked broadcast to the transfer writer. It must only
// be used inside Transfer, while fanMu is held.
type fanWriter struct {
	relay   *Relay
	dropped []*Peer
}

func (w *fanWriter) Write(p []byte) error {
	w.dropped = append(w.dropped, w.relay.broadcastLocked(p, nil)...)
	return nil
}
