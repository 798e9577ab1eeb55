package host

import (
	"sync"

	"github.com/samber/lo"

	"partyline/internal/conn"
)

// Peer is one accepted client connection.
type Peer struct {
	Conn     conn.Conn
	Addr     string
	Username string
}

// Registry tracks the connected peers. Fan-out iterates over a snapshot so
// that a slow or failing write never holds the lock.
type Registry struct {
	mu    sync.Mutex
	peers []*Peer
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Add(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = append(r.peers, p)
}

// Remove unregisters the peer and reports whether it was present. The second
// of two racing removals returns false, so disconnect handling runs once.
func (r *Registry) Remove(p *Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.peers)
	r.peers = lo.Reject(r.peers, func(other *Peer, _ int) bool {
		return other == p
	})
	return len(r.peers) != n
}

// Snapshot returns the current peers in registration order.
func (r *Registry) Snapshot() []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Peer(nil), r.peers...)
}

// Others returns every peer except the given one.
func (r *Registry) Others(exclude *Peer) []*Peer {
	return lo.Filter(r.Snapshot(), func(p *Peer, _ int) bool {
		return p != exclude
	})
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
