package core

import "sync"

// Member is one registry entry.
type Member struct {
	Peer     *Peer
	Username string
}

// Registry maps live, handshaken peers to their display names.
// Register, Unregister and Snapshot exclude each other.
type Registry struct {
	mu    sync.RWMutex
	peers map[*Peer]string
	order []*Peer
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[*Peer]string)}
}

// Register inserts a peer. Returns false if it is already present.
func (r *Registry) Register(p *Peer, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[p]; exists {
		return false
	}
	r.peers[p] = username
	r.order = append(r.order, p)
	return true
}

// Unregister removes a peer and returns the name it registered with.
func (r *Registry) Unregister(p *Peer) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, exists := r.peers[p]
	if !exists {
		return "", false
	}
	delete(r.peers, p)
	for i, q := range r.order {
		if q == p {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return name, true
}

// Username looks up a registered peer.
func (r *Registry) Username(p *Peer) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.peers[p]
	return name, ok
}

// Snapshot copies the current members in registration order.
func (r *Registry) Snapshot() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]Member, 0, len(r.order))
	for _, p := range r.order {
		members = append(members, Member{Peer: p, Username: r.peers[p]})
	}
	return members
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
