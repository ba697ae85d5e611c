package server

import (
	"cmp"
	"slices"
	"time"

	P "github.com/cfoust/spheres/pkg/protocol"
	"github.com/cfoust/spheres/pkg/transport"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
)

// Peer is a connected client as the server knows it.
type Peer struct {
	ID      P.ClientID
	Address transport.Address
	// Correlates the log lines of one connection.
	Session   string
	Connected time.Time
}

// Registry hands out ClientIDs and remembers which address holds which one.
// IDs are never reused, even after the holder disconnects.
type Registry struct {
	mutex        deadlock.Mutex
	nextClientID P.ClientID
	peers        map[transport.Address]*Peer
}

func NewRegistry() *Registry {
	return &Registry{
		nextClientID: 1,
		peers:        make(map[transport.Address]*Peer),
	}
}

// IssueClientID returns the next unused ID.
func (r *Registry) IssueClientID() P.ClientID {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.issue()
}

func (r *Registry) issue() P.ClientID {
	id := r.nextClientID
	r.nextClientID++
	return id
}

// Admit issues an ID to address and records the mapping.
func (r *Registry) Admit(address transport.Address) *Peer {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	peer := &Peer{
		ID:        r.issue(),
		Address:   address,
		Session:   uuid.NewString(),
		Connected: time.Now(),
	}
	r.peers[address] = peer
	return peer
}

func (r *Registry) Lookup(address transport.Address) (*Peer, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	peer, ok := r.peers[address]
	return peer, ok
}

// Remove forgets the address. Its ID stays retired.
func (r *Registry) Remove(address transport.Address) (*Peer, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	peer, ok := r.peers[address]
	if ok {
		delete(r.peers, address)
	}
	return peer, ok
}

// Count is the number of clients currently connected.
func (r *Registry) Count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.peers)
}

// Issued is the number of IDs handed out so far.
func (r *Registry) Issued() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return int(r.nextClientID - 1)
}

// Peers returns a copy of the connected clients ordered by ID.
func (r *Registry) Peers() []Peer {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	peers := make([]Peer, 0, len(r.peers))
	for _, peer := range r.peers {
		peers = append(peers, *peer)
	}
	slices.SortFunc(peers, func(a, b Peer) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return peers
}
