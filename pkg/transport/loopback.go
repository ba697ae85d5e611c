package transport

import (
	"fmt"
	"iter"
	"slices"

	"github.com/sasha-s/go-deadlock"
)

// Network is an in-process substrate: reliable, ordered and instantaneous.
// Hosts created from the same Network can reach each other by port.
type Network struct {
	mutex     deadlock.Mutex
	listeners map[int]*LoopbackHost
	// ports where connection attempts are accepted but never answered
	blackholes map[int]struct{}
	nextPort   int
}

func NewNetwork() *Network {
	return &Network{
		listeners:  make(map[int]*LoopbackHost),
		blackholes: make(map[int]struct{}),
		nextPort:   49152,
	}
}

type LoopbackHost struct {
	network  *Network
	address  Address
	maxPeers int
	listener bool
	closed   bool

	queue   []Event
	peers   map[*LoopbackHost]Address
	pending map[Address]struct{}
}

func (n *Network) newHost(port int, maxPeers int) *LoopbackHost {
	return &LoopbackHost{
		network:  n,
		address:  JoinAddress("127.0.0.1", port),
		maxPeers: maxPeers,
		peers:    make(map[*LoopbackHost]Address),
		pending:  make(map[Address]struct{}),
	}
}

// Listen creates a host that accepts up to maxPeers incoming connections.
func (n *Network) Listen(port int, maxPeers int) (*LoopbackHost, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if _, ok := n.listeners[port]; ok {
		return nil, fmt.Errorf("port %d already in use", port)
	}

	host := n.newHost(port, maxPeers)
	host.listener = true
	n.listeners[port] = host
	return host, nil
}

// Dial creates a host with a single outgoing peer slot.
func (n *Network) Dial() *LoopbackHost {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	port := n.nextPort
	n.nextPort++
	return n.newHost(port, 1)
}

// Blackhole makes connection attempts to port stay pending forever.
func (n *Network) Blackhole(port int) {
	n.mutex.Lock()
	n.blackholes[port] = struct{}{}
	n.mutex.Unlock()
}

func (h *LoopbackHost) LocalAddress() Address {
	return h.address
}

func (h *LoopbackHost) push(event Event) {
	h.queue = append(h.queue, event)
}

func isLoopback(address string) bool {
	switch address {
	case "127.0.0.1", "localhost", "::1":
		return true
	}
	return false
}

func (h *LoopbackHost) Connect(address string, port int) ConnectResult {
	n := h.network
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if h.closed {
		return ConnectFailed
	}

	if address == "" || port <= 0 || port > 65535 {
		return ConnectInvalidAddress
	}

	label := JoinAddress(address, port)
	if _, ok := h.pending[label]; ok {
		return ConnectAlreadyConnected
	}
	for _, name := range h.peers {
		if name == label {
			return ConnectAlreadyConnected
		}
	}

	if len(h.peers)+len(h.pending) >= h.maxPeers {
		return ConnectNoFreeSlots
	}

	if _, ok := n.blackholes[port]; ok {
		h.pending[label] = struct{}{}
		return ConnectStarted
	}

	remote, ok := n.listeners[port]
	if !ok || remote.closed || !isLoopback(address) {
		h.push(Event{Type: EventConnectionFailed, Address: label})
		return ConnectStarted
	}

	if len(remote.peers) >= remote.maxPeers {
		h.push(Event{Type: EventDisconnected, Address: label, Reason: ReasonFull})
		return ConnectStarted
	}

	h.peers[remote] = label
	remote.peers[h] = h.address
	remote.push(Event{Type: EventConnecting, Address: h.address})
	h.push(Event{Type: EventConnected, Address: label})
	return ConnectStarted
}

func (h *LoopbackHost) Send(data []byte, reliability Reliability, priority Priority, target Target) {
	n := h.network
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if h.closed {
		return
	}

	for remote, name := range h.peers {
		if !target.Includes(name) {
			continue
		}

		copied := make([]byte, len(data))
		copy(copied, data)
		remote.push(Event{
			Type:    EventReceive,
			Address: remote.peers[h],
			Data:    copied,
		})
	}
}

func (h *LoopbackHost) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		n := h.network

		n.mutex.Lock()
		count := len(h.queue)
		n.mutex.Unlock()

		for ; count > 0; count-- {
			n.mutex.Lock()
			if len(h.queue) == 0 {
				n.mutex.Unlock()
				return
			}
			event := h.queue[0]
			h.queue = h.queue[1:]
			n.mutex.Unlock()

			if !yield(event) {
				return
			}
		}
	}
}

func (h *LoopbackHost) find(address Address) *LoopbackHost {
	for remote, name := range h.peers {
		if name == address {
			return remote
		}
	}
	return nil
}

func (h *LoopbackHost) unlink(remote *LoopbackHost) Address {
	name := remote.peers[h]
	delete(h.peers, remote)
	delete(remote.peers, h)
	return name
}

func (h *LoopbackHost) Disconnect(address Address, reason Reason) {
	n := h.network
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if _, ok := h.pending[address]; ok {
		delete(h.pending, address)
		return
	}

	remote := h.find(address)
	if remote == nil {
		return
	}

	name := h.unlink(remote)
	remote.push(Event{Type: EventDisconnected, Address: name, Reason: reason})
}

// Sever drops the link to address without a goodbye, as if the network
// between the two hosts went down. Both ends observe EventLostConnection.
func (h *LoopbackHost) Sever(address Address) {
	n := h.network
	n.mutex.Lock()
	defer n.mutex.Unlock()

	remote := h.find(address)
	if remote == nil {
		return
	}

	name := h.unlink(remote)
	remote.push(Event{Type: EventLostConnection, Address: name})
	h.push(Event{Type: EventLostConnection, Address: address})
}

func (h *LoopbackHost) Peers() []Address {
	n := h.network
	n.mutex.Lock()
	defer n.mutex.Unlock()

	peers := make([]Address, 0, len(h.peers))
	for _, name := range h.peers {
		peers = append(peers, name)
	}
	slices.Sort(peers)
	return peers
}

func (h *LoopbackHost) Close() error {
	n := h.network
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if h.closed {
		return ErrClosed
	}

	reason := ReasonQuit
	if h.listener {
		reason = ReasonShutdown
		for port, listener := range n.listeners {
			if listener == h {
				delete(n.listeners, port)
			}
		}
	}

	for remote := range h.peers {
		name := h.unlink(remote)
		remote.push(Event{Type: EventDisconnected, Address: name, Reason: reason})
	}

	h.pending = make(map[Address]struct{})
	h.closed = true
	return nil
}

var _ Host = (*LoopbackHost)(nil)
