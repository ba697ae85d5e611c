package enet

import (
	"fmt"
	"iter"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/cfoust/spheres/pkg/transport"

	"github.com/codecat/go-enet"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// A busy host could otherwise keep one drain going forever.
const maxEventsPerDrain = 1024

// How long Close keeps servicing the host so queued goodbyes go out.
const closeLinger = 100 * time.Millisecond

var initialize sync.Once

// Host is a transport.Host on top of an ENet host. It is not safe for
// concurrent use; one goroutine should own it.
type Host struct {
	host     enet.Host
	listener bool
	maxPeers int
	closed   bool

	peers map[enet.Peer]transport.Address
	// Outgoing attempts that have not been answered yet.
	pending map[enet.Peer]transport.Address
	// Peers we disconnected whose goodbye may still be queued.
	leaving map[enet.Peer]struct{}
}

func newHost(address enet.Address, maxPeers int, listener bool) (*Host, error) {
	initialize.Do(func() {
		enet.Initialize()
	})

	host, err := enet.NewHost(address, uint64(maxPeers), uint64(NumChannels), 0, 0)
	if err != nil {
		return nil, fmt.Errorf("could not create enet host: %w", err)
	}

	return &Host{
		host:     host,
		listener: listener,
		maxPeers: maxPeers,
		peers:    make(map[enet.Peer]transport.Address),
		pending:  make(map[enet.Peer]transport.Address),
		leaving:  make(map[enet.Peer]struct{}),
	}, nil
}

// Listen binds a UDP port that accepts up to maxPeers connections.
func Listen(port int, maxPeers int) (*Host, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}
	return newHost(enet.NewListenAddress(uint16(port)), maxPeers, true)
}

// Dial creates an unbound host with room for one outgoing connection.
func Dial() (*Host, error) {
	return newHost(nil, 1, false)
}

func (h *Host) Logger() zerolog.Logger {
	return log.With().Str("service", "enet").Logger()
}

// peerAddress names an incoming peer by its remote endpoint.
func peerAddress(peer enet.Peer) transport.Address {
	address := peer.GetAddress().String()
	if host, port, err := net.SplitHostPort(address); err == nil {
		return transport.Address(net.JoinHostPort(host, port))
	}
	return transport.Address(address)
}

// resolve only accepts literal IPs so that Connect never waits on DNS.
func resolve(address string) (string, bool) {
	if address == "localhost" {
		return "127.0.0.1", true
	}

	ip := net.ParseIP(address)
	if ip == nil || ip.To4() == nil {
		return "", false
	}
	return ip.To4().String(), true
}

func (h *Host) lookup(address transport.Address) (enet.Peer, bool) {
	for peer, name := range h.peers {
		if name == address {
			return peer, true
		}
	}
	return nil, false
}

func (h *Host) lookupPending(address transport.Address) (enet.Peer, bool) {
	for peer, name := range h.pending {
		if name == address {
			return peer, true
		}
	}
	return nil, false
}

func (h *Host) Connect(address string, port int) transport.ConnectResult {
	if h.closed {
		return transport.ConnectFailed
	}

	if address == "" || port <= 0 || port > 65535 {
		return transport.ConnectInvalidAddress
	}

	ip, ok := resolve(address)
	if !ok {
		return transport.ConnectInvalidAddress
	}

	label := transport.JoinAddress(address, port)
	if _, ok := h.lookup(label); ok {
		return transport.ConnectAlreadyConnected
	}
	if _, ok := h.lookupPending(label); ok {
		return transport.ConnectAlreadyConnected
	}

	if len(h.peers)+len(h.pending) >= h.maxPeers {
		return transport.ConnectNoFreeSlots
	}

	peer, err := h.host.Connect(enet.NewAddress(ip, uint16(port)), int(NumChannels), 0)
	if err != nil {
		logger := h.Logger()
		logger.Warn().Err(err).Str("address", string(label)).Msg("could not queue connection")
		return transport.ConnectFailed
	}

	h.pending[peer] = label
	return transport.ConnectStarted
}

func (h *Host) Send(data []byte, reliability transport.Reliability, priority transport.Priority, target transport.Target) {
	if h.closed {
		return
	}

	channel, flags := packetFlags(reliability)
	for peer, address := range h.peers {
		if !target.Includes(address) {
			continue
		}

		if err := peer.SendBytes(data, channel, flags); err != nil {
			logger := h.Logger()
			logger.Warn().
				Err(err).
				Str("address", string(address)).
				Msg("failed to send packet")
		}
	}
}

func (h *Host) translate(event enet.Event) (transport.Event, bool) {
	peer := event.GetPeer()

	switch event.GetType() {
	case enet.EventConnect:
		if label, ok := h.pending[peer]; ok {
			delete(h.pending, peer)
			h.peers[peer] = label
			return transport.Event{
				Type:    transport.EventConnected,
				Address: label,
			}, true
		}

		label := peerAddress(peer)
		h.peers[peer] = label
		return transport.Event{
			Type:    transport.EventConnecting,
			Address: label,
		}, true
	case enet.EventDisconnect:
		delete(h.leaving, peer)
		if label, ok := h.pending[peer]; ok {
			delete(h.pending, peer)
			return transport.Event{
				Type:    transport.EventConnectionFailed,
				Address: label,
			}, true
		}

		label, ok := h.peers[peer]
		if !ok {
			// we already let go of this peer
			return transport.Event{}, false
		}
		delete(h.peers, peer)
		return disconnectEvent(label, event.GetData()), true
	case enet.EventReceive:
		packet := event.GetPacket()
		defer packet.Destroy()

		label, ok := h.peers[peer]
		if !ok {
			return transport.Event{}, false
		}

		data := packet.GetData()
		copied := make([]byte, len(data))
		copy(copied, data)
		return transport.Event{
			Type:    transport.EventReceive,
			Address: label,
			Data:    copied,
		}, true
	}

	return transport.Event{}, false
}

func (h *Host) Events() iter.Seq[transport.Event] {
	return func(yield func(transport.Event) bool) {
		for i := 0; i < maxEventsPerDrain; i++ {
			if h.closed {
				return
			}

			event := h.host.Service(0)
			if event.GetType() == enet.EventNone {
				return
			}

			translated, ok := h.translate(event)
			if !ok {
				continue
			}

			if !yield(translated) {
				return
			}
		}
	}
}

func (h *Host) Disconnect(address transport.Address, reason transport.Reason) {
	if peer, ok := h.lookupPending(address); ok {
		delete(h.pending, peer)
		peer.DisconnectNow(uint32(reason))
		return
	}

	peer, ok := h.lookup(address)
	if !ok {
		return
	}
	delete(h.peers, peer)
	h.leaving[peer] = struct{}{}
	peer.Disconnect(uint32(reason))
}

// linger services the host until every queued goodbye is acknowledged or
// closeLinger runs out. Anything else that arrives is dropped.
func (h *Host) linger() {
	deadline := time.Now().Add(closeLinger)
	for len(h.leaving) > 0 && time.Now().Before(deadline) {
		event := h.host.Service(10)
		switch event.GetType() {
		case enet.EventDisconnect:
			delete(h.leaving, event.GetPeer())
		case enet.EventReceive:
			event.GetPacket().Destroy()
		}
	}
}

func (h *Host) Peers() []transport.Address {
	peers := make([]transport.Address, 0, len(h.peers))
	for _, address := range h.peers {
		peers = append(peers, address)
	}
	slices.Sort(peers)
	return peers
}

func (h *Host) Close() error {
	if h.closed {
		return transport.ErrClosed
	}

	reason := transport.ReasonQuit
	if h.listener {
		reason = transport.ReasonShutdown
	}

	for peer := range h.peers {
		peer.DisconnectNow(uint32(reason))
	}
	for peer := range h.pending {
		peer.DisconnectNow(uint32(reason))
	}
	h.linger()

	h.peers = make(map[enet.Peer]transport.Address)
	h.pending = make(map[enet.Peer]transport.Address)
	h.leaving = make(map[enet.Peer]struct{})
	h.closed = true
	h.host.Destroy()
	return nil
}

var _ transport.Host = (*Host)(nil)
