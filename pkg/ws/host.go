// Package ws carries the transport over WebSockets so that browsers and
// networks that drop UDP can still take part.
package ws

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/http"
	"slices"
	"time"

	P "github.com/cfoust/spheres/pkg/protocol"
	"github.com/cfoust/spheres/pkg/transport"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
)

const (
	// How many packets may queue up for one connection before it is cut.
	MessageLimit = 256
	WriteTimeout = 5 * time.Second

	// The largest packet is a TextMessage: tag, length and the text.
	ReadLimit = 1 + 2 + P.MaxTextLength

	// Close codes above this carry a transport.Reason.
	reasonBase = 4000
)

type conn struct {
	address transport.Address
	ws      *websocket.Conn
	send    chan []byte
	cancel  context.CancelFunc
}

// Host is a transport.Host over WebSocket connections. Each connection is
// serviced by its own goroutines; events are queued until drained.
type Host struct {
	mutex    deadlock.Mutex
	maxPeers int
	listener bool
	closed   bool

	queue   []transport.Event
	conns   map[transport.Address]*conn
	pending map[transport.Address]context.CancelFunc

	ctx        context.Context
	cancel     context.CancelFunc
	httpServer *http.Server
	addr       net.Addr
}

func newHost(ctx context.Context, maxPeers int) *Host {
	ctx, cancel := context.WithCancel(ctx)
	return &Host{
		maxPeers: maxPeers,
		conns:    make(map[transport.Address]*conn),
		pending:  make(map[transport.Address]context.CancelFunc),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Listen serves WebSocket connections on port. A port of zero picks a free
// one; see Port.
func Listen(ctx context.Context, port int, maxPeers int) (*Host, error) {
	listen, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to bind WebSocket port: %w", err)
	}

	h := newHost(ctx, maxPeers)
	h.listener = true
	h.addr = listen.Addr()
	h.httpServer = &http.Server{
		Handler: h,
	}

	go func() {
		err := h.httpServer.Serve(listen)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger := h.Logger()
			logger.Error().Err(err).Msg("websocket server stopped")
		}
	}()

	logger := h.Logger()
	logger.Info().Msgf("listening on ws://%v", listen.Addr())
	return h, nil
}

// Dial creates a host with room for one outgoing connection.
func Dial(ctx context.Context) *Host {
	return newHost(ctx, 1)
}

func (h *Host) Logger() zerolog.Logger {
	return log.With().Str("service", "ws").Logger()
}

// Port is the TCP port a listening host is bound to.
func (h *Host) Port() int {
	if tcp, ok := h.addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

func (h *Host) push(event transport.Event) {
	h.queue = append(h.queue, event)
}

func closeCode(reason transport.Reason) websocket.StatusCode {
	return websocket.StatusCode(reasonBase + int(reason))
}

// closeEvent describes how the remote end went away.
func closeEvent(address transport.Address, err error) transport.Event {
	status := websocket.CloseStatus(err)
	switch {
	case status >= reasonBase && status < reasonBase+256:
		return transport.Event{
			Type:    transport.EventDisconnected,
			Address: address,
			Reason:  transport.Reason(status - reasonBase),
		}
	case status == websocket.StatusNormalClosure, status == websocket.StatusGoingAway:
		return transport.Event{
			Type:    transport.EventDisconnected,
			Address: address,
			Reason:  transport.ReasonQuit,
		}
	}

	return transport.Event{
		Type:    transport.EventLostConnection,
		Address: address,
	}
}

func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger := h.Logger()
		logger.Error().Err(err).Msg("error accepting client connection")
		return
	}
	c.SetReadLimit(ReadLimit)

	address := transport.Address(r.RemoteAddr)

	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		c.Close(closeCode(transport.ReasonShutdown), transport.ReasonShutdown.String())
		return
	}
	if len(h.conns) >= h.maxPeers {
		h.mutex.Unlock()
		c.Close(closeCode(transport.ReasonFull), transport.ReasonFull.String())
		return
	}

	ctx, cancel := context.WithCancel(h.ctx)
	peer := h.add(address, c, cancel)
	h.push(transport.Event{Type: transport.EventConnecting, Address: address})
	h.mutex.Unlock()

	h.serve(ctx, peer)
}

// add must be called with the mutex held.
func (h *Host) add(address transport.Address, c *websocket.Conn, cancel context.CancelFunc) *conn {
	peer := &conn{
		address: address,
		ws:      c,
		send:    make(chan []byte, MessageLimit),
		cancel:  cancel,
	}
	h.conns[address] = peer
	return peer
}

func writeTimeout(ctx context.Context, timeout time.Duration, c *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageBinary, msg)
}

// serve pumps one connection until it ends.
func (h *Host) serve(ctx context.Context, peer *conn) {
	logger := h.Logger().With().Str("address", string(peer.address)).Logger()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-peer.send:
				if err := writeTimeout(ctx, WriteTimeout, peer.ws, msg); err != nil {
					logger.Warn().Err(err).Msg("peer missed write timeout; disconnecting")
					peer.ws.Close(websocket.StatusInternalError, "write failed")
					return
				}
			}
		}
	}()

	for {
		typ, data, err := peer.ws.Read(ctx)
		if err != nil {
			h.drop(peer, err)
			return
		}

		if typ != websocket.MessageBinary {
			continue
		}

		h.mutex.Lock()
		h.push(transport.Event{
			Type:    transport.EventReceive,
			Address: peer.address,
			Data:    data,
		})
		h.mutex.Unlock()
	}
}

// drop reports the end of a connection unless we ended it ourselves.
func (h *Host) drop(peer *conn, err error) {
	peer.cancel()

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.conns[peer.address] != peer {
		return
	}
	delete(h.conns, peer.address)
	h.push(closeEvent(peer.address, err))
}

func (h *Host) Connect(address string, port int) transport.ConnectResult {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return transport.ConnectFailed
	}

	if address == "" || port <= 0 || port > 65535 {
		return transport.ConnectInvalidAddress
	}

	label := transport.JoinAddress(address, port)
	if _, ok := h.conns[label]; ok {
		return transport.ConnectAlreadyConnected
	}
	if _, ok := h.pending[label]; ok {
		return transport.ConnectAlreadyConnected
	}

	if len(h.conns)+len(h.pending) >= h.maxPeers {
		return transport.ConnectNoFreeSlots
	}

	ctx, cancel := context.WithCancel(h.ctx)
	h.pending[label] = cancel

	go h.dial(ctx, cancel, label)
	return transport.ConnectStarted
}

func (h *Host) dial(ctx context.Context, cancel context.CancelFunc, label transport.Address) {
	c, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/", label), nil)

	h.mutex.Lock()
	if _, ok := h.pending[label]; !ok {
		// abandoned while we were dialing
		h.mutex.Unlock()
		cancel()
		if err == nil {
			c.Close(closeCode(transport.ReasonTimeout), transport.ReasonTimeout.String())
		}
		return
	}
	delete(h.pending, label)

	if err != nil {
		h.push(transport.Event{Type: transport.EventConnectionFailed, Address: label})
		h.mutex.Unlock()
		cancel()
		logger := h.Logger()
		logger.Debug().Err(err).Str("address", string(label)).Msg("dial failed")
		return
	}
	c.SetReadLimit(ReadLimit)

	peer := h.add(label, c, cancel)
	h.push(transport.Event{Type: transport.EventConnected, Address: label})
	h.mutex.Unlock()

	h.serve(ctx, peer)
}

func (h *Host) Send(data []byte, reliability transport.Reliability, priority transport.Priority, target transport.Target) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for address, peer := range h.conns {
		if !target.Includes(address) {
			continue
		}

		copied := make([]byte, len(data))
		copy(copied, data)

		select {
		case peer.send <- copied:
		default:
			// too slow to keep up
			delete(h.conns, address)
			h.push(transport.Event{Type: transport.EventLostConnection, Address: address})
			go peer.ws.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
		}
	}
}

func (h *Host) Events() iter.Seq[transport.Event] {
	return func(yield func(transport.Event) bool) {
		h.mutex.Lock()
		count := len(h.queue)
		h.mutex.Unlock()

		for ; count > 0; count-- {
			h.mutex.Lock()
			if len(h.queue) == 0 {
				h.mutex.Unlock()
				return
			}
			event := h.queue[0]
			h.queue = h.queue[1:]
			h.mutex.Unlock()

			if !yield(event) {
				return
			}
		}
	}
}

func (h *Host) Disconnect(address transport.Address, reason transport.Reason) {
	h.mutex.Lock()
	if cancel, ok := h.pending[address]; ok {
		delete(h.pending, address)
		h.mutex.Unlock()
		cancel()
		return
	}

	peer, ok := h.conns[address]
	if ok {
		delete(h.conns, address)
	}
	h.mutex.Unlock()

	if ok {
		go peer.ws.Close(closeCode(reason), reason.String())
	}
}

func (h *Host) Peers() []transport.Address {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	peers := make([]transport.Address, 0, len(h.conns))
	for address := range h.conns {
		peers = append(peers, address)
	}
	slices.Sort(peers)
	return peers
}

func (h *Host) Close() error {
	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		return transport.ErrClosed
	}
	h.closed = true

	reason := transport.ReasonQuit
	if h.listener {
		reason = transport.ReasonShutdown
	}

	peers := make([]*conn, 0, len(h.conns))
	for _, peer := range h.conns {
		peers = append(peers, peer)
	}
	clear(h.conns)

	for _, cancel := range h.pending {
		cancel()
	}
	clear(h.pending)
	h.mutex.Unlock()

	var group errgroup.Group
	for _, peer := range peers {
		group.Go(func() error {
			return peer.ws.Close(closeCode(reason), reason.String())
		})
	}
	if err := group.Wait(); err != nil {
		logger := h.Logger()
		logger.Debug().Err(err).Msg("peer did not close cleanly")
	}

	h.cancel()
	if h.httpServer != nil {
		return h.httpServer.Close()
	}
	return nil
}

var _ transport.Host = (*Host)(nil)
