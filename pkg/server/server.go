package server

import (
	"context"
	"time"

	P "github.com/cfoust/spheres/pkg/protocol"
	"github.com/cfoust/spheres/pkg/transport"
	"github.com/cfoust/spheres/pkg/utils"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type NoticeType uint8

const (
	NoticeJoined NoticeType = iota
	NoticeLeft
	NoticeRejected
)

func (n NoticeType) String() string {
	switch n {
	case NoticeJoined:
		return "joined"
	case NoticeLeft:
		return "left"
	case NoticeRejected:
		return "rejected"
	}
	return "unknown"
}

// Notice describes a change in who is connected.
type Notice struct {
	Type    NoticeType
	Client  P.ClientID
	Address transport.Address
	Reason  transport.Reason
}

type Server struct {
	utils.Session
	*Config

	host transport.Host

	Registry *Registry
	Notices  *utils.Topic[Notice]
}

// New takes a copy of conf. Zero or negative intervals fall back to
// DefaultConfig's.
func New(ctx context.Context, host transport.Host, conf *Config) *Server {
	return &Server{
		Session:  utils.NewSession(ctx),
		Config:   conf.withDefaults(),
		host:     host,
		Registry: NewRegistry(),
		Notices:  utils.NewTopic[Notice](),
	}
}

func (s *Server) Logger() zerolog.Logger {
	return log.With().Str("service", "server").Str("session", s.ID()).Logger()
}

// Poll owns the host until ctx or the server's session ends. The transport
// is only ever touched from here, so draining events and the periodic ping
// never race each other.
func (s *Server) Poll(ctx context.Context) {
	ping := time.NewTicker(s.PingInterval)
	defer ping.Stop()

	poll := time.NewTicker(s.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Ctx().Done():
			return
		case <-ping.C:
			s.Ping()
		case <-poll.C:
			s.Service()
		}
	}
}

// Service handles every event the transport has queued.
func (s *Server) Service() {
	for event := range s.host.Events() {
		switch event.Type {
		case transport.EventConnecting:
			s.handleConnecting(event.Address)
		case transport.EventDisconnected, transport.EventLostConnection:
			s.handleLeave(event)
		case transport.EventReceive:
			s.HandlePacket(event.Address, event.Data)
		default:
			logger := s.Logger()
			logger.Debug().
				Str("address", string(event.Address)).
				Msgf("ignoring %s event", event.Type)
		}
	}
}

func (s *Server) send(message P.Message, target transport.Target) {
	s.host.Send(
		P.Encode(message),
		transport.ReliableOrdered,
		transport.PriorityHigh,
		target,
	)
}

// Ping broadcasts the ping text to every connected client.
func (s *Server) Ping() {
	s.send(P.TextMessage{Text: s.PingText}, transport.Everyone())
}

func (s *Server) handleConnecting(address transport.Address) {
	logger := s.Logger().With().Str("address", string(address)).Logger()
	logger.Info().Msg("a connection is incoming")

	if _, ok := s.Registry.Lookup(address); ok {
		logger.Warn().Msg("address already holds a client id")
		return
	}

	if s.Registry.Count() >= s.MaxClients {
		logger.Warn().Int("max", s.MaxClients).Msg("server is full, rejecting connection")
		s.host.Disconnect(address, transport.ReasonFull)
		s.Notices.Publish(Notice{
			Type:    NoticeRejected,
			Address: address,
			Reason:  transport.ReasonFull,
		})
		return
	}

	peer := s.Registry.Admit(address)
	s.send(P.SetClientID{Client: peer.ID}, transport.To(address))

	logger.Info().
		Uint32("client", uint32(peer.ID)).
		Str("peer", peer.Session).
		Msg("issued client id")

	s.Notices.Publish(Notice{
		Type:    NoticeJoined,
		Client:  peer.ID,
		Address: address,
	})
}

func (s *Server) handleLeave(event transport.Event) {
	logger := s.Logger().With().Str("address", string(event.Address)).Logger()

	peer, ok := s.Registry.Remove(event.Address)
	if !ok {
		logger.Debug().Msgf("%s from a peer without a client id", event.Type)
		return
	}

	logger = logger.With().
		Uint32("client", uint32(peer.ID)).
		Str("peer", peer.Session).
		Logger()

	if event.Type == transport.EventLostConnection {
		logger.Info().Msg("a client lost the connection")
	} else {
		logger.Info().Str("reason", event.Reason.String()).Msg("a client has disconnected")
	}

	s.Notices.Publish(Notice{
		Type:    NoticeLeft,
		Client:  peer.ID,
		Address: event.Address,
		Reason:  event.Reason,
	})

	if s.AnnounceDisconnects {
		s.send(P.ClientLeft{Client: peer.ID}, transport.Everyone())
	}
}

// Clients returns the connected clients ordered by ID.
func (s *Server) Clients() []Peer {
	return s.Registry.Peers()
}

func (s *Server) Shutdown() {
	s.Cancel()
	if err := s.host.Close(); err != nil {
		logger := s.Logger()
		logger.Warn().Err(err).Msg("failed to close transport")
	}
}

// Issued is how many client IDs this server has handed out.
func (s *Server) Issued() int {
	return s.Registry.Issued()
}
