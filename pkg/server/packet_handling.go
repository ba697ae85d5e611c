package server

import (
	"errors"

	P "github.com/cfoust/spheres/pkg/protocol"
	"github.com/cfoust/spheres/pkg/transport"
)

// checks if a client is allowed to send a certain type of message to us.
func isValidMessage(code P.MessageCode) bool {
	return code == P.IDClientClientData
}

// HandlePacket decodes one packet from a client and applies the relay
// policy. Nothing a client sends can stop the loop: bad packets are logged
// and dropped.
func (s *Server) HandlePacket(address transport.Address, data []byte) {
	logger := s.Logger().With().Str("address", string(address)).Logger()

	message, err := P.Decode(data)
	if errors.Is(err, P.ErrUnknownMessage) {
		logger.Warn().Err(err).Msg("received a message with an unknown id")
		return
	}
	if err != nil {
		logger.Warn().Err(err).Int("length", len(data)).Msg("dropping malformed message")
		return
	}

	if !isValidMessage(message.Type()) {
		logger.Warn().Str("type", message.Type().String()).Msg("client sent a server-only message")
		return
	}

	peer, ok := s.Registry.Lookup(address)
	if !ok {
		logger.Warn().Msg("message from a peer without a client id")
		return
	}

	switch message := message.(type) {
	case P.ClientData:
		logger.Debug().
			Uint32("client", uint32(peer.ID)).
			Uint32("sender", uint32(message.Client)).
			Stringer("position", message.Object.Position).
			Msg("client data")

		if !s.Relay {
			return
		}

		// the packet was just validated, so forward it untouched
		s.host.Send(
			data,
			transport.ReliableOrdered,
			transport.PriorityHigh,
			transport.AllExcept(address),
		)
	}
}
