package enet

import (
	"github.com/cfoust/spheres/pkg/transport"

	"github.com/codecat/go-enet"
)

// Unreliable traffic and reliable traffic get a channel each so that a lost
// unreliable packet never holds up the reliable stream.
const (
	ChannelUnreliable uint8 = iota
	ChannelReliable

	NumChannels
)

// packetFlags picks the channel and ENet flags for a reliability class.
// Sequenced variants map onto ENet's per-channel sequencing.
func packetFlags(reliability transport.Reliability) (uint8, enet.PacketFlags) {
	switch reliability {
	case transport.Unreliable:
		return ChannelUnreliable, enet.PacketFlagUnsequenced
	case transport.UnreliableSequenced:
		return ChannelUnreliable, 0
	default:
		return ChannelReliable, enet.PacketFlagReliable
	}
}

// disconnectEvent turns the data word of an ENet disconnect into a transport event.
// ENet reports timeouts with zero.
func disconnectEvent(address transport.Address, data uint32) transport.Event {
	if data == 0 {
		return transport.Event{
			Type:    transport.EventLostConnection,
			Address: address,
		}
	}

	return transport.Event{
		Type:    transport.EventDisconnected,
		Address: address,
		Reason:  transport.Reason(data),
	}
}
