// Package transport describes the network substrate the replication layer runs
// on. Implementations live in pkg/enet (reliable UDP), pkg/ws (WebSockets) and
// this package's in-process loopback network.
package transport

import (
	"errors"
	"iter"
	"net"
	"strconv"
)

var ErrClosed = errors.New("transport closed")

// Address identifies a remote peer from the point of view of one host.
type Address string

// JoinAddress builds the canonical host:port form used for peer addresses.
func JoinAddress(host string, port int) Address {
	return Address(net.JoinHostPort(host, strconv.Itoa(port)))
}

type Reliability uint8

const (
	Unreliable Reliability = iota
	UnreliableSequenced
	Reliable
	ReliableOrdered
	ReliableSequenced
)

func (r Reliability) IsReliable() bool {
	return r >= Reliable
}

func (r Reliability) String() string {
	switch r {
	case Unreliable:
		return "unreliable"
	case UnreliableSequenced:
		return "unreliable-sequenced"
	case Reliable:
		return "reliable"
	case ReliableOrdered:
		return "reliable-ordered"
	case ReliableSequenced:
		return "reliable-sequenced"
	default:
		return strconv.Itoa(int(r))
	}
}

// Priority is a scheduling hint. Transports without send queues ignore it.
type Priority uint8

const (
	PriorityImmediate Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

// Target selects the recipients of a send.
type Target struct {
	// With Broadcast unset, the single recipient. With Broadcast set, the
	// one peer to leave out (empty means nobody).
	Address   Address
	Broadcast bool
}

func To(address Address) Target {
	return Target{Address: address}
}

func Everyone() Target {
	return Target{Broadcast: true}
}

// AllExcept addresses every connected peer but the given one.
func AllExcept(address Address) Target {
	return Target{Address: address, Broadcast: true}
}

func (t Target) Includes(address Address) bool {
	if t.Broadcast {
		return address != t.Address
	}
	return address == t.Address
}

type EventType uint8

const (
	// A remote peer opened a connection to us.
	EventConnecting EventType = iota
	// A connection we started was accepted.
	EventConnected
	// The remote end closed the connection on purpose; see Event.Reason.
	EventDisconnected
	// The connection timed out.
	EventLostConnection
	// A queued connection attempt could not be completed.
	EventConnectionFailed
	EventReceive
)

func (e EventType) String() string {
	switch e {
	case EventConnecting:
		return "connecting"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventLostConnection:
		return "lost connection"
	case EventConnectionFailed:
		return "connection failed"
	case EventReceive:
		return "receive"
	default:
		return strconv.Itoa(int(e))
	}
}

type Event struct {
	Type    EventType
	Address Address
	Reason  Reason
	// Only set for EventReceive. Owned by the receiver.
	Data []byte
}

// ConnectResult is the synchronous outcome of Host.Connect. Anything but
// ConnectStarted means the attempt was never queued and no event will follow.
type ConnectResult uint8

const (
	ConnectStarted ConnectResult = iota
	ConnectInvalidAddress
	ConnectAlreadyConnected
	ConnectNoFreeSlots
	ConnectFailed
)

func (r ConnectResult) Started() bool {
	return r == ConnectStarted
}

func (r ConnectResult) String() string {
	switch r {
	case ConnectStarted:
		return "connection attempt started"
	case ConnectInvalidAddress:
		return "invalid address"
	case ConnectAlreadyConnected:
		return "already connected or connecting"
	case ConnectNoFreeSlots:
		return "no free peer slots"
	case ConnectFailed:
		return "connection attempt could not be started"
	default:
		return strconv.Itoa(int(r))
	}
}

// Host is one endpoint of the substrate. Send and Connect never block, and
// Events only drains what is already queued.
type Host interface {
	Connect(address string, port int) ConnectResult
	Send(data []byte, reliability Reliability, priority Priority, target Target)
	// Events yields the events queued at the time of the call.
	Events() iter.Seq[Event]
	Disconnect(address Address, reason Reason)
	Peers() []Address
	Close() error
}
