package protocol

import (
	"fmt"

	crunch "github.com/superwhiskers/crunch/v3"
)

// MessageCode is the first byte of every packet.
type MessageCode byte

// UserPacketBase is the first tag outside the range substrates reserve for
// their own system messages.
const UserPacketBase MessageCode = 134

const (
	IDServerTextMessage MessageCode = UserPacketBase + 1 + iota
	IDServerSetClientID
	IDClientClientData
	IDServerClientLeft
)

func (m MessageCode) String() string {
	switch m {
	case IDServerTextMessage:
		return "TextMessage"
	case IDServerSetClientID:
		return "SetClientID"
	case IDClientClientData:
		return "ClientData"
	case IDServerClientLeft:
		return "ClientLeft"
	}
	return fmt.Sprintf("unknown(%d)", byte(m))
}

type Message interface {
	Type() MessageCode
	put(b *crunch.Buffer)
}

// TextMessage is free text from the server, e.g. the periodic ping.
type TextMessage struct {
	Text string
}

func (TextMessage) Type() MessageCode { return IDServerTextMessage }

// SetClientID tells a newly connected client who it is.
type SetClientID struct {
	Client ClientID
}

func (SetClientID) Type() MessageCode { return IDServerSetClientID }

// ClientData carries one client's object. Clients send their own; the
// server relays it unchanged to everyone else.
type ClientData struct {
	Client ClientID
	Object GameObject
}

func (ClientData) Type() MessageCode { return IDClientClientData }

// ClientLeft announces that a client's connection ended.
type ClientLeft struct {
	Client ClientID
}

func (ClientLeft) Type() MessageCode { return IDServerClientLeft }
