package transport

import "strconv"

// Reason is carried by a graceful disconnect. Zero is reserved for timeouts,
// which is how ENet reports a peer that went away without saying goodbye.
type Reason uint32

const (
	ReasonNone Reason = iota
	ReasonQuit
	ReasonKick
	ReasonMessageError // MSGERR
	ReasonFull         // MAXCLIENTS
	ReasonTimeout
	ReasonShutdown
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonQuit:
		return "client quit"
	case ReasonKick:
		return "kicked"
	case ReasonMessageError:
		return "message error"
	case ReasonFull:
		return "server full"
	case ReasonTimeout:
		return "connection timed out"
	case ReasonShutdown:
		return "server shutting down"
	default:
		return strconv.Itoa(int(r))
	}
}
