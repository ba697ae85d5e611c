package protocol

import "fmt"

// ClientID identifies one connected client for the lifetime of its
// connection. The server hands them out starting at 1; zero is never issued.
type ClientID uint32

type Vec3 struct {
	X, Y, Z float32
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

type Vec4 struct {
	X, Y, Z, W float32
}

// GameObject is the replicated state of one participant.
type GameObject struct {
	Position Vec3
	Colour   Vec4
}

// ObjectSize is the encoded size of a GameObject: seven 32-bit floats.
const ObjectSize = 7 * 4
