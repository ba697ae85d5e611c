package protocol

import (
	"errors"
	"fmt"
	"math"
	"strings"

	crunch "github.com/superwhiskers/crunch/v3"
)

var (
	ErrShortPacket    = errors.New("packet too short")
	ErrTrailingData   = errors.New("unexpected data after message")
	ErrUnknownMessage = errors.New("unknown message")
)

// MaxTextLength is the longest text that fits the 16-bit length prefix.
const MaxTextLength = math.MaxUint16

// Encode writes the message tag followed by its fields, little-endian and
// fixed-width, in declaration order.
func Encode(message Message) []byte {
	b := crunch.NewBuffer()
	b.Grow(1)
	b.WriteByteNext(byte(message.Type()))
	message.put(b)
	return b.Bytes()
}

func putObject(b *crunch.Buffer, object GameObject) {
	b.Grow(ObjectSize)
	b.WriteF32LENext([]float32{
		object.Position.X,
		object.Position.Y,
		object.Position.Z,
		object.Colour.X,
		object.Colour.Y,
		object.Colour.Z,
		object.Colour.W,
	})
}

func (m TextMessage) put(b *crunch.Buffer) {
	text := []byte(m.Text)
	if len(text) > MaxTextLength {
		text = []byte(strings.ToValidUTF8(string(text[:MaxTextLength]), ""))
	}

	b.Grow(2 + int64(len(text)))
	b.WriteU16LENext([]uint16{uint16(len(text))})
	if len(text) > 0 {
		b.WriteBytesNext(text)
	}
}

func (m SetClientID) put(b *crunch.Buffer) {
	b.Grow(4)
	b.WriteU32LENext([]uint32{uint32(m.Client)})
}

func (m ClientData) put(b *crunch.Buffer) {
	b.Grow(4)
	b.WriteU32LENext([]uint32{uint32(m.Client)})
	putObject(b, m.Object)
}

func (m ClientLeft) put(b *crunch.Buffer) {
	b.Grow(4)
	b.WriteU32LENext([]uint32{uint32(m.Client)})
}

// reader checks the remaining length before every read so that a short
// packet is reported instead of overrunning the buffer.
type reader struct {
	buf  *crunch.Buffer
	left int64
}

func newReader(data []byte) *reader {
	return &reader{
		buf:  crunch.NewBuffer(data),
		left: int64(len(data)),
	}
}

func (r *reader) take(n int64) error {
	if r.left < n {
		return ErrShortPacket
	}
	r.left -= n
	return nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.take(2); err != nil {
		return 0, err
	}
	return r.buf.ReadU16LENext(1)[0], nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.take(4); err != nil {
		return 0, err
	}
	return r.buf.ReadU32LENext(1)[0], nil
}

func (r *reader) bytes(n int64) ([]byte, error) {
	if err := r.take(n); err != nil {
		return nil, err
	}
	if n == 0 {
		return []byte{}, nil
	}
	return r.buf.ReadBytesNext(n), nil
}

func (r *reader) object() (GameObject, error) {
	if err := r.take(ObjectSize); err != nil {
		return GameObject{}, err
	}
	f := r.buf.ReadF32LENext(7)
	return GameObject{
		Position: Vec3{f[0], f[1], f[2]},
		Colour:   Vec4{f[3], f[4], f[5], f[6]},
	}, nil
}

func (r *reader) client() (ClientID, error) {
	id, err := r.u32()
	return ClientID(id), err
}

func decodeText(r *reader) (Message, error) {
	length, err := r.u16()
	if err != nil {
		return nil, err
	}

	text, err := r.bytes(int64(length))
	if err != nil {
		return nil, err
	}

	return TextMessage{Text: strings.ToValidUTF8(string(text), "�")}, nil
}

func decodeSetClientID(r *reader) (Message, error) {
	id, err := r.client()
	if err != nil {
		return nil, err
	}
	return SetClientID{Client: id}, nil
}

func decodeClientData(r *reader) (Message, error) {
	id, err := r.client()
	if err != nil {
		return nil, err
	}

	object, err := r.object()
	if err != nil {
		return nil, err
	}

	return ClientData{Client: id, Object: object}, nil
}

func decodeClientLeft(r *reader) (Message, error) {
	id, err := r.client()
	if err != nil {
		return nil, err
	}
	return ClientLeft{Client: id}, nil
}

// Decode reads one message. A packet that is shorter than its kind's layout,
// or longer, is rejected as a whole.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, ErrShortPacket
	}

	code := MessageCode(data[0])
	r := newReader(data[1:])

	var (
		message Message
		err     error
	)
	switch code {
	case IDServerTextMessage:
		message, err = decodeText(r)
	case IDServerSetClientID:
		message, err = decodeSetClientID(r)
	case IDClientClientData:
		message, err = decodeClientData(r)
	case IDServerClientLeft:
		message, err = decodeClientLeft(r)
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownMessage, byte(code))
	}

	if err != nil {
		return nil, fmt.Errorf("could not decode %s: %w", code, err)
	}

	if r.left > 0 {
		return nil, fmt.Errorf("could not decode %s: %w (%d bytes)", code, ErrTrailingData, r.left)
	}

	return message, nil
}
