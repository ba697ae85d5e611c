package protocol

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireLayout(t *testing.T) {
	assert.Equal(t,
		[]byte{136, 0x02, 0x01, 0x00, 0x00},
		Encode(SetClientID{Client: 0x0102}),
	)

	data := Encode(ClientData{
		Client: 1,
		Object: GameObject{
			Position: Vec3{X: 5},
			Colour:   Vec4{X: 1, W: 1},
		},
	})
	require.Len(t, data, 1+4+ObjectSize)
	assert.Equal(t, byte(IDClientClientData), data[0])
	assert.Equal(t, []byte{1, 0, 0, 0}, data[1:5])
	// 5.0f, little-endian
	assert.Equal(t, []byte{0x00, 0x00, 0xa0, 0x40}, data[5:9])
	// colour.x = 1.0f
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, data[17:21])

	assert.Equal(t,
		[]byte{135, 5, 0, 'P', 'i', 'n', 'g', '!'},
		Encode(TextMessage{Text: "Ping!"}),
	)
}

func TestRoundTrip(t *testing.T) {
	messages := []Message{
		TextMessage{Text: "Ping!"},
		TextMessage{Text: ""},
		TextMessage{Text: "héllo wörld"},
		SetClientID{Client: 1},
		SetClientID{Client: math.MaxUint32},
		ClientData{
			Client: 7,
			Object: GameObject{
				Position: Vec3{1.5, -2.25, 3},
				Colour:   Vec4{1, 0, 0, 1},
			},
		},
		ClientLeft{Client: 3},
	}

	for _, before := range messages {
		after, err := Decode(Encode(before))
		require.NoError(t, err, before.Type().String())
		assert.Equal(t, before, after)
	}
}

func TestObjectBitIdentical(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	randomFloat := func() float32 {
		for {
			f := math.Float32frombits(rng.Uint32())
			if !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0) {
				return f
			}
		}
	}

	for i := 0; i < 1000; i++ {
		before := GameObject{
			Position: Vec3{randomFloat(), randomFloat(), randomFloat()},
			Colour:   Vec4{randomFloat(), randomFloat(), randomFloat(), randomFloat()},
		}

		message, err := Decode(Encode(ClientData{Client: 1, Object: before}))
		require.NoError(t, err)
		after := message.(ClientData).Object

		assert.Equal(t, math.Float32bits(before.Position.X), math.Float32bits(after.Position.X))
		assert.Equal(t, math.Float32bits(before.Position.Y), math.Float32bits(after.Position.Y))
		assert.Equal(t, math.Float32bits(before.Position.Z), math.Float32bits(after.Position.Z))
		assert.Equal(t, math.Float32bits(before.Colour.W), math.Float32bits(after.Colour.W))
		assert.Equal(t, before, after)
	}
}

func TestShortPackets(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrShortPacket)

	full := Encode(ClientData{Client: 2, Object: GameObject{Position: Vec3{1, 2, 3}}})
	for length := 1; length < len(full); length++ {
		_, err := Decode(full[:length])
		assert.ErrorIs(t, err, ErrShortPacket, "length %d", length)
	}

	_, err = Decode([]byte{byte(IDServerSetClientID), 1, 0})
	assert.ErrorIs(t, err, ErrShortPacket)

	// declared text length longer than what follows
	_, err = Decode([]byte{byte(IDServerTextMessage), 10, 0, 'h', 'i'})
	assert.ErrorIs(t, err, ErrShortPacket)
}

func TestTrailingData(t *testing.T) {
	data := append(Encode(SetClientID{Client: 1}), 0xff)
	_, err := Decode(data)
	assert.ErrorIs(t, err, ErrTrailingData)
}

func TestUnknownMessage(t *testing.T) {
	_, err := Decode([]byte{byte(UserPacketBase), 1, 2, 3})
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = Decode([]byte{16})
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestLongText(t *testing.T) {
	text := strings.Repeat("a", MaxTextLength+10)
	message, err := Decode(Encode(TextMessage{Text: text}))
	require.NoError(t, err)
	assert.Len(t, message.(TextMessage).Text, MaxTextLength)
}

func TestMessageCodeString(t *testing.T) {
	assert.Equal(t, "ClientData", IDClientClientData.String())
	assert.Equal(t, "unknown(3)", MessageCode(3).String())
}
