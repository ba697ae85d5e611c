package client

import (
	"testing"
	"time"

	P "github.com/cfoust/spheres/pkg/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(x float32) P.GameObject {
	return P.GameObject{Position: P.Vec3{X: x}, Colour: P.Vec4{X: 1, W: 1}}
}

func TestWorldSelfEcho(t *testing.T) {
	world := NewWorldState(at(0))
	require.NoError(t, world.SetID(2))

	assert.False(t, world.Apply(2, at(9), time.Now()))
	assert.Empty(t, world.Remotes())
	_, ok := world.Remote(2)
	assert.False(t, ok)
	assert.Equal(t, at(0), world.Local())
}

func TestWorldUpsert(t *testing.T) {
	world := NewWorldState(at(0))
	require.NoError(t, world.SetID(2))

	assert.True(t, world.Apply(1, at(1), time.Now()))
	assert.True(t, world.Apply(1, at(7), time.Now()))

	assert.Equal(t, []P.ClientID{1}, world.Remotes())
	object, ok := world.Remote(1)
	require.True(t, ok)
	assert.Equal(t, at(7), object)
}

func TestWorldFirstIDWins(t *testing.T) {
	world := NewWorldState(at(0))

	_, ok := world.Own()
	assert.False(t, ok)

	require.NoError(t, world.SetID(1))
	assert.ErrorIs(t, world.SetID(1), ErrIDRepeated)
	assert.NotErrorIs(t, world.SetID(1), ErrIDAlreadySet)
	assert.ErrorIs(t, world.SetID(3), ErrIDAlreadySet)

	id, ok := world.Own()
	require.True(t, ok)
	assert.Equal(t, P.ClientID(1), id)
}

func TestWorldEarlyEchoIsDropped(t *testing.T) {
	world := NewWorldState(at(0))

	// data under our ID can arrive before we know it is ours
	world.Apply(4, at(1), time.Now())
	require.NoError(t, world.SetID(4))
	assert.Empty(t, world.Remotes())
}

func TestWorldObjects(t *testing.T) {
	world := NewWorldState(at(-1))
	require.NoError(t, world.SetID(1))
	world.Apply(3, at(3), time.Now())
	world.Apply(2, at(2), time.Now())

	assert.Equal(t, []P.GameObject{at(-1), at(2), at(3)}, world.Objects())

	world.Move(2)
	assert.Equal(t, at(1), world.Objects()[0])
}

func TestWorldPrune(t *testing.T) {
	world := NewWorldState(at(0))
	start := time.Unix(100, 0)

	world.Apply(1, at(1), start)
	world.Apply(2, at(2), start.Add(5*time.Second))

	assert.Equal(t, []P.ClientID{1}, world.Prune(start.Add(time.Second)))
	assert.Equal(t, []P.ClientID{2}, world.Remotes())
	assert.True(t, world.Remove(2))
	assert.False(t, world.Remove(2))
}

func TestWorldReset(t *testing.T) {
	world := NewWorldState(at(0))
	require.NoError(t, world.SetID(1))
	world.Apply(2, at(2), time.Now())
	world.Move(3)

	world.Reset()
	_, ok := world.Own()
	assert.False(t, ok)
	assert.Empty(t, world.Remotes())
	assert.Equal(t, at(3), world.Local())

	// a new connection may hand out a different ID
	assert.NoError(t, world.SetID(5))
}
