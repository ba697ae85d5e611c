package main

import (
	"testing"
	"time"

	"github.com/cfoust/spheres/pkg/client"

	"github.com/stretchr/testify/assert"
)

func TestScript(t *testing.T) {
	sweep := &script{pattern: "sweep", quitAfter: 5 * time.Second}
	assert.True(t, sweep.IsKeyDown(client.KeyRight))
	assert.False(t, sweep.IsKeyDown(client.KeyLeft))

	sweep.Advance(3 * time.Second)
	assert.True(t, sweep.IsKeyDown(client.KeyLeft))
	assert.False(t, sweep.IsKeyDown(client.KeyRight))
	assert.False(t, sweep.IsKeyDown(client.KeyEscape))

	sweep.Advance(2 * time.Second)
	assert.True(t, sweep.IsKeyDown(client.KeyEscape))

	idle := &script{pattern: "idle"}
	idle.Advance(time.Hour)
	assert.False(t, idle.IsKeyDown(client.KeyLeft))
	assert.False(t, idle.IsKeyDown(client.KeyRight))
	assert.False(t, idle.IsKeyDown(client.KeyEscape))
}
