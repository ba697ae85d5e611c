package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	P "github.com/cfoust/spheres/pkg/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestProcess(t *testing.T) {
	// Default config
	config, err := Process([]string{})
	require.NoError(t, err)
	assert.Equal(t, TransportENet, config.Server.Transport)
	assert.Equal(t, 5456, config.Server.Port)
	assert.Equal(t, 32, config.Server.MaxClients)
	assert.Equal(t, "Ping!", config.Server.PingText)
	assert.True(t, config.Server.Relay)
	assert.Equal(t, "127.0.0.1", config.Client.Address)
	assert.Equal(t, [4]float32{1, 0, 0, 1}, config.Client.Colour)

	// yaml config
	{
		yaml := write(t, "config.yaml", `
server:
  port: 1234
  pingText: "Hello"
`)
		config, err := Process([]string{yaml})
		require.NoError(t, err)
		assert.Equal(t, 1234, config.Server.Port)
		assert.Equal(t, "Hello", config.Server.PingText)
		// untouched settings keep their defaults
		assert.Equal(t, 32, config.Server.MaxClients)
		assert.Equal(t, 5456, config.Client.Port)
	}

	// json config
	{
		json := write(t, "config.json", `{
  "client": {
    "transport": "ws",
    "sendRate": 20.5
  }
}`)
		config, err := Process([]string{json})
		require.NoError(t, err)
		assert.Equal(t, TransportWebSocket, config.Client.Transport)
		assert.Equal(t, 20.5, config.Client.SendRate)
	}

	// multiple yaml
	{
		yaml1 := write(t, "config1.yaml", `
server:
  maxClients: 4
`)
		yaml2 := write(t, "config2.yaml", `
server:
  announceDisconnects: true
`)
		config, err := Process([]string{yaml1, yaml2})
		require.NoError(t, err)
		assert.Equal(t, 4, config.Server.MaxClients)
		assert.True(t, config.Server.AnnounceDisconnects)
	}
}

func TestProcessInvalid(t *testing.T) {
	for name, contents := range map[string]string{
		"negative":  "server:\n  maxClients: -1\n",
		"transport": "server:\n  transport: tcp\n",
		"unknown":   "client:\n  colour: [1, 0]\n",
		"port":      "client:\n  port: 70000\n",
		"typo":      "server:\n  pingIntreval: 2\n",
	} {
		_, err := Process([]string{write(t, name+".yaml", contents)})
		assert.Error(t, err, name)
	}

	// conflicting files
	first := write(t, "first.yaml", "server:\n  port: 1\n")
	second := write(t, "second.yaml", "server:\n  port: 2\n")
	_, err := Process([]string{first, second})
	assert.Error(t, err)

	_, err = Process([]string{"/does/not/exist.yaml"})
	assert.ErrorIs(t, err, ErrMissingFile)

	_, err = Process([]string{write(t, "config.toml", "")})
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Process([]string{write(t, "broken.json", "{")})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownFormat)
}

func TestParse(t *testing.T) {
	config, err := Parse("inline.yml", []byte(`client:
  address: 10.0.0.2
  retry: false
`))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", config.Client.Address)
	assert.False(t, config.Client.Retry)
	assert.Equal(t, 5456, config.Server.Port)

	config, err = Parse("inline.JSON", []byte(`{"server": {"relay": false}}`))
	require.NoError(t, err)
	assert.False(t, config.Server.Relay)

	defaults, err := Parse("default.yaml", DEFAULT)
	require.NoError(t, err)
	processed, err := Process(nil)
	require.NoError(t, err)
	assert.Equal(t, defaults, processed)

	_, err = Parse("inline", []byte("server: {}"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestEngine(t *testing.T) {
	config, err := Process([]string{write(t, "config.yaml", `
server:
  pingInterval: 0.5
client:
  staleAfter: 3
  colour: [0, 1, 0, 1]
`)})
	require.NoError(t, err)

	server := config.Server.Engine()
	assert.Equal(t, 500*time.Millisecond, server.PingInterval)
	assert.Equal(t, 32, server.MaxClients)

	client := config.Client.Engine()
	assert.Equal(t, 3*time.Second, client.StaleAfter)
	assert.Equal(t, 10*time.Second, client.ConnectTimeout)
	assert.Equal(t, P.Vec4{Y: 1, W: 1}, client.Colour)
	assert.Equal(t, float32(10), client.Speed)
}
