package client

import (
	"time"

	P "github.com/cfoust/spheres/pkg/protocol"
)

type Config struct {
	Address string
	Port    int

	// How long to wait for the server to accept a connection attempt. Zero
	// waits forever.
	ConnectTimeout time.Duration
	Retry          bool

	// Units per second the local object moves while a key is held.
	Speed float32
	// Maximum ClientData sends per second. Zero is unlimited.
	SendRate float64
	// Remote objects not updated for this long are dropped. Zero keeps them
	// forever.
	StaleAfter time.Duration

	Colour P.Vec4
}

func DefaultConfig() *Config {
	return &Config{
		Address:        "127.0.0.1",
		Port:           5456,
		ConnectTimeout: 10 * time.Second,
		Retry:          true,
		Speed:          10,
		Colour:         P.Vec4{X: 1, W: 1},
	}
}
