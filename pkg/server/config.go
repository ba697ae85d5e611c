package server

import "time"

type Config struct {
	MaxClients   int
	PingInterval time.Duration
	PingText     string
	// Forward each client's ClientData to every other client.
	Relay bool
	// Broadcast ClientLeft when a client's connection ends.
	AnnounceDisconnects bool
	// How often Poll drains the transport.
	PollInterval time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		MaxClients:   32,
		PingInterval: time.Second,
		PingText:     "Ping!",
		Relay:        true,
		PollInterval: 5 * time.Millisecond,
	}
}

// withDefaults returns a copy of c where the intervals Poll needs are
// positive.
func (c Config) withDefaults() *Config {
	defaults := DefaultConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = defaults.PingInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	return &c
}
