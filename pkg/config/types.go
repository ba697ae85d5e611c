package config

import (
	"time"

	"github.com/cfoust/spheres/pkg/client"
	P "github.com/cfoust/spheres/pkg/protocol"
	"github.com/cfoust/spheres/pkg/server"
)

type TransportType string

const (
	TransportENet      TransportType = "enet"
	TransportWebSocket TransportType = "ws"
)

type ServerSettings struct {
	Transport           TransportType
	Port                int
	MaxClients          int
	PingInterval        float64
	PingText            string
	Relay               bool
	AnnounceDisconnects bool
	Advertise           bool
}

type ClientSettings struct {
	Transport      TransportType
	Address        string
	Port           int
	Discover       bool
	ConnectTimeout float64
	Retry          bool
	Speed          float32
	SendRate       float64
	StaleAfter     float64
	Colour         [4]float32
}

type Config struct {
	Server ServerSettings
	Client ClientSettings
}

func seconds(value float64) time.Duration {
	return time.Duration(value * float64(time.Second))
}

// Engine converts the settings into a server configuration.
func (s ServerSettings) Engine() *server.Config {
	conf := server.DefaultConfig()
	conf.MaxClients = s.MaxClients
	conf.PingInterval = seconds(s.PingInterval)
	conf.PingText = s.PingText
	conf.Relay = s.Relay
	conf.AnnounceDisconnects = s.AnnounceDisconnects
	return conf
}

func (s ClientSettings) Engine() *client.Config {
	conf := client.DefaultConfig()
	conf.Address = s.Address
	conf.Port = s.Port
	conf.ConnectTimeout = seconds(s.ConnectTimeout)
	conf.Retry = s.Retry
	conf.Speed = s.Speed
	conf.SendRate = s.SendRate
	conf.StaleAfter = seconds(s.StaleAfter)
	conf.Colour = P.Vec4{
		X: s.Colour[0],
		Y: s.Colour[1],
		Z: s.Colour[2],
		W: s.Colour[3],
	}
	return conf
}
