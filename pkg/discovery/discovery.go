// Package discovery finds servers on the local network over mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const Domain = "local."

var ErrNotFound = errors.New("no server found")

// Service is the mDNS service type for a transport: _spheres._udp for ENet,
// _spheres._tcp for WebSockets.
func Service(transport string) string {
	if transport == "ws" {
		return "_spheres._tcp"
	}
	return "_spheres._udp"
}

func Logger() zerolog.Logger {
	return log.With().Str("service", "discovery").Logger()
}

// Advertise announces a server listening on port until Shutdown is called
// on the result.
func Advertise(service string, port int) (*zeroconf.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	server, err := zeroconf.Register(
		fmt.Sprintf("spheres-%s", host),
		service,
		Domain,
		port,
		[]string{"txtv=1"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("could not register mDNS service: %w", err)
	}

	logger := Logger()
	logger.Info().Str("type", service).Int("port", port).Msg("advertising server")
	return server, nil
}

// pick returns the first entry that has a usable IPv4 address.
func pick(entries <-chan *zeroconf.ServiceEntry) (string, int, error) {
	for entry := range entries {
		if entry == nil || len(entry.AddrIPv4) == 0 || entry.Port <= 0 {
			continue
		}
		return entry.AddrIPv4[0].String(), entry.Port, nil
	}
	return "", 0, ErrNotFound
}

// Browse looks for a server until one is found or ctx ends.
func Browse(ctx context.Context, service string) (address string, port int, err error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to initialize mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, service, Domain, entries); err != nil {
		return "", 0, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	address, port, err = pick(entries)
	if err != nil {
		return "", 0, err
	}

	logger := Logger()
	logger.Info().Str("address", address).Int("port", port).Msg("discovered server")
	return address, port, nil
}
